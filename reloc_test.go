package pe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelocationEntry_Bits(t *testing.T) {
	tests := []struct {
		raw     uint16
		want    BaseRelocationEntry
		wantErr bool
	}{
		{0x0000, BaseRelocationEntry{Type: ImageRelBasedAbsolute, Offset: 0}, false},
		{0x0fff, BaseRelocationEntry{Type: ImageRelBasedAbsolute, Offset: 0xfff}, false},
		{0x3000, BaseRelocationEntry{Type: ImageRelBasedHighLow, Offset: 0}, false},
		{0xa123, BaseRelocationEntry{Type: ImageRelBasedDir64, Offset: 0x123}, false},
		{0xafff, BaseRelocationEntry{Type: ImageRelBasedDir64, Offset: 0xfff}, false},
		{0xb000, BaseRelocationEntry{}, true},
		{0xffff, BaseRelocationEntry{}, true},
	}
	for _, tt := range tests {
		got, err := unpackRelocationEntry(tt.raw)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidImageFormat), "0x%04x", tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "0x%04x", tt.raw)
		assert.Equal(t, tt.raw, got.pack(), "0x%04x", tt.raw)
	}
}

func relocBlock(va uint32, size uint32, entries ...uint16) []byte {
	b := make([]byte, 8+2*len(entries))
	put32(b, 0, va)
	put32(b, 4, size)
	for i, e := range entries {
		put16(b, 8+2*i, e)
	}
	return b
}

func TestDecodeBaseRelocationTable(t *testing.T) {
	t.Run("entry count", func(t *testing.T) {
		for n := 0; n < 5; n++ {
			entries := make([]uint16, n)
			for i := range entries {
				entries[i] = 0xa000 | uint16(i*8)
			}
			rt, err := DecodeBaseRelocationTable(relocBlock(0x1000, uint32(8+2*n), entries...))
			require.NoError(t, err)
			require.Len(t, rt.Blocks, 1)
			assert.Len(t, rt.Blocks[0].Entries, n)
		}
	})

	t.Run("odd block size", func(t *testing.T) {
		data := relocBlock(0x1000, 11, 0x3004)
		data = append(data, 0xee)
		data = append(data, relocBlock(0x2000, 10, 0xa008)...)

		rt, err := DecodeBaseRelocationTable(data)
		require.NoError(t, err)
		require.Len(t, rt.Blocks, 2)
		assert.Equal(t, []BaseRelocationEntry{{Type: ImageRelBasedHighLow, Offset: 4}}, rt.Blocks[0].Entries)
		assert.Equal(t, uint32(0x2000), rt.Blocks[1].VirtualAddress)
		assert.Equal(t, []BaseRelocationEntry{{Type: ImageRelBasedDir64, Offset: 8}}, rt.Blocks[1].Entries)
	})

	t.Run("odd block size at end", func(t *testing.T) {
		data := append(relocBlock(0x1000, 11, 0x3004), 0)
		rt, err := DecodeBaseRelocationTable(data)
		require.NoError(t, err)
		assert.Len(t, rt.Blocks, 1)
	})

	t.Run("block smaller than header", func(t *testing.T) {
		_, err := DecodeBaseRelocationTable(relocBlock(0x1000, 4))
		assert.True(t, errors.Is(err, ErrInvalidImageFormat))
	})

	t.Run("block past end", func(t *testing.T) {
		_, err := DecodeBaseRelocationTable(relocBlock(0x1000, 0x20, 0xa000))
		assert.True(t, errors.Is(err, ErrNotEnoughData))
	})

	t.Run("odd byte past end", func(t *testing.T) {
		_, err := DecodeBaseRelocationTable(relocBlock(0x1000, 11, 0xa000))
		assert.True(t, errors.Is(err, ErrNotEnoughData))
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := DecodeBaseRelocationTable([]byte{0, 0x10, 0, 0, 8})
		assert.True(t, errors.Is(err, ErrNotEnoughData))
	})

	t.Run("bad type", func(t *testing.T) {
		_, err := DecodeBaseRelocationTable(relocBlock(0x1000, 10, 0xc000))
		assert.True(t, errors.Is(err, ErrInvalidImageFormat))
	})
}

func TestBaseRelocationDataDirectory_Encode(t *testing.T) {
	rt := &BaseRelocationDataDirectory{Blocks: []BaseRelocationBlock{
		{VirtualAddress: 0x1000, Entries: []BaseRelocationEntry{
			{Type: ImageRelBasedDir64, Offset: 0x10},
			{Type: ImageRelBasedAbsolute},
		}},
		{VirtualAddress: 0x2000},
	}}
	w := NewBufferWriter(0)
	require.NoError(t, rt.Encode(w))
	assert.Len(t, w.Bytes(), 12+8)

	got, err := DecodeBaseRelocationTable(w.Bytes())
	require.NoError(t, err)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, uint32(12), got.Blocks[0].SizeOfBlock)
	assert.Equal(t, rt.Blocks[0].Entries, got.Blocks[0].Entries)
	assert.Equal(t, uint32(8), got.Blocks[1].SizeOfBlock)
	assert.Empty(t, got.Blocks[1].Entries)
}

func TestParse_BaseRelocations(t *testing.T) {
	payload := relocBlock(0x1000, 12, 0xa010, 0)
	data := buildImage(t, NewPEImageDef(), payload,
		map[int]DataDirectory{ImageDirectoryEntryBaseReLoc: {VirtualAddress: testSectionRVA, Size: 12}})
	f := mustParse(t, data)
	require.NotNil(t, f.BaseRelocationTable)
	require.Len(t, f.BaseRelocationTable.Blocks, 1)
	assert.Len(t, f.BaseRelocationTable.Blocks[0].Entries, 2)
	assert.Equal(t, "DIR64", f.BaseRelocationTable.Blocks[0].Entries[0].Type.String())
}
