package pe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCLRHeader(t *testing.T) {
	want := &ImageCor20Header{
		Cb:                   ImageCor20HeaderSize,
		MajorRuntimeVersion:  2,
		MinorRuntimeVersion:  5,
		MetaData:             DataDirectory{VirtualAddress: 0x2080, Size: 0x1f4},
		Flags:                ComImageFlagsILOnly,
		EntryPointTokenOrRVA: 0x06000001,
		StrongNameSignature:  DataDirectory{VirtualAddress: 0x2300, Size: 0x80},
	}
	w := NewBufferWriter(ImageCor20HeaderSize)
	require.NoError(t, want.Encode(w))
	require.Equal(t, ImageCor20HeaderSize, w.Len())

	got, err := DecodeCLRHeader(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	t.Run("size below header", func(t *testing.T) {
		raw := append([]byte(nil), w.Bytes()...)
		put32(raw, 0, 0x40)
		_, err := DecodeCLRHeader(raw)
		assert.True(t, errors.Is(err, ErrInvalidImageFormat))
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeCLRHeader(w.Bytes()[:0x20])
		assert.True(t, errors.Is(err, ErrNotEnoughData))
	})
}

func TestParse_ShortCLRDirectory(t *testing.T) {
	def := NewPEImageDef()
	sh := def.NewSection(".net", ImageScnMemRead|ImageScnCntInitializedData)
	rva := sh.AddData([]byte{1, 2, 3, 4, 5})
	def.OptionalHeader.DataDirectories[ImageDirectoryEntryComDescriptor] = DataDirectory{VirtualAddress: rva, Size: 6}
	data, err := def.WriteFile()
	require.NoError(t, err)

	_, err = Parse(data)
	assert.True(t, errors.Is(err, ErrNotEnoughData))

	f, err := ParseWithOptions(data, Options{Sections: ParseAll &^ ParseCLRRuntimeHeader})
	require.NoError(t, err)
	assert.Nil(t, f.CLRRuntimeHeader)
}
