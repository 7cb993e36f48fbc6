package pe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSectionTable() SectionTable {
	return SectionTable{
		{Name: sectionName(".text"), VirtualAddress: 0x1000, VirtualSize: 0x800, PointerToRawData: 0x400, SizeOfRawData: 0x800},
		{Name: sectionName(".rdata"), VirtualAddress: 0x2000, VirtualSize: 0x100, PointerToRawData: 0xc00, SizeOfRawData: 0x200},
		{Name: sectionName(".bss"), VirtualAddress: 0x3000, VirtualSize: 0x1000},
	}
}

func TestSectionTable_FindRVA(t *testing.T) {
	table := testSectionTable()
	for i := range table {
		sh := &table[i]
		for _, a := range []uint32{sh.VirtualAddress, sh.VirtualAddress + sh.VirtualSize/2, sh.VirtualAddress + sh.VirtualSize - 1} {
			assert.Same(t, sh, table.FindRVA(a), "rva 0x%x", a)
		}
	}

	for _, a := range []uint32{0, 0xfff, 0x1800, 0x1fff, 0x2100, 0x4000, 0xffffffff} {
		assert.Nil(t, table.FindRVA(a), "rva 0x%x", a)
	}

	// Address 0 never resolves, even when a section starts there.
	zero := SectionTable{{VirtualAddress: 0, VirtualSize: 0x1000}}
	assert.Nil(t, zero.FindRVA(0))
	assert.NotNil(t, zero.FindRVA(1))
}

func TestSectionTable_FileOffset(t *testing.T) {
	table := testSectionTable()
	off, ok := table.FileOffset(0x1010)
	require.True(t, ok)
	assert.Equal(t, uint32(0x410), off)

	_, ok = table.FileOffset(0x5000)
	assert.False(t, ok)
}

func TestSectionTable_FindRVAData(t *testing.T) {
	file := make([]byte, 0xe00)
	for i := range file {
		file[i] = byte(i)
	}
	table := testSectionTable()

	data, ok := table.FindRVAData(file, 0x2010)
	require.True(t, ok)
	assert.Len(t, data, 0x200-0x10)
	assert.Equal(t, file[0xc10], data[0])

	// Raw data claiming more than the file holds is clamped.
	data, ok = table.FindRVAData(file[:0xd00], 0x2000)
	require.True(t, ok)
	assert.Len(t, data, 0x100)

	_, ok = table.FindRVAData(file, 0x2100)
	assert.False(t, ok)
}

func TestSectionTable_GetByName(t *testing.T) {
	table := SectionTable{
		{Name: sectionName(".textbss1"), VirtualAddress: 0x1000},
		{Name: sectionName(".text"), VirtualAddress: 0x2000},
	}
	assert.Equal(t, uint32(0x2000), table.GetByName(".text").VirtualAddress)
	// Names are compared after truncation to 8 bytes.
	assert.Equal(t, uint32(0x1000), table.GetByName(".textbss2").VirtualAddress)
	assert.Nil(t, table.GetByName(".data"))
}

func TestSectionTable_DirectoryData(t *testing.T) {
	file := make([]byte, 0xe00)
	table := testSectionTable()

	data, err := table.DirectoryData(file, DataDirectory{VirtualAddress: 0x2000, Size: 0x20})
	require.NoError(t, err)
	assert.Len(t, data, 0x20)

	data, err = table.DirectoryData(file, DataDirectory{VirtualAddress: 0, Size: 0x20})
	assert.NoError(t, err)
	assert.Nil(t, data)

	data, err = table.DirectoryData(file, DataDirectory{VirtualAddress: 0x9000, Size: 0x20})
	assert.NoError(t, err)
	assert.Nil(t, data)

	_, err = table.DirectoryData(file, DataDirectory{VirtualAddress: 0x2000, Size: 0x300})
	assert.True(t, errors.Is(err, ErrNotEnoughData))
}

func TestMapDataDirectory(t *testing.T) {
	file := make([]byte, 0xe00)
	table := testSectionTable()
	calls := 0
	size := func(data []byte) (int, error) {
		calls++
		return len(data), nil
	}

	n, mapped, err := mapDataDirectory(table, file, DataDirectory{VirtualAddress: 0x2000, Size: 0x20}, size)
	require.NoError(t, err)
	assert.True(t, mapped)
	assert.Equal(t, 0x20, n)

	for _, dir := range []DataDirectory{{VirtualAddress: 0, Size: 0x20}, {VirtualAddress: 0x9000, Size: 0x20}} {
		_, mapped, err = mapDataDirectory(table, file, dir, size)
		assert.NoError(t, err)
		assert.False(t, mapped)
	}

	_, _, err = mapDataDirectory(table, file, DataDirectory{VirtualAddress: 0x2000, Size: 0x300}, size)
	assert.True(t, errors.Is(err, ErrNotEnoughData))
	assert.Equal(t, 1, calls)
}

func TestSectionTable_RoundTrip(t *testing.T) {
	table := testSectionTable()
	table[0].Characteristics = ImageScnCntCode | ImageScnMemExecute | ImageScnMemRead
	w := NewBufferWriter(0)
	require.NoError(t, table.Encode(w))
	require.Len(t, w.Bytes(), len(table)*SectionHeaderSize)

	got, err := DecodeSectionTable(NewByteCursor(w.Bytes()), len(table))
	require.NoError(t, err)
	assert.Equal(t, table, got)
	assert.Equal(t, "rx", got[0].Flags())

	_, err = DecodeSectionTable(NewByteCursor(w.Bytes()), len(table)+1)
	assert.True(t, errors.Is(err, ErrNotEnoughData))
}

func TestSectionHeader_FullName(t *testing.T) {
	st := StringTable(".debug_info\x00.zdebug\x00")
	tests := []struct {
		name string
		want string
	}{
		{".text", ".text"},
		{"12345678", "12345678"},
		{"/4", ".debug_info"},
		{"/16", ".zdebug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := SectionHeader{Name: sectionName(tt.name)}
			got, err := sh.FullName(st)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	sh := SectionHeader{Name: sectionName("/x")}
	_, err := sh.FullName(st)
	assert.Error(t, err)
}
