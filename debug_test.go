package pe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func debugEntry(b []byte, off int, typ DebugType, size, rva, pointer uint32) {
	put32(b, off+4, 0x61000000)
	put32(b, off+12, uint32(typ))
	put32(b, off+16, size)
	put32(b, off+20, rva)
	put32(b, off+24, pointer)
}

func TestDecodeDebugTable(t *testing.T) {
	data := make([]byte, 2*DebugDirectorySize+3)
	debugEntry(data, 0, ImageDebugTypeCodeView, 0x20, 0x2000, 0x800)
	debugEntry(data, DebugDirectorySize, ImageDebugTypeRepro, 0, 0, 0)

	dt, err := DecodeDebugTable(data)
	require.NoError(t, err)
	require.Len(t, dt.Entries, 2)
	assert.Equal(t, ImageDebugTypeCodeView, dt.Entries[0].Type)
	assert.Equal(t, uint32(0x800), dt.Entries[0].PointerToRawData)
	assert.Equal(t, "Repro", dt.Entries[1].Type.String())
	assert.Equal(t, "DebugType(99)", DebugType(99).String())
}

func TestImageDebugDirectory_CodeView(t *testing.T) {
	file := make([]byte, 0x40)
	copy(file[0x10:], "RSDS")
	for i := 0; i < 16; i++ {
		file[0x14+i] = byte(i)
	}
	put32(file, 0x24, 3)
	copy(file[0x28:], "app.pdb\x00")

	dd := ImageDebugDirectory{Type: ImageDebugTypeCodeView, SizeOfData: 0x20, PointerToRawData: 0x10}
	cv, err := dd.CodeView(file)
	require.NoError(t, err)
	require.NotNil(t, cv)
	assert.Equal(t, uint32(3), cv.Age)
	assert.Equal(t, byte(15), cv.GUID[15])
	assert.Equal(t, "app.pdb", cv.PDBFileName)

	dd.PointerToRawData = 0x30
	_, err = dd.CodeView(file)
	assert.Error(t, err)

	dd = ImageDebugDirectory{Type: ImageDebugTypeCodeView, SizeOfData: 4, PointerToRawData: 0}
	cv, err = dd.CodeView(file)
	assert.NoError(t, err)
	assert.Nil(t, cv)

	dd.Type = ImageDebugTypePOGO
	cv, err = dd.CodeView(file)
	assert.NoError(t, err)
	assert.Nil(t, cv)
}

func TestParse_DebugTable(t *testing.T) {
	payload := make([]byte, DebugDirectorySize)
	debugEntry(payload, 0, ImageDebugTypeVCFeature, 0, 0, 0)
	data := buildImage(t, NewPEImageDef(), payload,
		map[int]DataDirectory{ImageDirectoryEntryDebug: {VirtualAddress: testSectionRVA, Size: DebugDirectorySize}})
	f := mustParse(t, data)
	require.NotNil(t, f.DebugTable)
	require.Len(t, f.DebugTable.Entries, 1)
	assert.Equal(t, ImageDebugTypeVCFeature, f.DebugTable.Entries[0].Type)

	f, err := ParseWithOptions(data, Options{Sections: ParseImportTable})
	require.NoError(t, err)
	assert.Nil(t, f.DebugTable)
}
