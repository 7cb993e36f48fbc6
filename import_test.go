package pe

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportTable(t *testing.T) {
	for _, def := range []*PEImageDef{NewPEImageDef(), newPE32Def()} {
		is64 := def.OptionalHeader.Is64()
		t.Run(map[bool]string{false: "PE32", true: "PE32+"}[is64], func(t *testing.T) {
			data := buildImage(t, def, importPayload(testSectionRVA, is64),
				map[int]DataDirectory{ImageDirectoryEntryImport: {VirtualAddress: testSectionRVA, Size: 0x28}})
			f := mustParse(t, data)

			require.NotNil(t, f.ImportTable)
			require.Len(t, f.ImportTable.Entries, 1)
			imp := f.ImportTable.Entries[0]
			assert.Equal(t, "KERNEL32.dll", imp.Name)
			assert.Equal(t, uint32(testSectionRVA), imp.Offset)
			assert.Equal(t, uint32(testSectionRVA+0x40), imp.Descriptor.OriginalFirstThunk)

			// The zero entry ends the table and adds no row.
			require.Len(t, imp.Functions, 2)

			named := imp.Functions[0]
			assert.False(t, named.ByOrdinal)
			assert.Equal(t, "ExitProcess", named.Name)
			assert.Equal(t, uint16(0x1234), named.Hint)
			assert.Equal(t, uint32(testSectionRVA+0x90), named.NameRVA)
			assert.Equal(t, uint32(testSectionRVA+0x40), named.ThunkRVA)

			ordinal := imp.Functions[1]
			assert.True(t, ordinal.ByOrdinal)
			assert.Equal(t, uint16(7), ordinal.Ordinal)
			assert.Equal(t, "#7", ordinal.Name)
			assert.Zero(t, ordinal.NameRVA)
		})
	}
}

func TestImportTable_FallsBackToIAT(t *testing.T) {
	payload := importPayload(testSectionRVA, true)
	put32(payload, 0x00, 0)
	data := buildImage(t, NewPEImageDef(), payload,
		map[int]DataDirectory{ImageDirectoryEntryImport: {VirtualAddress: testSectionRVA, Size: 0x28}})
	f := mustParse(t, data)

	require.Len(t, f.ImportTable.Entries, 1)
	functions := f.ImportTable.Entries[0].Functions
	require.Len(t, functions, 2)
	assert.Equal(t, uint32(testSectionRVA+0x60), functions[0].ThunkRVA)
	assert.Equal(t, "ExitProcess", functions[0].Name)
}

func TestImportTable_LongNameIsCut(t *testing.T) {
	payload := importPayload(testSectionRVA, true)
	name := bytes.Repeat([]byte{'A'}, maxDllLength+0x80)
	payload = append(payload[:0x100], name...)
	put32(payload, 0x0c, testSectionRVA+0x100)
	data := buildImage(t, NewPEImageDef(), payload,
		map[int]DataDirectory{ImageDirectoryEntryImport: {VirtualAddress: testSectionRVA, Size: 0x28}})

	f := mustParse(t, data)
	assert.Equal(t, string(name[:maxDllLength]), f.ImportTable.Entries[0].Name)
}

func TestImportTable_ImpHash(t *testing.T) {
	data := buildImage(t, NewPEImageDef(), importPayload(testSectionRVA, true),
		map[int]DataDirectory{ImageDirectoryEntryImport: {VirtualAddress: testSectionRVA, Size: 0x28}})
	f := mustParse(t, data)

	got, err := f.ImportTable.ImpHash()
	require.NoError(t, err)
	sum := md5.Sum([]byte("kernel32.exitprocess,kernel32.ord7"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)

	_, err = (&ImportTableDataDirectory{}).ImpHash()
	assert.Error(t, err)
}

func TestImportTable_UnmappedLookupTable(t *testing.T) {
	payload := importPayload(testSectionRVA, true)
	put32(payload, 0x00, 0x8000)
	data := buildImage(t, NewPEImageDef(), payload,
		map[int]DataDirectory{ImageDirectoryEntryImport: {VirtualAddress: testSectionRVA, Size: 0x28}})

	_, err := Parse(data)
	assert.True(t, errors.Is(err, ErrInvalidImageFormat))
}

// delayImportPayload mirrors importPayload with a 32-byte delay descriptor.
// When rvas is false every address is stored as a VA against imageBase.
func delayImportPayload(base uint32, imageBase uint32, rvas bool) []byte {
	p := make([]byte, 0xa0)
	var bias uint32
	if rvas {
		put32(p, 0x00, 1)
	} else {
		bias = imageBase
	}
	put32(p, 0x04, bias+base+0x80) // Name
	put32(p, 0x0c, bias+base+0x60) // ImportAddressTableRVA
	put32(p, 0x10, bias+base+0x40) // ImportNameTableRVA

	put32(p, 0x40, bias+base+0x90)
	put32(p, 0x44, imageOrdinalFlag32|3)
	copy(p[0x80:], "USER32.dll\x00")
	put16(p, 0x90, 2)
	copy(p[0x92:], "MessageBoxA\x00")
	return p
}

func TestDelayImportTable(t *testing.T) {
	for _, rvas := range []bool{true, false} {
		def := newPE32Def()
		payload := delayImportPayload(testSectionRVA, uint32(def.OptionalHeader.ImageBase()), rvas)
		data := buildImage(t, def, payload,
			map[int]DataDirectory{ImageDirectoryEntryDelayImport: {VirtualAddress: testSectionRVA, Size: 0x40}})
		f := mustParse(t, data)

		require.NotNil(t, f.DelayImportTable)
		require.Len(t, f.DelayImportTable.Entries, 1)
		imp := f.DelayImportTable.Entries[0]
		assert.Equal(t, rvas, imp.Descriptor.UsesRVAs())
		assert.Equal(t, "USER32.dll", imp.Name)
		require.Len(t, imp.Functions, 2)
		assert.Equal(t, "MessageBoxA", imp.Functions[0].Name)
		assert.Equal(t, uint16(2), imp.Functions[0].Hint)
		assert.Equal(t, uint32(testSectionRVA+0x90), imp.Functions[0].NameRVA)
		assert.True(t, imp.Functions[1].ByOrdinal)
		assert.Equal(t, uint16(3), imp.Functions[1].Ordinal)
	}
}
