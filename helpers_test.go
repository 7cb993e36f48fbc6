package pe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSectionRVA = 0x1000

func put16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func put32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func put64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

// newPE32Def returns an i386 definition with a PE32 optional header.
func newPE32Def() *PEImageDef {
	def := NewPEImageDef()
	def.Machine = MachineI386
	def.Characteristics = ImageFileExecutableImage | ImageFile32BitMachine
	oh := NewOptionalHeader32()
	wf := oh.WindowsFields.(*WindowsFields32)
	wf.ImageBase = 0x400000
	wf.SectionAlignment = DefaultSectionAlignment
	wf.FileAlignment = DefaultFileAlignment
	wf.Subsystem = SubsystemWindowsCUI
	def.OptionalHeader = oh
	return def
}

// buildImage places payload in a single section at testSectionRVA, sets the
// given directories and writes the image.
func buildImage(t *testing.T, def *PEImageDef, payload []byte, dirs map[int]DataDirectory) []byte {
	t.Helper()
	sh := def.NewSection(".rdata", ImageScnMemRead|ImageScnCntInitializedData)
	require.Equal(t, uint32(testSectionRVA), sh.AddData(payload))
	for i, dd := range dirs {
		def.OptionalHeader.DataDirectories[i] = dd
	}
	data, err := def.WriteFile()
	require.NoError(t, err)
	return data
}

// importPayload lays out one import descriptor for KERNEL32.dll with a named
// and an ordinal import. The descriptor table is 0x28 bytes long.
func importPayload(base uint32, is64 bool) []byte {
	p := make([]byte, 0xa0)
	put32(p, 0x00, base+0x40) // OriginalFirstThunk
	put32(p, 0x0c, base+0x80) // Name
	put32(p, 0x10, base+0x60) // FirstThunk

	for _, table := range []int{0x40, 0x60} {
		if is64 {
			put64(p, table, uint64(base+0x90))
			put64(p, table+8, imageOrdinalFlag64|7)
		} else {
			put32(p, table, base+0x90)
			put32(p, table+4, imageOrdinalFlag32|7)
		}
	}
	copy(p[0x80:], "KERNEL32.dll\x00")
	put16(p, 0x90, 0x1234)
	copy(p[0x92:], "ExitProcess\x00")
	return p
}

func mustParse(t *testing.T, data []byte) *File {
	t.Helper()
	f, err := Parse(data)
	require.NoError(t, err)
	return f
}
