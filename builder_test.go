package pe

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPEImageDef_NetSection(t *testing.T) {
	def := NewPEImageDef()
	sh := def.NewSection(".net", ImageScnMemRead|ImageScnCntInitializedData)
	rva := sh.AddData([]byte{1, 2, 3, 4, 5})
	def.OptionalHeader.DataDirectories[ImageDirectoryEntryComDescriptor] = DataDirectory{VirtualAddress: rva, Size: 6}

	data, err := def.WriteFile()
	require.NoError(t, err)

	// Six bytes cannot hold a CLR header, so only a parse that skips the
	// CLR decoder accepts the image.
	_, err = Parse(data)
	assert.True(t, errors.Is(err, ErrNotEnoughData))

	f, err := ParseWithOptions(data, Options{Sections: ParseAll &^ ParseCLRRuntimeHeader})
	require.NoError(t, err)
	assert.Nil(t, f.CLRRuntimeHeader)
	clr := f.OptionalHeader.Directory(ImageDirectoryEntryComDescriptor)
	assert.Equal(t, rva, clr.VirtualAddress)
	assert.Equal(t, uint32(6), clr.Size)

	net := f.Section(".net")
	require.NotNil(t, net)
	assert.Equal(t, ImageScnMemRead|ImageScnCntInitializedData, net.Characteristics)
	assert.Equal(t, uint32(5), net.VirtualSize)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, net.Data(data)[:5])
}

func TestPEImageDef_EmptySectionsGetDistinctAddresses(t *testing.T) {
	def := NewPEImageDef()
	a := def.NewSection(".a", ImageScnCntInitializedData|ImageScnMemRead)
	b := def.NewSection(".b", ImageScnCntInitializedData|ImageScnMemRead)
	assert.Equal(t, uint32(0x1000), a.VirtualAddress)
	assert.Equal(t, uint32(0x2000), b.VirtualAddress)

	ra := a.AddData([]byte{1, 2, 3})
	rb := b.AddData([]byte{4, 5, 6})
	assert.Equal(t, uint32(0x1000), ra)
	assert.Equal(t, uint32(0x2000), rb)
	assert.False(t, def.Sections.HasOverlappingSections())

	out, err := def.WriteFile()
	require.NoError(t, err)
	f := mustParse(t, out)
	require.Len(t, f.Sections, 2)
	sa := f.Sections.FindRVA(ra)
	sb := f.Sections.FindRVA(rb)
	require.NotNil(t, sa)
	require.NotNil(t, sb)
	assert.Equal(t, ".a", sa.NameString())
	assert.Equal(t, ".b", sb.NameString())
	assert.Equal(t, []byte{4, 5, 6}, sb.Data(out)[:3])
}

func TestPEImageDef_Layout(t *testing.T) {
	def := NewPEImageDef()
	text := def.NewSection(".text", ImageScnCntCode|ImageScnMemExecute|ImageScnMemRead)
	text.AddData(bytes.Repeat([]byte{0xcc}, 0x1800))
	data := def.NewSection(".data", ImageScnCntInitializedData|ImageScnMemRead|ImageScnMemWrite)
	data.AddData([]byte("hello"))

	assert.Same(t, text, def.Sections.Text)
	assert.Same(t, data, def.Sections.Data)
	assert.Equal(t, uint32(0x1000), text.VirtualAddress)
	assert.Equal(t, uint32(0x3000), data.VirtualAddress)

	out, err := def.WriteFile()
	require.NoError(t, err)
	c := def.OptionalHeader.Common()
	assert.Equal(t, uint32(0x200), c.SizeOfHeaders)
	assert.Equal(t, uint32(0x4000), c.SizeOfImage)
	assert.Len(t, out, 0x200+0x1800+0x200)

	f := mustParse(t, out)
	require.Len(t, f.Sections, 2)
	assert.Equal(t, uint32(0x200), f.Sections[0].PointerToRawData)
	assert.Equal(t, uint32(0x1800), f.Sections[0].SizeOfRawData)
	assert.Equal(t, uint32(0x1a00), f.Sections[1].PointerToRawData)
	assert.Equal(t, uint32(0x200), f.Sections[1].SizeOfRawData)
	assert.Equal(t, uint32(5), f.Sections[1].VirtualSize)
	assert.Equal(t, uint16(f.OptionalHeader.Size()), f.FileHeader.SizeOfOptionalHeader)
	assert.Equal(t, []byte("hello"), out[0x1a00:0x1a05])
	assert.Equal(t, make([]byte, 0x200-5), out[0x1a05:])
}

func TestPEImageDef_FixHeadersRaisesDirectoryCount(t *testing.T) {
	def := NewPEImageDef()
	def.OptionalHeader.Common().NumberOfRvaAndSizes = 2
	require.NoError(t, def.FixHeaders())
	assert.Equal(t, 2, def.OptionalHeader.NumberOfRvaAndSizes())

	def.OptionalHeader.DataDirectories[ImageDirectoryEntryDelayImport] = DataDirectory{VirtualAddress: 0x1000, Size: 0x40}
	require.NoError(t, def.FixHeaders())
	assert.Equal(t, ImageDirectoryEntryDelayImport+1, def.OptionalHeader.NumberOfRvaAndSizes())

	out, err := def.WriteNoFix()
	require.NoError(t, err)
	f, err := ParseMinimal(out)
	require.NoError(t, err)
	assert.Equal(t, DataDirectory{VirtualAddress: 0x1000, Size: 0x40}, f.OptionalHeader.Directory(ImageDirectoryEntryDelayImport))
	assert.True(t, f.OptionalHeader.Directory(ImageDirectoryEntryComDescriptor).IsZero())
}

func TestFromPEFile_RoundTrip(t *testing.T) {
	for _, def := range []*PEImageDef{NewPEImageDef(), newPE32Def()} {
		def.DOSStub = []byte("This program cannot be run in DOS mode.\r\n$")
		def.TimeDateStamp = 0x61000000
		original := buildImage(t, def, importPayload(testSectionRVA, def.OptionalHeader.Is64()),
			map[int]DataDirectory{ImageDirectoryEntryImport: {VirtualAddress: testSectionRVA, Size: 0x28}})
		f := mustParse(t, original)

		lifted, err := FromPEFile(f, original)
		require.NoError(t, err)
		assert.Equal(t, def.Machine, lifted.Machine)
		assert.Equal(t, uint32(0x61000000), lifted.TimeDateStamp)
		assert.Equal(t, def.Characteristics, lifted.Characteristics)
		assert.Equal(t, original[DOSHeaderSize:0x80], lifted.DOSStub)
		require.NotNil(t, lifted.Sections.RData)

		rebuilt, err := lifted.WriteFile()
		require.NoError(t, err)
		assert.Equal(t, original, rebuilt)
	}
}

func TestFromPEFile_AddSection(t *testing.T) {
	original := buildImage(t, newPE32Def(), []byte("payload"), nil)
	f := mustParse(t, original)
	def, err := FromPEFile(f, original)
	require.NoError(t, err)

	sh := def.NewSection(".extra", ImageScnMemRead|ImageScnCntInitializedData)
	assert.Equal(t, uint32(0x2000), sh.VirtualAddress)
	rva := sh.AddData([]byte("extra"))

	out, err := def.WriteFile()
	require.NoError(t, err)
	g := mustParse(t, out)
	assert.Equal(t, MachineI386, g.FileHeader.Machine)
	require.Len(t, g.Sections, 2)
	data, ok := g.Sections.FindRVAData(out, rva)
	require.True(t, ok)
	assert.Equal(t, []byte("extra"), data[:5])
	assert.Equal(t, uint32(0x3000), g.OptionalHeader.Common().SizeOfImage)
}

func TestFromPEFile_NoOptionalHeader(t *testing.T) {
	_, err := FromPEFile(&File{}, nil)
	assert.True(t, errors.Is(err, ErrInvalidImageFormat))
}

func TestSectionDefinitions(t *testing.T) {
	def := NewPEImageDef()
	a := def.NewSection(".text", ImageScnCntCode)
	a.AddData(make([]byte, 0x10))
	b := def.NewSection(".text", ImageScnCntCode)
	assert.Same(t, a, def.Sections.Text)
	assert.Equal(t, []*SectionHeap{b}, def.Sections.Other)
	assert.Equal(t, []*SectionHeap{a, b}, def.Sections.All())

	assert.Same(t, a, def.Sections.FindRVA(0x1000))
	assert.Same(t, a, def.Sections.FindRVA(0x100f))
	assert.Nil(t, def.Sections.FindRVA(0x1010))
	assert.Nil(t, def.Sections.FindRVA(0))
	assert.False(t, def.Sections.HasOverlappingSections())

	a.AddData(make([]byte, 0x1000))
	assert.True(t, def.Sections.HasOverlappingSections())
}

func TestPEImageDef_AddSection(t *testing.T) {
	def := NewPEImageDef()
	def.NewSection(".text", ImageScnCntCode).AddData(make([]byte, 0x1800))

	tests := []struct {
		name    string
		section *SectionHeap
		wantErr bool
	}{
		{"overlapping", &SectionHeap{Name: ".a", VirtualAddress: 0x2000, VirtualSize: 0x10}, true},
		{"misaligned", &SectionHeap{Name: ".b", VirtualAddress: 0x3800, VirtualSize: 0x10}, true},
		{"free", &SectionHeap{Name: ".c", VirtualAddress: 0x5000, VirtualSize: 0x10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := def.AddSection(tt.section)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.section, def.Sections.FindRVA(0x5000))
		})
	}
	assert.Equal(t, uint32(0x6000), def.NewSection(".d", 0).VirtualAddress)
}

func TestSectionHeap_RemainingSectionSize(t *testing.T) {
	sh := &SectionHeap{VirtualAddress: 0x1000, VirtualSize: 0x100}
	assert.Equal(t, uint32(0x100), sh.RemainingSectionSize())
	assert.Equal(t, uint32(0x1000), sh.AddData(make([]byte, 0x10)))
	assert.Equal(t, uint32(0xf0), sh.RemainingSectionSize())
	assert.Equal(t, uint32(0x1010), sh.AddData(make([]byte, 0x200)))
	assert.Equal(t, uint32(0), sh.RemainingSectionSize())
	assert.Equal(t, uint32(0x210), sh.VirtualSize)
}

func TestPEImageDef_WriteNoFixErrors(t *testing.T) {
	def := NewPEImageDef()
	def.DOSHeader.AddressOfNewEXEHeader = 0x20
	_, err := def.WriteNoFix()
	assert.True(t, errors.Is(err, ErrInvalidImageFormat))

	def = NewPEImageDef()
	def.DOSStub = make([]byte, 0x41)
	_, err = def.WriteNoFix()
	assert.True(t, errors.Is(err, ErrInvalidImageFormat))

	def = NewPEImageDef()
	def.OptionalHeader.StandardFields.Magic = ImageNtOptionalHeader32Magic
	_, err = def.WriteFile()
	assert.True(t, errors.Is(err, ErrInvalidImageFormat))
}
