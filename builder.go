package pe

import (
	"sort"

	"github.com/pkg/errors"
)

const (
	defaultNewEXEHeader  = 0x80
	defaultImageBase64   = 0x140000000
	minSectionAlignment  = 0x1000
	defaultStackReserve  = 0x100000
	defaultStackCommit   = 0x1000
	defaultHeapReserve   = 0x100000
	defaultHeapCommit    = 0x1000
	defaultSubsystemVers = 6
)

// SectionHeap owns the bytes of one section being built.
type SectionHeap struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Characteristics SectionCharacteristics
	Data            []byte
}

// AddData appends p and returns the RVA it was placed at. VirtualSize grows
// to cover the data.
func (sh *SectionHeap) AddData(p []byte) uint32 {
	rva := sh.VirtualAddress + uint32(len(sh.Data))
	sh.Data = append(sh.Data, p...)
	if n := uint32(len(sh.Data)); n > sh.VirtualSize {
		sh.VirtualSize = n
	}
	return rva
}

// RemainingSectionSize is the virtual space left before data written with
// AddData starts growing the section.
func (sh *SectionHeap) RemainingSectionSize() uint32 {
	if n := uint32(len(sh.Data)); n < sh.VirtualSize {
		return sh.VirtualSize - n
	}
	return 0
}

func (sh *SectionHeap) virtualSize() uint32 {
	if sh.VirtualSize == 0 {
		return uint32(len(sh.Data))
	}
	return sh.VirtualSize
}

func (sh *SectionHeap) end() uint32 {
	return sh.VirtualAddress + sh.virtualSize()
}

func (sh *SectionHeap) contains(rva uint32) bool {
	return sh.VirtualAddress <= rva && rva < sh.end()
}

// SectionDefinitions groups the sections of an image being built. The well
// known sections have their own slot; anything else goes to Other.
type SectionDefinitions struct {
	Text  *SectionHeap
	RData *SectionHeap
	Data  *SectionHeap
	PData *SectionHeap
	Reloc *SectionHeap
	Other []*SectionHeap
}

func (sd *SectionDefinitions) slot(name string) **SectionHeap {
	switch name {
	case ".text":
		return &sd.Text
	case ".rdata":
		return &sd.RData
	case ".data":
		return &sd.Data
	case ".pdata":
		return &sd.PData
	case ".reloc":
		return &sd.Reloc
	}
	return nil
}

func (sd *SectionDefinitions) add(sh *SectionHeap) {
	if s := sd.slot(sh.Name); s != nil && *s == nil {
		*s = sh
		return
	}
	sd.Other = append(sd.Other, sh)
}

// All returns every section ordered by virtual address.
func (sd *SectionDefinitions) All() []*SectionHeap {
	var all []*SectionHeap
	for _, sh := range []*SectionHeap{sd.Text, sd.RData, sd.Data, sd.PData, sd.Reloc} {
		if sh != nil {
			all = append(all, sh)
		}
	}
	all = append(all, sd.Other...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].VirtualAddress < all[j].VirtualAddress })
	return all
}

// FindRVA returns the section whose virtual range holds rva.
func (sd *SectionDefinitions) FindRVA(rva uint32) *SectionHeap {
	if rva == 0 {
		return nil
	}
	for _, sh := range sd.All() {
		if sh.contains(rva) {
			return sh
		}
	}
	return nil
}

func (sd *SectionDefinitions) HasOverlappingSections() bool {
	all := sd.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].end() > all[i].VirtualAddress {
			return true
		}
	}
	return false
}

func (sd *SectionDefinitions) highestEnd() uint32 {
	var end uint32
	for _, sh := range sd.All() {
		end = maxOf(end, sh.end())
	}
	return end
}

// nextFree is the lowest address above every section, counting an empty
// section as one byte long so that it keeps its own aligned slot.
func (sd *SectionDefinitions) nextFree() uint32 {
	var end uint32
	for _, sh := range sd.All() {
		end = maxOf(end, maxOf(sh.end(), sh.VirtualAddress+1))
	}
	return end
}

// PEImageDef is a mutable image description that WriteFile turns into a
// complete PE file.
type PEImageDef struct {
	DOSHeader DOSHeader
	// DOSStub is written between the DOS header and e_lfanew.
	DOSStub         []byte
	Machine         Machine
	TimeDateStamp   uint32
	Characteristics FileCharacteristics
	OptionalHeader  *OptionalHeader
	Sections        SectionDefinitions
}

// NewPEImageDef returns an empty PE32+ AMD64 console executable.
func NewPEImageDef() *PEImageDef {
	oh := NewOptionalHeader64()
	wf := oh.WindowsFields.(*WindowsFields64)
	wf.ImageBase = defaultImageBase64
	wf.SectionAlignment = DefaultSectionAlignment
	wf.FileAlignment = DefaultFileAlignment
	wf.MajorOperatingSystemVersion = defaultSubsystemVers
	wf.MajorSubsystemVersion = defaultSubsystemVers
	wf.Subsystem = SubsystemWindowsCUI
	wf.DllCharacteristics = ImageDllCharacteristicsHighEntropyVA |
		ImageDllCharacteristicsDynamicBase | ImageDllCharacteristicsNXCompat
	wf.SizeOfStackReserve = defaultStackReserve
	wf.SizeOfStackCommit = defaultStackCommit
	wf.SizeOfHeapReserve = defaultHeapReserve
	wf.SizeOfHeapCommit = defaultHeapCommit

	return &PEImageDef{
		DOSHeader: DOSHeader{
			Magic:                 ImageDOSSignature,
			AddressOfNewEXEHeader: defaultNewEXEHeader,
		},
		Machine:         MachineAmd64,
		Characteristics: ImageFileExecutableImage | ImageFileLargeAddressAware,
		OptionalHeader:  oh,
	}
}

// FromPEFile lifts a parsed image into a definition. data must be the bytes
// f was parsed from; section contents and the DOS stub are copied out of it.
func FromPEFile(f *File, data []byte) (*PEImageDef, error) {
	if f.OptionalHeader == nil {
		return nil, invalidFormat("image has no optional header")
	}
	def := &PEImageDef{
		DOSHeader:       f.DOSHeader,
		Machine:         f.FileHeader.Machine,
		TimeDateStamp:   f.FileHeader.TimeDateStamp,
		Characteristics: f.FileHeader.Characteristics,
		OptionalHeader:  f.OptionalHeader.Clone(),
	}
	if lfanew := f.DOSHeader.AddressOfNewEXEHeader; lfanew > DOSHeaderSize && uint64(lfanew) <= uint64(len(data)) {
		def.DOSStub = append([]byte(nil), data[DOSHeaderSize:lfanew]...)
	}
	for i := range f.Sections {
		sh := &f.Sections[i]
		def.Sections.add(&SectionHeap{
			Name:            sh.NameString(),
			VirtualAddress:  sh.VirtualAddress,
			VirtualSize:     sh.VirtualSize,
			Characteristics: sh.Characteristics,
			Data:            append([]byte(nil), sh.Data(data)...),
		})
	}
	return def, nil
}

func (def *PEImageDef) sectionAlignment() uint32 {
	return maxOf(def.OptionalHeader.SectionAlignment(), minSectionAlignment)
}

// NewSection creates an empty section at the first aligned address above all
// existing sections.
func (def *PEImageDef) NewSection(name string, characteristics SectionCharacteristics) *SectionHeap {
	sh := &SectionHeap{
		Name:            name,
		VirtualAddress:  maxOf(alignUp(def.Sections.nextFree(), def.sectionAlignment()), minSectionAlignment),
		Characteristics: characteristics,
	}
	def.Sections.add(sh)
	return sh
}

// AddSection adds a section built by the caller. It fails when the section
// is misaligned or overlaps an existing one.
func (def *PEImageDef) AddSection(sh *SectionHeap) error {
	if !isAligned(sh.VirtualAddress, def.OptionalHeader.SectionAlignment()) {
		return errors.Errorf("section %s at 0x%x is not section aligned", sh.Name, sh.VirtualAddress)
	}
	for _, other := range def.Sections.All() {
		if sh.VirtualAddress < other.end() && other.VirtualAddress < sh.end() {
			return errors.Errorf("section %s overlaps section %s", sh.Name, other.Name)
		}
	}
	def.Sections.add(sh)
	return nil
}

func (def *PEImageDef) headersSize(numberOfSections int) uint32 {
	return def.DOSHeader.AddressOfNewEXEHeader + uint32(len(Signature)) + FileHeaderSize +
		uint32(def.OptionalHeader.Size()) + uint32(numberOfSections)*SectionHeaderSize
}

// FixHeaders recomputes NumberOfRvaAndSizes, SizeOfHeaders and SizeOfImage.
func (def *PEImageDef) FixHeaders() error {
	oh := def.OptionalHeader
	c := oh.Common()
	if c == nil {
		return invalidFormat("optional header has no windows specific fields")
	}

	for i := ImageNumberOfDirectoryEntries - 1; i >= 0; i-- {
		if !oh.DataDirectories[i].IsZero() {
			c.NumberOfRvaAndSizes = maxOf(c.NumberOfRvaAndSizes, uint32(i+1))
			break
		}
	}

	sections := def.Sections.All()
	c.SizeOfHeaders = alignUp(def.headersSize(len(sections)), c.FileAlignment)

	sa := def.sectionAlignment()
	size := alignUp(c.SizeOfHeaders, sa)
	for _, sh := range sections {
		size += alignUp(sh.virtualSize(), sa)
	}
	c.SizeOfImage = maxOf(size, alignUp(def.Sections.highestEnd(), sa))
	return nil
}

// WriteFile fixes the headers and serializes the image.
func (def *PEImageDef) WriteFile() ([]byte, error) {
	if err := def.FixHeaders(); err != nil {
		return nil, err
	}
	return def.WriteNoFix()
}

// WriteNoFix serializes the image with the headers as they are. Raw data
// pointers are still assigned here, since they follow from the layout.
func (def *PEImageDef) WriteNoFix() ([]byte, error) {
	lfanew := def.DOSHeader.AddressOfNewEXEHeader
	if lfanew < DOSHeaderSize {
		return nil, invalidFormatf("e_lfanew 0x%x overlaps the DOS header", lfanew)
	}
	if uint64(DOSHeaderSize+len(def.DOSStub)) > uint64(lfanew) {
		return nil, invalidFormatf("DOS stub of %d bytes does not fit before e_lfanew 0x%x", len(def.DOSStub), lfanew)
	}
	oh := def.OptionalHeader
	fileAlignment := oh.FileAlignment()
	sections := def.Sections.All()

	w := NewBufferWriter(int(def.headersSize(len(sections))))
	if err := def.DOSHeader.Encode(w); err != nil {
		return nil, errors.WithMessage(err, "failure to write DOS header")
	}
	e := newEncoder(w)
	e.bytes(def.DOSStub)
	w.PadTo(int(lfanew))
	e.bytes(Signature[:])
	if e.err != nil {
		return nil, errors.WithMessage(e.err, "failure to write PE signature")
	}

	fh := FileHeader{
		Machine:              def.Machine,
		NumberOfSections:     uint16(len(sections)),
		TimeDateStamp:        def.TimeDateStamp,
		SizeOfOptionalHeader: uint16(oh.Size()),
		Characteristics:      def.Characteristics,
	}
	if err := fh.Encode(w); err != nil {
		return nil, errors.WithMessage(err, "failure to write COFF file header")
	}
	if err := oh.Encode(w); err != nil {
		return nil, errors.WithMessage(err, "failure to write optional header")
	}

	headersEnd := uint32(w.Len()) + uint32(len(sections))*SectionHeaderSize
	if c := oh.Common(); c != nil {
		headersEnd = maxOf(headersEnd, c.SizeOfHeaders)
	}
	rawPointer := alignUp(headersEnd, fileAlignment)

	table := make(SectionTable, len(sections))
	for i, sh := range sections {
		row := &table[i]
		row.Name = sectionName(sh.Name)
		row.VirtualAddress = sh.VirtualAddress
		row.VirtualSize = sh.virtualSize()
		row.SizeOfRawData = alignUp(uint32(len(sh.Data)), fileAlignment)
		row.Characteristics = sh.Characteristics
		if row.SizeOfRawData > 0 {
			row.PointerToRawData = rawPointer
			rawPointer += row.SizeOfRawData
		}
	}
	if err := table.Encode(w); err != nil {
		return nil, errors.WithMessage(err, "failure to write section table")
	}

	for i, sh := range sections {
		row := &table[i]
		if row.SizeOfRawData == 0 {
			continue
		}
		w.PadTo(int(row.PointerToRawData))
		e.bytes(sh.Data)
		if e.err != nil {
			return nil, errors.WithMessagef(e.err, "failure to write section %s", sh.Name)
		}
		w.PadTo(int(row.PointerToRawData + row.SizeOfRawData))
	}
	return w.Bytes(), nil
}
