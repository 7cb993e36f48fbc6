package pe

import (
	"crypto/md5"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

type SectionCharacteristics uint32

const (
	ImageScnTypeNoPad            SectionCharacteristics = 0x00000008
	ImageScnCntCode              SectionCharacteristics = 0x00000020
	ImageScnCntInitializedData   SectionCharacteristics = 0x00000040
	ImageScnCntUninitializedData SectionCharacteristics = 0x00000080
	ImageScnLnkOther             SectionCharacteristics = 0x00000100
	ImageScnLnkInfo              SectionCharacteristics = 0x00000200
	ImageScnLnkRemove            SectionCharacteristics = 0x00000800
	ImageScnLnkComdat            SectionCharacteristics = 0x00001000
	ImageScnGpRel                SectionCharacteristics = 0x00008000
	ImageScnMemPurgeable         SectionCharacteristics = 0x00020000
	ImageScnMem16Bit             SectionCharacteristics = 0x00020000
	ImageScnMemLocked            SectionCharacteristics = 0x00040000
	ImageScnMemPreload           SectionCharacteristics = 0x00080000
	ImageScnAlign1Bytes          SectionCharacteristics = 0x00100000
	ImageScnAlign2Bytes          SectionCharacteristics = 0x00200000
	ImageScnAlign4Bytes          SectionCharacteristics = 0x00300000
	ImageScnAlign8Bytes          SectionCharacteristics = 0x00400000
	ImageScnAlign16Bytes         SectionCharacteristics = 0x00500000
	ImageScnAlign32Bytes         SectionCharacteristics = 0x00600000
	ImageScnAlign64Bytes         SectionCharacteristics = 0x00700000
	ImageScnAlign128Bytes        SectionCharacteristics = 0x00800000
	ImageScnAlign256Bytes        SectionCharacteristics = 0x00900000
	ImageScnAlign512Bytes        SectionCharacteristics = 0x00A00000
	ImageScnAlign1024Bytes       SectionCharacteristics = 0x00B00000
	ImageScnAlign2048Bytes       SectionCharacteristics = 0x00C00000
	ImageScnAlign4096Bytes       SectionCharacteristics = 0x00D00000
	ImageScnAlign8192Bytes       SectionCharacteristics = 0x00E00000
	ImageScnLnkNRelocOvfl        SectionCharacteristics = 0x01000000
	ImageScnMemDiscardable       SectionCharacteristics = 0x02000000
	ImageScnMemNotCached         SectionCharacteristics = 0x04000000
	ImageScnMemNotPaged          SectionCharacteristics = 0x08000000
	ImageScnMemShared            SectionCharacteristics = 0x10000000
	ImageScnMemExecute           SectionCharacteristics = 0x20000000
	ImageScnMemRead              SectionCharacteristics = 0x40000000
	ImageScnMemWrite             SectionCharacteristics = 0x80000000
)

func (c SectionCharacteristics) Has(flag SectionCharacteristics) bool { return c&flag == flag }

// SectionHeader is one 40-byte row of the section table.
type SectionHeader struct {
	Name                 [8]uint8
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      SectionCharacteristics
}

// sectionName truncates or zero pads name to the on-disk 8 bytes.
func sectionName(name string) (b [8]uint8) {
	copy(b[:], name)
	return b
}

func (sh *SectionHeader) NameString() string {
	return cString(sh.Name[:])
}

// FullName resolves "/N" names through the COFF string table.
func (sh *SectionHeader) FullName(st StringTable) (string, error) {
	if sh.Name[0] != '/' {
		return cString(sh.Name[:]), nil
	}
	i, err := strconv.Atoi(cString(sh.Name[1:]))
	if err != nil {
		return "", err
	}
	return st.String(uint32(i))
}

// Contains reports whether rva lies in [VirtualAddress, VirtualAddress+VirtualSize).
func (sh *SectionHeader) Contains(rva uint32) bool {
	return rva >= sh.VirtualAddress && rva-sh.VirtualAddress < sh.VirtualSize
}

// Data returns the raw bytes of the section in file, clamped to the file.
func (sh *SectionHeader) Data(file []byte) []byte {
	start := uint64(sh.PointerToRawData)
	end := start + uint64(sh.SizeOfRawData)
	if start > uint64(len(file)) {
		return nil
	}
	if end > uint64(len(file)) {
		end = uint64(len(file))
	}
	return file[start:end]
}

func (sh *SectionHeader) MD5(file []byte) string {
	return fmt.Sprintf("%x", md5.Sum(sh.Data(file)))
}

func (sh *SectionHeader) Entropy(file []byte) float64 {
	return Entropy(sh.Data(file))
}

func (sh *SectionHeader) Flags() (flags string) {
	if sh.Characteristics.Has(ImageScnMemRead) {
		flags += "r"
	}
	if sh.Characteristics.Has(ImageScnMemExecute) {
		flags += "x"
	}
	if sh.Characteristics.Has(ImageScnMemWrite) {
		flags += "w"
	}
	return flags
}

func DecodeSectionHeader(r Reader) (SectionHeader, error) {
	var sh SectionHeader
	d := newDecoder(r)
	d.bytes(sh.Name[:])
	sh.VirtualSize = d.u32()
	sh.VirtualAddress = d.u32()
	sh.SizeOfRawData = d.u32()
	sh.PointerToRawData = d.u32()
	sh.PointerToRelocations = d.u32()
	sh.PointerToLineNumbers = d.u32()
	sh.NumberOfRelocations = d.u16()
	sh.NumberOfLineNumbers = d.u16()
	sh.Characteristics = SectionCharacteristics(d.u32())
	return sh, d.err
}

func (sh *SectionHeader) Encode(w Writer) error {
	e := newEncoder(w)
	e.bytes(sh.Name[:])
	e.u32(sh.VirtualSize)
	e.u32(sh.VirtualAddress)
	e.u32(sh.SizeOfRawData)
	e.u32(sh.PointerToRawData)
	e.u32(sh.PointerToRelocations)
	e.u32(sh.PointerToLineNumbers)
	e.u16(sh.NumberOfRelocations)
	e.u16(sh.NumberOfLineNumbers)
	e.u32(uint32(sh.Characteristics))
	return e.err
}

// SectionTable is the ordered list of section rows as found in the image.
type SectionTable []SectionHeader

// DecodeSectionTable reads n consecutive rows.
func DecodeSectionTable(r Reader, n int) (SectionTable, error) {
	table := make(SectionTable, 0, n)
	for i := 0; i < n; i++ {
		sh, err := DecodeSectionHeader(r)
		if err != nil {
			return nil, errors.WithMessagef(err, "failure to read section header %d", i)
		}
		table = append(table, sh)
	}
	return table, nil
}

func (t SectionTable) Encode(w Writer) error {
	for i := range t {
		if err := t[i].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// FindRVA returns the first section containing addr. Address 0 never
// resolves.
func (t SectionTable) FindRVA(addr uint32) *SectionHeader {
	if addr == 0 {
		return nil
	}
	for i := range t {
		if t[i].Contains(addr) {
			return &t[i]
		}
	}
	return nil
}

// FileOffset translates addr into a file offset.
func (t SectionTable) FileOffset(addr uint32) (uint32, bool) {
	sh := t.FindRVA(addr)
	if sh == nil {
		return 0, false
	}
	return sh.PointerToRawData + (addr - sh.VirtualAddress), true
}

// FindRVAData returns the bytes of file from addr up to the end of the raw
// data of its section. The result is clamped to file and may be shorter than
// the section claims; callers bound further reads to their own size.
func (t SectionTable) FindRVAData(file []byte, addr uint32) ([]byte, bool) {
	sh := t.FindRVA(addr)
	if sh == nil {
		return nil, false
	}
	start := uint64(sh.PointerToRawData) + uint64(addr-sh.VirtualAddress)
	end := uint64(sh.PointerToRawData) + uint64(sh.SizeOfRawData)
	if end > uint64(len(file)) {
		end = uint64(len(file))
	}
	if start > end {
		return nil, false
	}
	return file[start:end], true
}

// GetByName compares against the 8-byte on-disk name, so names that collide
// after truncation are indistinguishable.
func (t SectionTable) GetByName(name string) *SectionHeader {
	want := sectionName(name)
	for i := range t {
		if t[i].Name == want {
			return &t[i]
		}
	}
	return nil
}

// DirectoryData returns the dir.Size bytes a data directory points at. It
// returns nil without error when the directory is absent (address 0) or not
// backed by any section.
func (t SectionTable) DirectoryData(file []byte, dir DataDirectory) ([]byte, error) {
	if dir.VirtualAddress == 0 {
		return nil, nil
	}
	data, ok := t.FindRVAData(file, dir.VirtualAddress)
	if !ok {
		return nil, nil
	}
	if uint64(dir.Size) > uint64(len(data)) {
		return nil, notEnoughData(int(dir.Size))
	}
	return data[:dir.Size], nil
}

// mapDataDirectory runs decode over the bytes of dir. mapped is false, and
// decode is not called, when the directory is absent or unmapped.
func mapDataDirectory[T any](t SectionTable, file []byte, dir DataDirectory, decode func([]byte) (T, error)) (result T, mapped bool, err error) {
	data, err := t.DirectoryData(file, dir)
	if err != nil || data == nil {
		return result, false, err
	}
	result, err = decode(data)
	return result, true, err
}
