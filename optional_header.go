package pe

import (
	"fmt"

	"github.com/pkg/errors"
)

type Subsystem uint16

const (
	SubsystemUnknown                Subsystem = 0
	SubsystemNative                 Subsystem = 1
	SubsystemWindowsGUI             Subsystem = 2
	SubsystemWindowsCUI             Subsystem = 3
	SubsystemOS2CUI                 Subsystem = 5
	SubsystemPosixCUI               Subsystem = 7
	SubsystemNativeWindows          Subsystem = 8
	SubsystemWindowsCEGUI           Subsystem = 9
	SubsystemEFIApplication         Subsystem = 10
	SubsystemEFIBootServiceDriver   Subsystem = 11
	SubsystemEFIRuntimeDriver       Subsystem = 12
	SubsystemEFIROM                 Subsystem = 13
	SubsystemXbox                   Subsystem = 14
	SubsystemWindowsBootApplication Subsystem = 16
)

var subsystemNames = map[Subsystem]string{
	SubsystemUnknown:                "Unknown",
	SubsystemNative:                 "Native",
	SubsystemWindowsGUI:             "WindowsGUI",
	SubsystemWindowsCUI:             "WindowsCUI",
	SubsystemOS2CUI:                 "OS2CUI",
	SubsystemPosixCUI:               "PosixCUI",
	SubsystemNativeWindows:          "NativeWindows",
	SubsystemWindowsCEGUI:           "WindowsCEGUI",
	SubsystemEFIApplication:         "EFIApplication",
	SubsystemEFIBootServiceDriver:   "EFIBootServiceDriver",
	SubsystemEFIRuntimeDriver:       "EFIRuntimeDriver",
	SubsystemEFIROM:                 "EFIROM",
	SubsystemXbox:                   "Xbox",
	SubsystemWindowsBootApplication: "WindowsBootApplication",
}

func (s Subsystem) String() string {
	if name, ok := subsystemNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Other(%d)", uint16(s))
}

type DllCharacteristics uint16

const (
	ImageDllCharacteristicsHighEntropyVA       DllCharacteristics = 0x0020
	ImageDllCharacteristicsDynamicBase         DllCharacteristics = 0x0040
	ImageDllCharacteristicsForceIntegrity      DllCharacteristics = 0x0080
	ImageDllCharacteristicsNXCompat            DllCharacteristics = 0x0100
	ImageDllCharacteristicsNoIsolation         DllCharacteristics = 0x0200
	ImageDllCharacteristicsNoSEH               DllCharacteristics = 0x0400
	ImageDllCharacteristicsNoBind              DllCharacteristics = 0x0800
	ImageDllCharacteristicsAppContainer        DllCharacteristics = 0x1000
	ImageDllCharacteristicsWDMDriver           DllCharacteristics = 0x2000
	ImageDllCharacteristicsGuardCF             DllCharacteristics = 0x4000
	ImageDllCharacteristicsTerminalServerAware DllCharacteristics = 0x8000
)

func (c DllCharacteristics) Has(flag DllCharacteristics) bool { return c&flag == flag }

// StandardFields are the leading optional header fields. BaseOfData only
// exists in PE32 images and is ignored for PE32+.
type StandardFields struct {
	Magic                   uint16
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	BaseOfData              uint32
}

func (sf *StandardFields) size() int {
	if sf.Magic == ImageNtOptionalHeader32Magic {
		return StandardFields32Size
	}
	return StandardFields64Size
}

func (sf *StandardFields) decode(d *decoder) {
	sf.Magic = d.u16()
	sf.MajorLinkerVersion = d.u8()
	sf.MinorLinkerVersion = d.u8()
	sf.SizeOfCode = d.u32()
	sf.SizeOfInitializedData = d.u32()
	sf.SizeOfUninitializedData = d.u32()
	sf.AddressOfEntryPoint = d.u32()
	sf.BaseOfCode = d.u32()
	if sf.Magic == ImageNtOptionalHeader32Magic {
		sf.BaseOfData = d.u32()
	}
}

func (sf *StandardFields) encode(e *encoder) {
	e.u16(sf.Magic)
	e.u8(sf.MajorLinkerVersion)
	e.u8(sf.MinorLinkerVersion)
	e.u32(sf.SizeOfCode)
	e.u32(sf.SizeOfInitializedData)
	e.u32(sf.SizeOfUninitializedData)
	e.u32(sf.AddressOfEntryPoint)
	e.u32(sf.BaseOfCode)
	if sf.Magic == ImageNtOptionalHeader32Magic {
		e.u32(sf.BaseOfData)
	}
}

// WindowsCommonFields are the windows-specific fields whose width does not
// depend on the image variant.
type WindowsCommonFields struct {
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   Subsystem
	DllCharacteristics          DllCharacteristics
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

// WindowsFields is implemented by *WindowsFields32 and *WindowsFields64 only.
type WindowsFields interface {
	magic() uint16
	size() int
	common() *WindowsCommonFields
	decode(d *decoder)
	encode(e *encoder)
	clone() WindowsFields
}

type WindowsFields32 struct {
	ImageBase uint32
	WindowsCommonFields
	SizeOfStackReserve uint32
	SizeOfStackCommit  uint32
	SizeOfHeapReserve  uint32
	SizeOfHeapCommit   uint32
}

type WindowsFields64 struct {
	ImageBase uint64
	WindowsCommonFields
	SizeOfStackReserve uint64
	SizeOfStackCommit  uint64
	SizeOfHeapReserve  uint64
	SizeOfHeapCommit   uint64
}

func (wf *WindowsFields32) magic() uint16                { return ImageNtOptionalHeader32Magic }
func (wf *WindowsFields32) size() int                    { return WindowsFields32Size }
func (wf *WindowsFields32) common() *WindowsCommonFields { return &wf.WindowsCommonFields }

func (wf *WindowsFields32) clone() WindowsFields {
	c := *wf
	return &c
}

func (wf *WindowsFields64) magic() uint16                { return ImageNtOptionalHeader64Magic }
func (wf *WindowsFields64) size() int                    { return WindowsFields64Size }
func (wf *WindowsFields64) common() *WindowsCommonFields { return &wf.WindowsCommonFields }

func (wf *WindowsFields64) clone() WindowsFields {
	c := *wf
	return &c
}

func (c *WindowsCommonFields) decodeHead(d *decoder) {
	c.SectionAlignment = d.u32()
	c.FileAlignment = d.u32()
	c.MajorOperatingSystemVersion = d.u16()
	c.MinorOperatingSystemVersion = d.u16()
	c.MajorImageVersion = d.u16()
	c.MinorImageVersion = d.u16()
	c.MajorSubsystemVersion = d.u16()
	c.MinorSubsystemVersion = d.u16()
	c.Win32VersionValue = d.u32()
	c.SizeOfImage = d.u32()
	c.SizeOfHeaders = d.u32()
	c.CheckSum = d.u32()
	c.Subsystem = Subsystem(d.u16())
	c.DllCharacteristics = DllCharacteristics(d.u16())
}

func (c *WindowsCommonFields) encodeHead(e *encoder) {
	e.u32(c.SectionAlignment)
	e.u32(c.FileAlignment)
	e.u16(c.MajorOperatingSystemVersion)
	e.u16(c.MinorOperatingSystemVersion)
	e.u16(c.MajorImageVersion)
	e.u16(c.MinorImageVersion)
	e.u16(c.MajorSubsystemVersion)
	e.u16(c.MinorSubsystemVersion)
	e.u32(c.Win32VersionValue)
	e.u32(c.SizeOfImage)
	e.u32(c.SizeOfHeaders)
	e.u32(c.CheckSum)
	e.u16(uint16(c.Subsystem))
	e.u16(uint16(c.DllCharacteristics))
}

func (wf *WindowsFields32) decode(d *decoder) {
	wf.ImageBase = d.u32()
	wf.decodeHead(d)
	wf.SizeOfStackReserve = d.u32()
	wf.SizeOfStackCommit = d.u32()
	wf.SizeOfHeapReserve = d.u32()
	wf.SizeOfHeapCommit = d.u32()
	wf.LoaderFlags = d.u32()
	wf.NumberOfRvaAndSizes = d.u32()
}

func (wf *WindowsFields32) encode(e *encoder) {
	e.u32(wf.ImageBase)
	wf.encodeHead(e)
	e.u32(wf.SizeOfStackReserve)
	e.u32(wf.SizeOfStackCommit)
	e.u32(wf.SizeOfHeapReserve)
	e.u32(wf.SizeOfHeapCommit)
	e.u32(wf.LoaderFlags)
	e.u32(wf.NumberOfRvaAndSizes)
}

func (wf *WindowsFields64) decode(d *decoder) {
	wf.ImageBase = d.u64()
	wf.decodeHead(d)
	wf.SizeOfStackReserve = d.u64()
	wf.SizeOfStackCommit = d.u64()
	wf.SizeOfHeapReserve = d.u64()
	wf.SizeOfHeapCommit = d.u64()
	wf.LoaderFlags = d.u32()
	wf.NumberOfRvaAndSizes = d.u32()
}

func (wf *WindowsFields64) encode(e *encoder) {
	e.u64(wf.ImageBase)
	wf.encodeHead(e)
	e.u64(wf.SizeOfStackReserve)
	e.u64(wf.SizeOfStackCommit)
	e.u64(wf.SizeOfHeapReserve)
	e.u64(wf.SizeOfHeapCommit)
	e.u32(wf.LoaderFlags)
	e.u32(wf.NumberOfRvaAndSizes)
}

// OptionalHeader is the PE32 or PE32+ optional header. StandardFields.Magic
// and the dynamic type of WindowsFields must agree.
type OptionalHeader struct {
	StandardFields  StandardFields
	WindowsFields   WindowsFields
	DataDirectories [ImageNumberOfDirectoryEntries]DataDirectory
}

// NewOptionalHeader32 returns an empty PE32 header with all directories
// present.
func NewOptionalHeader32() *OptionalHeader {
	wf := &WindowsFields32{}
	wf.NumberOfRvaAndSizes = ImageNumberOfDirectoryEntries
	return &OptionalHeader{
		StandardFields: StandardFields{Magic: ImageNtOptionalHeader32Magic},
		WindowsFields:  wf,
	}
}

// NewOptionalHeader64 returns an empty PE32+ header with all directories
// present.
func NewOptionalHeader64() *OptionalHeader {
	wf := &WindowsFields64{}
	wf.NumberOfRvaAndSizes = ImageNumberOfDirectoryEntries
	return &OptionalHeader{
		StandardFields: StandardFields{Magic: ImageNtOptionalHeader64Magic},
		WindowsFields:  wf,
	}
}

func (oh *OptionalHeader) Is64() bool {
	return oh.StandardFields.Magic == ImageNtOptionalHeader64Magic
}

// Common returns the variant independent windows fields, or nil when
// WindowsFields is unset.
func (oh *OptionalHeader) Common() *WindowsCommonFields {
	if oh.WindowsFields == nil {
		return nil
	}
	return oh.WindowsFields.common()
}

func (oh *OptionalHeader) ImageBase() uint64 {
	switch wf := oh.WindowsFields.(type) {
	case *WindowsFields32:
		return uint64(wf.ImageBase)
	case *WindowsFields64:
		return wf.ImageBase
	}
	return 0
}

func (oh *OptionalHeader) SizeOfStackReserve() uint64 {
	switch wf := oh.WindowsFields.(type) {
	case *WindowsFields32:
		return uint64(wf.SizeOfStackReserve)
	case *WindowsFields64:
		return wf.SizeOfStackReserve
	}
	return 0
}

func (oh *OptionalHeader) SizeOfStackCommit() uint64 {
	switch wf := oh.WindowsFields.(type) {
	case *WindowsFields32:
		return uint64(wf.SizeOfStackCommit)
	case *WindowsFields64:
		return wf.SizeOfStackCommit
	}
	return 0
}

func (oh *OptionalHeader) SizeOfHeapReserve() uint64 {
	switch wf := oh.WindowsFields.(type) {
	case *WindowsFields32:
		return uint64(wf.SizeOfHeapReserve)
	case *WindowsFields64:
		return wf.SizeOfHeapReserve
	}
	return 0
}

func (oh *OptionalHeader) SizeOfHeapCommit() uint64 {
	switch wf := oh.WindowsFields.(type) {
	case *WindowsFields32:
		return uint64(wf.SizeOfHeapCommit)
	case *WindowsFields64:
		return wf.SizeOfHeapCommit
	}
	return 0
}

func (oh *OptionalHeader) FileAlignment() uint32 {
	if c := oh.Common(); c != nil {
		return c.FileAlignment
	}
	return 0
}

func (oh *OptionalHeader) SectionAlignment() uint32 {
	if c := oh.Common(); c != nil {
		return c.SectionAlignment
	}
	return 0
}

// NumberOfRvaAndSizes returns the number of directory entries present on
// disk, capped at the 16 slots the header can hold.
func (oh *OptionalHeader) NumberOfRvaAndSizes() int {
	c := oh.Common()
	if c == nil {
		return 0
	}
	if c.NumberOfRvaAndSizes > ImageNumberOfDirectoryEntries {
		return ImageNumberOfDirectoryEntries
	}
	return int(c.NumberOfRvaAndSizes)
}

// Directory returns data directory slot i.
func (oh *OptionalHeader) Directory(i int) DataDirectory {
	return oh.DataDirectories[i]
}

// Size returns the encoded length in bytes.
func (oh *OptionalHeader) Size() int {
	n := oh.StandardFields.size()
	if oh.WindowsFields != nil {
		n += oh.WindowsFields.size()
	}
	return n + DataDirectorySize*oh.NumberOfRvaAndSizes()
}

// Clone returns a deep copy.
func (oh *OptionalHeader) Clone() *OptionalHeader {
	c := *oh
	if oh.WindowsFields != nil {
		c.WindowsFields = oh.WindowsFields.clone()
	}
	return &c
}

// DecodeOptionalHeader reads the standard fields, the windows fields chosen
// by the magic and then exactly NumberOfRvaAndSizes directory entries.
func DecodeOptionalHeader(r Reader) (*OptionalHeader, error) {
	oh := &OptionalHeader{}
	d := newDecoder(r)

	oh.StandardFields.decode(d)
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read optional header standard fields")
	}

	switch oh.StandardFields.Magic {
	case ImageNtOptionalHeader32Magic:
		oh.WindowsFields = &WindowsFields32{}
	case ImageNtOptionalHeader64Magic:
		oh.WindowsFields = &WindowsFields64{}
	default:
		return nil, invalidFormatf("optional header has unexpected Magic of 0x%x", oh.StandardFields.Magic)
	}

	oh.WindowsFields.decode(d)
	if d.err != nil {
		if oh.Is64() {
			return nil, errors.WithMessage(d.err, "failure to read PE32+ optional header")
		}
		return nil, errors.WithMessage(d.err, "failure to read PE32 optional header")
	}

	for i := 0; i < oh.NumberOfRvaAndSizes(); i++ {
		oh.DataDirectories[i].VirtualAddress = d.u32()
		oh.DataDirectories[i].Size = d.u32()
	}
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read data directories")
	}
	return oh, nil
}

func (oh *OptionalHeader) Encode(w Writer) error {
	if oh.WindowsFields == nil {
		return invalidFormat("optional header has no windows specific fields")
	}
	if oh.WindowsFields.magic() != oh.StandardFields.Magic {
		return invalidFormatf("optional header magic 0x%x does not match windows fields of magic 0x%x",
			oh.StandardFields.Magic, oh.WindowsFields.magic())
	}

	e := newEncoder(w)
	oh.StandardFields.encode(e)
	oh.WindowsFields.encode(e)
	for i := 0; i < oh.NumberOfRvaAndSizes(); i++ {
		e.u32(oh.DataDirectories[i].VirtualAddress)
		e.u32(oh.DataDirectories[i].Size)
	}
	return e.err
}
