package pe

const (
	ImageDOSSignature   = 0x5A4D // MZ
	ImageDOSZMSignature = 0x4D5A // ZM
)

const ImageNTHeaderSignature = 0x00004550

// Signature is the 4-byte marker at e_lfanew.
var Signature = [4]byte{'P', 'E', 0, 0}

const (
	ImageNtOptionalHeader32Magic = 0x10b
	ImageNtOptionalHeader64Magic = 0x20b
)

// IMAGE_DIRECTORY_ENTRY constants
const (
	ImageDirectoryEntryExport        = 0
	ImageDirectoryEntryImport        = 1
	ImageDirectoryEntryResource      = 2
	ImageDirectoryEntryException     = 3
	ImageDirectoryEntrySecurity      = 4
	ImageDirectoryEntryBaseReLoc     = 5
	ImageDirectoryEntryDebug         = 6
	ImageDirectoryEntryArchitecture  = 7
	ImageDirectoryEntryGlobalPtr     = 8
	ImageDirectoryEntryTls           = 9
	ImageDirectoryEntryLoadConfig    = 10
	ImageDirectoryEntryBoundImport   = 11
	ImageDirectoryEntryIat           = 12
	ImageDirectoryEntryDelayImport   = 13
	ImageDirectoryEntryComDescriptor = 14
	ImageDirectoryEntryReserved      = 15

	ImageNumberOfDirectoryEntries = 16
)

var directoryNames = [ImageNumberOfDirectoryEntries]string{
	"export", "import", "resource", "exception", "certificate", "base_relocation",
	"debug", "architecture", "global_ptr", "tls", "load_config", "bound_import",
	"iat", "delay_import", "clr_runtime_header", "reserved",
}

// DirectoryName returns the short name of data directory slot i.
func DirectoryName(i int) string {
	return directoryNames[i]
}

// Sizes of fixed-layout structures.
const (
	DOSHeaderSize           = 64
	FileHeaderSize          = 20
	SectionHeaderSize       = 40
	DataDirectorySize       = 8
	StandardFields32Size    = 28
	StandardFields64Size    = 24
	WindowsFields32Size     = 68
	WindowsFields64Size     = 88
	ImportDescriptorSize    = 20
	DelayImportDescSize     = 32
	ExportDirectorySize     = 40
	DebugDirectorySize      = 28
	ImageCor20HeaderSize    = 0x48
	BaseRelocationBlockSize = 8
	COFFSymbolSize          = 18
)

const (
	DefaultFileAlignment    = 0x200
	DefaultSectionAlignment = 0x1000
)

const maxAllowedEntries = 0x1000

const (
	DansSignature = 0x536E6144
	RichSignature = "Rich"
)

const (
	imageOrdinalFlag32  = uint32(0x80000000)
	imageOrdinalFlag64  = uint64(0x8000000000000000)
	maxDllLength        = 0x200
	maxImportNameLength = 0x200
	maxExportNameLength = 0x200
)
