package pe

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ParseSectionFlags selects which data directories are decoded. Bit i
// corresponds to data directory slot i. Unselected directories stay nil even
// when present in the image.
type ParseSectionFlags uint32

const (
	ParseExportTable       ParseSectionFlags = 1 << ImageDirectoryEntryExport
	ParseImportTable       ParseSectionFlags = 1 << ImageDirectoryEntryImport
	ParseResourceTable     ParseSectionFlags = 1 << ImageDirectoryEntryResource
	ParseExceptionTable    ParseSectionFlags = 1 << ImageDirectoryEntryException
	ParseCertificateTable  ParseSectionFlags = 1 << ImageDirectoryEntrySecurity
	ParseBaseRelocation    ParseSectionFlags = 1 << ImageDirectoryEntryBaseReLoc
	ParseDebug             ParseSectionFlags = 1 << ImageDirectoryEntryDebug
	ParseArchitecture      ParseSectionFlags = 1 << ImageDirectoryEntryArchitecture
	ParseGlobalPtr         ParseSectionFlags = 1 << ImageDirectoryEntryGlobalPtr
	ParseTLSTable          ParseSectionFlags = 1 << ImageDirectoryEntryTls
	ParseLoadConfigTable   ParseSectionFlags = 1 << ImageDirectoryEntryLoadConfig
	ParseBoundImport       ParseSectionFlags = 1 << ImageDirectoryEntryBoundImport
	ParseIAT               ParseSectionFlags = 1 << ImageDirectoryEntryIat
	ParseDelayImport       ParseSectionFlags = 1 << ImageDirectoryEntryDelayImport
	ParseCLRRuntimeHeader  ParseSectionFlags = 1 << ImageDirectoryEntryComDescriptor
	ParseReservedDirectory ParseSectionFlags = 1 << ImageDirectoryEntryReserved
	ParseCOFFSymbols       ParseSectionFlags = 1 << 16
	ParseRichHeader        ParseSectionFlags = 1 << 17
	ParseNone              ParseSectionFlags = 0
	ParseAll               ParseSectionFlags = 1<<18 - 1
)

var parseFlagNames = map[string]ParseSectionFlags{
	"export":       ParseExportTable,
	"import":       ParseImportTable,
	"resource":     ParseResourceTable,
	"exception":    ParseExceptionTable,
	"certificate":  ParseCertificateTable,
	"reloc":        ParseBaseRelocation,
	"debug":        ParseDebug,
	"architecture": ParseArchitecture,
	"globalptr":    ParseGlobalPtr,
	"tls":          ParseTLSTable,
	"loadconfig":   ParseLoadConfigTable,
	"boundimport":  ParseBoundImport,
	"iat":          ParseIAT,
	"delayimport":  ParseDelayImport,
	"clr":          ParseCLRRuntimeHeader,
	"reserved":     ParseReservedDirectory,
	"symbols":      ParseCOFFSymbols,
	"rich":         ParseRichHeader,
	"all":          ParseAll,
	"none":         ParseNone,
}

func (f ParseSectionFlags) Has(flag ParseSectionFlags) bool { return f&flag == flag }

// ParseSectionFlagsFromString turns a comma separated list such as
// "import,export,reloc" into flags.
func ParseSectionFlagsFromString(s string) (ParseSectionFlags, error) {
	var flags ParseSectionFlags
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		flag, ok := parseFlagNames[name]
		if !ok {
			return 0, errors.Errorf("unknown section decoder %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

// Options controls a parse.
type Options struct {
	// Sections selects the decoders to run.
	Sections ParseSectionFlags
	// Logger receives debug events. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultOptions decodes everything.
func DefaultOptions() Options {
	return Options{Sections: ParseAll}
}

// MinimalOptions decodes headers and the section table only.
func MinimalOptions() Options {
	return Options{Sections: ParseNone}
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}
