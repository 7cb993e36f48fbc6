package pe

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SpecialSections holds the decoded data directories. A field is nil when
// the directory is absent, unmapped or was not selected for decoding.
type SpecialSections struct {
	ExportTable         *ExportTableDataDirectory
	ImportTable         *ImportTableDataDirectory
	ResourceTable       *ResourceTable
	ExceptionTable      ExceptionTable
	CertificateTable    *CertificateDataDirectory
	BaseRelocationTable *BaseRelocationDataDirectory
	DebugTable          *DebugDataDirectory
	GlobalPtr           uint32
	TLSTable            *TLSDirectory
	DelayImportTable    *DelayImportTableDataDirectory
	CLRRuntimeHeader    *ImageCor20Header
}

func (f *File) parseSpecialSections(data []byte, opts Options) error {
	oh := f.OptionalHeader
	v := &imageView{
		data:           data,
		sections:       f.Sections,
		optionalHeader: oh,
		fileHeader:     &f.FileHeader,
	}
	log := opts.logger()

	for i := 0; i < ImageNumberOfDirectoryEntries; i++ {
		dir := oh.Directory(i)
		flag := ParseSectionFlags(1) << i
		if dir.IsZero() || !opts.Sections.Has(flag) {
			continue
		}
		event := log.Debug().
			Str("directory", DirectoryName(i)).
			Str("rva", fmt.Sprintf("0x%x", dir.VirtualAddress)).
			Uint32("size", dir.Size)
		if err := f.parseDirectory(i, v, dir, event); err != nil {
			return errors.WithMessagef(err, "failure to parse %s directory", DirectoryName(i))
		}
	}
	return nil
}

func (f *File) parseDirectory(i int, v *imageView, dir DataDirectory, event *zerolog.Event) error {
	s := &f.SpecialSections

	// The certificate table is addressed by file offset, never by RVA.
	if i == ImageDirectoryEntrySecurity {
		if dir.VirtualAddress == 0 {
			return nil
		}
		end := uint64(dir.VirtualAddress) + uint64(dir.Size)
		if end > uint64(len(v.data)) {
			return notEnoughData(int(dir.Size))
		}
		ct, err := DecodeCertificateTable(v.data[dir.VirtualAddress:end])
		if err != nil {
			return err
		}
		s.CertificateTable = ct
		event.Int("certificates", len(ct.Certificates)).Msg("decoded directory")
		return nil
	}

	// The directory size is always zero; the RVA is the value.
	if i == ImageDirectoryEntryGlobalPtr {
		s.GlobalPtr = dir.VirtualAddress
		event.Msg("decoded directory")
		return nil
	}

	var (
		mapped bool
		err    error
	)
	sections, file := f.Sections, v.data
	switch i {
	case ImageDirectoryEntryExport:
		s.ExportTable, mapped, err = mapDataDirectory(sections, file, dir, func(data []byte) (*ExportTableDataDirectory, error) {
			return decodeExportTable(v, dir, data)
		})
	case ImageDirectoryEntryImport:
		s.ImportTable, mapped, err = mapDataDirectory(sections, file, dir, func(data []byte) (*ImportTableDataDirectory, error) {
			return decodeImportTable(v, dir, data)
		})
	case ImageDirectoryEntryResource:
		s.ResourceTable, mapped, err = mapDataDirectory(sections, file, dir, func(data []byte) (*ResourceTable, error) {
			return &ResourceTable{VirtualAddress: dir.VirtualAddress, Data: append([]byte(nil), data...)}, nil
		})
	case ImageDirectoryEntryException:
		s.ExceptionTable, mapped, err = mapDataDirectory(sections, file, dir, func(data []byte) (ExceptionTable, error) {
			return DecodeExceptionTable(data, f.FileHeader.Machine)
		})
	case ImageDirectoryEntryBaseReLoc:
		s.BaseRelocationTable, mapped, err = mapDataDirectory(sections, file, dir, DecodeBaseRelocationTable)
	case ImageDirectoryEntryDebug:
		s.DebugTable, mapped, err = mapDataDirectory(sections, file, dir, DecodeDebugTable)
	case ImageDirectoryEntryTls:
		s.TLSTable, mapped, err = mapDataDirectory(sections, file, dir, func(data []byte) (*TLSDirectory, error) {
			return DecodeTLSDirectory(data, v.is64())
		})
	case ImageDirectoryEntryDelayImport:
		s.DelayImportTable, mapped, err = mapDataDirectory(sections, file, dir, func(data []byte) (*DelayImportTableDataDirectory, error) {
			return decodeDelayImportTable(v, dir, data)
		})
	case ImageDirectoryEntryComDescriptor:
		s.CLRRuntimeHeader, mapped, err = mapDataDirectory(sections, file, dir, DecodeCLRHeader)
	default:
		event.Msg("no decoder for directory")
		return nil
	}
	if err != nil {
		return err
	}
	if !mapped {
		event.Msg("directory is not mapped by any section")
		return nil
	}
	event.Msg("decoded directory")
	return nil
}
