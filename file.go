package pe

import (
	"github.com/pkg/errors"
)

// File is a parsed PE image. It owns everything it holds and does not keep
// the input buffer.
type File struct {
	DOSHeader      DOSHeader
	Signature      [4]byte
	FileHeader     FileHeader
	OptionalHeader *OptionalHeader
	Sections       SectionTable
	SpecialSections

	RichHeader  *RichHeader
	COFFSymbols []COFFSymbol
	Symbols     []*Symbol
	StringTable StringTable
}

// Parse decodes data with every decoder enabled.
func Parse(data []byte) (*File, error) {
	return ParseWithOptions(data, DefaultOptions())
}

// ParseMinimal decodes the headers and the section table only.
func ParseMinimal(data []byte) (*File, error) {
	return ParseWithOptions(data, MinimalOptions())
}

func ParseWithOptions(data []byte, opts Options) (*File, error) {
	f := new(File)
	log := opts.logger()

	c := NewByteCursor(data)
	var err error
	if f.DOSHeader, err = DecodeDOSHeader(c); err != nil {
		return nil, errors.WithMessage(err, "failure to read DOS header")
	}

	lfanew := f.DOSHeader.AddressOfNewEXEHeader
	if uint64(lfanew) > uint64(len(data)) {
		return nil, errors.WithMessagef(notEnoughData(int(lfanew)),
			"e_lfanew 0x%x points past the end of the file", lfanew)
	}
	if err := c.SetPosition(int(lfanew)); err != nil {
		return nil, err
	}

	sig, err := c.ReadSlice(len(f.Signature))
	if err != nil {
		return nil, errors.WithMessage(err, "failure to read PE signature")
	}
	copy(f.Signature[:], sig)
	if f.Signature != Signature {
		return nil, invalidFormat("bad PE signature")
	}

	if f.FileHeader, err = DecodeFileHeader(c); err != nil {
		return nil, errors.WithMessage(err, "failure to read COFF file header")
	}

	if f.FileHeader.SizeOfOptionalHeader > 0 {
		raw, err := c.ReadSlice(int(f.FileHeader.SizeOfOptionalHeader))
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read optional header")
		}
		if f.OptionalHeader, err = DecodeOptionalHeader(NewByteCursor(raw)); err != nil {
			return nil, err
		}
	}

	if f.Sections, err = DecodeSectionTable(c, int(f.FileHeader.NumberOfSections)); err != nil {
		return nil, errors.WithMessage(err, "failure to read section table")
	}

	log.Debug().
		Stringer("machine", f.FileHeader.Machine).
		Uint16("sections", f.FileHeader.NumberOfSections).
		Bool("pe32plus", f.Is64()).
		Msg("parsed headers")

	if opts.Sections.Has(ParseRichHeader) {
		f.RichHeader = readRichHeader(data, lfanew)
	}

	if opts.Sections.Has(ParseCOFFSymbols) {
		if err := f.parseSymbols(data); err != nil {
			return nil, err
		}
	}

	if f.OptionalHeader != nil {
		if err := f.parseSpecialSections(data, opts); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *File) parseSymbols(data []byte) error {
	var err error
	if f.COFFSymbols, err = readCOFFSymbols(data, &f.FileHeader); err != nil {
		return err
	}
	if f.StringTable, err = readStringTable(data, &f.FileHeader); err != nil {
		return err
	}
	if f.Symbols, err = foldAuxSymbols(f.COFFSymbols, f.StringTable); err != nil {
		return errors.WithMessage(err, "failure to resolve symbol names")
	}
	return nil
}

// Is64 reports whether the image is PE32+.
func (f *File) Is64() bool {
	return f.OptionalHeader != nil && f.OptionalHeader.Is64()
}

// SectionTableOffset is the file offset of the first section row.
func (f *File) SectionTableOffset() uint32 {
	return f.DOSHeader.AddressOfNewEXEHeader + 4 + FileHeaderSize + uint32(f.FileHeader.SizeOfOptionalHeader)
}

func (f *File) Section(name string) *SectionHeader {
	return f.Sections.GetByName(name)
}

// Patch writes the DOS header, COFF header, optional header and section
// table back into data at the offsets they were read from. Nothing is
// recomputed and data is never resized; a buffer too small for the headers
// fails with ErrNotEnoughSpace.
func (f *File) Patch(data []byte) error {
	if err := f.DOSHeader.Encode(NewSliceWriter(data)); err != nil {
		return errors.WithMessage(err, "failure to write DOS header")
	}

	lfanew := f.DOSHeader.AddressOfNewEXEHeader
	if uint64(lfanew) > uint64(len(data)) {
		return notEnoughSpace(int(lfanew))
	}
	w := NewSliceWriter(data[lfanew:])
	if err := w.WriteSlice(f.Signature[:]); err != nil {
		return errors.WithMessage(err, "failure to write PE signature")
	}
	if err := f.FileHeader.Encode(w); err != nil {
		return errors.WithMessage(err, "failure to write COFF file header")
	}
	if f.OptionalHeader != nil {
		if err := f.OptionalHeader.Encode(w); err != nil {
			return errors.WithMessage(err, "failure to write optional header")
		}
	}

	// The section table follows SizeOfOptionalHeader, which may be larger
	// than the encoded optional header.
	if err := w.SetPosition(len(f.Signature) + FileHeaderSize + int(f.FileHeader.SizeOfOptionalHeader)); err != nil {
		return err
	}
	if err := f.Sections.Encode(w); err != nil {
		return errors.WithMessage(err, "failure to write section table")
	}
	return nil
}

// ResourceData returns the bytes a resource leaf points at.
func (f *File) ResourceData(data []byte, entry *ResourceDataEntry) ([]byte, error) {
	if entry == nil {
		return nil, nil
	}
	dir := DataDirectory{VirtualAddress: entry.Struct.OffsetToData, Size: entry.Struct.Size}
	leaf, err := f.Sections.DirectoryData(data, dir)
	if err != nil {
		return nil, errors.WithMessage(err, "failure to read resource data")
	}
	return leaf, nil
}
