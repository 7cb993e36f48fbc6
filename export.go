package pe

import (
	"github.com/pkg/errors"
)

type ImageExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

func decodeExportDirectory(r Reader) (ImageExportDirectory, error) {
	var ed ImageExportDirectory
	d := newDecoder(r)
	ed.Characteristics = d.u32()
	ed.TimeDateStamp = d.u32()
	ed.MajorVersion = d.u16()
	ed.MinorVersion = d.u16()
	ed.Name = d.u32()
	ed.Base = d.u32()
	ed.NumberOfFunctions = d.u32()
	ed.NumberOfNames = d.u32()
	ed.AddressOfFunctions = d.u32()
	ed.AddressOfNames = d.u32()
	ed.AddressOfNameOrdinals = d.u32()
	return ed, d.err
}

// ExportAddress is one export address table slot. Entries pointing back into
// the export directory are forwarders ("OTHERDLL.Func") rather than code.
type ExportAddress struct {
	RVA       uint32
	Forwarder string
}

func (ea ExportAddress) IsForwarder() bool { return ea.Forwarder != "" }

// ExportTableDataDirectory holds the export directory and its three parallel
// tables. Names[i] is the string NamePointerTable[i] points at, and
// OrdinalTable[i] indexes AddressTable for that name.
type ExportTableDataDirectory struct {
	Directory        ImageExportDirectory
	Name             string
	AddressTable     []ExportAddress
	NamePointerTable []uint32
	OrdinalTable     []uint16
	Names            []string
}

// ExportFunction is a flattened view of one exported symbol.
type ExportFunction struct {
	Ordinal   uint32
	RVA       uint32
	Name      string
	Forwarder string
}

// Functions pairs every address table slot with its name, if it has one.
func (et *ExportTableDataDirectory) Functions() []ExportFunction {
	names := make(map[uint16]string, len(et.OrdinalTable))
	for i, ord := range et.OrdinalTable {
		if i < len(et.Names) {
			names[ord] = et.Names[i]
		}
	}

	functions := make([]ExportFunction, 0, len(et.AddressTable))
	for i, ea := range et.AddressTable {
		if ea.RVA == 0 {
			continue
		}
		functions = append(functions, ExportFunction{
			Ordinal:   et.Directory.Base + uint32(i),
			RVA:       ea.RVA,
			Name:      names[uint16(i)],
			Forwarder: ea.Forwarder,
		})
	}
	return functions
}

// tableCapacity keeps a corrupt count from turning into a huge allocation.
func tableCapacity(count uint32, c *ByteCursor, width int) int {
	if limit := c.Remaining() / width; int64(count) > int64(limit) {
		return limit
	}
	return int(count)
}

func decodeExportTable(v *imageView, dir DataDirectory, data []byte) (*ExportTableDataDirectory, error) {
	ed, err := decodeExportDirectory(NewByteCursor(data))
	if err != nil {
		return nil, errors.WithMessage(err, "failure to read export directory")
	}

	et := &ExportTableDataDirectory{Directory: ed}
	if ed.Name != 0 {
		if et.Name, err = v.stringAt(ed.Name, maxDllLength); err != nil {
			return nil, errors.WithMessage(err, "failure to read export DLL name")
		}
	}

	if ed.NumberOfFunctions > 0 {
		c, err := v.cursorAt(ed.AddressOfFunctions)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to locate export address table")
		}
		et.AddressTable = make([]ExportAddress, 0, tableCapacity(ed.NumberOfFunctions, c, 4))
		for i := uint32(0); i < ed.NumberOfFunctions; i++ {
			rva, err := ReadUint32(c)
			if err != nil {
				return nil, errors.WithMessage(err, "failure to read export address table")
			}
			ea := ExportAddress{RVA: rva}
			if rva >= dir.VirtualAddress && rva-dir.VirtualAddress < dir.Size {
				if ea.Forwarder, err = v.stringAt(rva, maxExportNameLength); err != nil {
					return nil, errors.WithMessage(err, "failure to read export forwarder")
				}
			}
			et.AddressTable = append(et.AddressTable, ea)
		}
	}

	if ed.NumberOfNames == 0 {
		return et, nil
	}

	names, err := v.cursorAt(ed.AddressOfNames)
	if err != nil {
		return nil, errors.WithMessage(err, "failure to locate export name pointer table")
	}
	ordinals, err := v.cursorAt(ed.AddressOfNameOrdinals)
	if err != nil {
		return nil, errors.WithMessage(err, "failure to locate export ordinal table")
	}

	n := tableCapacity(ed.NumberOfNames, names, 4)
	et.NamePointerTable = make([]uint32, 0, n)
	et.OrdinalTable = make([]uint16, 0, n)
	et.Names = make([]string, 0, n)
	for i := uint32(0); i < ed.NumberOfNames; i++ {
		nameRVA, err := ReadUint32(names)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read export name pointer table")
		}
		ord, err := ReadUint16(ordinals)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read export ordinal table")
		}
		name, err := v.stringAt(nameRVA, maxExportNameLength)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read export name")
		}
		et.NamePointerTable = append(et.NamePointerTable, nameRVA)
		et.OrdinalTable = append(et.OrdinalTable, ord)
		et.Names = append(et.Names, name)
	}
	return et, nil
}
