package pe

import (
	"github.com/pkg/errors"
)

type ImageDelayImportDirectory struct {
	Attributes                 uint32
	Name                       uint32
	ModuleHandleRVA            uint32
	ImportAddressTableRVA      uint32
	ImportNameTableRVA         uint32
	BoundImportAddressTableRVA uint32
	UnloadInformationTableRVA  uint32
	TimeDateStamp              uint32
}

func (dd ImageDelayImportDirectory) IsNull() bool {
	return dd == ImageDelayImportDirectory{}
}

// UsesRVAs reports whether the descriptor holds RVAs. Descriptors from old
// linkers clear bit 0 and store VAs instead.
func (dd ImageDelayImportDirectory) UsesRVAs() bool {
	return dd.Attributes&1 != 0
}

type DelayImport struct {
	Offset     uint32
	Name       string
	Functions  []*ImportFunction
	Descriptor ImageDelayImportDirectory
}

type DelayImportTableDataDirectory struct {
	Entries []*DelayImport
}

func decodeDelayImportDirectory(r Reader) (ImageDelayImportDirectory, error) {
	var dd ImageDelayImportDirectory
	d := newDecoder(r)
	dd.Attributes = d.u32()
	dd.Name = d.u32()
	dd.ModuleHandleRVA = d.u32()
	dd.ImportAddressTableRVA = d.u32()
	dd.ImportNameTableRVA = d.u32()
	dd.BoundImportAddressTableRVA = d.u32()
	dd.UnloadInformationTableRVA = d.u32()
	dd.TimeDateStamp = d.u32()
	return dd, d.err
}

func decodeDelayImportTable(v *imageView, dir DataDirectory, data []byte) (*DelayImportTableDataDirectory, error) {
	dt := &DelayImportTableDataDirectory{}
	c := NewByteCursor(data)
	rva := dir.VirtualAddress

	for c.Remaining() >= DelayImportDescSize {
		dd, err := decodeDelayImportDirectory(c)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read delay import descriptor")
		}
		if dd.IsNull() {
			break
		}

		var base uint64
		if !dd.UsesRVAs() {
			base = v.optionalHeader.ImageBase()
		}
		rebase := func(addr uint32) uint32 {
			if addr == 0 {
				return 0
			}
			return uint32(uint64(addr) - base)
		}

		name, err := v.stringAt(rebase(dd.Name), maxDllLength)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read delay import DLL name")
		}

		lookup := dd.ImportNameTableRVA
		if lookup == 0 {
			lookup = dd.ImportAddressTableRVA
		}
		functions, err := v.readThunks(rebase(lookup), base)
		if err != nil {
			return nil, errors.WithMessagef(err, "failure to read delay imports of %s", name)
		}

		dt.Entries = append(dt.Entries, &DelayImport{
			Offset:     rva,
			Name:       name,
			Functions:  functions,
			Descriptor: dd,
		})
		rva += DelayImportDescSize
	}
	return dt, nil
}
