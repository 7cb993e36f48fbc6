package pe

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// COFFSymbol is one 18-byte record of the COFF symbol table.
type COFFSymbol struct {
	Name               [8]uint8
	Value              uint32
	SectionNumber      int16
	Type               uint16
	StorageClass       uint8
	NumberOfAuxSymbols uint8
}

func readCOFFSymbols(data []byte, fh *FileHeader) ([]COFFSymbol, error) {
	if fh.PointerToSymbolTable == 0 || fh.NumberOfSymbols == 0 {
		return nil, nil
	}
	if uint64(fh.PointerToSymbolTable) > uint64(len(data)) {
		return nil, errors.WithMessage(notEnoughData(int(fh.PointerToSymbolTable)), "symbol table starts past the end of the file")
	}

	c := NewByteCursor(data[fh.PointerToSymbolTable:])
	symbols := make([]COFFSymbol, 0, tableCapacity(fh.NumberOfSymbols, c, COFFSymbolSize))
	d := newDecoder(c)
	for i := uint32(0); i < fh.NumberOfSymbols; i++ {
		var sym COFFSymbol
		d.bytes(sym.Name[:])
		sym.Value = d.u32()
		sym.SectionNumber = int16(d.u16())
		sym.Type = d.u16()
		sym.StorageClass = d.u8()
		sym.NumberOfAuxSymbols = d.u8()
		if d.err != nil {
			return nil, errors.WithMessage(d.err, "failure to read symbol table")
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// longNameOffset reports whether name holds a string table offset instead
// of inline characters: four zero bytes followed by the offset.
func longNameOffset(name [8]byte) (uint32, bool) {
	if binary.LittleEndian.Uint32(name[:4]) != 0 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(name[4:]), true
}

// FullName resolves names longer than 8 bytes through st.
func (sym *COFFSymbol) FullName(st StringTable) (string, error) {
	if offset, ok := longNameOffset(sym.Name); ok {
		return st.String(offset)
	}
	return cString(sym.Name[:]), nil
}

// foldAuxSymbols drops the auxiliary records that trail a symbol and
// resolves the names of the rest.
func foldAuxSymbols(records []COFFSymbol, st StringTable) ([]*Symbol, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var symbols []*Symbol
	for i := 0; i < len(records); i += 1 + int(records[i].NumberOfAuxSymbols) {
		rec := &records[i]
		name, err := rec.FullName(st)
		if err != nil {
			return nil, errors.WithMessagef(err, "symbol %d", i)
		}
		symbols = append(symbols, &Symbol{
			Name:          name,
			Value:         rec.Value,
			SectionNumber: rec.SectionNumber,
			Type:          rec.Type,
			StorageClass:  rec.StorageClass,
		})
	}
	return symbols, nil
}

// Symbol is a COFFSymbol with its name resolved and aux records removed.
type Symbol struct {
	Name          string
	Value         uint32
	SectionNumber int16
	Type          uint16
	StorageClass  uint8
}
