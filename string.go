package pe

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// cString converts ASCII byte sequence b to string.
// It stops once it finds 0 or reaches end of b.
func cString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i == -1 {
		i = len(b)
	}
	return string(b[:i])
}

// StringTable is a COFF string table, without its 4-byte length prefix.
type StringTable []byte

// readStringTable reads the table that follows the COFF symbol table.
func readStringTable(data []byte, fh *FileHeader) (StringTable, error) {
	if fh.PointerToSymbolTable == 0 {
		return nil, nil
	}
	offset := uint64(fh.PointerToSymbolTable) + uint64(COFFSymbolSize)*uint64(fh.NumberOfSymbols)
	if offset > uint64(len(data)) {
		return nil, notEnoughData(int(offset - uint64(len(data))))
	}
	c := NewByteCursor(data[offset:])
	l, err := ReadUint32(c)
	if err != nil {
		return nil, errors.WithMessage(err, "fail to read string table length")
	}
	// string table length includes itself
	if l <= 4 {
		return nil, nil
	}
	buf, err := c.ReadSlice(int(l - 4))
	if err != nil {
		return nil, errors.WithMessage(err, "fail to read string table")
	}
	return append(StringTable(nil), buf...), nil
}

// String extracts string from COFF string table st at offset start.
func (st StringTable) String(start uint32) (string, error) {
	// start includes 4 bytes of string table length
	if start < 4 {
		return "", fmt.Errorf("offset %d is before the start of string table", start)
	}
	start -= 4
	if int(start) > len(st) {
		return "", fmt.Errorf("offset %d is beyond the end of string table", start)
	}
	return cString(st[start:]), nil
}
