package pe

import (
	"strings"
)

// imageView bundles what the directory decoders need to follow addresses
// that point outside their own directory bytes.
type imageView struct {
	data           []byte
	sections       SectionTable
	optionalHeader *OptionalHeader
	fileHeader     *FileHeader
}

func (v *imageView) is64() bool {
	return v.optionalHeader != nil && v.optionalHeader.Is64()
}

// cursorAt opens a cursor at addr running to the end of its section.
func (v *imageView) cursorAt(addr uint32) (*ByteCursor, error) {
	data, ok := v.sections.FindRVAData(v.data, addr)
	if !ok {
		return nil, invalidFormatf("RVA 0x%x is not mapped by any section", addr)
	}
	return NewByteCursor(data), nil
}

// stringAt reads a NUL terminated string at addr. A string running into the
// end of its section or past maxLen is cut there. Invalid UTF-8 is replaced.
func (v *imageView) stringAt(addr uint32, maxLen int) (string, error) {
	data, ok := v.sections.FindRVAData(v.data, addr)
	if !ok {
		return "", invalidFormatf("string RVA 0x%x is not mapped by any section", addr)
	}
	if len(data) > maxLen {
		data = data[:maxLen]
	}
	return strings.ToValidUTF8(cString(data), "\uFFFD"), nil
}
