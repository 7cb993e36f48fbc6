package pe

type DOSHeader struct {
	Magic                    uint16
	BytesOnLastPageOfFile    uint16
	PagesInFile              uint16
	Relocations              uint16
	SizeOfHeader             uint16
	MinExtraParagraphsNeeded uint16
	MaxExtraParagraphsNeeded uint16
	InitialSS                uint16
	InitialSP                uint16
	Checksum                 uint16
	InitialIP                uint16
	InitialCS                uint16
	AddressOfRelocationTable uint16
	OverlayNumber            uint16
	ReservedWords1           [4]uint16
	OEMIdentifier            uint16
	OEMInformation           uint16
	ReservedWords2           [10]uint16
	AddressOfNewEXEHeader    uint32
}

// HasValidMagic reports whether the header starts with MZ (or the rare ZM).
// The parser does not check this; the PE signature at e_lfanew is what
// decides whether an image is accepted.
func (h *DOSHeader) HasValidMagic() bool {
	return h.Magic == ImageDOSSignature || h.Magic == ImageDOSZMSignature
}

func DecodeDOSHeader(r Reader) (DOSHeader, error) {
	var h DOSHeader
	d := newDecoder(r)
	h.Magic = d.u16()
	h.BytesOnLastPageOfFile = d.u16()
	h.PagesInFile = d.u16()
	h.Relocations = d.u16()
	h.SizeOfHeader = d.u16()
	h.MinExtraParagraphsNeeded = d.u16()
	h.MaxExtraParagraphsNeeded = d.u16()
	h.InitialSS = d.u16()
	h.InitialSP = d.u16()
	h.Checksum = d.u16()
	h.InitialIP = d.u16()
	h.InitialCS = d.u16()
	h.AddressOfRelocationTable = d.u16()
	h.OverlayNumber = d.u16()
	for i := range h.ReservedWords1 {
		h.ReservedWords1[i] = d.u16()
	}
	h.OEMIdentifier = d.u16()
	h.OEMInformation = d.u16()
	for i := range h.ReservedWords2 {
		h.ReservedWords2[i] = d.u16()
	}
	h.AddressOfNewEXEHeader = d.u32()
	return h, d.err
}

func (h *DOSHeader) Encode(w Writer) error {
	e := newEncoder(w)
	e.u16(h.Magic)
	e.u16(h.BytesOnLastPageOfFile)
	e.u16(h.PagesInFile)
	e.u16(h.Relocations)
	e.u16(h.SizeOfHeader)
	e.u16(h.MinExtraParagraphsNeeded)
	e.u16(h.MaxExtraParagraphsNeeded)
	e.u16(h.InitialSS)
	e.u16(h.InitialSP)
	e.u16(h.Checksum)
	e.u16(h.InitialIP)
	e.u16(h.InitialCS)
	e.u16(h.AddressOfRelocationTable)
	e.u16(h.OverlayNumber)
	for _, v := range h.ReservedWords1 {
		e.u16(v)
	}
	e.u16(h.OEMIdentifier)
	e.u16(h.OEMInformation)
	for _, v := range h.ReservedWords2 {
		e.u16(v)
	}
	e.u32(h.AddressOfNewEXEHeader)
	return e.err
}
