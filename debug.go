package pe

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

type DebugType uint32

const (
	ImageDebugTypeUnknown     DebugType = 0
	ImageDebugTypeCOFF        DebugType = 1
	ImageDebugTypeCodeView    DebugType = 2
	ImageDebugTypeFPO         DebugType = 3
	ImageDebugTypeMisc        DebugType = 4
	ImageDebugTypeException   DebugType = 5
	ImageDebugTypeFixup       DebugType = 6
	ImageDebugTypeOMAPToSrc   DebugType = 7
	ImageDebugTypeOMAPFromSrc DebugType = 8
	ImageDebugTypeBorland     DebugType = 9
	ImageDebugTypeReserved10  DebugType = 10
	ImageDebugTypeCLSID       DebugType = 11
	ImageDebugTypeVCFeature   DebugType = 12
	ImageDebugTypePOGO        DebugType = 13
	ImageDebugTypeILTCG       DebugType = 14
	ImageDebugTypeMPX         DebugType = 15
	ImageDebugTypeRepro       DebugType = 16
	ImageDebugTypeExDllChar   DebugType = 20
)

func (t DebugType) String() string {
	switch t {
	case ImageDebugTypeCOFF:
		return "COFF"
	case ImageDebugTypeCodeView:
		return "CodeView"
	case ImageDebugTypeFPO:
		return "FPO"
	case ImageDebugTypeMisc:
		return "Misc"
	case ImageDebugTypeException:
		return "Exception"
	case ImageDebugTypeFixup:
		return "Fixup"
	case ImageDebugTypeBorland:
		return "Borland"
	case ImageDebugTypeVCFeature:
		return "VCFeature"
	case ImageDebugTypePOGO:
		return "POGO"
	case ImageDebugTypeILTCG:
		return "ILTCG"
	case ImageDebugTypeRepro:
		return "Repro"
	case ImageDebugTypeExDllChar:
		return "ExDllCharacteristics"
	}
	return fmt.Sprintf("DebugType(%d)", uint32(t))
}

type ImageDebugDirectory struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             DebugType
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

type DebugDataDirectory struct {
	Entries []ImageDebugDirectory
}

func DecodeDebugTable(data []byte) (*DebugDataDirectory, error) {
	n := len(data) / DebugDirectorySize
	dt := &DebugDataDirectory{Entries: make([]ImageDebugDirectory, n)}
	d := newDecoder(NewByteCursor(data))
	for i := range dt.Entries {
		dt.Entries[i] = ImageDebugDirectory{
			Characteristics:  d.u32(),
			TimeDateStamp:    d.u32(),
			MajorVersion:     d.u16(),
			MinorVersion:     d.u16(),
			Type:             DebugType(d.u32()),
			SizeOfData:       d.u32(),
			AddressOfRawData: d.u32(),
			PointerToRawData: d.u32(),
		}
	}
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read debug directory")
	}
	return dt, nil
}

const cvSignatureRSDS = 0x53445352 // "RSDS"

// CVInfoPDB70 is the CodeView record that names the PDB of an image.
type CVInfoPDB70 struct {
	Signature   uint32
	GUID        [16]byte
	Age         uint32
	PDBFileName string
}

// CodeView decodes the RSDS record of a CodeView debug entry from the file
// bytes. It returns nil when the entry is not an RSDS record.
func (dd *ImageDebugDirectory) CodeView(file []byte) (*CVInfoPDB70, error) {
	if dd.Type != ImageDebugTypeCodeView {
		return nil, nil
	}
	end := uint64(dd.PointerToRawData) + uint64(dd.SizeOfData)
	if end > uint64(len(file)) {
		return nil, notEnoughData(int(dd.SizeOfData))
	}
	raw := file[dd.PointerToRawData:end]

	cv := &CVInfoPDB70{}
	d := newDecoder(NewByteCursor(raw))
	cv.Signature = d.u32()
	if d.err != nil || cv.Signature != cvSignatureRSDS {
		return nil, nil
	}
	d.bytes(cv.GUID[:])
	cv.Age = d.u32()
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read CodeView record")
	}
	name := raw[24:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	cv.PDBFileName = string(name)
	return cv, nil
}
