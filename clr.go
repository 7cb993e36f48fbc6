package pe

import (
	"github.com/pkg/errors"
)

const (
	ComImageFlagsILOnly           = 0x00000001
	ComImageFlags32BitRequired    = 0x00000002
	ComImageFlagsILLibrary        = 0x00000004
	ComImageFlagsStrongNameSigned = 0x00000008
	ComImageFlagsNativeEntryPoint = 0x00000010
	ComImageFlagsTrackDebugData   = 0x00010000
	ComImageFlags32BitPreferred   = 0x00020000
)

// ImageCor20Header is the CLR runtime header of a managed image.
type ImageCor20Header struct {
	Cb                      uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                DataDirectory
	Flags                   uint32
	EntryPointTokenOrRVA    uint32
	Resources               DataDirectory
	StrongNameSignature     DataDirectory
	CodeManagerTable        DataDirectory
	VTableFixups            DataDirectory
	ExportAddressTableJumps DataDirectory
	ManagedNativeHeader     DataDirectory
}

func DecodeCLRHeader(data []byte) (*ImageCor20Header, error) {
	d := newDecoder(NewByteCursor(data))
	h := &ImageCor20Header{Cb: d.u32()}
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read CLR header size")
	}
	if h.Cb < ImageCor20HeaderSize {
		return nil, invalidFormatf("CLR header size %d is smaller than 0x%x", h.Cb, ImageCor20HeaderSize)
	}

	dir := func() DataDirectory {
		return DataDirectory{VirtualAddress: d.u32(), Size: d.u32()}
	}
	h.MajorRuntimeVersion = d.u16()
	h.MinorRuntimeVersion = d.u16()
	h.MetaData = dir()
	h.Flags = d.u32()
	h.EntryPointTokenOrRVA = d.u32()
	h.Resources = dir()
	h.StrongNameSignature = dir()
	h.CodeManagerTable = dir()
	h.VTableFixups = dir()
	h.ExportAddressTableJumps = dir()
	h.ManagedNativeHeader = dir()
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read CLR header")
	}
	return h, nil
}

func (h *ImageCor20Header) Encode(w Writer) error {
	e := newEncoder(w)
	dir := func(dd DataDirectory) {
		e.u32(dd.VirtualAddress)
		e.u32(dd.Size)
	}
	e.u32(h.Cb)
	e.u16(h.MajorRuntimeVersion)
	e.u16(h.MinorRuntimeVersion)
	dir(h.MetaData)
	e.u32(h.Flags)
	e.u32(h.EntryPointTokenOrRVA)
	dir(h.Resources)
	dir(h.StrongNameSignature)
	dir(h.CodeManagerTable)
	dir(h.VTableFixups)
	dir(h.ExportAddressTableJumps)
	dir(h.ManagedNativeHeader)
	return e.err
}
