package pe

import (
	"github.com/pkg/errors"
)

// TLSDirectory is IMAGE_TLS_DIRECTORY. The address fields are VAs and are
// widened to 64 bits for PE32 images.
type TLSDirectory struct {
	StartAddressOfRawData uint64
	EndAddressOfRawData   uint64
	AddressOfIndex        uint64
	AddressOfCallBacks    uint64
	SizeOfZeroFill        uint32
	Characteristics       uint32
}

func DecodeTLSDirectory(data []byte, is64 bool) (*TLSDirectory, error) {
	d := newDecoder(NewByteCursor(data))
	addr := func() uint64 {
		if is64 {
			return d.u64()
		}
		return uint64(d.u32())
	}
	tls := &TLSDirectory{
		StartAddressOfRawData: addr(),
		EndAddressOfRawData:   addr(),
		AddressOfIndex:        addr(),
		AddressOfCallBacks:    addr(),
		SizeOfZeroFill:        d.u32(),
		Characteristics:       d.u32(),
	}
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read TLS directory")
	}
	return tls, nil
}
