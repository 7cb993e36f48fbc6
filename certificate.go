package pe

import (
	"fmt"

	"github.com/pkg/errors"
)

type CertificateRevision uint16

const (
	WinCertRevision1_0 CertificateRevision = 0x0100
	WinCertRevision2_0 CertificateRevision = 0x0200
)

func (r CertificateRevision) String() string {
	switch r {
	case WinCertRevision1_0:
		return "1.0"
	case WinCertRevision2_0:
		return "2.0"
	}
	return fmt.Sprintf("Other(0x%x)", uint16(r))
}

type CertificateType uint16

const (
	WinCertTypeX509           CertificateType = 0x0001
	WinCertTypePKCSSignedData CertificateType = 0x0002
	WinCertTypeReserved1      CertificateType = 0x0003
	WinCertTypeTSStackSigned  CertificateType = 0x0004
)

func (t CertificateType) String() string {
	switch t {
	case WinCertTypeX509:
		return "X509"
	case WinCertTypePKCSSignedData:
		return "PKCSSignedData"
	case WinCertTypeReserved1:
		return "Reserved1"
	case WinCertTypeTSStackSigned:
		return "TSStackSigned"
	}
	return fmt.Sprintf("Other(0x%x)", uint16(t))
}

const certificateHeaderSize = 8

// Certificate is one WIN_CERTIFICATE record. Length includes the 8-byte
// header; Data holds the remaining Length-8 bytes.
type Certificate struct {
	Length   uint32
	Revision CertificateRevision
	Type     CertificateType
	Data     []byte
}

type CertificateDataDirectory struct {
	Certificates []Certificate
}

// DecodeCertificateTable walks the attribute certificate table. Records start
// on 8-byte boundaries. Unlike other directories the table is addressed by
// file offset, so data is a plain slice of the file.
func DecodeCertificateTable(data []byte) (*CertificateDataDirectory, error) {
	ct := &CertificateDataDirectory{}
	c := NewByteCursor(data)
	for c.Remaining() > 0 {
		start := c.Position()
		d := newDecoder(c)
		cert := Certificate{
			Length:   d.u32(),
			Revision: CertificateRevision(d.u16()),
			Type:     CertificateType(d.u16()),
		}
		if d.err != nil {
			return nil, errors.WithMessage(d.err, "failure to read certificate header")
		}
		if cert.Length < certificateHeaderSize {
			return nil, invalidFormatf("certificate length %d is smaller than its header", cert.Length)
		}
		if uint64(start)+uint64(cert.Length) > uint64(len(data)) {
			return nil, invalidFormatf("certificate at offset %d with length %d runs past the table", start, cert.Length)
		}

		body, _ := c.ReadSlice(int(cert.Length) - certificateHeaderSize)
		cert.Data = append([]byte(nil), body...)
		ct.Certificates = append(ct.Certificates, cert)

		end := uint64(start) + uint64(cert.Length)
		if end == uint64(len(data)) {
			break
		}
		next := alignUp(end, 8)
		if next > uint64(len(data)) {
			return nil, invalidFormatf("certificate padding at offset %d runs past the table", end)
		}
		if next == uint64(len(data)) {
			break
		}
		if err := c.SetPosition(int(next)); err != nil {
			return nil, err
		}
	}
	return ct, nil
}
