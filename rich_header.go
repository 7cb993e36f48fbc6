package pe

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

type RichHeader struct {
	XorKey     uint32
	CompIDs    []CompID
	DansOffset int
	Raw        []byte

	// prefix holds the file bytes before DanS, needed for the checksum.
	prefix []byte
}

type CompID struct {
	MinorCV  uint16
	ProdID   uint16
	Count    uint32
	Unmasked uint32
}

// readRichHeader looks for the Rich header in the DOS stub. It returns nil
// when the header is missing or garbled.
func readRichHeader(data []byte, lfanew uint32) *RichHeader {
	if uint64(lfanew) > uint64(len(data)) {
		return nil
	}
	stub := data[:lfanew]
	richSigOffset := bytes.Index(stub, []byte(RichSignature))
	if richSigOffset < 0 || richSigOffset+8 > len(stub) {
		return nil
	}

	var rh RichHeader
	rh.XorKey = binary.LittleEndian.Uint32(stub[richSigOffset+4:])

	var decRichHeader []uint32
	dansSigOffset := -1
	estimatedBeginDans := richSigOffset - 4 - DOSHeaderSize
	for it := 0; it <= estimatedBeginDans; it += 4 {
		res := binary.LittleEndian.Uint32(stub[richSigOffset-4-it:]) ^ rh.XorKey
		if res == DansSignature {
			dansSigOffset = richSigOffset - it - 4
			break
		}
		decRichHeader = append(decRichHeader, res)
	}
	if dansSigOffset == -1 {
		return nil
	}

	rh.DansOffset = dansSigOffset
	rh.Raw = append([]byte(nil), stub[dansSigOffset:richSigOffset+8]...)
	rh.prefix = append([]byte(nil), stub[:dansSigOffset]...)

	for i, j := 0, len(decRichHeader)-1; i < j; i, j = i+1, j-1 {
		decRichHeader[i], decRichHeader[j] = decRichHeader[j], decRichHeader[i]
	}

	// The three dwords after DanS are zero padding; the rest are pairs.
	for i := 3; i+1 < len(decRichHeader); i += 2 {
		lo, count := decRichHeader[i], decRichHeader[i+1]
		rh.CompIDs = append(rh.CompIDs, CompID{
			MinorCV:  uint16(lo),
			ProdID:   uint16(lo >> 16),
			Count:    count,
			Unmasked: lo,
		})
	}
	return &rh
}

// Checksum recomputes the value the linker used as XOR key.
func (rh *RichHeader) Checksum() uint32 {
	if rh == nil {
		return 0
	}

	checksum := uint32(rh.DansOffset)

	// First, calculate the sum of the DOS header bytes each rotated left the
	// number of times their position relative to the start of the DOS header e.g.
	// second byte is rotated left 2x using rol operation.
	for i, v := range rh.prefix {
		// skip over dos e_lfanew field at offset 0x3C
		if i >= 0x3C && i < 0x40 {
			continue
		}
		b := uint32(v)
		checksum += b<<(i%32) | b>>(32-(i%32))
	}

	// Next, take summation of each Rich header entry by combining its ProductId
	// and BuildNumber into a single 32 bits number and rotating by its count.
	for _, compID := range rh.CompIDs {
		checksum += compID.Unmasked<<(compID.Count%32) | compID.Unmasked>>(32-(compID.Count%32))
	}
	return checksum
}

// IsValid reports whether the stored XOR key matches Checksum.
func (rh *RichHeader) IsValid() bool {
	return rh != nil && rh.Checksum() == rh.XorKey
}

// Hash is the md5 of the unmasked header up to the Rich marker.
func (rh *RichHeader) Hash() string {
	if rh == nil {
		return ""
	}
	richIndex := bytes.Index(rh.Raw, []byte(RichSignature))
	if richIndex == -1 {
		return ""
	}

	key := make([]byte, 4)
	binary.LittleEndian.PutUint32(key, rh.XorKey)

	rawData := rh.Raw[:richIndex]
	clearData := make([]byte, len(rawData))
	for idx, val := range rawData {
		clearData[idx] = val ^ key[idx%len(key)]
	}
	return fmt.Sprintf("%x", md5.Sum(clearData))
}

func (f *File) RichHeaderChecksum() uint32 { return f.RichHeader.Checksum() }

func (f *File) RichHeaderHash() string { return f.RichHeader.Hash() }
