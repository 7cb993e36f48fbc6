package pe

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"sort"

	"github.com/pkg/errors"
)

func (f *File) AuthentihashSha512(data []byte) []byte {
	return f.authentihash(data, sha512.New())
}

func (f *File) AuthentihashSha256(data []byte) []byte {
	return f.authentihash(data, sha256.New())
}

func (f *File) AuthentihashSha1(data []byte) []byte {
	return f.authentihash(data, sha1.New())
}

func (f *File) AuthentihashMd5(data []byte) []byte {
	return f.authentihash(data, md5.New())
}

// Authentihash is the SHA-256 Authenticode digest of data, the bytes f was
// parsed from. It returns nil for images without an optional header.
func (f *File) Authentihash(data []byte) []byte {
	return f.authentihash(data, sha256.New())
}

func (f *File) authentihash(data []byte, hasher hash.Hash) []byte {
	if f.OptionalHeader == nil {
		return nil
	}

	locations, err := f.authenticodeExclusions(uint32(len(data)))
	if err != nil {
		return nil
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].Start < locations[j].Start })

	start := uint32(0)
	for _, r := range locations {
		if r.Start > start {
			hasher.Write(data[start:r.Start])
		}
		start = r.Start + r.Length
	}
	if start < uint32(len(data)) {
		hasher.Write(data[start:])
	}
	return hasher.Sum(nil)
}

type RelRange struct {
	Start  uint32
	Length uint32
}

// authenticodeExclusions returns the ranges Authenticode leaves out: the
// checksum, the certificate directory entry and the certificate table.
func (f *File) authenticodeExclusions(fileSize uint32) ([]RelRange, error) {
	oh := f.OptionalHeader
	optionalHeaderOffset := f.DOSHeader.AddressOfNewEXEHeader + 4 + FileHeaderSize
	optionalHeaderSize := uint32(f.FileHeader.SizeOfOptionalHeader)

	if uint64(optionalHeaderOffset)+uint64(optionalHeaderSize) > uint64(fileSize) {
		return nil, errors.Errorf("the optional header exceeds the file length (%d + %d > %d)",
			optionalHeaderSize, optionalHeaderOffset, fileSize)
	}
	if optionalHeaderSize < 68 {
		return nil, errors.Errorf("the optional header size is %d < 68, which is insufficient for authenticode",
			optionalHeaderSize)
	}

	// CheckSum sits at the same offset in both variants.
	location := []RelRange{{optionalHeaderOffset + 64, 4}}

	certBase := optionalHeaderOffset + uint32(oh.StandardFields.size()+oh.WindowsFields.size()) +
		ImageDirectoryEntrySecurity*DataDirectorySize
	if oh.NumberOfRvaAndSizes() <= ImageDirectoryEntrySecurity ||
		optionalHeaderOffset+optionalHeaderSize < certBase+DataDirectorySize {
		return location, nil
	}
	location = append(location, RelRange{certBase, DataDirectorySize})

	cert := oh.DataDirectories[ImageDirectoryEntrySecurity]
	if cert.Size == 0 {
		return location, nil
	}
	if uint64(cert.VirtualAddress) < uint64(optionalHeaderOffset)+uint64(optionalHeaderSize) ||
		uint64(cert.VirtualAddress)+uint64(cert.Size) > uint64(fileSize) {
		return location, nil
	}
	return append(location, RelRange{cert.VirtualAddress, cert.Size}), nil
}
