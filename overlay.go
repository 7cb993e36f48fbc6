package pe

type offsetAndSize struct {
	offset, size uint32
}

// OverlayOffset returns the offset of the first byte past everything the
// headers account for, or 0 when the image has no overlay. The certificate
// table is excluded since it normally lives in the overlay.
func (f *File) OverlayOffset(data []byte) uint32 {
	if f.OptionalHeader == nil {
		return 0
	}
	fileSize := uint64(len(data))

	var largest offsetAndSize
	update := func(c offsetAndSize) {
		sum := uint64(c.offset) + uint64(c.size)
		if sum <= fileSize && sum > uint64(largest.offset)+uint64(largest.size) {
			largest = c
		}
	}

	update(offsetAndSize{
		offset: f.DOSHeader.AddressOfNewEXEHeader + 4 + FileHeaderSize,
		size:   uint32(f.FileHeader.SizeOfOptionalHeader),
	})
	update(offsetAndSize{
		offset: f.SectionTableOffset(),
		size:   uint32(len(f.Sections)) * SectionHeaderSize,
	})

	for _, section := range f.Sections {
		update(offsetAndSize{
			offset: section.PointerToRawData,
			size:   section.SizeOfRawData,
		})
	}

	for idx, directory := range f.OptionalHeader.DataDirectories {
		if idx == ImageDirectoryEntrySecurity {
			continue
		}
		offset, ok := f.Sections.FileOffset(directory.VirtualAddress)
		if !ok {
			continue
		}
		update(offsetAndSize{offset: offset, size: directory.Size})
	}

	end := uint64(largest.offset) + uint64(largest.size)
	if end < fileSize {
		return uint32(end)
	}
	return 0
}

// Overlay returns the bytes appended after the image, or nil.
func (f *File) Overlay(data []byte) []byte {
	offset := f.OverlayOffset(data)
	if offset == 0 {
		return nil
	}
	return data[offset:]
}
