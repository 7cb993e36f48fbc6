package pe

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

type (
	ImageResourceDirectory struct {
		Characteristics      uint32
		TimeDateStamp        uint32
		MajorVersion         uint16
		MinorVersion         uint16
		NumberOfNamedEntries uint16
		NumberOfIDEntries    uint16
	}

	ImageResourceDirectoryEntry struct {
		Name         uint32
		OffsetToData uint32
	}

	ImageResourceDataEntry struct {
		OffsetToData uint32
		Size         uint32
		CodePage     uint32
		Reserved     uint32
	}

	ResourceDirectory struct {
		Struct  ImageResourceDirectory
		Entries []ResourceDirectoryEntry
	}

	ResourceDirectoryEntry struct {
		Struct    ImageResourceDirectoryEntry
		Name      string
		ID        uint32
		Directory *ResourceDirectory
		Data      *ResourceDataEntry
	}

	ResourceDataEntry struct {
		Struct  ImageResourceDataEntry
		Lang    uint32
		SubLang uint32
	}
)

const (
	resourceHighBit      = 0x80000000
	resourceOffsetMask   = 0x7FFFFFFF
	maxResourceTreeDepth = 8
)

type ResourceType uint32

const (
	RTCursor       ResourceType = 1
	RTBitmap       ResourceType = 2
	RTIcon         ResourceType = 3
	RTMenu         ResourceType = 4
	RTDialog       ResourceType = 5
	RTString       ResourceType = 6
	RTFontDir      ResourceType = 7
	RTFont         ResourceType = 8
	RTAccelerator  ResourceType = 9
	RTRCData       ResourceType = 10
	RTMessageTable ResourceType = 11
	RTGroupCursor  ResourceType = 12
	RTGroupIcon    ResourceType = 14
	RTVersion      ResourceType = 16
	RTDlgInclude   ResourceType = 17
	RTPlugPlay     ResourceType = 19
	RTVxD          ResourceType = 20
	RTAniCursor    ResourceType = 21
	RTAniIcon      ResourceType = 22
	RTHTML         ResourceType = 23
	RTManifest     ResourceType = 24
)

var resourceTypeNames = map[ResourceType]string{
	RTCursor:       "RT_CURSOR",
	RTBitmap:       "RT_BITMAP",
	RTIcon:         "RT_ICON",
	RTMenu:         "RT_MENU",
	RTDialog:       "RT_DIALOG",
	RTString:       "RT_STRING",
	RTFontDir:      "RT_FONTDIR",
	RTFont:         "RT_FONT",
	RTAccelerator:  "RT_ACCELERATOR",
	RTRCData:       "RT_RCDATA",
	RTMessageTable: "RT_MESSAGETABLE",
	RTGroupCursor:  "RT_GROUP_CURSOR",
	RTGroupIcon:    "RT_GROUP_ICON",
	RTVersion:      "RT_VERSION",
	RTDlgInclude:   "RT_DLGINCLUDE",
	RTPlugPlay:     "RT_PLUGPLAY",
	RTVxD:          "RT_VXD",
	RTAniCursor:    "RT_ANICURSOR",
	RTAniIcon:      "RT_ANIICON",
	RTHTML:         "RT_HTML",
	RTManifest:     "RT_MANIFEST",
}

func (t ResourceType) String() string {
	if name, ok := resourceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("%d", uint32(t))
}

func GetResourceTypeName(resourceType ResourceDirectoryEntry) string {
	if resourceType.Name != "" {
		return resourceType.Name
	}
	return ResourceType(resourceType.ID).String()
}

// ResourceTable keeps the resource directory bytes as found in the image.
// Offsets inside the tree are relative to the start of these bytes; leaf
// data is addressed by RVA.
type ResourceTable struct {
	VirtualAddress uint32
	Data           []byte
}

// Directory decodes the resource tree.
func (rt *ResourceTable) Directory() (*ResourceDirectory, error) {
	w := &resourceWalker{data: rt.Data, visited: make(map[uint32]bool)}
	return w.directory(0, 0)
}

type resourceWalker struct {
	data    []byte
	visited map[uint32]bool
}

func (w *resourceWalker) cursor(offset uint32) (*ByteCursor, error) {
	if uint64(offset) > uint64(len(w.data)) {
		return nil, invalidFormatf("resource offset 0x%x is outside the resource directory", offset)
	}
	return NewByteCursor(w.data[offset:]), nil
}

func (w *resourceWalker) directory(offset uint32, depth int) (*ResourceDirectory, error) {
	if depth > maxResourceTreeDepth {
		return nil, invalidFormat("resource tree is too deep")
	}
	if w.visited[offset] {
		return nil, invalidFormatf("resource directory at 0x%x is referenced twice", offset)
	}
	w.visited[offset] = true

	c, err := w.cursor(offset)
	if err != nil {
		return nil, err
	}
	d := newDecoder(c)
	rd := &ResourceDirectory{Struct: ImageResourceDirectory{
		Characteristics:      d.u32(),
		TimeDateStamp:        d.u32(),
		MajorVersion:         d.u16(),
		MinorVersion:         d.u16(),
		NumberOfNamedEntries: d.u16(),
		NumberOfIDEntries:    d.u16(),
	}}
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read resource directory")
	}

	numberOfEntries := int(rd.Struct.NumberOfNamedEntries) + int(rd.Struct.NumberOfIDEntries)
	if numberOfEntries > maxAllowedEntries {
		return nil, invalidFormatf("resource directory has %d entries", numberOfEntries)
	}

	for i := 0; i < numberOfEntries; i++ {
		res := ImageResourceDirectoryEntry{Name: d.u32(), OffsetToData: d.u32()}
		if d.err != nil {
			return nil, errors.WithMessage(d.err, "failure to read resource directory entry")
		}

		entry := ResourceDirectoryEntry{Struct: res}
		if res.Name&resourceHighBit != 0 {
			if entry.Name, err = w.name(res.Name & resourceOffsetMask); err != nil {
				return nil, err
			}
		} else {
			entry.ID = res.Name
		}

		target := res.OffsetToData & resourceOffsetMask
		if res.OffsetToData&resourceHighBit != 0 {
			if entry.Directory, err = w.directory(target, depth+1); err != nil {
				return nil, err
			}
		} else {
			if entry.Data, err = w.dataEntry(target, res.Name); err != nil {
				return nil, err
			}
		}
		rd.Entries = append(rd.Entries, entry)
	}
	return rd, nil
}

func (w *resourceWalker) dataEntry(offset, name uint32) (*ResourceDataEntry, error) {
	c, err := w.cursor(offset)
	if err != nil {
		return nil, err
	}
	d := newDecoder(c)
	de := &ResourceDataEntry{
		Struct: ImageResourceDataEntry{
			OffsetToData: d.u32(),
			Size:         d.u32(),
			CodePage:     d.u32(),
			Reserved:     d.u32(),
		},
		Lang:    name & 0x3ff,
		SubLang: name >> 10,
	}
	if d.err != nil {
		return nil, errors.WithMessage(d.err, "failure to read resource data entry")
	}
	return de, nil
}

// name decodes a length-prefixed UTF-16LE resource name.
func (w *resourceWalker) name(offset uint32) (string, error) {
	c, err := w.cursor(offset)
	if err != nil {
		return "", err
	}
	n, err := ReadUint16(c)
	if err != nil {
		return "", errors.WithMessage(err, "failure to read resource name length")
	}
	raw, err := c.ReadSlice(int(n) * 2)
	if err != nil {
		return "", errors.WithMessage(err, "failure to read resource name")
	}
	s, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return "", invalidFormatf("resource name at 0x%x is not UTF-16", offset)
	}
	return string(s), nil
}
