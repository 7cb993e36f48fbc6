package pe

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type ImageImportDirectory struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

func (dt ImageImportDirectory) IsNull() bool {
	return dt == ImageImportDirectory{}
}

func decodeImportDirectory(r Reader) (ImageImportDirectory, error) {
	var dt ImageImportDirectory
	d := newDecoder(r)
	dt.OriginalFirstThunk = d.u32()
	dt.TimeDateStamp = d.u32()
	dt.ForwarderChain = d.u32()
	dt.Name = d.u32()
	dt.FirstThunk = d.u32()
	return dt, d.err
}

// ImportFunction is one lookup table row. ByOrdinal selects which of
// Ordinal or Hint/NameRVA/Name is meaningful.
type ImportFunction struct {
	Name       string
	Hint       uint16
	NameRVA    uint32
	ByOrdinal  bool
	Ordinal    uint16
	ThunkValue uint64
	ThunkRVA   uint32
}

// Import is one imported module.
type Import struct {
	Offset     uint32
	Name       string
	Functions  []*ImportFunction
	Descriptor ImageImportDirectory
}

type ImportTableDataDirectory struct {
	Entries []*Import
}

func decodeImportTable(v *imageView, dir DataDirectory, data []byte) (*ImportTableDataDirectory, error) {
	it := &ImportTableDataDirectory{}
	c := NewByteCursor(data)
	rva := dir.VirtualAddress

	for c.Remaining() >= ImportDescriptorSize {
		dt, err := decodeImportDirectory(c)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read import directory table")
		}
		if dt.IsNull() {
			break
		}

		dllName, err := v.stringAt(dt.Name, maxDllLength)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read import DLL name")
		}

		// Some linkers leave the ILT empty and only fill in the IAT.
		lookup := dt.OriginalFirstThunk
		if lookup == 0 {
			lookup = dt.FirstThunk
		}
		functions, err := v.readThunks(lookup, 0)
		if err != nil {
			return nil, errors.WithMessagef(err, "failure to read imports of %s", dllName)
		}

		it.Entries = append(it.Entries, &Import{
			Offset:     rva,
			Name:       dllName,
			Functions:  functions,
			Descriptor: dt,
		})
		rva += ImportDescriptorSize
	}
	return it, nil
}

// readThunks decodes a lookup table at rva up to its zero terminator. base is
// subtracted from every address found in the table; it is non-zero only for
// old style delay import tables that store VAs.
func (v *imageView) readThunks(rva uint32, base uint64) ([]*ImportFunction, error) {
	if rva == 0 {
		return nil, nil
	}
	c, err := v.cursorAt(rva)
	if err != nil {
		return nil, err
	}

	var functions []*ImportFunction
	for i := 0; i < maxAllowedEntries; i++ {
		var (
			thunk     uint64
			byOrdinal bool
		)
		if v.is64() {
			thunk, err = ReadUint64(c)
			byOrdinal = thunk&imageOrdinalFlag64 != 0
		} else {
			var t32 uint32
			t32, err = ReadUint32(c)
			thunk = uint64(t32)
			byOrdinal = t32&imageOrdinalFlag32 != 0
		}
		if err != nil {
			return nil, errors.WithMessage(err, "failure to read import lookup table")
		}
		if thunk == 0 {
			return functions, nil
		}

		imp := &ImportFunction{ThunkValue: thunk, ThunkRVA: rva}
		if v.is64() {
			rva += 8
		} else {
			rva += 4
		}

		if byOrdinal {
			imp.ByOrdinal = true
			imp.Ordinal = uint16(thunk & 0xffff)
			imp.Name = fmt.Sprintf("#%d", imp.Ordinal)
			functions = append(functions, imp)
			continue
		}

		imp.NameRVA = uint32((thunk - base) & 0x7fffffff)
		hint, err := v.cursorAt(imp.NameRVA)
		if err != nil {
			return nil, errors.WithMessage(err, "failure to locate hint/name entry")
		}
		if imp.Hint, err = ReadUint16(hint); err != nil {
			return nil, errors.WithMessage(err, "failure to read import hint")
		}
		if imp.Name, err = v.stringAt(imp.NameRVA+2, maxImportNameLength); err != nil {
			return nil, errors.WithMessage(err, "failure to read import name")
		}
		functions = append(functions, imp)
	}
	return nil, errors.WithStack(ErrDamagedImportTable)
}

// ImpHash calculates the import hash.
func (it *ImportTableDataDirectory) ImpHash() (string, error) {
	if it == nil || len(it.Entries) == 0 {
		return "", errors.New("no imports found")
	}

	extensions := []string{"ocx", "sys", "dll"}
	var normalizedImports []string

	for _, imp := range it.Entries {
		var libName string
		parts := strings.Split(imp.Name, ".")
		if len(parts) == 2 && stringInSlice(strings.ToLower(parts[1]), extensions) {
			libName = parts[0]
		} else {
			libName = imp.Name
		}

		libName = strings.ToLower(libName)

		for _, function := range imp.Functions {
			var funcName string
			if function.ByOrdinal {
				funcName = fmt.Sprintf("ord%d", function.Ordinal)
			} else {
				funcName = function.Name
			}

			if funcName == "" {
				continue
			}

			impStr := fmt.Sprintf("%s.%s", libName, strings.ToLower(funcName))
			normalizedImports = append(normalizedImports, impStr)
		}
	}
	h := md5.New()
	_, _ = io.WriteString(h, strings.Join(normalizedImports, ","))
	return hex.EncodeToString(h.Sum(nil)), nil
}
