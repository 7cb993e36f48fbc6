package pe

import (
	"fmt"

	"github.com/pkg/errors"
)

type BaseRelocationType uint8

const (
	ImageRelBasedAbsolute      BaseRelocationType = 0
	ImageRelBasedHigh          BaseRelocationType = 1
	ImageRelBasedLow           BaseRelocationType = 2
	ImageRelBasedHighLow       BaseRelocationType = 3
	ImageRelBasedHighAdj       BaseRelocationType = 4
	ImageRelBasedMachineSpec5  BaseRelocationType = 5 // MIPS JMPADDR, ARM MOV32, RISC-V HIGH20
	ImageRelBasedReserved      BaseRelocationType = 6
	ImageRelBasedMachineSpec7  BaseRelocationType = 7 // Thumb MOV32, RISC-V LOW12I
	ImageRelBasedMachineSpec8  BaseRelocationType = 8 // RISC-V LOW12S, LoongArch MARK_LA
	ImageRelBasedMIPSJmpAddr16 BaseRelocationType = 9
	ImageRelBasedDir64         BaseRelocationType = 10
)

var relocationTypeNames = [...]string{
	"ABSOLUTE", "HIGH", "LOW", "HIGHLOW", "HIGHADJ", "MACHINE_SPECIFIC_5",
	"RESERVED", "MACHINE_SPECIFIC_7", "MACHINE_SPECIFIC_8", "MIPS_JMPADDR16", "DIR64",
}

func (t BaseRelocationType) String() string {
	if int(t) < len(relocationTypeNames) {
		return relocationTypeNames[t]
	}
	return fmt.Sprintf("BaseRelocationType(%d)", uint8(t))
}

const (
	relocationTypeShift  = 12
	relocationOffsetMask = 1<<relocationTypeShift - 1
)

// BaseRelocationEntry is one 16-bit fixup: a 4-bit type over a 12-bit page
// offset.
type BaseRelocationEntry struct {
	Type   BaseRelocationType
	Offset uint16
}

func unpackRelocationEntry(v uint16) (BaseRelocationEntry, error) {
	e := BaseRelocationEntry{
		Type:   BaseRelocationType(v >> relocationTypeShift),
		Offset: v & relocationOffsetMask,
	}
	if e.Type > ImageRelBasedDir64 {
		return e, invalidFormatf("invalid base relocation type %d", e.Type)
	}
	return e, nil
}

func (e BaseRelocationEntry) pack() uint16 {
	return uint16(e.Type)<<relocationTypeShift | e.Offset&relocationOffsetMask
}

type BaseRelocationBlock struct {
	VirtualAddress uint32
	// SizeOfBlock counts the 8-byte block header as well as the entries.
	SizeOfBlock uint32
	Entries     []BaseRelocationEntry
}

type BaseRelocationDataDirectory struct {
	Blocks []BaseRelocationBlock
}

func DecodeBaseRelocationTable(data []byte) (*BaseRelocationDataDirectory, error) {
	rt := &BaseRelocationDataDirectory{}
	c := NewByteCursor(data)
	for c.Remaining() > 0 {
		start := c.Position()
		d := newDecoder(c)
		block := BaseRelocationBlock{
			VirtualAddress: d.u32(),
			SizeOfBlock:    d.u32(),
		}
		if d.err != nil {
			return nil, errors.WithMessage(d.err, "failure to read base relocation block header")
		}
		if block.SizeOfBlock < BaseRelocationBlockSize {
			return nil, invalidFormatf("base relocation block size %d is smaller than its header", block.SizeOfBlock)
		}

		n := int(block.SizeOfBlock-BaseRelocationBlockSize) / 2
		block.Entries = make([]BaseRelocationEntry, 0, tableCapacity(uint32(n), c, 2))
		for i := 0; i < n; i++ {
			v, err := ReadUint16(c)
			if err != nil {
				return nil, errors.WithMessage(err, "failure to read base relocation entry")
			}
			entry, err := unpackRelocationEntry(v)
			if err != nil {
				return nil, err
			}
			block.Entries = append(block.Entries, entry)
		}
		// An odd block size leaves one byte that belongs to no entry.
		if err := c.SetPosition(start + int(block.SizeOfBlock)); err != nil {
			return nil, errors.WithMessage(err, "base relocation block runs past the directory")
		}
		rt.Blocks = append(rt.Blocks, block)
	}
	return rt, nil
}

// Encode writes every block with SizeOfBlock recomputed from its entries.
func (rt *BaseRelocationDataDirectory) Encode(w Writer) error {
	e := newEncoder(w)
	for _, block := range rt.Blocks {
		e.u32(block.VirtualAddress)
		e.u32(uint32(BaseRelocationBlockSize + 2*len(block.Entries)))
		for _, entry := range block.Entries {
			e.u16(entry.pack())
		}
	}
	return e.err
}
