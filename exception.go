package pe

import (
	"github.com/pkg/errors"
)

// ExceptionTable is the decoded .pdata directory. Its shape depends on the
// machine: *MIPSExceptionTable, *ArmCEExceptionTable, *X64ExceptionTable or
// *UnsupportedExceptionTable.
type ExceptionTable interface {
	Len() int
	exceptionTable()
}

type MIPSFunctionEntry struct {
	BeginAddress     uint32
	EndAddress       uint32
	ExceptionHandler uint32
	HandlerData      uint32
	PrologEndAddress uint32
}

type MIPSExceptionTable struct {
	Entries []MIPSFunctionEntry
}

// ArmCEFunctionEntry covers ARM, PowerPC, SH3/SH4 and Windows CE. The second
// word packs PrologLength (8 bits), FunctionLength (22 bits), Is32Bit and
// HasHandler from the least significant bit up.
type ArmCEFunctionEntry struct {
	BeginAddress   uint32
	PrologLength   uint8
	FunctionLength uint32
	Is32Bit        bool
	HasHandler     bool
}

type ArmCEExceptionTable struct {
	Entries []ArmCEFunctionEntry
}

type X64FunctionEntry struct {
	BeginAddress      uint32
	EndAddress        uint32
	UnwindInfoAddress uint32
}

type X64ExceptionTable struct {
	Entries []X64FunctionEntry
}

// UnsupportedExceptionTable is returned for machines whose exception
// directory has no known layout.
type UnsupportedExceptionTable struct {
	Machine Machine
}

func (t *MIPSExceptionTable) Len() int        { return len(t.Entries) }
func (t *ArmCEExceptionTable) Len() int       { return len(t.Entries) }
func (t *X64ExceptionTable) Len() int         { return len(t.Entries) }
func (t *UnsupportedExceptionTable) Len() int { return 0 }

func (*MIPSExceptionTable) exceptionTable()        {}
func (*ArmCEExceptionTable) exceptionTable()       {}
func (*X64ExceptionTable) exceptionTable()         {}
func (*UnsupportedExceptionTable) exceptionTable() {}

const (
	armPrologLengthBits    = 8
	armFunctionLengthBits  = 22
	armFunctionLengthShift = armPrologLengthBits
	armFunctionLengthMask  = 1<<armFunctionLengthBits - 1
	arm32BitFlagShift      = armFunctionLengthShift + armFunctionLengthBits
	armHandlerFlagShift    = arm32BitFlagShift + 1
)

func unpackArmCEFields(v uint32) (prologLength uint8, functionLength uint32, is32Bit, hasHandler bool) {
	prologLength = uint8(v)
	functionLength = (v >> armFunctionLengthShift) & armFunctionLengthMask
	is32Bit = (v>>arm32BitFlagShift)&1 == 1
	hasHandler = (v>>armHandlerFlagShift)&1 == 1
	return
}

// packArmCEFields is the inverse of unpackArmCEFields. Bits of
// functionLength above 22 are dropped.
func packArmCEFields(prologLength uint8, functionLength uint32, is32Bit, hasHandler bool) uint32 {
	v := uint32(prologLength) | (functionLength&armFunctionLengthMask)<<armFunctionLengthShift
	if is32Bit {
		v |= 1 << arm32BitFlagShift
	}
	if hasHandler {
		v |= 1 << armHandlerFlagShift
	}
	return v
}

func (e ArmCEFunctionEntry) pack() uint32 {
	return packArmCEFields(e.PrologLength, e.FunctionLength, e.Is32Bit, e.HasHandler)
}

// exceptionEntrySize returns the row width for machine, or 0 when the
// machine has no known layout.
func exceptionEntrySize(machine Machine) int {
	switch machine {
	case MachineR3000, MachineR4000, MachineR10000, MachineWCEMIPSv2,
		MachineMIPS16, MachineMIPSFPU, MachineMIPSFPU16:
		return 20
	case MachineArm, MachineThumb, MachinePowerPC, MachinePowerPCFP,
		MachineSH3, MachineSH3DSP, MachineSH4:
		return 8
	case MachineAmd64, MachineIA64:
		return 12
	}
	return 0
}

// DecodeExceptionTable decodes every whole row in data. Trailing bytes that do
// not make a full row are ignored.
func DecodeExceptionTable(data []byte, machine Machine) (ExceptionTable, error) {
	size := exceptionEntrySize(machine)
	if size == 0 {
		return &UnsupportedExceptionTable{Machine: machine}, nil
	}

	n := len(data) / size
	d := newDecoder(NewByteCursor(data))
	switch size {
	case 20:
		t := &MIPSExceptionTable{Entries: make([]MIPSFunctionEntry, n)}
		for i := range t.Entries {
			t.Entries[i] = MIPSFunctionEntry{
				BeginAddress:     d.u32(),
				EndAddress:       d.u32(),
				ExceptionHandler: d.u32(),
				HandlerData:      d.u32(),
				PrologEndAddress: d.u32(),
			}
		}
		return t, errors.WithMessage(d.err, "failure to read MIPS exception table")
	case 8:
		t := &ArmCEExceptionTable{Entries: make([]ArmCEFunctionEntry, n)}
		for i := range t.Entries {
			e := &t.Entries[i]
			e.BeginAddress = d.u32()
			e.PrologLength, e.FunctionLength, e.Is32Bit, e.HasHandler = unpackArmCEFields(d.u32())
		}
		return t, errors.WithMessage(d.err, "failure to read ARM exception table")
	default:
		t := &X64ExceptionTable{Entries: make([]X64FunctionEntry, n)}
		for i := range t.Entries {
			t.Entries[i] = X64FunctionEntry{
				BeginAddress:      d.u32(),
				EndAddress:        d.u32(),
				UnwindInfoAddress: d.u32(),
			}
		}
		return t, errors.WithMessage(d.err, "failure to read x64 exception table")
	}
}
