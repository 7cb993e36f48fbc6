package pe

import (
	"fmt"
)

// Machine is the COFF target machine. Values outside the named set are kept
// as is; see Known.
type Machine uint16

const (
	MachineUnknown     Machine = 0x0
	MachineAlpha       Machine = 0x184
	MachineAlpha64     Machine = 0x284
	MachineAM33        Machine = 0x1d3
	MachineAmd64       Machine = 0x8664
	MachineArm         Machine = 0x1c0
	MachineArm64       Machine = 0xaa64
	MachineArmNT       Machine = 0x1c4
	MachineEBC         Machine = 0xebc
	MachineI386        Machine = 0x14c
	MachineIA64        Machine = 0x200
	MachineLoongArch32 Machine = 0x6232
	MachineLoongArch64 Machine = 0x6264
	MachineM32R        Machine = 0x9041
	MachineMIPS16      Machine = 0x266
	MachineMIPSFPU     Machine = 0x366
	MachineMIPSFPU16   Machine = 0x466
	MachinePowerPC     Machine = 0x1f0
	MachinePowerPCFP   Machine = 0x1f1
	MachineR3000       Machine = 0x162
	MachineR4000       Machine = 0x166
	MachineR10000      Machine = 0x168
	MachineRISCV32     Machine = 0x5032
	MachineRISCV64     Machine = 0x5064
	MachineRISCV128    Machine = 0x5128
	MachineSH3         Machine = 0x1a2
	MachineSH3DSP      Machine = 0x1a3
	MachineSH4         Machine = 0x1a6
	MachineSH5         Machine = 0x1a8
	MachineThumb       Machine = 0x1c2
	MachineWCEMIPSv2   Machine = 0x169
)

var machineNames = map[Machine]string{
	MachineUnknown:     "Unknown",
	MachineAlpha:       "Alpha",
	MachineAlpha64:     "Alpha64",
	MachineAM33:        "AM33",
	MachineAmd64:       "AMD64",
	MachineArm:         "ARM",
	MachineArm64:       "ARM64",
	MachineArmNT:       "ARMNT",
	MachineEBC:         "EBC",
	MachineI386:        "I386",
	MachineIA64:        "IA64",
	MachineLoongArch32: "LoongArch32",
	MachineLoongArch64: "LoongArch64",
	MachineM32R:        "M32R",
	MachineMIPS16:      "MIPS16",
	MachineMIPSFPU:     "MIPSFPU",
	MachineMIPSFPU16:   "MIPSFPU16",
	MachinePowerPC:     "PowerPC",
	MachinePowerPCFP:   "PowerPCFP",
	MachineR3000:       "R3000",
	MachineR4000:       "R4000",
	MachineR10000:      "R10000",
	MachineRISCV32:     "RISCV32",
	MachineRISCV64:     "RISCV64",
	MachineRISCV128:    "RISCV128",
	MachineSH3:         "SH3",
	MachineSH3DSP:      "SH3DSP",
	MachineSH4:         "SH4",
	MachineSH5:         "SH5",
	MachineThumb:       "Thumb",
	MachineWCEMIPSv2:   "WCEMIPSv2",
}

func (m Machine) Known() bool {
	_, ok := machineNames[m]
	return ok
}

func (m Machine) String() string {
	if name, ok := machineNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Other(0x%x)", uint16(m))
}

// FileCharacteristics is the COFF characteristics bitset.
type FileCharacteristics uint16

const (
	ImageFileRelocsStripped       FileCharacteristics = 0x0001
	ImageFileExecutableImage      FileCharacteristics = 0x0002
	ImageFileLineNumsStripped     FileCharacteristics = 0x0004
	ImageFileLocalSymsStripped    FileCharacteristics = 0x0008
	ImageFileAggressiveWSTrim     FileCharacteristics = 0x0010
	ImageFileLargeAddressAware    FileCharacteristics = 0x0020
	ImageFileBytesReversedLo      FileCharacteristics = 0x0080
	ImageFile32BitMachine         FileCharacteristics = 0x0100
	ImageFileDebugStripped        FileCharacteristics = 0x0200
	ImageFileRemovableRunFromSwap FileCharacteristics = 0x0400
	ImageFileNetRunFromSwap       FileCharacteristics = 0x0800
	ImageFileSystem               FileCharacteristics = 0x1000
	ImageFileDLL                  FileCharacteristics = 0x2000
	ImageFileUpSystemOnly         FileCharacteristics = 0x4000
	ImageFileBytesReversedHi      FileCharacteristics = 0x8000
)

func (c FileCharacteristics) Has(flag FileCharacteristics) bool { return c&flag == flag }

type FileHeader struct {
	Machine              Machine
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      FileCharacteristics
}

func DecodeFileHeader(r Reader) (FileHeader, error) {
	var fh FileHeader
	d := newDecoder(r)
	fh.Machine = Machine(d.u16())
	fh.NumberOfSections = d.u16()
	fh.TimeDateStamp = d.u32()
	fh.PointerToSymbolTable = d.u32()
	fh.NumberOfSymbols = d.u32()
	fh.SizeOfOptionalHeader = d.u16()
	fh.Characteristics = FileCharacteristics(d.u16())
	return fh, d.err
}

func (fh *FileHeader) Encode(w Writer) error {
	e := newEncoder(w)
	e.u16(uint16(fh.Machine))
	e.u16(fh.NumberOfSections)
	e.u32(fh.TimeDateStamp)
	e.u32(fh.PointerToSymbolTable)
	e.u32(fh.NumberOfSymbols)
	e.u16(fh.SizeOfOptionalHeader)
	e.u16(uint16(fh.Characteristics))
	return e.err
}

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

func (dd DataDirectory) IsZero() bool {
	return dd.VirtualAddress == 0 && dd.Size == 0
}
