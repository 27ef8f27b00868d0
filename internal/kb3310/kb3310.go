// Package kb3310 holds the register map and command set of the ENE KB3310B
// embedded controller as seen from the host's LPC I/O space.
//
// References:
//   - [KB3310B]: ENE KB3310B Keyboard Controller datasheet, XBI section
//   - [ec_kb3310b.h]: Lemote Loongson 2F platform EC header
package kb3310

// Host I/O ports. The EC register space is reached through an index/data
// triplet; commands go through the ACPI-style command/status port.
const (
	PortIndexHigh = 0x0381
	PortIndexLow  = 0x0382
	PortData      = 0x0383

	PortCmd    = 0x66
	PortStatus = 0x66
	PortEvent  = 0x62
)

// StatusIBF is set on PortStatus while the EC has not consumed a command byte.
const StatusIBF = 1 << 1

// EC commands written to PortCmd.
const (
	CmdInitIdleMode  = 0xDD
	CmdExitIdleMode  = 0xDF
	CmdInitResetMode = 0xD8
	CmdRebootSystem  = 0x8C
	CmdProgramPiece  = 0xDA
)

// Power mode register and its flags.
const (
	RegPowerMode = 0xF710

	FlagNormalMode = 0x00
	FlagIdleMode   = 0x01
	FlagResetMode  = 0x02
)

// Config registers touched when entering or leaving reset mode.
const (
	RegPXCFG  = 0xFF0C // bit0: hold the 8051 core in reset
	RegLPCCFG = 0xFE95 // bit7: FWH/LPC flash access by the host

	PXCFGMCUReset = 1 << 0
	LPCCFGEnable  = 1 << 7
)

// [KB3310B|XBI] registers.
const (
	RegXBISEG0    = 0xFEA0
	RegXBISEG1    = 0xFEA1
	RegXBIRSV2    = 0xFEA2
	RegXBIRSV3    = 0xFEA3
	RegXBIRSV4    = 0xFEA4
	RegXBICFG     = 0xFEA5
	RegXBICS      = 0xFEA6
	RegXBIWE      = 0xFEA7
	RegXBISPIA0   = 0xFEA8
	RegXBISPIA1   = 0xFEA9
	RegXBISPIA2   = 0xFEAA
	RegXBISPIDAT  = 0xFEAB
	RegXBISPICMD  = 0xFEAC
	RegXBISPICFG  = 0xFEAD
	RegXBISPIDATR = 0xFEAE
	RegXBISPICFG2 = 0xFEAF
)

// Bits of RegXBISPICFG.
const (
	SPICfgAutoCheck    = 0x01
	SPICfgBusy         = 0x02
	SPICfgDummyRead    = 0x04
	SPICfgEnSPICmd     = 0x08
	SPICfgLowSPICS     = 0x10
	SPICfgEnShortRead  = 0x20
	SPICfgEnOffsetRead = 0x40
	SPICfgEnFastRead   = 0x80
)

// SPI opcodes written to RegXBISPICMD.
const (
	SPICmdWriteStatus   = 0x01
	SPICmdByteProgram   = 0x02
	SPICmdReadByte      = 0x03
	SPICmdWriteDisable  = 0x04
	SPICmdReadStatus    = 0x05
	SPICmdWriteEnable   = 0x06
	SPICmdHighSpeedRead = 0x0B
	SPICmdReadID        = 0x9F
	SPICmdPowerDown     = 0xB9
	SPICmdSSTEWSR       = 0x50
	SPICmdSSTSecErase   = 0x20
	SPICmdSSTBlkErase   = 0x52
	SPICmdSSTChipErase  = 0x60
	SPICmdFRDO          = 0x3B
	SPICmdSecErase      = 0xD7
	SPICmdBlkErase      = 0xD8
	SPICmdChipErase     = 0xC7
)

// Piece transfer window used by the EC firmware to program the IE region.
const (
	RegPieceStatus = 0xF77C
	RegPieceStart  = 0xF800 // marker, addr[3], data[PieceSize]

	PieceStatusDone  = 0x01
	PieceStatusError = 0x02

	FirstPieceYes = 0x01
	FirstPieceNo  = 0x00

	PieceSize = 8
)

// Register address window accepted for pass-through access.
const (
	MinRegAddr = 0xF000
	MaxRegAddr = 0xFFFF
	RAMAddr    = 0xF800
)

// Flash regions.
const (
	ROMStartAddr = 0x00000000
	IEStartAddr  = 0x00020000

	ROMMaxSize = 61 * 1024
	IEMaxSize  = 0x100000 - IEStartAddr

	BlockSize = 64 * 1024
)

// Timing. Budgets are iteration counts, delays are per iteration.
const (
	FlashTimeout   = 0x1000
	CmdTimeout     = 0x1000
	RegDelayMicros = 300
	SPISettleReads = 10
	EraseScale     = 256
)
