// Package ecsim simulates a KB3310B embedded controller and its SPI flash at
// the I/O port level, for tests and dry runs.
package ecsim

import (
	"bytes"
	"sync"

	"github.com/gentam/ecflash/internal/kb3310"
)

// ErasedByte is the content of erased flash.
const ErasedByte = 0xFF

// Piece is one piece handed to the simulated EC firmware.
type Piece struct {
	Marker byte
	Addr   uint32
	Data   [kb3310.PieceSize]byte
}

// EC is a simulated KB3310B. The exported fields configure timing and fault
// injection and may be changed between operations.
type EC struct {
	// BusyPolls is the number of XBISPICFG reads that report busy after each
	// SPI opcode.
	BusyPolls int

	// StuckAfter makes the n-th SPI opcode (1-based, counted from the last
	// ResetCounters) and all following ones never complete. Zero disables it.
	StuckAfter int

	// SlowAt makes the n-th SPI opcode (counted like StuckAfter) report busy
	// for SlowPolls reads. The opcode itself takes effect.
	SlowAt    int
	SlowPolls int

	// WIPReads is the number of READ_STATUS results reporting a write in
	// progress.
	WIPReads int

	// CmdPolls is the number of status port reads with IBF set after each EC
	// command. CmdStuck keeps IBF set forever.
	CmdPolls int
	CmdStuck bool

	// ModePolls is the number of power mode reads before a requested mode
	// flag shows up. ModeStuck suppresses the flag.
	ModePolls int
	ModeStuck bool

	// PieceErrors is the number of piece status reads that report done with
	// the error bit set, after PieceErrorSkip clean reads. PieceStuck never
	// reports done.
	PieceErrors    int
	PieceErrorSkip int
	PieceStuck     bool

	// DropWrites maps flash addresses to the number of BYTE_PROGRAM opcodes
	// at that address the chip silently ignores.
	DropWrites map[uint32]int

	mu    sync.Mutex
	regs  [0x10000]byte
	index uint16
	flash []byte

	status byte // flash status register
	id     [3]byte
	idPos  int

	spiBusy int
	stuck   bool
	spiCmds int
	cmdBusy int

	modePending byte
	modeWait    int

	reads        map[uint16]int
	starts       int
	stops        int
	commands     []byte
	pieces       []Piece
	statusWrites []byte
	erases       int
	rebooted     bool
	closed       bool
}

// New returns a simulated EC with size bytes of erased, unprotected flash.
func New(size int) *EC {
	ec := &EC{
		flash: bytes.Repeat([]byte{ErasedByte}, size),
		id:    [3]byte{0xC2, 0x20, 0x10}, // MXIC MX25L512
		reads: make(map[uint16]int),
	}
	ec.regs[kb3310.RegPieceStatus] = kb3310.PieceStatusDone
	ec.regs[kb3310.RegLPCCFG] = kb3310.LPCCFGEnable
	return ec
}

func (ec *EC) String() string { return "ecsim" }

// Close marks the port handle released. Port access keeps working.
func (ec *EC) Close() error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.closed = true
	return nil
}

// Closed reports whether Close was called.
func (ec *EC) Closed() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.closed
}

// Inb implements port reads.
func (ec *EC) Inb(port uint16) byte {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	switch port {
	case kb3310.PortIndexHigh:
		return byte(ec.index >> 8)
	case kb3310.PortIndexLow:
		return byte(ec.index)
	case kb3310.PortData:
		return ec.readReg(ec.index)
	case kb3310.PortStatus:
		ec.reads[port]++
		if ec.CmdStuck {
			return kb3310.StatusIBF
		}
		if ec.cmdBusy > 0 {
			ec.cmdBusy--
			return kb3310.StatusIBF
		}
		return 0
	}
	return 0xFF
}

// Outb implements port writes.
func (ec *EC) Outb(port uint16, v byte) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	switch port {
	case kb3310.PortIndexHigh:
		ec.index = ec.index&0x00FF | uint16(v)<<8
	case kb3310.PortIndexLow:
		ec.index = ec.index&0xFF00 | uint16(v)
	case kb3310.PortData:
		ec.writeReg(ec.index, v)
	case kb3310.PortCmd:
		ec.ecCommand(v)
	}
}

func (ec *EC) readReg(addr uint16) byte {
	ec.reads[addr]++

	switch addr {
	case kb3310.RegXBISPICFG:
		v := ec.regs[addr] &^ kb3310.SPICfgBusy
		if ec.stuck {
			return v | kb3310.SPICfgBusy
		}
		if ec.spiBusy > 0 {
			ec.spiBusy--
			return v | kb3310.SPICfgBusy
		}
		return v
	case kb3310.RegPowerMode:
		if ec.modePending != 0 && !ec.ModeStuck {
			if ec.modeWait > 0 {
				ec.modeWait--
			} else {
				ec.regs[addr] = ec.modePending
				ec.modePending = 0
			}
		}
	case kb3310.RegPieceStatus:
		if ec.PieceStuck {
			return 0
		}
		if ec.PieceErrors > 0 && ec.PieceErrorSkip > 0 {
			ec.PieceErrorSkip--
		} else if ec.PieceErrors > 0 {
			ec.PieceErrors--
			return kb3310.PieceStatusDone | kb3310.PieceStatusError
		}
	}
	return ec.regs[addr]
}

func (ec *EC) writeReg(addr uint16, v byte) {
	old := ec.regs[addr]

	switch addr {
	case kb3310.RegXBISPICFG:
		v &^= kb3310.SPICfgBusy
		if old&kb3310.SPICfgEnSPICmd == 0 && v&kb3310.SPICfgEnSPICmd != 0 {
			ec.starts++
		}
		if old&kb3310.SPICfgEnSPICmd != 0 && v&kb3310.SPICfgEnSPICmd == 0 {
			ec.stops++
		}
	case kb3310.RegPXCFG:
		if old&kb3310.PXCFGMCUReset != 0 && v&kb3310.PXCFGMCUReset == 0 {
			ec.regs[kb3310.RegPowerMode] = kb3310.FlagNormalMode
		}
	}
	ec.regs[addr] = v

	if addr == kb3310.RegXBISPICMD {
		ec.spiCommand(v)
	}
}

func (ec *EC) spiAddr() uint32 {
	a := uint32(ec.regs[kb3310.RegXBISPIA2])<<16 |
		uint32(ec.regs[kb3310.RegXBISPIA1])<<8 |
		uint32(ec.regs[kb3310.RegXBISPIA0])
	return a % uint32(len(ec.flash))
}

func (ec *EC) protected() bool { return ec.status&0x1C != 0 }

const wel = 0x02

func (ec *EC) spiCommand(cmd byte) {
	ec.spiCmds++
	if ec.StuckAfter > 0 && ec.spiCmds >= ec.StuckAfter {
		ec.stuck = true
		return
	}
	if ec.regs[kb3310.RegXBISPICFG]&kb3310.SPICfgEnSPICmd == 0 {
		return
	}
	ec.spiBusy = ec.BusyPolls
	if ec.SlowAt > 0 && ec.spiCmds == ec.SlowAt {
		ec.spiBusy = ec.SlowPolls
	}

	switch cmd {
	case kb3310.SPICmdReadStatus:
		st := ec.status
		if ec.WIPReads > 0 {
			ec.WIPReads--
			st |= 0x01
		}
		ec.regs[kb3310.RegXBISPIDAT] = st
	case kb3310.SPICmdWriteEnable:
		ec.status |= wel
	case kb3310.SPICmdWriteDisable:
		ec.status &^= wel
	case kb3310.SPICmdWriteStatus:
		if ec.status&wel != 0 {
			ec.status = ec.regs[kb3310.RegXBISPIDAT]&0x9C | ec.status&0x01
			ec.statusWrites = append(ec.statusWrites, ec.status)
		}
		ec.status &^= wel
	case kb3310.SPICmdByteProgram:
		addr := ec.spiAddr()
		if ec.DropWrites[addr] > 0 {
			ec.DropWrites[addr]--
		} else if ec.status&wel != 0 && !ec.protected() {
			ec.flash[addr] &= ec.regs[kb3310.RegXBISPIDAT]
		}
		ec.status &^= wel
	case kb3310.SPICmdReadByte, kb3310.SPICmdHighSpeedRead:
		ec.regs[kb3310.RegXBISPIDAT] = ec.flash[ec.spiAddr()]
	case kb3310.SPICmdBlkErase:
		if ec.status&wel != 0 && !ec.protected() {
			start := ec.spiAddr() &^ (kb3310.BlockSize - 1)
			end := min(int(start)+kb3310.BlockSize, len(ec.flash))
			for i := int(start); i < end; i++ {
				ec.flash[i] = ErasedByte
			}
			ec.erases++
		}
		ec.status &^= wel
	case kb3310.SPICmdChipErase:
		if ec.status&wel != 0 && !ec.protected() {
			for i := range ec.flash {
				ec.flash[i] = ErasedByte
			}
			ec.erases++
		}
		ec.status &^= wel
	case kb3310.SPICmdReadID:
		ec.idPos = 0
	case 0x00:
		ec.regs[kb3310.RegXBISPIDAT] = ec.id[ec.idPos%len(ec.id)]
		ec.idPos++
	}
}

func (ec *EC) ecCommand(cmd byte) {
	ec.commands = append(ec.commands, cmd)
	ec.cmdBusy = ec.CmdPolls

	switch cmd {
	case kb3310.CmdInitResetMode:
		ec.modePending = kb3310.FlagResetMode
		ec.modeWait = ec.ModePolls
	case kb3310.CmdInitIdleMode:
		ec.modePending = kb3310.FlagIdleMode
		ec.modeWait = ec.ModePolls
	case kb3310.CmdExitIdleMode:
		ec.regs[kb3310.RegPowerMode] = kb3310.FlagNormalMode
	case kb3310.CmdRebootSystem:
		ec.rebooted = true
	case kb3310.CmdProgramPiece:
		ec.programPiece()
	}
}

func (ec *EC) programPiece() {
	base := kb3310.RegPieceStart
	p := Piece{
		Marker: ec.regs[base],
		Addr: uint32(ec.regs[base+1]) |
			uint32(ec.regs[base+2])<<8 |
			uint32(ec.regs[base+3])<<16,
	}
	copy(p.Data[:], ec.regs[base+4:base+4+kb3310.PieceSize])
	ec.pieces = append(ec.pieces, p)

	for i, b := range p.Data {
		ec.flash[(p.Addr+uint32(i))%uint32(len(ec.flash))] &= b
	}
}

// ResetCounters clears observation counters and the SPI opcode count used by
// StuckAfter. Flash content and registers are kept.
func (ec *EC) ResetCounters() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.reads = make(map[uint16]int)
	ec.starts, ec.stops = 0, 0
	ec.spiCmds = 0
	ec.stuck = false
	ec.commands = nil
	ec.pieces = nil
	ec.statusWrites = nil
	ec.erases = 0
}

// Reads returns how often a register (or the status port) was read.
func (ec *EC) Reads(addr uint16) int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.reads[addr]
}

// Sessions returns the number of SPI command mode enables and disables.
func (ec *EC) Sessions() (starts, stops int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.starts, ec.stops
}

// SPICommands returns the number of SPI opcodes written.
func (ec *EC) SPICommands() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.spiCmds
}

// Commands returns the EC commands received.
func (ec *EC) Commands() []byte {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return bytes.Clone(ec.commands)
}

// Pieces returns the pieces programmed by the EC firmware.
func (ec *EC) Pieces() []Piece {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]Piece(nil), ec.pieces...)
}

// StatusWrites returns the flash status values applied by WRITE_STATUS.
func (ec *EC) StatusWrites() []byte {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return bytes.Clone(ec.statusWrites)
}

func (ec *EC) Erases() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.erases
}

func (ec *EC) Rebooted() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.rebooted
}

// FlashStatus returns the flash status register.
func (ec *EC) FlashStatus() byte {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.status
}

// SetFlashStatus sets the flash status register, e.g. to start protected.
func (ec *EC) SetFlashStatus(v byte) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.status = v
}

// SetID sets the JEDEC ID returned by the flash.
func (ec *EC) SetID(id [3]byte) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.id = id
}

// Flash returns a copy of the flash content.
func (ec *EC) Flash() []byte {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return bytes.Clone(ec.flash)
}

// Load copies data into flash at addr, bypassing the protocol.
func (ec *EC) Load(addr int, data []byte) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	copy(ec.flash[addr:], data)
}

// Reg returns a register value without side effects.
func (ec *EC) Reg(addr uint16) byte {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.regs[addr]
}

// SetReg sets a register value without side effects.
func (ec *EC) SetReg(addr uint16, v byte) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.regs[addr] = v
}
