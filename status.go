package ecflash

import (
	"fmt"
	"strings"
)

// StatusRegister is the status register of the SPI flash chip.
//
//	Bits| [MX25L512|Status Register] / [SST25LF020A|Status Register]
//	----+-----------------------------------------------------------
//	7   | SRWD / BPL: Status register write protect
//	6   | Reserved
//	5   | Reserved / AAI
//	4:2 | BP2-0: Block protect
//	1   | WEL: Write enable latch
//	0   | WIP / BUSY: Write in progress
type StatusRegister byte

const (
	protectMask StatusRegister = 0x1C // BP2-0
	restoreMask StatusRegister = 0x9C // BP2-0 and SRWD, saved around erase
)

func (sr StatusRegister) StatusRegisterProtect() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) BlockProtect2() bool         { return sr&(1<<4) != 0 }
func (sr StatusRegister) BlockProtect1() bool         { return sr&(1<<3) != 0 }
func (sr StatusRegister) BlockProtect0() bool         { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool          { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool                  { return sr&(1<<0) != 0 }

// Protection returns the block protect bits in place.
func (sr StatusRegister) Protection() StatusRegister { return sr & protectMask }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.StatusRegisterProtect() {
		s = append(s, "SRWD")
	}
	if sr.BlockProtect2() {
		s = append(s, "BP2")
	}
	if sr.BlockProtect1() {
		s = append(s, "BP1")
	}
	if sr.BlockProtect0() {
		s = append(s, "BP0")
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "WIP")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}

// PieceStatus is the EC's status for the piece currently being programmed.
type PieceStatus byte

func (ps PieceStatus) Done() bool  { return ps&0x01 != 0 }
func (ps PieceStatus) Error() bool { return ps&0x02 != 0 }
