package ecflash

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// ROMProgrammer replaces the EC firmware by driving the SPI flash directly
// while the EC is held in reset mode.
type ROMProgrammer struct {
	cfg   *Config
	ctl   *Controller
	flash *Flash
}

// Program performs the complete firmware update sequence:
//  1. Enter reset mode
//  2. Erase the block covering the request
//  3. Program every byte, verify it, retry once on mismatch
//  4. Restore block protection (when protection aware)
//  5. Disable writes
//  6. Wait for the flash to commit
//  7. Exit reset mode
//  8. Reboot the system
//
// Any failure stops the sequence and is returned as is. There is no rollback:
// a failed run leaves the EC in reset mode with partially programmed flash,
// and the machine may not boot until the ROM is programmed again.
func (p *ROMProgrammer) Program(req *Request) error {
	if req.Region != RegionROM {
		return &SequenceError{Op: "program rom", Reason: req.Region.String() + " request"}
	}
	if err := req.validate(); err != nil {
		return err
	}

	startTime := time.Now()
	addr := req.Addr()
	total := int(req.Size)

	if err := p.ctl.EnterResetMode(); err != nil {
		return fmt.Errorf("program rom: %w", err)
	}
	glog.V(1).Infof("rom: updating 0x%X bytes at 0x%06X", req.Size, addr)

	p.cfg.report(Progress{Phase: PhaseErase, Total: total})
	if err := p.eraseBlock(addr); err != nil {
		return fmt.Errorf("program rom: %w", err)
	}

	for i := range req.Size {
		if err := p.programByte(addr+i, req.Buf[i]); err != nil {
			glog.Errorf("rom: stopped at 0x%06X, flash content is inconsistent", addr+i)
			return fmt.Errorf("program rom: %w", err)
		}
		if done := int(i + 1); done%256 == 0 || done == total {
			p.cfg.report(Progress{Phase: PhaseProgram, Done: done, Total: total})
		}
	}

	p.cfg.report(Progress{Phase: PhaseProtect, Done: total, Total: total})
	if err := p.flash.finish(p.cfg.ProtectionAware); err != nil {
		return fmt.Errorf("program rom: %w", err)
	}

	p.cfg.report(Progress{Phase: PhaseCommit, Done: total, Total: total})
	for _, d := range p.cfg.CommitDelays {
		p.cfg.Delayer.Delay(d)
	}
	if err := p.ctl.ExitResetMode(); err != nil {
		return fmt.Errorf("program rom: %w", err)
	}

	p.cfg.report(Progress{Phase: PhaseReboot, Done: total, Total: total})
	glog.Infof("rom: programmed 0x%X bytes in %v, rebooting", req.Size, time.Since(startTime))
	if err := p.ctl.RebootSystem(); err != nil {
		return fmt.Errorf("program rom: %w", err)
	}
	return nil
}

func (p *ROMProgrammer) eraseBlock(addr uint32) error {
	p.flash.mu.Lock()
	defer p.flash.mu.Unlock()
	return p.flash.erase(EraseBlock, addr, true)
}

// programByte writes v and reads it back, trying the write once more if the
// read back value differs.
func (p *ROMProgrammer) programByte(addr uint32, v byte) error {
	var got byte
	for attempt := range 2 {
		if err := p.flash.WriteByte(addr, v); err != nil {
			return err
		}
		var err error
		if got, err = p.flash.ReadByte(addr); err != nil {
			return err
		}
		if got == v {
			return nil
		}
		if attempt == 0 {
			glog.V(1).Infof("rom: 0x%06X read 0x%02X, want 0x%02X, retrying", addr, got, v)
		}
	}
	return &VerificationError{Addr: addr, Want: v, Got: got}
}
