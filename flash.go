package ecflash

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/gentam/ecflash/internal/kb3310"
)

// Flash is the SPI flash chip behind the EC's XBI interface. All transactions
// go through RegXBISPICMD and are bracketed by an SPI command mode session.
type Flash struct {
	bus *HardwareBus
	cfg *Config
	ctl *Controller

	mu     sync.Mutex
	open   bool // SPI command mode session active
	starts int
	stops  int

	id         [3]byte // JEDEC ID of the flash chip
	identified bool
	chip       *chipParams
}

func newFlash(bus *HardwareBus, cfg *Config, ctl *Controller) *Flash {
	return &Flash{bus: bus, cfg: cfg, ctl: ctl}
}

// EraseKind selects the erase opcode.
type EraseKind int

const (
	EraseBlock EraseKind = iota // 64KB block containing the address
	EraseChip
)

func (k EraseKind) opcode() byte {
	if k == EraseChip {
		return kb3310.SPICmdChipErase
	}
	return kb3310.SPICmdBlkErase
}

func (k EraseKind) String() string {
	if k == EraseChip {
		return "chip"
	}
	return "block"
}

// start enables SPI command mode on the XBI.
func (f *Flash) start() {
	f.bus.settle(f.cfg.SettleReads)
	f.bus.updateReg(kb3310.RegXBISPICFG, kb3310.SPICfgEnSPICmd|kb3310.SPICfgAutoCheck, 0)
	f.bus.settle(f.cfg.SettleReads)
	f.open = true
	f.starts++
}

// stop leaves SPI command mode.
func (f *Flash) stop() {
	f.bus.settle(f.cfg.SettleReads)
	f.bus.updateReg(kb3310.RegXBISPICFG, 0, kb3310.SPICfgEnSPICmd|kb3310.SPICfgAutoCheck)
	f.bus.settle(f.cfg.SettleReads)
	f.open = false
	f.stops++
}

// session runs fn inside SPI command mode. The session is closed on every
// return path. Errors from fn are reported as *FlashError.
func (f *Flash) session(op string, addr uint32, fn func() error) error {
	if f.open {
		return &SequenceError{Op: "flash " + op, Reason: "SPI session already open"}
	}
	f.start()
	defer f.stop()

	if err := fn(); err != nil {
		glog.Errorf("flash: %s at 0x%06X: %v", op, addr, err)
		return &FlashError{Op: op, Addr: addr, Err: err}
	}
	return nil
}

// Sessions returns how many SPI sessions were started and stopped.
func (f *Flash) Sessions() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// waitIdle polls the XBI busy bit for at most budget reads.
func (f *Flash) waitIdle(op string, budget int) error {
	ok := poll(budget, f.cfg.Delayer, 0, func() bool {
		return f.bus.ReadReg(kb3310.RegXBISPICFG)&kb3310.SPICfgBusy == 0
	})
	if !ok {
		return &TimeoutError{Op: op, Budget: budget}
	}
	return nil
}

// command issues an SPI opcode and waits for the XBI to finish it.
func (f *Flash) command(op string, cmd byte, budget int) error {
	f.bus.WriteReg(kb3310.RegXBISPICMD, cmd)
	return f.waitIdle(op, budget)
}

// busy reads the flash status register up to 10 times and reports whether
// the write-in-progress bit stayed set. A status read can race with the
// completion of the previous operation, hence the retries.
func (f *Flash) busy() (bool, error) {
	for range 10 {
		if err := f.command("read status", kb3310.SPICmdReadStatus, f.cfg.FlashTimeout); err != nil {
			return false, err
		}
		if !StatusRegister(f.bus.ReadReg(kb3310.RegXBISPIDAT)).Busy() {
			return false, nil
		}
	}
	return true, nil
}

// setAddr loads the 24-bit flash address.
func (f *Flash) setAddr(addr uint32) {
	f.bus.WriteReg(kb3310.RegXBISPIA2, byte(addr>>16))
	f.bus.WriteReg(kb3310.RegXBISPIA1, byte(addr>>8))
	f.bus.WriteReg(kb3310.RegXBISPIA0, byte(addr))
}

// prepare checks that the chip is idle and sets the write enable latch.
func (f *Flash) prepare() error {
	busy, err := f.busy()
	if err != nil {
		return err
	}
	if busy {
		return ErrFlashBusy
	}
	return f.command("write enable", kb3310.SPICmdWriteEnable, f.cfg.FlashTimeout)
}

// ReadByte reads one byte from the flash.
func (f *Flash) ReadByte(addr uint32) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var v byte
	err := f.session("read", addr, func() error {
		if err := f.prepare(); err != nil {
			return err
		}
		f.setAddr(addr)
		if err := f.command("read", f.readCmd(), f.cfg.FlashTimeout); err != nil {
			return err
		}
		v = f.bus.ReadReg(kb3310.RegXBISPIDAT)
		return nil
	})
	return v, err
}

// WriteByte programs one byte. The result is not checked here; callers
// verify by reading the byte back.
func (f *Flash) WriteByte(addr uint32, v byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.session("write", addr, func() error {
		if err := f.prepare(); err != nil {
			return err
		}
		f.setAddr(addr)
		f.bus.WriteReg(kb3310.RegXBISPIDAT, v)
		return f.command("byte program", kb3310.SPICmdByteProgram, f.cfg.FlashTimeout)
	})
}

// ReadStatus reads the flash status register.
func (f *Flash) ReadStatus() (StatusRegister, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sr StatusRegister
	err := f.session("read status", 0, func() error {
		var err error
		sr, err = f.readStatus()
		return err
	})
	return sr, err
}

func (f *Flash) readStatus() (StatusRegister, error) {
	if err := f.command("read status", kb3310.SPICmdReadStatus, f.cfg.FlashTimeout); err != nil {
		return 0, err
	}
	return StatusRegister(f.bus.ReadReg(kb3310.RegXBISPIDAT)), nil
}

// Erase erases the block containing addr, or the whole chip. With protection
// awareness the block protect and SRWD bits are cleared for the erase and
// restored before the session ends.
func (f *Flash) Erase(kind EraseKind, addr uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.erase(kind, addr, false)
}

// erase leaves the chip unprotected after a successful erase when
// keepUnprotected is set; the caller then owns restoring protection. On
// failure the saved protection is always written back.
func (f *Flash) erase(kind EraseKind, addr uint32, keepUnprotected bool) error {
	return f.session(kind.String()+" erase", addr, func() (err error) {
		defer func() {
			if err != nil {
				// best effort, the first error is reported
				_ = f.command("write disable", kb3310.SPICmdWriteDisable, f.cfg.FlashTimeout)
			}
		}()
		if err := f.prepare(); err != nil {
			return err
		}

		if f.cfg.ProtectionAware {
			saved, serr := f.readStatus()
			if serr != nil {
				return serr
			}
			// registered before the status register is touched
			defer func() {
				if keepUnprotected && err == nil {
					return
				}
				rerr := f.setProtection(func(sr StatusRegister) StatusRegister {
					return sr&^restoreMask | saved&restoreMask
				})
				if rerr != nil && err == nil {
					err = rerr
				}
			}()
			if err := f.unprotect(saved); err != nil {
				return err
			}
		}

		if kind == EraseBlock {
			f.setAddr(addr)
		}
		glog.V(1).Infof("flash: %s erase at 0x%06X", kind, addr)
		return f.command("erase", kind.opcode(), f.cfg.FlashTimeout*kb3310.EraseScale)
	})
}

// unprotect clears the protection bits of sr and leaves the write enable
// latch set.
func (f *Flash) unprotect(sr StatusRegister) error {
	f.bus.WriteReg(kb3310.RegXBISPIDAT, byte(sr&0x02))
	if err := f.waitIdle("unprotect data", f.cfg.FlashTimeout); err != nil {
		return err
	}
	if err := f.command("write status", kb3310.SPICmdWriteStatus, f.cfg.FlashTimeout); err != nil {
		return err
	}
	if err := f.command("write enable", kb3310.SPICmdWriteEnable, f.cfg.FlashTimeout); err != nil {
		return err
	}
	glog.V(1).Infof("flash: unprotected, status was %s", sr)
	return nil
}

// setProtection rewrites the status register with update applied to its
// current value.
func (f *Flash) setProtection(update func(StatusRegister) StatusRegister) error {
	if err := f.command("write enable", kb3310.SPICmdWriteEnable, f.cfg.FlashTimeout); err != nil {
		return err
	}
	sr, err := f.readStatus()
	if err != nil {
		return err
	}
	next := update(sr)
	f.bus.WriteReg(kb3310.RegXBISPIDAT, byte(next))
	if err := f.waitIdle("protect data", f.cfg.FlashTimeout); err != nil {
		return err
	}
	if err := f.command("write status", kb3310.SPICmdWriteStatus, f.cfg.FlashTimeout); err != nil {
		return err
	}
	glog.V(1).Infof("flash: status %s -> %s", sr, next)
	return nil
}

// finish re-protects the chip if requested and clears the write enable latch.
func (f *Flash) finish(protect bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.session("finish", 0, func() error {
		if protect {
			err := f.setProtection(func(sr StatusRegister) StatusRegister {
				return sr | protectMask
			})
			if err != nil {
				return err
			}
		}
		return f.command("write disable", kb3310.SPICmdWriteDisable, f.cfg.FlashTimeout)
	})
}

// ReadID reads the JEDEC ID through idle mode and configures the read opcode
// for known chips. It returns a non-empty name for known IDs.
func (f *Flash) ReadID() (id [3]byte, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.open {
		return id, "", &SequenceError{Op: "read id", Reason: "SPI session already open"}
	}
	if err = f.ctl.EnterIdleMode(); err != nil {
		return id, "", err
	}
	defer func() {
		if xerr := f.ctl.ExitIdleMode(); xerr != nil && err == nil {
			err = xerr
		}
	}()

	const idMode = kb3310.SPICfgEnSPICmd | kb3310.SPICfgLowSPICS
	f.cfg.Delayer.Delay(f.cfg.RegDelay)
	f.bus.updateReg(kb3310.RegXBISPICFG, idMode, 0)
	f.cfg.Delayer.Delay(f.cfg.RegDelay)
	defer func() {
		f.cfg.Delayer.Delay(f.cfg.RegDelay)
		f.bus.updateReg(kb3310.RegXBISPICFG, 0, idMode)
		f.cfg.Delayer.Delay(f.cfg.RegDelay)
	}()

	if err = f.command("read id", kb3310.SPICmdReadID, f.cfg.FlashTimeout); err != nil {
		return id, "", &FlashError{Op: "read id", Err: err}
	}
	for i := range id {
		if err = f.command("read id", 0x00, f.cfg.FlashTimeout); err != nil {
			return id, "", &FlashError{Op: "read id", Err: err}
		}
		id[i] = f.bus.ReadReg(kb3310.RegXBISPIDAT)
	}

	f.id = id
	f.identified = true
	f.chip = nil
	if params, ok := knownChips[id[0]]; ok {
		f.chip = &params
		name = params.name
	}
	glog.V(1).Infof("flash: ROM ID %X %s", id, name)
	return id, name, nil
}

func (f *Flash) String() string {
	if !f.identified {
		return "flash"
	}
	return fmt.Sprintf("flash %X", f.id)
}
