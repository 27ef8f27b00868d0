package ecflash

import (
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"
	"periph.io/x/conn/v3"
	"periph.io/x/host/v3"

	"github.com/gentam/ecflash/internal/kb3310"
)

// Device is the KB3310 EC together with its SPI flash. Its methods are the
// validated command surface; the components it holds do not re-check bounds.
type Device struct {
	Bus        *HardwareBus
	Controller *Controller
	Flash      *Flash
	IE         *PieceProgrammer
	ROM        *ROMProgrammer

	cfg Config
}

var _ conn.Resource = (*Device)(nil)

var hostInitialized atomic.Bool

// Open initializes the host drivers and reaches the EC through /dev/port.
func Open(opts ...Option) (*Device, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	port, err := OpenDevPort()
	if err != nil {
		return nil, err
	}
	d, err := New(port, opts...)
	if err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

// New builds a Device on top of the given port space.
func New(p PortIO, opts ...Option) (*Device, error) {
	d := &Device{cfg: defaultConfig()}
	for _, opt := range opts {
		opt(&d.cfg)
	}

	d.Bus = NewHardwareBus(p)
	d.Controller = newController(d.Bus, &d.cfg)
	d.Flash = newFlash(d.Bus, &d.cfg, d.Controller)
	d.IE = &PieceProgrammer{bus: d.Bus, cfg: &d.cfg, ctl: d.Controller}
	d.ROM = &ROMProgrammer{cfg: &d.cfg, ctl: d.Controller, flash: d.Flash}

	if d.cfg.IdentifyChip {
		if _, _, err := d.Flash.ReadID(); err != nil {
			return nil, fmt.Errorf("identify flash: %w", err)
		}
	}
	return d, nil
}

// Config returns the resolved configuration.
func (d *Device) Config() Config { return d.cfg }

func checkRegAddr(op string, addr uint32) error {
	if addr < kb3310.MinRegAddr || addr > kb3310.MaxRegAddr {
		return &RangeError{Op: op, Addr: addr, Limit: kb3310.MaxRegAddr}
	}
	return nil
}

// ReadRegister reads an EC register in [0xF000, 0xFFFF].
func (d *Device) ReadRegister(addr uint32) (byte, error) {
	if err := checkRegAddr("read register", addr); err != nil {
		return 0, err
	}
	return d.Bus.ReadReg(uint16(addr)), nil
}

// WriteRegister writes an EC register in [0xF000, 0xFFFF].
func (d *Device) WriteRegister(addr uint32, v byte) error {
	if err := checkRegAddr("write register", addr); err != nil {
		return err
	}
	glog.V(1).Infof("ec: write register 0x%04X = 0x%02X", addr, v)
	d.Bus.WriteReg(uint16(addr), v)
	return nil
}

// ReadFlash reads one byte of flash. Addresses between the EC RAM window and
// the top of the register space are refused.
func (d *Device) ReadFlash(addr uint32) (byte, error) {
	if addr > kb3310.RAMAddr && addr < kb3310.MaxRegAddr {
		return 0, &RangeError{Op: "read flash", Addr: addr, Limit: kb3310.RAMAddr}
	}
	return d.Flash.ReadByte(addr)
}

// ReadFlashRange reads n consecutive bytes starting at addr.
func (d *Device) ReadFlashRange(addr uint32, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		b, err := d.ReadFlash(addr + uint32(i))
		if err != nil {
			return out[:i], err
		}
		out[i] = b
	}
	return out, nil
}

// ProgramIE writes payload at offset start of the IE region.
func (d *Device) ProgramIE(start uint32, payload []byte) error {
	req, err := NewIERequest(start, payload)
	if err != nil {
		return err
	}
	return d.IE.Program(req)
}

// ProgramROM replaces the EC firmware with payload and reboots the machine.
// See ROMProgrammer.Program for the failure behavior.
func (d *Device) ProgramROM(payload []byte) error {
	req, err := NewROMRequest(payload)
	if err != nil {
		return err
	}
	return d.ROM.Program(req)
}

// Identify reads the flash JEDEC ID through idle mode.
func (d *Device) Identify() (id [3]byte, name string, err error) {
	return d.Flash.ReadID()
}

func (d *Device) String() string {
	return d.Bus.String()
}

// Halt releases the port device.
func (d *Device) Halt() error {
	return d.Bus.Halt()
}
