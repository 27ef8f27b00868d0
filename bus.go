package ecflash

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3"

	"github.com/gentam/ecflash/internal/kb3310"
)

// PortIO is byte-wide access to the host's I/O port space.
type PortIO interface {
	Inb(port uint16) byte
	Outb(port uint16, v byte)
}

// HardwareBus is the only path to the EC. It serializes the index/data
// register sequence and the command/status port handshake with two separate
// locks.
type HardwareBus struct {
	io PortIO

	regMu  sync.Mutex // index high, index low, data
	portMu sync.Mutex // command, status
}

var _ conn.Resource = (*HardwareBus)(nil)

func NewHardwareBus(p PortIO) *HardwareBus {
	return &HardwareBus{io: p}
}

// ReadReg reads an EC register through index-io.
func (b *HardwareBus) ReadReg(addr uint16) byte {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	b.io.Outb(kb3310.PortIndexHigh, byte(addr>>8))
	b.io.Outb(kb3310.PortIndexLow, byte(addr))
	return b.io.Inb(kb3310.PortData)
}

// WriteReg writes an EC register through index-io. The data port is read
// back once to flush the write.
func (b *HardwareBus) WriteReg(addr uint16, v byte) {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	b.io.Outb(kb3310.PortIndexHigh, byte(addr>>8))
	b.io.Outb(kb3310.PortIndexLow, byte(addr))
	b.io.Outb(kb3310.PortData, v)
	b.io.Inb(kb3310.PortData)
}

// updateReg applies set and clear masks to a register with a read-modify-write.
func (b *HardwareBus) updateReg(addr uint16, set, clear byte) {
	v := b.ReadReg(addr)
	b.WriteReg(addr, v&^clear|set)
}

// withPorts runs fn holding the command/status port lock.
func (b *HardwareBus) withPorts(fn func()) {
	b.portMu.Lock()
	defer b.portMu.Unlock()
	fn()
}

// settle burns n reads of the index port; the EC needs this gap around SPI
// command mode changes.
func (b *HardwareBus) settle(n int) {
	for range n {
		b.io.Inb(kb3310.PortIndexHigh)
	}
}

func (b *HardwareBus) String() string {
	if s, ok := b.io.(fmt.Stringer); ok {
		return "kb3310@" + s.String()
	}
	return "kb3310"
}

// Halt releases the underlying port device.
func (b *HardwareBus) Halt() error {
	if c, ok := b.io.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
