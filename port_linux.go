//go:build linux

package ecflash

import (
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

const devPortPath = "/dev/port"

// DevPort accesses I/O ports through /dev/port. It needs CAP_SYS_RAWIO.
type DevPort struct {
	fd int

	mu  sync.Mutex
	err error // first I/O error
}

// OpenDevPort opens /dev/port for reading and writing.
func OpenDevPort() (*DevPort, error) {
	fd, err := unix.Open(devPortPath, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &ResourceError{Resource: devPortPath, Err: err}
	}
	return &DevPort{fd: fd}, nil
}

func (p *DevPort) Inb(port uint16) byte {
	var buf [1]byte
	if _, err := unix.Pread(p.fd, buf[:], int64(port)); err != nil {
		p.fail("inb", port, err)
	}
	return buf[0]
}

func (p *DevPort) Outb(port uint16, v byte) {
	buf := [1]byte{v}
	if _, err := unix.Pwrite(p.fd, buf[:], int64(port)); err != nil {
		p.fail("outb", port, err)
	}
}

func (p *DevPort) fail(op string, port uint16, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
		glog.Errorf("%s %s 0x%04X: %v", devPortPath, op, port, err)
	}
}

// Err returns the first I/O error seen on the port, if any.
func (p *DevPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *DevPort) String() string { return devPortPath }

func (p *DevPort) Close() error {
	return unix.Close(p.fd)
}
