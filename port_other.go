//go:build !linux

package ecflash

import (
	"errors"
	"runtime"
)

// DevPort is only available on Linux.
type DevPort struct{}

func OpenDevPort() (*DevPort, error) {
	return nil, &ResourceError{Resource: "/dev/port", Err: errors.New("not supported on " + runtime.GOOS)}
}

func (p *DevPort) Inb(port uint16) byte { return 0xFF }
func (p *DevPort) Outb(port uint16, v byte) {}
func (p *DevPort) Err() error { return nil }
func (p *DevPort) String() string { return "/dev/port" }
func (p *DevPort) Close() error { return nil }
