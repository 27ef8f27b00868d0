package ecflash

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/gentam/ecflash/internal/kb3310"
)

// Mode is the EC operating mode as tracked by the host.
type Mode int

const (
	ModeNormal Mode = iota
	ModeReset       // host owns the flash bus, EC core held in reset
	ModeIdle        // EC firmware parked, flash readable over XBI
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeReset:
		return "reset"
	case ModeIdle:
		return "idle"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Controller drives EC mode transitions through the command port. The
// transition methods are the only place the tracked mode changes.
type Controller struct {
	bus *HardwareBus
	cfg *Config

	mu   sync.Mutex
	mode Mode
}

func newController(bus *HardwareBus, cfg *Config) *Controller {
	return &Controller{bus: bus, cfg: cfg}
}

// Mode returns the mode the host last put the EC in.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// IssueCommand writes cmd to the EC command port and waits until the EC has
// consumed it.
func (c *Controller) IssueCommand(cmd byte) error {
	var err error
	c.bus.withPorts(func() {
		c.delay()
		c.bus.io.Outb(kb3310.PortCmd, cmd)
		c.delay()

		polls := 0
		ok := poll(c.cfg.CommandTimeout, c.cfg.Delayer, c.cfg.RegDelay, func() bool {
			polls++
			return c.bus.io.Inb(kb3310.PortStatus)&kb3310.StatusIBF == 0
		})
		if !ok {
			err = &TimeoutError{Op: fmt.Sprintf("ec command 0x%02X", cmd), Budget: c.cfg.CommandTimeout}
			return
		}
		glog.V(2).Infof("ec: command 0x%02X accepted after %d/%d polls", cmd, polls, c.cfg.CommandTimeout)
	})
	if err != nil {
		glog.Errorf("ec: %v", err)
	}
	return err
}

// EnterResetMode stops the EC firmware and hands the flash bus to the host.
// It is a no-op if the EC is already in reset mode, which lets a caller retry
// after a failed programming run.
func (c *Controller) EnterResetMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case ModeReset:
		glog.V(1).Info("ec: already in reset mode")
		return nil
	case ModeIdle:
		return &SequenceError{Op: "enter reset mode", Reason: "EC is in idle mode"}
	}

	if err := c.IssueCommand(kb3310.CmdInitResetMode); err != nil {
		return fmt.Errorf("enter reset mode: %w", err)
	}
	if err := c.waitPowerMode(kb3310.FlagResetMode); err != nil {
		return fmt.Errorf("enter reset mode: %w", err)
	}

	// hold the 8051 core in reset
	c.delay()
	c.bus.updateReg(kb3310.RegPXCFG, kb3310.PXCFGMCUReset, 0)
	c.delay()

	// take FWH/LPC flash access away from the EC
	c.delay()
	c.bus.updateReg(kb3310.RegLPCCFG, 0, kb3310.LPCCFGEnable)
	c.delay()

	c.mode = ModeReset
	glog.V(1).Info("ec: entered reset mode")
	return nil
}

// ExitResetMode restores the config bits changed by EnterResetMode. The EC
// accepts these immediately, so nothing is polled.
func (c *Controller) ExitResetMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeReset {
		return &SequenceError{Op: "exit reset mode", Reason: "EC is in " + c.mode.String() + " mode"}
	}

	c.delay()
	c.bus.updateReg(kb3310.RegLPCCFG, kb3310.LPCCFGEnable, 0)
	c.bus.updateReg(kb3310.RegPXCFG, 0, kb3310.PXCFGMCUReset)

	c.mode = ModeNormal
	glog.V(1).Info("ec: exited reset mode")
	return nil
}

// EnterIdleMode parks the EC firmware so the flash can be inspected.
func (c *Controller) EnterIdleMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeNormal {
		return &SequenceError{Op: "enter idle mode", Reason: "EC is in " + c.mode.String() + " mode"}
	}
	if err := c.IssueCommand(kb3310.CmdInitIdleMode); err != nil {
		return fmt.Errorf("enter idle mode: %w", err)
	}
	if err := c.waitPowerMode(kb3310.FlagIdleMode); err != nil {
		return fmt.Errorf("enter idle mode: %w", err)
	}

	c.mode = ModeIdle
	glog.V(1).Info("ec: entered idle mode")
	return nil
}

func (c *Controller) ExitIdleMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeIdle {
		return &SequenceError{Op: "exit idle mode", Reason: "EC is in " + c.mode.String() + " mode"}
	}
	if err := c.IssueCommand(kb3310.CmdExitIdleMode); err != nil {
		return fmt.Errorf("exit idle mode: %w", err)
	}

	c.mode = ModeNormal
	glog.V(1).Info("ec: exited idle mode")
	return nil
}

// RebootSystem asks the EC to power cycle the whole machine. It returns once
// the EC has accepted the command; the reboot itself is not observed.
func (c *Controller) RebootSystem() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.IssueCommand(kb3310.CmdRebootSystem); err != nil {
		return fmt.Errorf("reboot system: %w", err)
	}
	c.mode = ModeNormal
	glog.V(1).Info("ec: reboot requested")
	return nil
}

func (c *Controller) waitPowerMode(flag byte) error {
	var status byte
	ok := poll(c.cfg.CommandTimeout, c.cfg.Delayer, c.cfg.RegDelay, func() bool {
		status = c.bus.ReadReg(kb3310.RegPowerMode)
		return status&flag != 0
	})
	if !ok {
		return &TimeoutError{Op: fmt.Sprintf("power mode flag 0x%02X", flag), Budget: c.cfg.CommandTimeout}
	}
	glog.V(2).Infof("ec: power mode 0x%02X", status)
	c.delay()
	return nil
}

func (c *Controller) delay() {
	c.cfg.Delayer.Delay(c.cfg.RegDelay)
}
