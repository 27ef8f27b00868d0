package ecflash

import (
	"time"

	"github.com/gentam/ecflash/internal/kb3310"
)

// Config holds settings resolved once when a Device is built.
type Config struct {
	// IdentifyChip reads the flash JEDEC ID through idle mode and picks the
	// read opcode for the detected chip family.
	IdentifyChip bool

	// ProtectionAware clears the flash block-protect bits around erase and
	// restores them after programming.
	ProtectionAware bool

	// FlashTimeout is the poll budget for SPI busy waits. Erase uses
	// FlashTimeout * 256.
	FlashTimeout int

	// CommandTimeout is the poll budget for EC command and mode handshakes.
	CommandTimeout int

	// RegDelay is waited around EC commands and between status polls.
	RegDelay time.Duration

	// SettleReads is the number of dummy port reads around SPI command mode
	// changes.
	SettleReads int

	// CommitDelays are waited after programming the ROM before the EC leaves
	// reset mode.
	CommitDelays []time.Duration

	// MaxPieceRestarts bounds how often the piece sequence restarts from the
	// first piece on EC program errors. Zero means no restarts.
	MaxPieceRestarts int

	Delayer  Delayer
	Progress ProgressFunc
}

func defaultConfig() Config {
	return Config{
		ProtectionAware:  true,
		FlashTimeout:     kb3310.FlashTimeout,
		CommandTimeout:   kb3310.CmdTimeout,
		RegDelay:         kb3310.RegDelayMicros * time.Microsecond,
		SettleReads:      kb3310.SPISettleReads,
		CommitDelays:     []time.Duration{2 * time.Second, time.Second},
		MaxPieceRestarts: 16,
		Delayer:          HostDelay{},
	}
}

// Option configures a Device.
type Option func(*Config)

// WithIdentifyChip enables JEDEC ID detection at Open.
func WithIdentifyChip(identify bool) Option {
	return func(c *Config) {
		c.IdentifyChip = identify
	}
}

// WithProtectionAware toggles the status register unprotect/protect sequence.
// Default is true.
func WithProtectionAware(aware bool) Option {
	return func(c *Config) {
		c.ProtectionAware = aware
	}
}

// WithFlashTimeout sets the SPI busy poll budget.
func WithFlashTimeout(polls int) Option {
	return func(c *Config) {
		if polls > 0 {
			c.FlashTimeout = polls
		}
	}
}

// WithCommandTimeout sets the EC command poll budget.
func WithCommandTimeout(polls int) Option {
	return func(c *Config) {
		if polls > 0 {
			c.CommandTimeout = polls
		}
	}
}

func WithRegDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.RegDelay = d
		}
	}
}

func WithSettleReads(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.SettleReads = n
		}
	}
}

func WithCommitDelays(d ...time.Duration) Option {
	return func(c *Config) {
		c.CommitDelays = d
	}
}

func WithMaxPieceRestarts(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxPieceRestarts = n
		}
	}
}

// WithDelayer replaces the host delay, typically with a recorder in tests.
func WithDelayer(d Delayer) Option {
	return func(c *Config) {
		if d != nil {
			c.Delayer = d
		}
	}
}

// WithProgress sets a callback for programming progress.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}

// Progress is reported while a region is being programmed.
type Progress struct {
	Phase Phase
	Done  int // bytes
	Total int // bytes
}

type ProgressFunc func(Progress)

type Phase string

const (
	PhaseErase     Phase = "erase"
	PhaseProgram   Phase = "program"
	PhaseProtect   Phase = "protect"
	PhaseCommit    Phase = "commit"
	PhaseReboot    Phase = "reboot"
	PhasePieces    Phase = "pieces"
	PhaseCompleted Phase = "completed"
)

func (c *Config) report(p Progress) {
	if c.Progress != nil {
		c.Progress(p)
	}
}
