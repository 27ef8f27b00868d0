package ecflash

import (
	"time"

	"periph.io/x/host/v3/cpu"
)

// Delayer waits for a fixed amount of time between register accesses.
type Delayer interface {
	Delay(d time.Duration)
}

// HostDelay busy-spins for short waits, which keeps microsecond register
// delays accurate, and sleeps for long settle periods.
type HostDelay struct{}

// spinLimit is the longest wait HostDelay spins for.
const spinLimit = time.Millisecond

func (HostDelay) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	if d <= spinLimit {
		cpu.Nanospin(d)
		return
	}
	time.Sleep(d)
}

// DelayFunc adapts a function to Delayer.
type DelayFunc func(time.Duration)

func (f DelayFunc) Delay(d time.Duration) { f(d) }

// poll calls done up to budget times, waiting delay after each false result.
// It reports whether done returned true.
func poll(budget int, d Delayer, delay time.Duration, done func() bool) bool {
	for range budget {
		if done() {
			return true
		}
		if delay > 0 {
			d.Delay(delay)
		}
	}
	return false
}
