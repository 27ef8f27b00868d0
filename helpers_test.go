package ecflash

import (
	"sync"
	"testing"
	"time"

	"github.com/gentam/ecflash/internal/ecsim"
)

// delayRecorder records requested delays without waiting.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) Delay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

func (r *delayRecorder) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, d := range r.delays {
		sum += d
	}
	return sum
}

func (r *delayRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.delays {
		if x == d {
			n++
		}
	}
	return n
}

const simFlashSize = 1 << 20

// newSimDevice builds a Device on a fresh simulated EC. Counters of the
// simulator are cleared after construction.
func newSimDevice(t *testing.T, size int, opts ...Option) (*Device, *ecsim.EC, *delayRecorder) {
	t.Helper()
	ec := ecsim.New(size)
	rec := &delayRecorder{}
	opts = append([]Option{WithDelayer(rec)}, opts...)
	d, err := New(ec, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ec.ResetCounters()
	return d, ec, rec
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
