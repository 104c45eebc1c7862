// Package clock provides Clock implementations and helpers for reading the
// clock as unix seconds, the unit subscription terms are expressed in.
package clock

import (
	"math/big"
	"sync"
	"time"

	"github.com/artpar/tacoscan/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Unix returns the clock reading as unix seconds.
func Unix(c ports.Clock) *big.Int {
	return big.NewInt(c.Now().Unix())
}

// Fake is a controllable clock for tests. The dashboard tick is driven by a
// real ticker; Fake only controls what "now" means when the tick fires.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewFakeUnix creates a fake clock set to sec unix seconds.
func NewFakeUnix(sec int64) *Fake {
	return NewFake(time.Unix(sec, 0).UTC())
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// SetUnix moves the fake clock to sec unix seconds.
func (f *Fake) SetUnix(sec int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = time.Unix(sec, 0).UTC()
}

// Advance moves the fake time by d. Negative values move it back.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)
