// Package clock implements the clock port on the system wall clock,
// plus a manually advanced fake for tests.
package clock

import (
	"sync"
	"time"

	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// Ensure both implementations satisfy the interface.
var (
	_ driven.Clock = (*System)(nil)
	_ driven.Clock = (*Fake)(nil)
)

// System reads the real clock.
type System struct{}

// NewSystem creates a system clock.
func NewSystem() *System {
	return &System{}
}

// Now returns the current time with a monotonic reading.
func (*System) Now() time.Time {
	return time.Now()
}

// Since returns the elapsed time since t.
func (*System) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Fake is a clock that only moves when told to. The zero value is not
// usable; construct with NewFake.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the frozen time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Since returns the difference against the frozen time.
func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
