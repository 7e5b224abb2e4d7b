// Package clock provides the monotonic time source the pipeline
// components use for TTL and expiry comparisons. Wall clock is only
// used for emitted signal payloads (see pkg/signals), never for
// internal state transitions, per the monotonic-clock design note.
package clock

import (
	"sync"
	"time"
)

// Clock is the monotonic time source injected into every pipeline
// component. NowMs returns milliseconds elapsed since the clock was
// created; it is monotonically non-decreasing and otherwise
// meaningless — callers must not treat it as wall-clock time.
type Clock interface {
	NowMs() int64
}

// System is the production Clock, backed by time.Now(). Go retains a
// monotonic reading inside time.Time values obtained from time.Now(),
// so subtracting the start time strips any wall-clock adjustments.
type System struct {
	start time.Time
}

// NewSystem creates a System clock with its epoch set to the current
// instant.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// NowMs implements Clock.
func (c *System) NowMs() int64 {
	return int64(time.Since(c.start) / time.Millisecond)
}

// WallNow returns the current wall-clock time, for use in emitted
// signal payloads only.
func (c *System) WallNow() time.Time {
	return time.Now()
}

// Fake is a manually-advanced Clock for deterministic tests.
type Fake struct {
	mu    sync.Mutex
	nowMs int64
}

// NewFake creates a Fake clock starting at the given millisecond
// value (0 is a reasonable default).
func NewFake(startMs int64) *Fake {
	return &Fake{nowMs: startMs}
}

// NowMs implements Clock.
func (f *Fake) NowMs() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nowMs
}

// Advance moves the fake clock forward by the given number of
// milliseconds. Negative deltas panic — a monotonic clock never runs
// backwards.
func (f *Fake) Advance(deltaMs int64) {
	if deltaMs < 0 {
		panic("clock: Advance called with negative delta")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowMs += deltaMs
}

// Set pins the fake clock to an absolute millisecond value. Used in
// tests that want to assert against round numbers rather than deltas.
func (f *Fake) Set(ms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowMs = ms
}
