// Package cascade implements the sliding-window cascade detector: a
// single-instance state machine that tracks a sustained high rate of
// anomalies and applies backpressure (shortened dedup windows, a
// settling countdown) until the rate subsides.
package cascade

import (
	"sync"

	"github.com/rodgon/aegis/pkg/clock"
)

// Unbounded is the sentinel MaxConcurrentProposals returns outside of
// a cascade, meaning no concurrency cap applies.
const Unbounded = -1

// Config holds the cascade.* tunables.
type Config struct {
	WindowMs               int64
	CascadeThreshold       int
	SettlingCycles         int
	MaxConcurrentProposals int
	ExitThresholdMs        int64
	CheckIntervalMs        int64
}

// DefaultConfig mirrors its defaults.
func DefaultConfig() Config {
	return Config{
		WindowMs:               10_000,
		CascadeThreshold:       5,
		SettlingCycles:         3,
		MaxConcurrentProposals: 3,
		ExitThresholdMs:        30_000,
		CheckIntervalMs:        15_000,
	}
}

// Event describes a transition the detector observed, suitable for
// forwarding to pkg/signals. Kind is either "cascade_detected" or
// "cascade_resolved".
type Event struct {
	Kind       string
	Rate       int
	Threshold  int
	DurationMs int64
}

// Detector is the cascade state machine. It is a single-owner actor:
// state mutation is linearized behind mu.
type Detector struct {
	mu    sync.Mutex
	clock clock.Clock
	cfg   Config

	anomalyTimes         []int64
	inCascade            bool
	cascadeStartedAt     int64
	lastAboveThresholdAt int64
	settlingCyclesRemain int
	cascadesDetected     int64
	totalAnomalies       int64
	lastCleanupTickAt    int64
}

// New creates a Detector using clk as its monotonic time source.
func New(clk clock.Clock, cfg Config) *Detector {
	if cfg.WindowMs <= 0 {
		cfg = DefaultConfig()
	}
	return &Detector{clock: clk, cfg: cfg}
}

// RecordAnomaly appends now to the sliding window, recomputes the
// rate, and applies the normal-to-cascade transition. It returns a
// non-nil Event only when the cascade is entered; a rate update while
// already in cascade returns nil. Leaving a cascade is detected by
// CleanupTick, not here.
func (d *Detector) RecordAnomaly() *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.NowMs()
	d.anomalyTimes = append(d.anomalyTimes, now)
	d.totalAnomalies++
	rate := d.pruneAndCountLocked(now)

	if !d.inCascade {
		if rate >= d.cfg.CascadeThreshold {
			d.inCascade = true
			d.cascadeStartedAt = now
			d.lastAboveThresholdAt = now
			d.settlingCyclesRemain = d.cfg.SettlingCycles
			d.cascadesDetected++
			return &Event{Kind: "cascade_detected", Rate: rate, Threshold: d.cfg.CascadeThreshold}
		}
		return nil
	}

	// Already in cascade.
	if rate >= d.cfg.CascadeThreshold {
		d.lastAboveThresholdAt = now
	}
	return nil
}

// CleanupTick runs the periodic exit check: if the rate has stayed
// below threshold for at least ExitThresholdMs since the cascade last
// spiked, the detector exits cascade and returns a cascade_resolved
// event. Call this on a timer at CheckIntervalMs.
func (d *Detector) CleanupTick() *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.NowMs()
	d.lastCleanupTickAt = now
	d.pruneAndCountLocked(now)

	if !d.inCascade {
		return nil
	}
	if now-d.lastAboveThresholdAt < d.cfg.ExitThresholdMs {
		return nil
	}

	duration := now - d.cascadeStartedAt
	d.inCascade = false
	d.settlingCyclesRemain = 0
	d.cascadeStartedAt = 0
	return &Event{Kind: "cascade_resolved", DurationMs: duration}
}

// pruneAndCountLocked drops timestamps outside the sliding window and
// returns the current rate. Caller must hold mu.
func (d *Detector) pruneAndCountLocked(now int64) int {
	cutoff := now - d.cfg.WindowMs
	idx := 0
	for idx < len(d.anomalyTimes) && d.anomalyTimes[idx] < cutoff {
		idx++
	}
	if idx > 0 {
		d.anomalyTimes = append(d.anomalyTimes[:0], d.anomalyTimes[idx:]...)
	}
	return len(d.anomalyTimes)
}

// PollingCycleCompleted decrements the settling countdown with a
// floor of zero. Called once per poller tick regardless of cascade
// state (decrementing an already-zero counter is a no-op).
func (d *Detector) PollingCycleCompleted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settlingCyclesRemain > 0 {
		d.settlingCyclesRemain--
	}
}

// ShouldSettle reports whether the queue should apply backpressure
// (reject claim_next with :settling).
func (d *Detector) ShouldSettle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inCascade && d.settlingCyclesRemain > 0
}

// MaxConcurrentProposals returns the configured cap during cascade, or
// Unbounded otherwise.
func (d *Detector) MaxConcurrentProposals() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inCascade {
		return d.cfg.MaxConcurrentProposals
	}
	return Unbounded
}

// DedupMultiplier returns 0.2 during cascade (a shorter dedup window,
// deliberately — a counterintuitive behavior: cascades need
// recurrences to surface faster, not slower) and 1.0 otherwise.
func (d *Detector) DedupMultiplier() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inCascade {
		return 0.2
	}
	return 1.0
}

// InCascade reports the current cascade state.
func (d *Detector) InCascade() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inCascade
}

// Stats is a read-only snapshot of detector counters, used by metrics
// exporters and the operator debug endpoint.
type Stats struct {
	InCascade            bool
	CurrentRate          int
	CascadesDetected     int64
	TotalAnomalies       int64
	SettlingCyclesRemain int
}

// Stats returns the current counters without mutating state (beyond
// pruning the window, which is an internal bookkeeping detail, not an
// observable state change).
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	rate := d.pruneAndCountLocked(d.clock.NowMs())
	return Stats{
		InCascade:            d.inCascade,
		CurrentRate:          rate,
		CascadesDetected:     d.cascadesDetected,
		TotalAnomalies:       d.totalAnomalies,
		SettlingCyclesRemain: d.settlingCyclesRemain,
	}
}

// Reset clears all state, including cascade flags. The supervisor does
// not call it: a component it restarts after a panic keeps its state.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.anomalyTimes = nil
	d.inCascade = false
	d.cascadeStartedAt = 0
	d.lastAboveThresholdAt = 0
	d.settlingCyclesRemain = 0
	d.cascadesDetected = 0
	d.totalAnomalies = 0
}
