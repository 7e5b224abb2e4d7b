// Package rejection implements the three-strike escalation policy:
// repeated proposal rejections for the same anomaly family escalate
// from a simple retry, through a reduced-scope retry, to a
// human-escalation strategy that the caller is expected to propagate
// as a queue suppression.
package rejection

import (
	"fmt"
	"sync"

	"github.com/rodgon/aegis/pkg/clock"
	"github.com/rodgon/aegis/pkg/fingerprint"
	"github.com/rodgon/aegis/pkg/signals"
)

// maxReasons bounds the newest-first reasons/proposal_ids lists kept
// per record to the 10 most recent.
const maxReasons = 10

// Strategy is the recommended response to accumulating rejections.
type Strategy string

const (
	StrategyRetryWithContext Strategy = "retry_with_context"
	StrategyReduceScope      Strategy = "reduce_scope"
	StrategyEscalateToHuman  Strategy = "escalate_to_human"
)

// Outcome is the result of recording one rejection.
type Outcome struct {
	Strategy       Strategy
	RejectionCount int
	ShouldSuppress bool
	Message        string
}

// record is the tracker's per-family-hash state.
type record struct {
	count          int
	lastRejectedAt int64
	reasons        []string
	proposalIDs    []string
}

// Config holds the rejection.* tunables.
type Config struct {
	MaxRejections         int
	RejectionWindowMs     int64
	SuppressionTTLMinutes int
}

// DefaultConfig mirrors its defaults.
func DefaultConfig() Config {
	return Config{MaxRejections: 3, RejectionWindowMs: 3_600_000, SuppressionTTLMinutes: 30}
}

// Tracker is the RejectionTracker component. Single-owner actor,
// mutex guarded.
type Tracker struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     Config
	emitter signals.Emitter
	records map[uint64]*record
}

// New creates a Tracker. emitter may be nil.
func New(clk clock.Clock, cfg Config, emitter signals.Emitter) *Tracker {
	if cfg.MaxRejections <= 0 {
		cfg = DefaultConfig()
	}
	return &Tracker{
		clock:   clk,
		cfg:     cfg,
		emitter: emitter,
		records: make(map[uint64]*record),
	}
}

// RecordRejection records a rejection of proposalID for fp, returning
// the strategy to apply per its strike table.
func (t *Tracker) RecordRejection(fp fingerprint.Fingerprint, proposalID, reason string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	famHash := fp.FamilyHash()
	now := t.clock.NowMs()

	r, ok := t.records[famHash]
	if !ok || now-r.lastRejectedAt > t.cfg.RejectionWindowMs {
		r = &record{}
		t.records[famHash] = r
	}

	r.count++
	r.lastRejectedAt = now
	r.reasons = prepend(r.reasons, reason, maxReasons)
	r.proposalIDs = prepend(r.proposalIDs, proposalID, maxReasons)

	var strategy Strategy
	var suppress bool
	var message string
	switch {
	case r.count < t.cfg.MaxRejections-1:
		strategy = StrategyRetryWithContext
		message = fmt.Sprintf("retry with additional context after rejection #%d (%s)", r.count, reason)
	case r.count < t.cfg.MaxRejections:
		strategy = StrategyReduceScope
		message = fmt.Sprintf("conservative, reduced-scope retry after rejection #%d (%s)", r.count, reason)
	default:
		strategy = StrategyEscalateToHuman
		suppress = true
		message = fmt.Sprintf("Escalating to human review after %d rejections (%s)", r.count, reason)
	}

	outcome := Outcome{
		Strategy:       strategy,
		RejectionCount: r.count,
		ShouldSuppress: suppress,
		Message:        message,
	}

	if suppress {
		signals.Safe(t.emitter, signals.CategoryHealing, signals.TypeHealingBlocked, map[string]any{
			"fingerprint":             fp.String(),
			"family_hash":             famHash,
			"rejection_count":         r.count,
			"reasons":                 append([]string(nil), r.reasons...),
			"proposal_ids":            append([]string(nil), r.proposalIDs...),
			"suppression_ttl_minutes": t.cfg.SuppressionTTLMinutes,
		})
	}

	return outcome
}

func prepend(list []string, item string, max int) []string {
	list = append([]string{item}, list...)
	if len(list) > max {
		list = list[:max]
	}
	return list
}

// ClearRejections deletes the rejection record for fp's family, if any.
func (t *Tracker) ClearRejections(fp fingerprint.Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, fp.FamilyHash())
}

// CleanupTick deletes rejection records whose window has expired.
func (t *Tracker) CleanupTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.NowMs()
	for h, r := range t.records {
		if now-r.lastRejectedAt >= t.cfg.RejectionWindowMs {
			delete(t.records, h)
		}
	}
}

// Reset clears all state. The supervisor does not call it: a component
// it restarts after a panic keeps its state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[uint64]*record)
}
