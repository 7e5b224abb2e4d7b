// Package verification tracks the soak period a proposed fix must
// survive before it is considered verified: a per-fingerprint cycles
// countdown that is preempted by any recurrence of the same anomaly.
package verification

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/rodgon/aegis/pkg/clock"
	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/fingerprint"
	"github.com/rodgon/aegis/pkg/signals"
)

// ErrAlreadyVerifying is returned by StartVerification when a record
// already exists for the fingerprint's hash with outcome=verifying.
var ErrAlreadyVerifying = errors.New("verification: already verifying")

// Outcome is the terminal or in-progress state of one verification
// record.
type Outcome string

const (
	OutcomeVerifying   Outcome = "verifying"
	OutcomeVerified    Outcome = "verified"
	OutcomeIneffective Outcome = "ineffective"
)

// Record is one active or terminal verification.
type Record struct {
	Fingerprint     fingerprint.Fingerprint
	ProposalID      string
	VerificationID  string
	StartedAt       int64
	SoakCycles      int
	CyclesRemaining int
	Outcome         Outcome
}

// Result is returned by CheckRecurrences and Tick for records that
// reached a terminal outcome during that call.
type Result struct {
	Fingerprint    fingerprint.Fingerprint
	ProposalID     string
	VerificationID string
	Outcome        Outcome
	CyclesDone     int
}

// Config holds the verification.* tunables.
type Config struct {
	SoakCycles int
}

// DefaultConfig mirrors its default.
func DefaultConfig() Config {
	return Config{SoakCycles: 5}
}

// Tracker is the Verification component. Single-owner actor, mutex
// guarded, matching the earlier sync.RWMutex-guarded cluster.Manager.
type Tracker struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     Config
	emitter signals.Emitter
	records map[uint64]*Record
}

// New creates a Tracker. emitter may be nil.
func New(clk clock.Clock, cfg Config, emitter signals.Emitter) *Tracker {
	if cfg.SoakCycles <= 0 {
		cfg = DefaultConfig()
	}
	return &Tracker{
		clock:   clk,
		cfg:     cfg,
		emitter: emitter,
		records: make(map[uint64]*Record),
	}
}

// StartVerification begins tracking a soak period for fp/proposalID.
func (t *Tracker) StartVerification(fp fingerprint.Fingerprint, proposalID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := fp.Hash()
	if r, ok := t.records[h]; ok && r.Outcome == OutcomeVerifying {
		return "", ErrAlreadyVerifying
	}

	id := uuid.NewString()
	t.records[h] = &Record{
		Fingerprint:     fp,
		ProposalID:      proposalID,
		VerificationID:  id,
		StartedAt:       t.clock.NowMs(),
		SoakCycles:      t.cfg.SoakCycles,
		CyclesRemaining: t.cfg.SoakCycles,
		Outcome:         OutcomeVerifying,
	}
	return id, nil
}

// CheckRecurrences marks any active verification whose fingerprint
// matches one of the given anomalies as ineffective. Must be called
// before Tick within a cycle — see its ordering invariant.
func (t *Tracker) CheckRecurrences(anomalies []domain.Anomaly) []Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	recurring := make(map[uint64]struct{})
	for _, a := range anomalies {
		fp, err := fingerprint.FromAnomaly(a)
		if err != nil {
			continue
		}
		recurring[fp.Hash()] = struct{}{}
	}

	var results []Result
	for h, r := range t.records {
		if r.Outcome != OutcomeVerifying {
			continue
		}
		if _, ok := recurring[h]; !ok {
			continue
		}
		cyclesDone := r.SoakCycles - r.CyclesRemaining
		r.Outcome = OutcomeIneffective

		signals.Safe(t.emitter, signals.CategoryHealing, signals.TypeHealingIneffective, map[string]any{
			"fingerprint":      r.Fingerprint.String(),
			"fingerprint_hash": h,
			"proposal_id":      r.ProposalID,
			"cycles_completed": cyclesDone,
		})

		results = append(results, Result{
			Fingerprint:    r.Fingerprint,
			ProposalID:     r.ProposalID,
			VerificationID: r.VerificationID,
			Outcome:        OutcomeIneffective,
			CyclesDone:     cyclesDone,
		})
	}
	return results
}

// Tick advances every active verification by one soak cycle, marking
// any that reach zero remaining cycles as verified.
func (t *Tracker) Tick() []Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	var results []Result
	for h, r := range t.records {
		if r.Outcome != OutcomeVerifying {
			continue
		}
		r.CyclesRemaining--
		if r.CyclesRemaining > 0 {
			continue
		}
		r.Outcome = OutcomeVerified

		signals.Safe(t.emitter, signals.CategoryHealing, signals.TypeHealingVerified, map[string]any{
			"fingerprint":      r.Fingerprint.String(),
			"fingerprint_hash": h,
			"proposal_id":      r.ProposalID,
			"soak_cycles":      r.SoakCycles,
		})

		results = append(results, Result{
			Fingerprint:    r.Fingerprint,
			ProposalID:     r.ProposalID,
			VerificationID: r.VerificationID,
			Outcome:        OutcomeVerified,
			CyclesDone:     r.SoakCycles,
		})
	}
	return results
}

// CancelVerification deletes the record for fp, if any.
func (t *Tracker) CancelVerification(fp fingerprint.Fingerprint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, fp.Hash())
}

// Stats aggregates record counts by outcome.
type Stats struct {
	Verifying   int
	Verified    int
	Ineffective int
}

// Stats computes the current Stats snapshot.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var s Stats
	for _, r := range t.records {
		switch r.Outcome {
		case OutcomeVerifying:
			s.Verifying++
		case OutcomeVerified:
			s.Verified++
		case OutcomeIneffective:
			s.Ineffective++
		}
	}
	return s
}

// Reset clears all state. The supervisor does not call it: a component
// it restarts after a panic keeps its state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[uint64]*Record)
}
