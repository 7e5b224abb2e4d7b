// Package queue implements the AnomalyQueue: a dedup + lease-based
// work queue with a per-anomaly finite state machine, backed by a
// single-owner mutex actor in the same style as the earlier
// sync.RWMutex-guarded cluster.Manager.
package queue

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/rodgon/aegis/pkg/cascade"
	"github.com/rodgon/aegis/pkg/clock"
	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/fingerprint"
	"github.com/rodgon/aegis/pkg/signals"
)

// Errors returned by queue operations. These are typed results, not
// exceptions — callers switch on them.
var (
	ErrInvalidAnomaly = errors.New("queue: invalid anomaly")
	ErrEmpty          = errors.New("queue: empty")
	ErrSettling       = errors.New("queue: settling")
	ErrInvalidLease   = errors.New("queue: invalid lease")
)

// EnqueueResult is the success value of Enqueue.
type EnqueueResult string

const (
	ResultEnqueued     EnqueueResult = "enqueued"
	ResultDeduplicated EnqueueResult = "deduplicated"
)

// State is a queued anomaly's position in its finite state machine.
type State string

const (
	StatePending     State = "pending"
	StateClaimed     State = "claimed"
	StateVerifying   State = "verifying"
	StateResolved    State = "resolved"
	StateEscalated   State = "escalated"
	StateIneffective State = "ineffective"
)

// terminalRetentionMs is how long an escalated/ineffective record is
// kept after reaching a terminal state, so that the escalated_24h
// stats predicate remains meaningful instead of matching nothing the
// instant a record resolves — see DESIGN.md Open Question #2.
const terminalRetentionMs = 24 * 60 * 60 * 1000

// QueuedAnomaly is the queue's record of one detected anomaly as it
// moves through pending/claimed/verifying/resolved/escalated/ineffective.
type QueuedAnomaly struct {
	ID           string
	Anomaly      domain.Anomaly
	Fingerprint  fingerprint.Fingerprint
	State        State
	EnqueuedAt   int64
	ClaimedBy    string
	LeaseExpires int64
	AttemptCount int
	TerminalAt   int64
}

// LeaseToken is the opaque handle a worker receives from claim_next
// and presents back to release/complete.
type LeaseToken struct {
	AnomalyID    string
	AgentID      string
	LeaseExpires int64
}

type dedupRecord struct {
	AnomalyID     string
	WindowExpires int64
}

type suppressionRecord struct {
	Reason  string
	Expires int64
}

// Config holds the queue.* tunables.
type Config struct {
	DedupWindowMs       int64
	LeaseTimeoutMs      int64
	CheckIntervalMs     int64
	MaxAttempts         int
	SuppressionWindowMs int64
}

// DefaultConfig mirrors its defaults.
func DefaultConfig() Config {
	return Config{
		DedupWindowMs:       300_000,
		LeaseTimeoutMs:      60_000,
		CheckIntervalMs:     15_000,
		MaxAttempts:         3,
		SuppressionWindowMs: 1_800_000,
	}
}

// CascadeLink is the subset of *cascade.Detector the queue depends on:
// the effective dedup window shrinks during cascade, and every
// resolved (non-suppressed) enqueue is reported back as occurrence
// data for the cascade's rate computation.
type CascadeLink interface {
	DedupMultiplier() float64
	RecordAnomaly() *cascade.Event
}

// Queue is the AnomalyQueue. It is a single-owner actor: all mutation
// is linearized behind mu.
type Queue struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     Config
	cascade CascadeLink
	emitter signals.Emitter

	anomalies   map[string]*QueuedAnomaly
	dedup       map[uint64]*dedupRecord
	suppression map[uint64]*suppressionRecord
}

// New creates a Queue. cascadeLink may be nil — the queue then behaves
// as if no cascade is ever active (effective window == base, no rate
// reporting).
func New(clk clock.Clock, cfg Config, cascadeLink CascadeLink) *Queue {
	if cfg.DedupWindowMs <= 0 {
		cfg = DefaultConfig()
	}
	return &Queue{
		clock:       clk,
		cfg:         cfg,
		cascade:     cascadeLink,
		anomalies:   make(map[string]*QueuedAnomaly),
		dedup:       make(map[uint64]*dedupRecord),
		suppression: make(map[uint64]*suppressionRecord),
	}
}

// SetEmitter attaches the optional signal emitter used to publish the
// supplemental "escalated" event, which feeds pkg/history's similarity
// store. May be called with nil to detach it.
func (q *Queue) SetEmitter(e signals.Emitter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.emitter = e
}

// Enqueue inserts or deduplicates an anomaly.
func (q *Queue) Enqueue(a domain.Anomaly) (EnqueueResult, error) {
	fp, err := fingerprint.FromAnomaly(a)
	if err != nil {
		return "", ErrInvalidAnomaly
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.NowMs()
	famHash := fp.FamilyHash()
	if sr, ok := q.suppression[famHash]; ok && sr.Expires > now {
		return ResultDeduplicated, nil
	}

	fpHash := fp.Hash()
	effectiveWindow := q.effectiveDedupWindowLocked()

	if dr, ok := q.dedup[fpHash]; ok && dr.WindowExpires > now {
		dr.WindowExpires = now + effectiveWindow
		q.notifyCascadeLocked()
		return ResultDeduplicated, nil
	}

	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	q.anomalies[id] = &QueuedAnomaly{
		ID:          id,
		Anomaly:     a,
		Fingerprint: fp,
		State:       StatePending,
		EnqueuedAt:  now,
	}
	q.dedup[fpHash] = &dedupRecord{AnomalyID: id, WindowExpires: now + effectiveWindow}
	q.notifyCascadeLocked()
	return ResultEnqueued, nil
}

func (q *Queue) effectiveDedupWindowLocked() int64 {
	mult := 1.0
	if q.cascade != nil {
		mult = q.cascade.DedupMultiplier()
	}
	return int64(float64(q.cfg.DedupWindowMs) * mult)
}

func (q *Queue) notifyCascadeLocked() {
	if q.cascade != nil {
		q.cascade.RecordAnomaly()
	}
}

// ClaimNext selects the oldest pending anomaly and leases it to
// agentID. Returns ErrSettling while the cascade detector is applying
// backpressure, ErrEmpty if no pending anomaly exists.
func (q *Queue) ClaimNext(agentID string) (LeaseToken, domain.Anomaly, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cascade != nil {
		if settler, ok := q.cascade.(interface{ ShouldSettle() bool }); ok && settler.ShouldSettle() {
			return LeaseToken{}, domain.Anomaly{}, ErrSettling
		}
	}

	var oldest *QueuedAnomaly
	for _, qa := range q.anomalies {
		if qa.State != StatePending {
			continue
		}
		if oldest == nil || qa.EnqueuedAt < oldest.EnqueuedAt ||
			(qa.EnqueuedAt == oldest.EnqueuedAt && qa.ID < oldest.ID) {
			oldest = qa
		}
	}
	if oldest == nil {
		return LeaseToken{}, domain.Anomaly{}, ErrEmpty
	}

	now := q.clock.NowMs()
	oldest.State = StateClaimed
	oldest.ClaimedBy = agentID
	oldest.LeaseExpires = now + q.cfg.LeaseTimeoutMs
	oldest.AttemptCount++

	token := LeaseToken{AnomalyID: oldest.ID, AgentID: agentID, LeaseExpires: oldest.LeaseExpires}
	return token, oldest.Anomaly, nil
}

// Release returns a claimed anomaly to pending, e.g. when a worker
// voluntarily gives up a claim.
func (q *Queue) Release(token LeaseToken) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	qa, ok := q.anomalies[token.AnomalyID]
	if !ok || qa.State != StateClaimed || qa.ClaimedBy != token.AgentID {
		return ErrInvalidLease
	}
	qa.State = StatePending
	qa.ClaimedBy = ""
	qa.LeaseExpires = 0
	return nil
}

// Complete applies a worker's outcome to a claimed anomaly, moving it
// to verifying, resolved, escalated, or back to pending for retry.
func (q *Queue) Complete(token LeaseToken, outcome domain.Outcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	qa, ok := q.anomalies[token.AnomalyID]
	if !ok || qa.State != StateClaimed || qa.ClaimedBy != token.AgentID {
		return ErrInvalidLease
	}

	qa.ClaimedBy = ""
	qa.LeaseExpires = 0
	now := q.clock.NowMs()

	outcome = outcome.NormalizedRetry()

	switch outcome.Kind {
	case domain.OutcomeFixed:
		qa.State = StateVerifying
	case domain.OutcomeResolved:
		delete(q.anomalies, qa.ID)
	case domain.OutcomeEscalated:
		qa.State = StateEscalated
		qa.TerminalAt = now + terminalRetentionMs
		q.insertSuppressionLocked(qa.Fingerprint.FamilyHash(), "escalated", now)
		q.emitEscalated(qa.Anomaly)
	case domain.OutcomeRetry:
		if qa.AttemptCount >= q.cfg.MaxAttempts {
			qa.State = StateEscalated
			qa.TerminalAt = now + terminalRetentionMs
			q.insertSuppressionLocked(qa.Fingerprint.FamilyHash(), outcome.Reason, now)
			q.emitEscalated(qa.Anomaly)
		} else {
			qa.State = StatePending
		}
	case domain.OutcomeIneffective:
		qa.State = StateIneffective
		qa.TerminalAt = now + terminalRetentionMs
	default:
		return ErrInvalidLease
	}
	return nil
}

func (q *Queue) emitEscalated(a domain.Anomaly) {
	signals.Safe(q.emitter, signals.CategoryHealing, signals.TypeEscalated, map[string]any{
		"skill":    string(a.Skill),
		"severity": string(a.Severity),
		"metric":   string(a.Details.Metric),
	})
}

func (q *Queue) insertSuppressionLocked(famHash uint64, reason string, now int64) {
	q.suppression[famHash] = &suppressionRecord{
		Reason:  reason,
		Expires: now + q.cfg.SuppressionWindowMs,
	}
}

// Suppressed reports whether fp's family is currently suppressed.
func (q *Queue) Suppressed(fp fingerprint.Fingerprint) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	sr, ok := q.suppression[fp.FamilyHash()]
	return ok && sr.Expires > q.clock.NowMs()
}

// CleanupTick recovers expired leases and evicts expired dedup,
// suppression, and terminal-state records. Call on a timer at
// CheckIntervalMs.
func (q *Queue) CleanupTick() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.NowMs()

	for _, qa := range q.anomalies {
		if qa.State == StateClaimed && qa.LeaseExpires > 0 && qa.LeaseExpires < now {
			qa.State = StatePending
			qa.ClaimedBy = ""
			qa.LeaseExpires = 0
		}
		if isTerminal(qa.State) && qa.TerminalAt > 0 && qa.TerminalAt < now {
			delete(q.anomalies, qa.ID)
		}
	}
	for h, dr := range q.dedup {
		if dr.WindowExpires < now {
			delete(q.dedup, h)
		}
	}
	for h, sr := range q.suppression {
		if sr.Expires < now {
			delete(q.suppression, h)
		}
	}
}

func isTerminal(s State) bool {
	return s == StateEscalated || s == StateIneffective
}

// Get returns the current record for an anomaly ID, for tests and
// debug inspection.
func (q *Queue) Get(id string) (QueuedAnomaly, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	qa, ok := q.anomalies[id]
	if !ok {
		return QueuedAnomaly{}, false
	}
	return *qa, true
}

// Stats aggregates queue counts by state, plus the escalated_24h
// predicate — made meaningful here by retaining terminal records for
// terminalRetentionMs instead of deleting them immediately.
type Stats struct {
	Pending      int
	Claimed      int
	Verifying    int
	Escalated    int
	Ineffective  int
	Escalated24h int
}

// Stats computes the current Stats snapshot.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.NowMs()
	var s Stats
	for _, qa := range q.anomalies {
		switch qa.State {
		case StatePending:
			s.Pending++
		case StateClaimed:
			s.Claimed++
		case StateVerifying:
			s.Verifying++
		case StateEscalated:
			s.Escalated++
			// TerminalAt is set to (became-terminal + terminalRetentionMs),
			// and cleanup evicts the record once TerminalAt < now — so any
			// escalated record still present became terminal within the
			// last terminalRetentionMs (24h).
			if qa.TerminalAt >= now {
				s.Escalated24h++
			}
		case StateIneffective:
			s.Ineffective++
		}
	}
	return s
}

// Reset clears all queue state. The supervisor does not call it: a
// component it restarts after a panic keeps its state.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.anomalies = make(map[string]*QueuedAnomaly)
	q.dedup = make(map[uint64]*dedupRecord)
	q.suppression = make(map[uint64]*suppressionRecord)
}
