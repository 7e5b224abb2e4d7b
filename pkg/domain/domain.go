// Package domain holds the closed enumerations and wire types shared
// across the anomaly pipeline: skills, metrics, severities, the
// inbound Anomaly event, and the outcomes a diagnostic worker can
// report back through AnomalyQueue.Complete.
//
// Skills and metrics are closed enumerations known at compile time —
// fingerprints hash those enums directly, never raw strings from
// untrusted input, so the dedup/suppression tables stay bounded.
package domain

import "time"

// Skill identifies the subsystem an anomaly was observed in.
type Skill string

const (
	SkillDatabase   Skill = "database"
	SkillCache      Skill = "cache"
	SkillAPI        Skill = "api"
	SkillWorkerPool Skill = "worker_pool"
	SkillQueue      Skill = "queue"
	SkillNode       Skill = "node"
)

// Metric identifies the measurement taken within a Skill.
type Metric string

const (
	MetricLatencyMS       Metric = "latency_ms"
	MetricErrorRate       Metric = "error_rate"
	MetricQueueDepth      Metric = "queue_depth"
	MetricCPUPercent      Metric = "cpu_percent"
	MetricMemoryPercent   Metric = "memory_percent"
	MetricPoolUtilization Metric = "connection_pool_usage"
	MetricRestartCount    Metric = "restart_count"
)

// Direction is the sign of a sample's deviation from its EWMA.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Severity classifies how far an anomaly deviates from normal.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// severityRank orders severities for threshold comparisons (e.g. a
// notifier's MinSeverity gate).
var severityRank = map[Severity]int{
	SeverityWarning:   1,
	SeverityCritical:  2,
	SeverityEmergency: 3,
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Details carries the context accompanying an anomaly: the metric
// reading and deviation measures, plus any additional free-form
// context a collector wants to attach.
type Details struct {
	Metric           Metric
	Value            float64
	EWMA             float64
	StdDev           float64
	DeviationStdDevs float64
	Extra            map[string]any
}

// Anomaly is the event format consumed by AnomalyQueue.Enqueue, per
// . ID is optional; the queue generates one when absent.
type Anomaly struct {
	ID        string
	Skill     Skill
	Severity  Severity
	Details   Details
	Timestamp time.Time
}

// Outcome is the result a diagnostic worker reports through
// AnomalyQueue.Complete.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// OutcomeKind enumerates the terminal/transitional results a worker
// can report for a claimed anomaly.
type OutcomeKind string

const (
	OutcomeFixed       OutcomeKind = "fixed"
	OutcomeResolved    OutcomeKind = "resolved"
	OutcomeEscalated   OutcomeKind = "escalated"
	OutcomeRetry       OutcomeKind = "retry"
	OutcomeIneffective OutcomeKind = "ineffective"
	OutcomeFailed      OutcomeKind = "failed"
	OutcomeRejected    OutcomeKind = "rejected"
)

// Fixed, Resolved and Escalated are outcomes that carry no reason.
func Fixed() Outcome     { return Outcome{Kind: OutcomeFixed} }
func Resolved() Outcome  { return Outcome{Kind: OutcomeResolved} }
func Escalated() Outcome { return Outcome{Kind: OutcomeEscalated} }

// Retry, Ineffective carry an operator-supplied reason.
func Retry(reason string) Outcome       { return Outcome{Kind: OutcomeRetry, Reason: reason} }
func Ineffective(reason string) Outcome { return Outcome{Kind: OutcomeIneffective, Reason: reason} }

// Failed and Rejected are sugar for the two fixed-reason retries:
// "failed" == retry("diagnosis failed"), "rejected" ==
// retry("proposal rejected").
func Failed() Outcome   { return Outcome{Kind: OutcomeFailed} }
func Rejected() Outcome { return Outcome{Kind: OutcomeRejected} }

// NormalizedRetry resolves Failed/Rejected sugar into the underlying
// retry outcome with its fixed reason, leaving every other kind
// untouched.
func (o Outcome) NormalizedRetry() Outcome {
	switch o.Kind {
	case OutcomeFailed:
		return Retry("diagnosis failed")
	case OutcomeRejected:
		return Retry("proposal rejected")
	default:
		return o
	}
}
