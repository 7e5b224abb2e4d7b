// Package history is additive operator tooling, not a core pipeline
// dependency: it records a text+vector snapshot of every escalated or
// suppressed incident so an operator investigating "has this happened
// before, and what fixed it" has somewhere to look. Losing this store
// on restart degrades operator convenience only — no pipeline
// invariant reads from it.
package history

import (
	"fmt"
	"time"

	"github.com/rodgon/aegis/pkg/signals"
)

// Incident is one stored escalation or suppression.
type Incident struct {
	Text      string
	Reason    string
	Skill     string
	Severity  string
	Metric    string
	Timestamp time.Time
}

// Store persists incidents and finds similar ones by vector distance.
// Built on the earlier pkg/storage.Storage interface
// (StoreAlert/SearchSimilarAlerts), narrowed to the fields this
// pipeline's Anomaly/Outcome model actually carries.
type Store interface {
	StoreIncident(vector []float32, incident Incident) error
	SearchSimilar(vector []float32, limit int) ([]Incident, error)
}

// Tracker bridges the signal bus to a Store: it implements
// signals.Emitter so it can sit in the same signals.Fanout as
// pkg/notification and pkg/metrics, and on the "escalated" and
// "healing_blocked" event types it encodes and stores an incident.
type Tracker struct {
	store   Store
	encoder Encoder
	logger  func(format string, args ...any)
}

// New builds a Tracker. store/encoder must be non-nil; pass a
// no-op logger (or nil) to silence failures.
func New(store Store, encoder Encoder, logger func(format string, args ...any)) *Tracker {
	return &Tracker{store: store, encoder: encoder, logger: logger}
}

// Emit implements signals.Emitter.
func (t *Tracker) Emit(category signals.Category, eventType string, payload map[string]any) {
	switch eventType {
	case signals.TypeEscalated, signals.TypeHealingBlocked:
		t.record(eventType, payload)
	}
}

func (t *Tracker) record(eventType string, payload map[string]any) {
	text := describe(eventType, payload)
	vector, err := t.encoder.Encode(text)
	if err != nil {
		t.logf("history: encode incident: %v", err)
		return
	}
	incident := Incident{
		Text:      text,
		Reason:    stringField(payload, "reason"),
		Skill:     stringField(payload, "skill"),
		Severity:  stringField(payload, "severity"),
		Metric:    stringField(payload, "metric"),
		Timestamp: time.Now(),
	}
	if err := t.store.StoreIncident(vector, incident); err != nil {
		t.logf("history: store incident: %v", err)
	}
}

func (t *Tracker) logf(format string, args ...any) {
	if t.logger != nil {
		t.logger(format, args...)
	}
}

// FindSimilar encodes a free-form query and returns the closest stored
// incidents, for operator tooling (e.g. a future /debug/history
// endpoint) rather than any pipeline decision path.
func (t *Tracker) FindSimilar(query string, limit int) ([]Incident, error) {
	vector, err := t.encoder.Encode(query)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	return t.store.SearchSimilar(vector, limit)
}

func describe(eventType string, payload map[string]any) string {
	return fmt.Sprintf("%s skill=%s metric=%s severity=%s reason=%s",
		eventType,
		stringField(payload, "skill"),
		stringField(payload, "metric"),
		stringField(payload, "severity"),
		stringField(payload, "reason"),
	)
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
