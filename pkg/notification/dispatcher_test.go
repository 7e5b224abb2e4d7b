package notification

import (
	"testing"

	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/signals"
)

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(event string, payload map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func TestDispatcher_CascadeDetectedAlwaysPages(t *testing.T) {
	n := &fakeNotifier{}
	d := New(n, domain.SeverityEmergency, nil)

	d.Emit(signals.CategoryMonitor, signals.TypeCascadeDetected, map[string]any{})

	if len(n.events) != 1 {
		t.Fatalf("expected cascade_detected to always page, got %d events", len(n.events))
	}
}

func TestDispatcher_HealingBlockedGatedBySeverity(t *testing.T) {
	n := &fakeNotifier{}
	d := New(n, domain.SeverityCritical, nil)

	d.Emit(signals.CategoryHealing, signals.TypeHealingBlocked, map[string]any{"severity": "warning"})
	if len(n.events) != 0 {
		t.Fatalf("expected warning severity below critical threshold to be suppressed, got %d events", len(n.events))
	}

	d.Emit(signals.CategoryHealing, signals.TypeHealingBlocked, map[string]any{"severity": "emergency"})
	if len(n.events) != 1 {
		t.Fatalf("expected emergency severity to pass the critical threshold, got %d events", len(n.events))
	}
}

func TestDispatcher_IgnoresUnrelatedEventTypes(t *testing.T) {
	n := &fakeNotifier{}
	d := New(n, domain.SeverityWarning, nil)

	d.Emit(signals.CategoryMonitor, signals.TypeAnomalyDetected, map[string]any{"severity": "emergency"})

	if len(n.events) != 0 {
		t.Fatalf("expected unrelated event type to be ignored, got %d events", len(n.events))
	}
}

func TestDispatcher_NilNotifierIsNoOp(t *testing.T) {
	d := New(nil, domain.SeverityWarning, nil)
	d.Emit(signals.CategoryMonitor, signals.TypeCascadeDetected, map[string]any{})
}

func TestDispatcher_MissingSeverityDefaultsToWarning(t *testing.T) {
	n := &fakeNotifier{}
	d := New(n, domain.SeverityWarning, nil)

	d.Emit(signals.CategoryHealing, signals.TypeHealingBlocked, map[string]any{})

	if len(n.events) != 1 {
		t.Fatalf("expected missing severity to default to warning and pass a warning threshold, got %d events", len(n.events))
	}
}
