package notification

import (
	"log"

	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/signals"
)

// Dispatcher implements signals.Emitter, forwarding the events that
// page a human (cascade_detected, healing_blocked) to one configured
// Notifier; only healing_blocked is gated by MinSeverity.
// Built on the earlier shouldNotify severity-threshold check in
// pkg/agent/agent.go, re-expressed over domain.Severity.AtLeast.
type Dispatcher struct {
	notifier    Notifier
	minSeverity domain.Severity
	logger      *log.Logger
}

// New builds a Dispatcher. notifier may be nil, in which case Emit is
// a no-op (mirrors NotificationConfig.Enabled == false).
func New(notifier Notifier, minSeverity domain.Severity, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{notifier: notifier, minSeverity: minSeverity, logger: logger}
}

// Emit implements signals.Emitter. cascade_detected carries no
// severity of its own (a cascade is a rate condition, not a single
// anomaly) and always pages; healing_blocked is gated by the
// payload's severity against MinSeverity.
func (d *Dispatcher) Emit(category signals.Category, eventType string, payload map[string]any) {
	if d.notifier == nil {
		return
	}

	switch eventType {
	case signals.TypeCascadeDetected:
		d.send(eventType, payload)
	case signals.TypeHealingBlocked:
		if d.severityOf(payload).AtLeast(d.minSeverity) {
			d.send(eventType, payload)
		}
	}
}

func (d *Dispatcher) severityOf(payload map[string]any) domain.Severity {
	if s, ok := payload["severity"].(string); ok {
		return domain.Severity(s)
	}
	return domain.SeverityWarning
}

func (d *Dispatcher) send(eventType string, payload map[string]any) {
	if err := d.notifier.Notify(eventType, payload); err != nil {
		d.logger.Printf("notification: delivery failed for %s: %v", eventType, err)
	}
}
