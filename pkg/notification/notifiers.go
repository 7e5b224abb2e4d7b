package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// SlackNotifier implements Notifier for Slack.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
}

// EmailNotifier implements Notifier for email.
type EmailNotifier struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	To           []string
}

// WebhookNotifier implements Notifier for generic webhooks.
type WebhookNotifier struct {
	URL     string
	Method  string
	Headers map[string]string
}

// AlertmanagerNotifier implements Notifier for Prometheus Alertmanager.
type AlertmanagerNotifier struct {
	URL           string
	DefaultLabels map[string]string
}

// Notify implements Notifier for Slack. This never makes the real
// Slack API call — it logs a would-send line instead.
func (s *SlackNotifier) Notify(event string, payload map[string]any) error {
	log.Printf("would send to slack channel %s: %s %v", s.Channel, event, payload)
	return nil
}

// Notify implements Notifier for email.
func (e *EmailNotifier) Notify(event string, payload map[string]any) error {
	log.Printf("would send email to %v: %s %v", e.To, event, payload)
	return nil
}

// Notify implements Notifier for a generic webhook.
func (w *WebhookNotifier) Notify(event string, payload map[string]any) error {
	log.Printf("would send webhook to %s: %s %v", w.URL, event, payload)
	return nil
}

// Notify implements Notifier for Alertmanager, the one channel that
// actually makes a real HTTP call.
func (a *AlertmanagerNotifier) Notify(event string, payload map[string]any) error {
	labels := make(map[string]string, len(a.DefaultLabels)+2)
	for k, v := range a.DefaultLabels {
		labels[k] = v
	}
	labels["alertname"] = fmt.Sprintf("aegis_%s", event)
	if skill, ok := payload["skill"].(string); ok {
		labels["skill"] = skill
	}

	annotations := make(map[string]string, len(payload))
	for k, v := range payload {
		annotations[k] = fmt.Sprintf("%v", v)
	}

	now := time.Now()
	alert := AlertmanagerAlert{
		Labels:       labels,
		Annotations:  annotations,
		StartsAt:     now.Format(time.RFC3339),
		EndsAt:       now.Add(24 * time.Hour).Format(time.RFC3339),
		GeneratorURL: "aegis-agent",
	}
	data, err := json.Marshal(AlertmanagerPayload{Alerts: []AlertmanagerAlert{alert}})
	if err != nil {
		return fmt.Errorf("marshaling alert payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/alerts", a.URL)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("sending alert to alertmanager: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alertmanager returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
