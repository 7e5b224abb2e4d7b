package notification

import "fmt"

// NotifierConfig is the subset of config.NotificationConfig needed to
// build a Notifier, kept dependency-free of pkg/config so notification
// doesn't import the config package for a handful of fields.
type NotifierConfig struct {
	Type         string
	Slack        SlackConfig
	Email        EmailConfig
	Webhook      WebhookConfig
	Alertmanager AlertmanagerConfig
}

// SlackConfig, EmailConfig, WebhookConfig and AlertmanagerConfig mirror
// the corresponding config.* structs field-for-field.
type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	To           []string
}

type WebhookConfig struct {
	URL     string
	Method  string
	Headers map[string]string
}

type AlertmanagerConfig struct {
	URL           string
	DefaultLabels map[string]string
}

// NewNotifier builds the Notifier named by cfg.Type, mirroring the
// construction switch in the earlier NewAgent.
func NewNotifier(cfg NotifierConfig) (Notifier, error) {
	switch cfg.Type {
	case "slack":
		return &SlackNotifier{WebhookURL: cfg.Slack.WebhookURL, Channel: cfg.Slack.Channel}, nil
	case "email":
		return &EmailNotifier{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUser:     cfg.Email.SMTPUser,
			SMTPPassword: cfg.Email.SMTPPassword,
			From:         cfg.Email.From,
			To:           cfg.Email.To,
		}, nil
	case "webhook":
		return &WebhookNotifier{URL: cfg.Webhook.URL, Method: cfg.Webhook.Method, Headers: cfg.Webhook.Headers}, nil
	case "alertmanager":
		return &AlertmanagerNotifier{URL: cfg.Alertmanager.URL, DefaultLabels: cfg.Alertmanager.DefaultLabels}, nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("notification: unknown channel type %q", cfg.Type)
	}
}
