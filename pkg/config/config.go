// Package config loads the pipeline's configuration from YAML,
// applying sensible defaults for every component: one struct, one
// LoadConfig, one setDefaults pass.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration for cmd/aegis-agent.
type Config struct {
	PollingIntervalMs int                `yaml:"pollingIntervalMs"`
	Anomaly           AnomalyConfig      `yaml:"anomaly"`
	Queue             QueueConfig        `yaml:"queue"`
	Cascade           CascadeConfig      `yaml:"cascade"`
	Rejection         RejectionConfig    `yaml:"rejection"`
	Verification      VerificationConfig `yaml:"verification"`
	Storage           StorageConfig      `yaml:"storage"`
	Metrics           MetricsConfig      `yaml:"metrics"`
	Notification      NotificationConfig `yaml:"notification"`
	Kubernetes        KubernetesConfig   `yaml:"kubernetes"`
}

// AnomalyConfig mirrors its anomaly.* keys.
type AnomalyConfig struct {
	EWMAAlpha           float64 `yaml:"ewmaAlpha"`
	EWMAStdDevThreshold float64 `yaml:"ewmaStdDevThreshold"`
}

// QueueConfig mirrors its queue.* keys.
type QueueConfig struct {
	DedupWindowMs       int64 `yaml:"dedupWindowMs"`
	LeaseTimeoutMs      int64 `yaml:"leaseTimeoutMs"`
	CheckIntervalMs     int64 `yaml:"checkIntervalMs"`
	MaxAttempts         int   `yaml:"maxAttempts"`
	SuppressionWindowMs int64 `yaml:"suppressionWindowMs"`
}

// CascadeConfig mirrors its cascade.* keys.
type CascadeConfig struct {
	WindowMs               int64 `yaml:"windowMs"`
	CascadeThreshold       int   `yaml:"cascadeThreshold"`
	SettlingCycles         int   `yaml:"settlingCycles"`
	MaxConcurrentProposals int   `yaml:"maxConcurrentProposals"`
	ExitThresholdMs        int64 `yaml:"exitThresholdMs"`
	CheckIntervalMs        int64 `yaml:"checkIntervalMs"`
}

// RejectionConfig mirrors its rejection.* keys.
type RejectionConfig struct {
	MaxRejections         int   `yaml:"maxRejections"`
	RejectionWindowMs     int64 `yaml:"rejectionWindowMs"`
	SuppressionTTLMinutes int   `yaml:"suppressionTtlMinutes"`
}

// VerificationConfig mirrors its verification.* keys.
type VerificationConfig struct {
	SoakCycles int `yaml:"soakCycles"`
}

// StorageConfig configures pkg/store's Redis-backed metrics cache and
// pkg/history's escalated-incident similarity store.
type StorageConfig struct {
	Redis  RedisConfig  `yaml:"redis"`
	Qdrant QdrantConfig `yaml:"qdrant"`
	// History selects where pkg/history stores escalated-incident
	// vectors: "qdrant" or "redis". Absent or unrecognized disables
	// history storage (it is additive operator tooling, never a core
	// pipeline dependency).
	History string `yaml:"history"`
}

// RedisConfig mirrors the earlier RedisConfig.
type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// QdrantConfig mirrors the earlier QdrantConfig.
type QdrantConfig struct {
	URL            string `yaml:"url"`
	Collection     string `yaml:"collection"`
	VectorSize     int    `yaml:"vectorSize"`
	DistanceMetric string `yaml:"distanceMetric"`
}

// MetricsConfig configures the operator-facing HTTP surface:
// /metrics, /healthz, /debug/queue.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// NotificationConfig mirrors the earlier NotificationConfig, reused
// as the signal-bus subscriber configuration.
type NotificationConfig struct {
	Enabled      bool               `yaml:"enabled"`
	Type         string             `yaml:"type"`
	MinSeverity  string             `yaml:"minSeverity"`
	Slack        SlackConfig        `yaml:"slack"`
	Email        EmailConfig        `yaml:"email"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Alertmanager AlertmanagerConfig `yaml:"alertmanager"`
}

// SlackConfig mirrors the earlier SlackConfig.
type SlackConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// EmailConfig mirrors the earlier EmailConfig.
type EmailConfig struct {
	SMTPHost     string   `yaml:"smtpHost"`
	SMTPPort     int      `yaml:"smtpPort"`
	SMTPUser     string   `yaml:"smtpUser"`
	SMTPPassword string   `yaml:"smtpPassword"`
	From         string   `yaml:"from"`
	To           []string `yaml:"to"`
}

// WebhookConfig mirrors the earlier WebhookConfig.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
}

// AlertmanagerConfig mirrors the earlier AlertmanagerConfig.
type AlertmanagerConfig struct {
	URL           string            `yaml:"url"`
	DefaultLabels map[string]string `yaml:"defaultLabels"`
}

// KubernetesConfig configures pkg/collectors/k8s, adapted from an
// earlier ClusterConfig (single-cluster here — Non-goals exclude
// distributed/multi-node coordination, and multi-cluster fan-out
// would live one layer above collection).
type KubernetesConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Kubeconfig string `yaml:"kubeconfig"`
	Context    string `yaml:"context"`
	// Namespace scopes PodCollector's restart-count scan.
	Namespace string `yaml:"namespace"`
	// CPUHardPercent/MemoryHardPercent/PodRestartHardThreshold mirror
	// the earlier cfg.AnomalyDetection.CPUThreshold-style fixed
	// ceilings, kept alongside the EWMA baseline as a fast-path
	// complement (see pkg/collectors/k8s.NodeCollector.Check). Zero
	// disables the corresponding hard check.
	CPUHardPercent          float64 `yaml:"cpuHardPercent"`
	MemoryHardPercent       float64 `yaml:"memoryHardPercent"`
	PodRestartHardThreshold int32   `yaml:"podRestartHardThreshold"`
}

// LoadConfig reads and parses a YAML config file, applying defaults
// for every omitted field.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// setDefaults mirrors the earlier setDefaults, populating every
// tunable constant with a sane default.
func setDefaults(cfg *Config) {
	if cfg.PollingIntervalMs == 0 {
		cfg.PollingIntervalMs = 5_000
	}

	if cfg.Anomaly.EWMAAlpha == 0 {
		cfg.Anomaly.EWMAAlpha = 0.3
	}
	if cfg.Anomaly.EWMAStdDevThreshold == 0 {
		cfg.Anomaly.EWMAStdDevThreshold = 3.0
	}

	if cfg.Queue.DedupWindowMs == 0 {
		cfg.Queue.DedupWindowMs = 300_000
	}
	if cfg.Queue.LeaseTimeoutMs == 0 {
		cfg.Queue.LeaseTimeoutMs = 60_000
	}
	if cfg.Queue.CheckIntervalMs == 0 {
		cfg.Queue.CheckIntervalMs = 15_000
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.SuppressionWindowMs == 0 {
		cfg.Queue.SuppressionWindowMs = 1_800_000
	}

	if cfg.Cascade.WindowMs == 0 {
		cfg.Cascade.WindowMs = 10_000
	}
	if cfg.Cascade.CascadeThreshold == 0 {
		cfg.Cascade.CascadeThreshold = 5
	}
	if cfg.Cascade.SettlingCycles == 0 {
		cfg.Cascade.SettlingCycles = 3
	}
	if cfg.Cascade.MaxConcurrentProposals == 0 {
		cfg.Cascade.MaxConcurrentProposals = 3
	}
	if cfg.Cascade.ExitThresholdMs == 0 {
		cfg.Cascade.ExitThresholdMs = 30_000
	}
	if cfg.Cascade.CheckIntervalMs == 0 {
		cfg.Cascade.CheckIntervalMs = 15_000
	}

	if cfg.Rejection.MaxRejections == 0 {
		cfg.Rejection.MaxRejections = 3
	}
	if cfg.Rejection.RejectionWindowMs == 0 {
		cfg.Rejection.RejectionWindowMs = 3_600_000
	}
	if cfg.Rejection.SuppressionTTLMinutes == 0 {
		cfg.Rejection.SuppressionTTLMinutes = 30
	}

	if cfg.Verification.SoakCycles == 0 {
		cfg.Verification.SoakCycles = 5
	}

	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = "aegis:"
	}
	if cfg.Storage.Qdrant.VectorSize == 0 {
		cfg.Storage.Qdrant.VectorSize = 384
	}
	if cfg.Storage.Qdrant.DistanceMetric == "" {
		cfg.Storage.Qdrant.DistanceMetric = "cosine"
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}

	if cfg.Notification.MinSeverity == "" {
		cfg.Notification.MinSeverity = "warning"
	}

	if cfg.Kubernetes.Kubeconfig == "" {
		cfg.Kubernetes.Kubeconfig = os.Getenv("HOME") + "/.kube/config"
	}
	if cfg.Kubernetes.Namespace == "" {
		cfg.Kubernetes.Namespace = "default"
	}
}
