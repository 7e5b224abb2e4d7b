// Command aegis-agent loads a configuration file, wires every pipeline
// component together, and runs the poller loop until it receives
// SIGINT or SIGTERM. Built on the earlier main.go: flag-based
// config path, signal.Notify on the same two signals, a background
// metrics server — generalized from one hardcoded ticker loop into the
// supervisor's set of independently restarted periodic components.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rodgon/aegis/pkg/cascade"
	"github.com/rodgon/aegis/pkg/clock"
	"github.com/rodgon/aegis/pkg/collectors/k8s"
	"github.com/rodgon/aegis/pkg/config"
	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/history"
	"github.com/rodgon/aegis/pkg/logging"
	"github.com/rodgon/aegis/pkg/metrics"
	"github.com/rodgon/aegis/pkg/notification"
	"github.com/rodgon/aegis/pkg/poller"
	"github.com/rodgon/aegis/pkg/queue"
	"github.com/rodgon/aegis/pkg/rejection"
	"github.com/rodgon/aegis/pkg/signals"
	"github.com/rodgon/aegis/pkg/stats"
	"github.com/rodgon/aegis/pkg/store"
	"github.com/rodgon/aegis/pkg/supervisor"
	"github.com/rodgon/aegis/pkg/verification"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(nil)
	ctx := context.Background()

	clk := clock.NewSystem()
	exporter := metrics.NewExporter()

	dispatcher := buildDispatcher(cfg, logger)
	historyTracker := buildHistoryTracker(ctx, cfg, logger)
	metricsCache, bus := buildStore(ctx, cfg, logger)

	fanout := signals.Fanout{exporter}
	if dispatcher != nil {
		fanout = append(fanout, dispatcher)
	}
	if historyTracker != nil {
		fanout = append(fanout, historyTracker)
	}
	if bus != nil {
		fanout = append(fanout, bus)
	}

	statsTracker := stats.New(stats.Config{
		Alpha:           cfg.Anomaly.EWMAAlpha,
		StdDevThreshold: cfg.Anomaly.EWMAStdDevThreshold,
	})

	cascadeDetector := cascade.New(clk, cascade.Config{
		WindowMs:               cfg.Cascade.WindowMs,
		CascadeThreshold:       cfg.Cascade.CascadeThreshold,
		SettlingCycles:         cfg.Cascade.SettlingCycles,
		MaxConcurrentProposals: cfg.Cascade.MaxConcurrentProposals,
		ExitThresholdMs:        cfg.Cascade.ExitThresholdMs,
		CheckIntervalMs:        cfg.Cascade.CheckIntervalMs,
	})
	cascadeLink := &cascadeEmittingLink{det: cascadeDetector, emitter: fanout}

	q := queue.New(clk, queue.Config{
		DedupWindowMs:       cfg.Queue.DedupWindowMs,
		LeaseTimeoutMs:      cfg.Queue.LeaseTimeoutMs,
		CheckIntervalMs:     cfg.Queue.CheckIntervalMs,
		MaxAttempts:         cfg.Queue.MaxAttempts,
		SuppressionWindowMs: cfg.Queue.SuppressionWindowMs,
	}, cascadeLink)
	q.SetEmitter(fanout)

	verificationTracker := verification.New(clk, verification.Config{SoakCycles: cfg.Verification.SoakCycles}, fanout)
	verifDriver := &verificationDriver{tracker: verificationTracker}
	fanout = append(fanout, verifDriver)

	rejectionTracker := rejection.New(clk, rejection.Config{
		MaxRejections:         cfg.Rejection.MaxRejections,
		RejectionWindowMs:     cfg.Rejection.RejectionWindowMs,
		SuppressionTTLMinutes: cfg.Rejection.SuppressionTTLMinutes,
	}, fanout)
	// RecordRejection is driven by an external diagnostic worker that
	// claims anomalies off the queue and proposes fixes — automatic
	// code modification is out of scope for this process. CleanupTick
	// is still this process's responsibility, registered below.

	collectors := buildCollectors(cfg, logger)

	p := poller.New(collectors, statsTracker, q, cascadeDetector, metricsCache, fanout, logger.Std())

	sup := supervisor.New(logger.Std())
	pollInterval := time.Duration(cfg.PollingIntervalMs) * time.Millisecond
	sup.Register("poller", pollInterval, func(ctx context.Context) {
		p.Tick(ctx)
	})
	sup.Register("queue-cleanup", time.Duration(cfg.Queue.CheckIntervalMs)*time.Millisecond, func(ctx context.Context) {
		q.CleanupTick()
		exporter.UpdateQueueStats(q.Stats())
	})
	sup.Register("cascade-cleanup", time.Duration(cfg.Cascade.CheckIntervalMs)*time.Millisecond, func(ctx context.Context) {
		if ev := cascadeDetector.CleanupTick(); ev != nil {
			signals.Safe(fanout, signals.CategoryMonitor, signals.TypeCascadeResolved, map[string]any{
				"duration_ms": ev.DurationMs,
			})
		}
		exporter.UpdateCascadeStats(cascadeDetector.Stats())
	})
	sup.Register("rejection-cleanup", time.Duration(cfg.Rejection.RejectionWindowMs)*time.Millisecond, func(ctx context.Context) {
		rejectionTracker.CleanupTick()
	})
	sup.Register("verification-tick", pollInterval, func(ctx context.Context) {
		for _, result := range verifDriver.Tick() {
			exporter.RecordVerificationOutcome(result.Outcome)
		}
	})

	componentNames := []string{"poller", "queue-cleanup", "cascade-cleanup", "rejection-cleanup", "verification-tick"}
	server := metrics.NewServer(cfg.Metrics.ListenAddr, exporter, sup, componentNames, q)
	server.StartAsync(func(err error) {
		logger.Warnf("metrics server: %v", err)
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Infof("shutdown signal received")
	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("metrics server shutdown: %v", err)
	}
}

// cascadeEmittingLink adapts *cascade.Detector into queue.CascadeLink,
// forwarding the cascade_detected event the queue itself discards
// (queue.go's notifyCascadeLocked ignores RecordAnomaly's return) onto
// the shared signal bus, and exposing ShouldSettle so the queue's
// settling-backpressure type assertion still finds it.
type cascadeEmittingLink struct {
	det     *cascade.Detector
	emitter signals.Emitter
}

func (c *cascadeEmittingLink) DedupMultiplier() float64 { return c.det.DedupMultiplier() }

func (c *cascadeEmittingLink) RecordAnomaly() *cascade.Event {
	ev := c.det.RecordAnomaly()
	if ev != nil {
		signals.Safe(c.emitter, signals.CategoryMonitor, signals.TypeCascadeDetected, map[string]any{
			"rate":      ev.Rate,
			"threshold": ev.Threshold,
		})
	}
	return ev
}

func (c *cascadeEmittingLink) ShouldSettle() bool { return c.det.ShouldSettle() }

// verificationDriver buffers the anomalies one poll cycle reports
// through signals.TypeAnomalyDetected and replays them into
// Tracker.CheckRecurrences immediately before Tracker.Tick, preserving
// the "CheckRecurrences before Tick within a cycle" ordering the
// tracker requires without making pkg/poller or pkg/verification
// depend on each other directly.
type verificationDriver struct {
	tracker *verification.Tracker
	pending []domain.Anomaly
}

func (v *verificationDriver) Emit(category signals.Category, eventType string, payload map[string]any) {
	if eventType != signals.TypeAnomalyDetected {
		return
	}
	skill, _ := payload["skill"].(domain.Skill)
	severity, _ := payload["severity"].(domain.Severity)
	details, _ := payload["details"].(domain.Details)
	v.pending = append(v.pending, domain.Anomaly{Skill: skill, Severity: severity, Details: details})
}

// Tick runs one verification cycle: check the buffered anomalies for
// recurrence against active soak periods, then advance every
// remaining soak period by one cycle. Results from both phases are
// returned together for the caller to record as metrics.
func (v *verificationDriver) Tick() []verification.Result {
	batch := v.pending
	v.pending = nil
	results := v.tracker.CheckRecurrences(batch)
	return append(results, v.tracker.Tick()...)
}

func buildDispatcher(cfg *config.Config, logger *logging.Logger) *notification.Dispatcher {
	if !cfg.Notification.Enabled {
		return nil
	}
	notifier, err := notification.NewNotifier(notification.NotifierConfig{
		Type: cfg.Notification.Type,
		Slack: notification.SlackConfig{
			WebhookURL: cfg.Notification.Slack.WebhookURL,
			Channel:    cfg.Notification.Slack.Channel,
		},
		Email: notification.EmailConfig{
			SMTPHost:     cfg.Notification.Email.SMTPHost,
			SMTPPort:     cfg.Notification.Email.SMTPPort,
			SMTPUser:     cfg.Notification.Email.SMTPUser,
			SMTPPassword: cfg.Notification.Email.SMTPPassword,
			From:         cfg.Notification.Email.From,
			To:           cfg.Notification.Email.To,
		},
		Webhook: notification.WebhookConfig{
			URL:     cfg.Notification.Webhook.URL,
			Method:  cfg.Notification.Webhook.Method,
			Headers: cfg.Notification.Webhook.Headers,
		},
		Alertmanager: notification.AlertmanagerConfig{
			URL:           cfg.Notification.Alertmanager.URL,
			DefaultLabels: cfg.Notification.Alertmanager.DefaultLabels,
		},
	})
	if err != nil {
		logger.Warnf("notification: %v, notifications disabled", err)
		return nil
	}
	return notification.New(notifier, domain.Severity(cfg.Notification.MinSeverity), logger.Std())
}

func buildHistoryTracker(ctx context.Context, cfg *config.Config, logger *logging.Logger) *history.Tracker {
	encoder := history.NewHashEncoder(cfg.Storage.Qdrant.VectorSize)
	var hstore history.Store
	var err error
	switch cfg.Storage.History {
	case "qdrant":
		hstore, err = history.NewQdrantStore(cfg.Storage.Qdrant.URL, cfg.Storage.Qdrant.Collection, cfg.Storage.Qdrant.VectorSize, cfg.Storage.Qdrant.DistanceMetric)
	case "redis":
		hstore, err = history.NewRedisStore(ctx, cfg.Storage.Redis.URL, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.KeyPrefix)
	default:
		return nil
	}
	if err != nil {
		logger.Warnf("history store %q unavailable: %v, incident similarity search disabled", cfg.Storage.History, err)
		return nil
	}
	return history.New(hstore, encoder, logger.Warnf)
}

func buildStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (poller.MetricsStore, *store.Bus) {
	if cfg.Storage.Redis.URL == "" {
		return nil, nil
	}
	cache, err := store.NewMetricsCache(ctx, cfg.Storage.Redis.URL, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.KeyPrefix)
	if err != nil {
		logger.Warnf("redis metrics cache unavailable: %v, collectors will not cache last-sample metrics", err)
		return nil, nil
	}
	bus := store.NewBus(cache.Client(), "", logger.Debugf)
	return cache, bus
}

func buildCollectors(cfg *config.Config, logger *logging.Logger) []poller.Collector {
	if !cfg.Kubernetes.Enabled {
		return nil
	}
	restCfg, err := k8s.BuildRestConfig(k8s.Config{Kubeconfig: cfg.Kubernetes.Kubeconfig, Context: cfg.Kubernetes.Context})
	if err != nil {
		logger.Warnf("kubernetes collectors disabled: %v", err)
		return nil
	}

	var collectors []poller.Collector
	nodeCollector, err := k8s.NewNodeCollector(restCfg, cfg.Kubernetes.CPUHardPercent, cfg.Kubernetes.MemoryHardPercent, logger.Std())
	if err != nil {
		logger.Warnf("node collector disabled: %v", err)
	} else {
		collectors = append(collectors, nodeCollector)
	}

	podCollector, err := k8s.NewPodCollector(restCfg, cfg.Kubernetes.Namespace, cfg.Kubernetes.PodRestartHardThreshold)
	if err != nil {
		logger.Warnf("pod collector disabled: %v", err)
	} else {
		collectors = append(collectors, podCollector)
	}
	return collectors
}
