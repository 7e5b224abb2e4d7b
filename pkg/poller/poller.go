// Package poller runs the periodic collection loop: fan out to
// collectors, drive the stats tracker, and forward verdicts downstream
// to the anomaly queue. Built on the earlier main.go ticker loop
// and pkg/agent.Agent.ObserveClusterWithContext's collect-then-detect
// shape, generalized from "one hardcoded Kubernetes collector" to a
// pluggable Collector registry .
package poller

import (
	"context"
	"log"
	"time"

	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/queue"
	"github.com/rodgon/aegis/pkg/signals"
	"github.com/rodgon/aegis/pkg/stats"
)

// Collector is the external probe contract consumed by the poller.
// Each enabled collector is a distinct implementing type; the poller
// drives them through this interface rather than any concrete
// dispatch, favoring dynamic dispatch over collector-specific logic.
type Collector interface {
	Name() string
	Skill() domain.Skill
	Collect(ctx context.Context) (map[string]float64, error)
	Check(metrics map[string]float64) (domain.Anomaly, bool)
}

// MetricsStore is the external key-value final-sample cache the
// poller writes collected metrics into; the poller only ever writes,
// never reads it back.
type MetricsStore interface {
	Store(collector string, metrics map[string]float64) error
}

// AnomalySink is the subset of *queue.Queue the poller needs: it only
// ever enqueues, treating the queue as the pipeline's operational core
// and the poller as its upstream producer.
type AnomalySink interface {
	Enqueue(a domain.Anomaly) (queue.EnqueueResult, error)
}

// CascadeNotifier is the subset of *cascade.Detector the poller calls
// at the end of every tick.
type CascadeNotifier interface {
	PollingCycleCompleted()
}

// StatsTracker is the subset of *stats.Tracker the poller drives.
type StatsTracker interface {
	Update(skill domain.Skill, metric domain.Metric, value float64) stats.Verdict
}

// Config holds the poller's own tunable.
type Config struct {
	PollingIntervalMs int64
}

// DefaultConfig mirrors its default.
func DefaultConfig() Config {
	return Config{PollingIntervalMs: 5_000}
}

// Poller fans out to its registered collectors on every tick.
type Poller struct {
	collectors []Collector
	stats      StatsTracker
	sink       AnomalySink
	cascade    CascadeNotifier
	store      MetricsStore
	emitter    signals.Emitter
	logger     *log.Logger
}

// New creates a Poller. store, cascade, and emitter may all be nil;
// a nil store skips the metrics-store write, a nil cascade skips the
// end-of-tick notification, a nil emitter is a no-op per pkg/signals.
func New(collectors []Collector, st StatsTracker, sink AnomalySink, cascade CascadeNotifier, store MetricsStore, emitter signals.Emitter, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		collectors: collectors,
		stats:      st,
		sink:       sink,
		cascade:    cascade,
		store:      store,
		emitter:    emitter,
		logger:     logger,
	}
}

// Tick runs one full poll cycle over every registered collector. A
// single collector's error is logged and skipped — it never aborts
// the others.
func (p *Poller) Tick(ctx context.Context) {
	for _, c := range p.collectors {
		p.pollCollector(ctx, c)
	}
	if p.cascade != nil {
		p.cascade.PollingCycleCompleted()
	}
}

func (p *Poller) pollCollector(ctx context.Context, c Collector) {
	metrics, err := c.Collect(ctx)
	if err != nil {
		p.logger.Printf("warn: collector %s: collect failed: %v", c.Name(), err)
		return
	}

	if p.store != nil {
		if err := p.store.Store(c.Name(), metrics); err != nil {
			p.logger.Printf("warn: collector %s: metrics store write failed: %v", c.Name(), err)
		}
	}

	if a, anomalous := c.Check(metrics); anomalous {
		p.forward(a, c.Name())
	}

	if p.stats == nil {
		return
	}
	for key, value := range metrics {
		verdict := p.stats.Update(c.Skill(), domain.Metric(key), value)
		if !verdict.Anomaly {
			continue
		}
		p.forward(domain.Anomaly{
			Skill:     c.Skill(),
			Severity:  verdict.Severity,
			Details:   p.enrich(verdict.Details),
			Timestamp: time.Now(),
		}, c.Name())
	}
}

// enrich fills in defaults for stddev/deviation_stddevs when a
// collector's own check() produced an anomaly without them: a zero
// StdDev becomes 1.0, and a zero DeviationStdDevs becomes
// |value - ewma| / stddev. Metric, Value and EWMA pass through as given.
func (p *Poller) enrich(d domain.Details) domain.Details {
	if d.StdDev == 0 {
		d.StdDev = 1.0
	}
	if d.DeviationStdDevs == 0 && d.StdDev > 0 {
		d.DeviationStdDevs = absFloat(d.Value-d.EWMA) / d.StdDev
	}
	return d
}

func (p *Poller) forward(a domain.Anomaly, collectorName string) {
	if a.Details.StdDev == 0 {
		a.Details = p.enrich(a.Details)
	}
	if p.sink != nil {
		if _, err := p.sink.Enqueue(a); err != nil {
			p.logger.Printf("warn: collector %s: enqueue failed: %v", collectorName, err)
		}
	}
	signals.Safe(p.emitter, signals.CategoryMonitor, signals.TypeAnomalyDetected, map[string]any{
		"skill":     a.Skill,
		"severity":  a.Severity,
		"details":   a.Details,
		"timestamp": a.Timestamp,
	})
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
