// Package stats implements the streaming per-(skill, metric) mean,
// variance, and EWMA tracker that drives anomaly verdicts.
//
// An earlier pkg/anomaly.Detector recomputed mean/stddev/EWMA from
// a bounded history slice on every sample (ComputeStats), which is
// simple but O(history) per update and keeps raw samples around
// forever up to maxHistorySize. This tracker keeps the same
// statistical definitions — sample mean, Bessel-corrected variance,
// exponentially weighted moving average seeded from the first sample
// — but updates them incrementally with Welford's algorithm, so a
// verdict is O(1) per sample and no history buffer is retained.
package stats

import (
	"math"
	"sync"

	"github.com/rodgon/aegis/pkg/domain"
)

// MinSamplesForVerdict is the minimum observation count before the
// tracker will report an anomaly: below this, Update returns the zero
// (non-anomalous) Verdict, since there isn't enough history to trust one.
const MinSamplesForVerdict = 10

// Verdict is the result of feeding a sample into the tracker.
type Verdict struct {
	Anomaly  bool
	Severity domain.Severity
	Details  domain.Details
}

// entry holds the Welford accumulators for one (skill, metric) pair.
type entry struct {
	ewma  float64
	count uint64
	mean  float64
	m2    float64
}

// Config holds the tunables configured under the anomaly.* keys.
type Config struct {
	// Alpha is the EWMA smoothing factor, 0 < alpha <= 1.
	Alpha float64
	// StdDevThreshold (T in ) is the number of standard
	// deviations a deviation must exceed to count as an anomaly.
	StdDevThreshold float64
}

// DefaultConfig mirrors its defaults.
func DefaultConfig() Config {
	return Config{Alpha: 0.3, StdDevThreshold: 3.0}
}

// Tracker maintains streaming statistics keyed by (skill, metric).
// It is a single-owner actor: all mutation is serialized behind mu,
// matching the earlier sync.RWMutex-guarded cluster.Manager.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	entries map[key]*entry
}

type key struct {
	skill  domain.Skill
	metric domain.Metric
}

// New creates a Tracker with the given configuration.
func New(cfg Config) *Tracker {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = DefaultConfig().Alpha
	}
	if cfg.StdDevThreshold <= 0 {
		cfg.StdDevThreshold = DefaultConfig().StdDevThreshold
	}
	return &Tracker{
		cfg:     cfg,
		entries: make(map[key]*entry),
	}
}

// Update feeds a new sample for (skill, metric) and returns the
// resulting verdict. Non-numeric inputs are the caller's
// responsibility to filter before calling Update — Go's float64
// cannot represent a non-numeric collector value directly, so callers
// that gather from a map[string]any must skip non-float entries
// themselves; Update itself rejects NaN/Inf samples as a boundary
// check, leaving state untouched.
func (t *Tracker) Update(skill domain.Skill, metric domain.Metric, value float64) Verdict {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Verdict{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{skill: skill, metric: metric}
	e, ok := t.entries[k]
	if !ok {
		e = &entry{ewma: value, count: 1, mean: value, m2: 0}
		t.entries[k] = e
		return Verdict{}
	}

	e.count++
	delta := value - e.mean
	e.mean += delta / float64(e.count)
	delta2 := value - e.mean
	e.m2 += delta * delta2
	e.ewma = t.cfg.Alpha*value + (1-t.cfg.Alpha)*e.ewma

	if e.count < MinSamplesForVerdict {
		return Verdict{}
	}

	variance := e.m2 / float64(e.count-1)
	stddev := math.Sqrt(math.Max(variance, 0))
	deviation := math.Abs(value - e.ewma)

	if stddev <= 0 || deviation <= t.cfg.StdDevThreshold*stddev {
		return Verdict{}
	}

	severity := domain.SeverityWarning
	if deviation > 2*t.cfg.StdDevThreshold*stddev {
		severity = domain.SeverityCritical
	}

	return Verdict{
		Anomaly:  true,
		Severity: severity,
		Details: domain.Details{
			Metric:           metric,
			Value:            value,
			EWMA:             e.ewma,
			StdDev:           stddev,
			DeviationStdDevs: deviation / stddev,
		},
	}
}

// Snapshot returns the current accumulators for a (skill, metric)
// pair, for inspection by metrics exporters and tests. ok is false if
// no sample has ever been recorded for that pair.
type Snapshot struct {
	EWMA   float64
	Count  uint64
	Mean   float64
	StdDev float64
}

// Snapshot reads the current state for (skill, metric) without
// mutating it.
func (t *Tracker) Snapshot(skill domain.Skill, metric domain.Metric) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key{skill: skill, metric: metric}]
	if !ok {
		return Snapshot{}, false
	}
	var stddev float64
	if e.count >= 2 {
		stddev = math.Sqrt(math.Max(e.m2/float64(e.count-1), 0))
	}
	return Snapshot{EWMA: e.ewma, Count: e.count, Mean: e.mean, StdDev: stddev}, true
}

// Reset clears all tracked state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[key]*entry)
}
