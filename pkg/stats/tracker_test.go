package stats

import (
	"math"
	"testing"

	"github.com/rodgon/aegis/pkg/domain"
)

func TestUpdate_SuppressedBelowMinSamples(t *testing.T) {
	tr := New(DefaultConfig())
	for i := 0; i < MinSamplesForVerdict-1; i++ {
		v := tr.Update(domain.SkillAPI, domain.MetricLatencyMS, 100)
		if v.Anomaly {
			t.Fatalf("sample %d: expected no anomaly before min samples", i)
		}
	}
}

func TestUpdate_ConstantStreamConverges(t *testing.T) {
	tr := New(DefaultConfig())
	for i := 0; i < 50; i++ {
		tr.Update(domain.SkillAPI, domain.MetricLatencyMS, 42)
	}
	snap, ok := tr.Snapshot(domain.SkillAPI, domain.MetricLatencyMS)
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if math.Abs(snap.EWMA-42) > 1e-9 {
		t.Fatalf("expected ewma to converge to 42, got %f", snap.EWMA)
	}
	if snap.StdDev != 0 {
		t.Fatalf("expected zero stddev for constant stream, got %f", snap.StdDev)
	}
}

func TestUpdate_SpikeDetectedAsCriticalAnomaly(t *testing.T) {
	tr := New(Config{Alpha: 0.3, StdDevThreshold: 3.0})
	base := 100.0
	noise := []float64{0, 0.5, 0.3, -0.2, 0.1, -0.4, 0.2, 0.6, -0.1, 0.4,
		-0.3, 0.2, 0.1, -0.5, 0.3, 0.2, -0.1, 0.4, -0.2, 0.1,
		0.3, -0.4, 0.2, 0.5, -0.3, 0.1, -0.2, 0.4, -0.1, 0.2}
	for _, n := range noise {
		v := tr.Update(domain.SkillAPI, domain.MetricLatencyMS, base+n)
		if v.Anomaly {
			t.Fatalf("unexpected anomaly during noise warmup: %+v", v)
		}
	}

	verdict := tr.Update(domain.SkillAPI, domain.MetricLatencyMS, 500.0)
	if !verdict.Anomaly {
		t.Fatalf("expected anomaly on spike, got none")
	}
	if verdict.Severity != domain.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", verdict.Severity)
	}
	if verdict.Details.DeviationStdDevs <= 3.0 {
		t.Fatalf("expected deviation_stddevs > 3, got %f", verdict.Details.DeviationStdDevs)
	}

	snap, _ := tr.Snapshot(domain.SkillAPI, domain.MetricLatencyMS)
	if snap.Count != 31 {
		t.Fatalf("expected count=31, got %d", snap.Count)
	}
}

func TestUpdate_NonNumericGuardedByCaller_NaNIgnored(t *testing.T) {
	tr := New(DefaultConfig())
	v := tr.Update(domain.SkillAPI, domain.MetricLatencyMS, math.NaN())
	if v.Anomaly {
		t.Fatalf("NaN sample must never produce an anomaly")
	}
	if _, ok := tr.Snapshot(domain.SkillAPI, domain.MetricLatencyMS); ok {
		t.Fatalf("NaN sample must not create tracker state")
	}
}

func TestUpdate_FirstSampleSeedsEWMA(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Update(domain.SkillCache, domain.MetricErrorRate, 7)
	snap, ok := tr.Snapshot(domain.SkillCache, domain.MetricErrorRate)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if snap.EWMA != 7 || snap.Mean != 7 || snap.Count != 1 {
		t.Fatalf("expected first-sample seeding, got %+v", snap)
	}
}

func TestReset_ClearsAllState(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Update(domain.SkillAPI, domain.MetricLatencyMS, 1)
	tr.Reset()
	if _, ok := tr.Snapshot(domain.SkillAPI, domain.MetricLatencyMS); ok {
		t.Fatalf("expected no state after reset")
	}
}
