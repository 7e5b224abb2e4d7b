package cascade

import (
	"testing"

	"github.com/rodgon/aegis/pkg/clock"
)

func testConfig() Config {
	return Config{
		WindowMs:               100,
		CascadeThreshold:       3,
		SettlingCycles:         2,
		MaxConcurrentProposals: 1,
		ExitThresholdMs:        50,
		CheckIntervalMs:        10,
	}
}

func TestRecordAnomaly_EntersCascadeAtThreshold(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())

	if ev := d.RecordAnomaly(); ev != nil {
		t.Fatalf("expected no event on 1st anomaly, got %+v", ev)
	}
	if ev := d.RecordAnomaly(); ev != nil {
		t.Fatalf("expected no event on 2nd anomaly, got %+v", ev)
	}
	ev := d.RecordAnomaly()
	if ev == nil || ev.Kind != "cascade_detected" {
		t.Fatalf("expected cascade_detected on 3rd anomaly, got %+v", ev)
	}
	if !d.InCascade() {
		t.Fatalf("expected InCascade true")
	}
}

func TestRecordAnomaly_WindowSlidesOldEventsOut(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())

	d.RecordAnomaly()
	d.RecordAnomaly()
	clk.Advance(200) // outside the 100ms window, both prior anomalies age out
	ev := d.RecordAnomaly()
	if ev != nil {
		t.Fatalf("expected no cascade once old anomalies slid out of window, got %+v", ev)
	}
}

func TestCleanupTick_ExitsCascadeAfterQuietPeriod(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())

	d.RecordAnomaly()
	d.RecordAnomaly()
	d.RecordAnomaly() // enters cascade at t=0

	clk.Advance(10)
	if ev := d.CleanupTick(); ev != nil {
		t.Fatalf("expected no exit before ExitThresholdMs elapsed, got %+v", ev)
	}

	clk.Advance(60) // now 70ms since last anomaly, > ExitThresholdMs=50
	ev := d.CleanupTick()
	if ev == nil || ev.Kind != "cascade_resolved" {
		t.Fatalf("expected cascade_resolved, got %+v", ev)
	}
	if d.InCascade() {
		t.Fatalf("expected InCascade false after resolution")
	}
}

func TestCleanupTick_StaysInCascadeIfStillSpiking(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())

	d.RecordAnomaly()
	d.RecordAnomaly()
	d.RecordAnomaly()

	clk.Advance(40)
	d.RecordAnomaly() // refreshes lastAboveThresholdAt since rate is still >= threshold

	clk.Advance(40)
	ev := d.CleanupTick()
	if ev != nil {
		t.Fatalf("expected to remain in cascade, got %+v", ev)
	}
	if !d.InCascade() {
		t.Fatalf("expected still InCascade")
	}
}

func TestShouldSettle_CountsDownWithPollingCycles(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())
	d.RecordAnomaly()
	d.RecordAnomaly()
	d.RecordAnomaly()

	if !d.ShouldSettle() {
		t.Fatalf("expected ShouldSettle true immediately after entering cascade")
	}
	d.PollingCycleCompleted()
	if !d.ShouldSettle() {
		t.Fatalf("expected ShouldSettle true with 1 cycle remaining")
	}
	d.PollingCycleCompleted()
	if d.ShouldSettle() {
		t.Fatalf("expected ShouldSettle false once settling cycles exhausted")
	}
	// further decrements must not go negative or panic
	d.PollingCycleCompleted()
}

func TestMaxConcurrentProposals_UnboundedOutsideCascade(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())
	if got := d.MaxConcurrentProposals(); got != Unbounded {
		t.Fatalf("expected Unbounded, got %d", got)
	}
	d.RecordAnomaly()
	d.RecordAnomaly()
	d.RecordAnomaly()
	if got := d.MaxConcurrentProposals(); got != testConfig().MaxConcurrentProposals {
		t.Fatalf("expected capped proposals during cascade, got %d", got)
	}
}

func TestDedupMultiplier_ShortensDuringCascade(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())
	if got := d.DedupMultiplier(); got != 1.0 {
		t.Fatalf("expected 1.0 outside cascade, got %f", got)
	}
	d.RecordAnomaly()
	d.RecordAnomaly()
	d.RecordAnomaly()
	if got := d.DedupMultiplier(); got != 0.2 {
		t.Fatalf("expected 0.2 during cascade, got %f", got)
	}
}

func TestReset_ClearsCascadeState(t *testing.T) {
	clk := clock.NewFake(0)
	d := New(clk, testConfig())
	d.RecordAnomaly()
	d.RecordAnomaly()
	d.RecordAnomaly()
	d.Reset()
	if d.InCascade() {
		t.Fatalf("expected InCascade false after reset")
	}
	stats := d.Stats()
	if stats.CascadesDetected != 0 || stats.TotalAnomalies != 0 {
		t.Fatalf("expected zeroed counters after reset, got %+v", stats)
	}
}
