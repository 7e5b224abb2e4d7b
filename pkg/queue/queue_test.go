package queue

import (
	"testing"

	"github.com/rodgon/aegis/pkg/clock"
	"github.com/rodgon/aegis/pkg/domain"
)

func testAnomaly(value, ewma float64) domain.Anomaly {
	return domain.Anomaly{
		Skill: domain.SkillAPI,
		Details: domain.Details{
			Metric: domain.MetricLatencyMS,
			Value:  value,
			EWMA:   ewma,
			StdDev: 1.0,
		},
	}
}

func testConfig() Config {
	return Config{
		DedupWindowMs:       100,
		LeaseTimeoutMs:      50,
		CheckIntervalMs:     25,
		MaxAttempts:         3,
		SuppressionWindowMs: 1000,
	}
}

func TestEnqueue_InvalidAnomalyRejected(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	_, err := q.Enqueue(domain.Anomaly{Skill: domain.SkillAPI})
	if err != ErrInvalidAnomaly {
		t.Fatalf("expected ErrInvalidAnomaly, got %v", err)
	}
}

func TestEnqueue_FirstEnqueueSucceeds(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	res, err := q.Enqueue(testAnomaly(500, 100))
	if err != nil || res != ResultEnqueued {
		t.Fatalf("expected enqueued, got %v %v", res, err)
	}
}

func TestEnqueue_DedupWithinWindowAndExtension(t *testing.T) {
	clk := clock.NewFake(0)
	q := New(clk, testConfig(), nil)

	res, err := q.Enqueue(testAnomaly(500, 100))
	if err != nil || res != ResultEnqueued {
		t.Fatalf("expected enqueued at t=0, got %v %v", res, err)
	}

	clk.Set(50)
	res, err = q.Enqueue(testAnomaly(500, 100))
	if err != nil || res != ResultDeduplicated {
		t.Fatalf("expected deduplicated at t=50, got %v %v", res, err)
	}

	clk.Set(120) // within the extended window (50+100=150)
	res, err = q.Enqueue(testAnomaly(500, 100))
	if err != nil || res != ResultDeduplicated {
		t.Fatalf("expected deduplicated at t=120 (extended window), got %v %v", res, err)
	}

	clk.Set(300) // past the window extended at t=120 (120+100=220)
	res, err = q.Enqueue(testAnomaly(500, 100))
	if err != nil || res != ResultEnqueued {
		t.Fatalf("expected a second enqueued record at t=300, got %v %v", res, err)
	}
}

func TestEnqueueClaimComplete_FixedTransitionsToVerifying(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	q.Enqueue(testAnomaly(500, 100))

	token, _, err := q.ClaimNext("worker-1")
	if err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if err := q.Complete(token, domain.Fixed()); err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}

	qa, ok := q.Get(token.AnomalyID)
	if !ok {
		t.Fatal("expected record to still exist")
	}
	if qa.State != StateVerifying {
		t.Fatalf("expected verifying, got %s", qa.State)
	}
	if qa.AttemptCount != 1 {
		t.Fatalf("expected attempt_count=1, got %d", qa.AttemptCount)
	}
}

func TestClaimNext_EmptyWhenNoPending(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	_, _, err := q.ClaimNext("worker-1")
	if err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestClaimNext_FIFOOrderByEnqueuedAt(t *testing.T) {
	clk := clock.NewFake(0)
	q := New(clk, testConfig(), nil)

	q.Enqueue(testAnomaly(500, 100)) // fp A, t=0
	clk.Set(10)
	q.Enqueue(domain.Anomaly{
		Skill:   domain.SkillCache,
		Details: domain.Details{Metric: domain.MetricErrorRate, Value: 90, EWMA: 10, StdDev: 1},
	}) // fp B, t=10

	token, a, err := q.ClaimNext("worker-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Skill != domain.SkillAPI {
		t.Fatalf("expected oldest (skill=api) claimed first, got %s", a.Skill)
	}
	_ = token
}

func TestThreeStrikeRetry_EscalatesAndSuppresses(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	q := New(clock.NewFake(0), cfg, nil)

	q.Enqueue(testAnomaly(500, 100))

	for i := 0; i < 3; i++ {
		token, _, err := q.ClaimNext("worker-1")
		if err != nil {
			t.Fatalf("claim %d: unexpected error: %v", i, err)
		}
		if err := q.Complete(token, domain.Retry("r")); err != nil {
			t.Fatalf("complete %d: unexpected error: %v", i, err)
		}
	}

	var found *QueuedAnomaly
	for id := range q.anomalies {
		qa := q.anomalies[id]
		found = qa
		break
	}
	if found == nil {
		t.Fatal("expected a record to remain")
	}
	if found.State != StateEscalated {
		t.Fatalf("expected escalated after 3 retries, got %s", found.State)
	}

	fp := found.Fingerprint
	if !q.Suppressed(fp) {
		t.Fatalf("expected family suppressed after escalation")
	}

	res, err := q.Enqueue(testAnomaly(500, 100))
	if err != nil || res != ResultDeduplicated {
		t.Fatalf("expected deduplicated due to suppression, got %v %v", res, err)
	}
}

func TestComplete_ResolvedDeletesRecord(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	q.Enqueue(testAnomaly(500, 100))
	token, _, _ := q.ClaimNext("worker-1")
	if err := q.Complete(token, domain.Resolved()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := q.Get(token.AnomalyID); ok {
		t.Fatalf("expected record deleted on resolved")
	}
}

func TestComplete_InvalidLeaseRejected(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	q.Enqueue(testAnomaly(500, 100))
	token, _, _ := q.ClaimNext("worker-1")

	bogus := token
	bogus.AgentID = "someone-else"
	if err := q.Complete(bogus, domain.Fixed()); err != ErrInvalidLease {
		t.Fatalf("expected ErrInvalidLease, got %v", err)
	}
}

func TestCleanupTick_RecoversExpiredLease(t *testing.T) {
	clk := clock.NewFake(0)
	cfg := testConfig()
	cfg.LeaseTimeoutMs = 50
	cfg.CheckIntervalMs = 25
	q := New(clk, cfg, nil)

	q.Enqueue(testAnomaly(500, 100))
	token1, _, err := q.ClaimNext("w1")
	if err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}

	clk.Set(60) // past lease_expires = 0+50
	q.CleanupTick()

	token2, _, err := q.ClaimNext("w2")
	if err != nil {
		t.Fatalf("expected w2 to claim recovered anomaly, got error: %v", err)
	}
	if token2.AnomalyID != token1.AnomalyID {
		t.Fatalf("expected same anomaly recovered, got different id")
	}

	qa, _ := q.Get(token2.AnomalyID)
	if qa.AttemptCount != 2 {
		t.Fatalf("expected attempt_count=2 after lease recovery reclaim, got %d", qa.AttemptCount)
	}
}

func TestRelease_ReturnsToPending(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	q.Enqueue(testAnomaly(500, 100))
	token, _, _ := q.ClaimNext("w1")

	if err := q.Release(token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	qa, _ := q.Get(token.AnomalyID)
	if qa.State != StatePending || qa.ClaimedBy != "" {
		t.Fatalf("expected pending/unclaimed after release, got %+v", qa)
	}
}

func TestStats_Escalated24hCountsRetainedTerminalRecords(t *testing.T) {
	q := New(clock.NewFake(0), testConfig(), nil)
	q.Enqueue(testAnomaly(500, 100))
	token, _, _ := q.ClaimNext("w1")
	q.Complete(token, domain.Escalated())

	stats := q.Stats()
	if stats.Escalated != 1 || stats.Escalated24h != 1 {
		t.Fatalf("expected escalated=1 escalated24h=1, got %+v", stats)
	}
}
