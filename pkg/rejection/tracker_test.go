package rejection

import (
	"strings"
	"testing"

	"github.com/rodgon/aegis/pkg/clock"
	"github.com/rodgon/aegis/pkg/domain"
	"github.com/rodgon/aegis/pkg/fingerprint"
	"github.com/rodgon/aegis/pkg/signals"
)

func testFP() fingerprint.Fingerprint {
	return fingerprint.New(domain.SkillDatabase, domain.MetricLatencyMS, domain.DirectionAbove)
}

func TestRecordRejection_ThreeStrikeTable(t *testing.T) {
	tr := New(clock.NewFake(0), DefaultConfig(), nil)

	o1 := tr.RecordRejection(testFP(), "p1", "r1")
	if o1.Strategy != StrategyRetryWithContext || o1.ShouldSuppress {
		t.Fatalf("strike 1: expected retry_with_context, not suppressed, got %+v", o1)
	}
	if !strings.Contains(o1.Message, "retry") || !strings.Contains(o1.Message, "context") {
		t.Fatalf("strike 1 message must mention retry/context, got %q", o1.Message)
	}

	o2 := tr.RecordRejection(testFP(), "p2", "r2")
	if o2.Strategy != StrategyReduceScope || o2.ShouldSuppress {
		t.Fatalf("strike 2: expected reduce_scope, not suppressed, got %+v", o2)
	}
	if !strings.Contains(o2.Message, "conservative") {
		t.Fatalf("strike 2 message must mention conservative, got %q", o2.Message)
	}

	o3 := tr.RecordRejection(testFP(), "p3", "r3")
	if o3.Strategy != StrategyEscalateToHuman || !o3.ShouldSuppress {
		t.Fatalf("strike 3: expected escalate_to_human, suppressed, got %+v", o3)
	}
	if !strings.Contains(o3.Message, "Escalating") || !strings.Contains(o3.Message, "3") {
		t.Fatalf("strike 3 message must mention Escalating and the count, got %q", o3.Message)
	}

	o4 := tr.RecordRejection(testFP(), "p4", "r4")
	if o4.Strategy != StrategyEscalateToHuman || !o4.ShouldSuppress {
		t.Fatalf("strike 4+: expected escalate_to_human to persist, got %+v", o4)
	}
}

func TestRecordRejection_HonorsConfiguredMaxRejections(t *testing.T) {
	cfg := Config{MaxRejections: 5, RejectionWindowMs: 3_600_000, SuppressionTTLMinutes: 30}
	tr := New(clock.NewFake(0), cfg, nil)

	for i := 1; i <= 3; i++ {
		o := tr.RecordRejection(testFP(), "p", "r")
		if o.ShouldSuppress {
			t.Fatalf("strike %d: expected no suppression below MaxRejections=5, got %+v", i, o)
		}
	}

	o4 := tr.RecordRejection(testFP(), "p4", "r4")
	if o4.Strategy != StrategyReduceScope || o4.ShouldSuppress {
		t.Fatalf("strike 4: expected reduce_scope, not suppressed, got %+v", o4)
	}

	o5 := tr.RecordRejection(testFP(), "p5", "r5")
	if o5.Strategy != StrategyEscalateToHuman || !o5.ShouldSuppress {
		t.Fatalf("strike 5: expected escalate_to_human at count==MaxRejections, got %+v", o5)
	}
}

func TestRecordRejection_EmitsHealingBlockedOnSuppress(t *testing.T) {
	var emittedTypes []string
	emitter := signals.EmitFunc(func(cat signals.Category, typ string, payload map[string]any) {
		emittedTypes = append(emittedTypes, typ)
	})
	tr := New(clock.NewFake(0), DefaultConfig(), emitter)

	tr.RecordRejection(testFP(), "p1", "r1")
	tr.RecordRejection(testFP(), "p2", "r2")
	if len(emittedTypes) != 0 {
		t.Fatalf("expected no emission before strike 3, got %v", emittedTypes)
	}
	tr.RecordRejection(testFP(), "p3", "r3")
	if len(emittedTypes) != 1 || emittedTypes[0] != "healing_blocked" {
		t.Fatalf("expected one healing_blocked emission, got %v", emittedTypes)
	}
}

func TestRecordRejection_WindowResetStartsFresh(t *testing.T) {
	clk := clock.NewFake(0)
	cfg := DefaultConfig()
	cfg.RejectionWindowMs = 100
	tr := New(clk, cfg, nil)

	tr.RecordRejection(testFP(), "p1", "r1")
	tr.RecordRejection(testFP(), "p2", "r2")

	clk.Advance(200) // past the rejection window
	o := tr.RecordRejection(testFP(), "p3", "r3")
	if o.RejectionCount != 1 {
		t.Fatalf("expected fresh count=1 after window reset, got %d", o.RejectionCount)
	}
}

func TestRecordRejection_ListsTruncateAtTen(t *testing.T) {
	tr := New(clock.NewFake(0), DefaultConfig(), nil)
	for i := 0; i < 15; i++ {
		tr.RecordRejection(testFP(), "p", "r")
	}
	r := tr.records[testFP().FamilyHash()]
	if len(r.reasons) != maxReasons || len(r.proposalIDs) != maxReasons {
		t.Fatalf("expected lists truncated to %d, got reasons=%d proposal_ids=%d", maxReasons, len(r.reasons), len(r.proposalIDs))
	}
}

func TestClearRejections_RemovesRecord(t *testing.T) {
	tr := New(clock.NewFake(0), DefaultConfig(), nil)
	tr.RecordRejection(testFP(), "p1", "r1")
	tr.ClearRejections(testFP())

	o := tr.RecordRejection(testFP(), "p2", "r2")
	if o.RejectionCount != 1 {
		t.Fatalf("expected fresh count after clear, got %d", o.RejectionCount)
	}
}

func TestCleanupTick_EvictsExpiredRecords(t *testing.T) {
	clk := clock.NewFake(0)
	cfg := DefaultConfig()
	cfg.RejectionWindowMs = 100
	tr := New(clk, cfg, nil)

	tr.RecordRejection(testFP(), "p1", "r1")
	clk.Advance(200)
	tr.CleanupTick()

	if len(tr.records) != 0 {
		t.Fatalf("expected expired record evicted, got %d remaining", len(tr.records))
	}
}
