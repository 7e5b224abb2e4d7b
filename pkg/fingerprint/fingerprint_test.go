package fingerprint

import (
	"testing"

	"github.com/rodgon/aegis/pkg/domain"
)

func TestFromAnomaly_MissingMetric(t *testing.T) {
	_, err := FromAnomaly(domain.Anomaly{Skill: domain.SkillAPI})
	if err != ErrInvalidAnomaly {
		t.Fatalf("expected ErrInvalidAnomaly, got %v", err)
	}
}

func TestFromAnomaly_Direction(t *testing.T) {
	above, err := FromAnomaly(domain.Anomaly{
		Skill: domain.SkillAPI,
		Details: domain.Details{
			Metric: domain.MetricLatencyMS,
			Value:  500,
			EWMA:   100,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if above.Direction != domain.DirectionAbove {
		t.Fatalf("expected above, got %s", above.Direction)
	}

	below, err := FromAnomaly(domain.Anomaly{
		Skill: domain.SkillAPI,
		Details: domain.Details{
			Metric: domain.MetricLatencyMS,
			Value:  10,
			EWMA:   100,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if below.Direction != domain.DirectionBelow {
		t.Fatalf("expected below, got %s", below.Direction)
	}
}

func TestHash_StableWithinProcess(t *testing.T) {
	fp := New(domain.SkillDatabase, domain.MetricLatencyMS, domain.DirectionAbove)
	h1 := fp.Hash()
	h2 := fp.Hash()
	if h1 != h2 {
		t.Fatalf("hash not stable: %d != %d", h1, h2)
	}
}

func TestFamilyHash_IgnoresDirection(t *testing.T) {
	above := New(domain.SkillDatabase, domain.MetricLatencyMS, domain.DirectionAbove)
	below := New(domain.SkillDatabase, domain.MetricLatencyMS, domain.DirectionBelow)

	if above.Hash() == below.Hash() {
		t.Fatalf("expected distinct hashes for distinct directions")
	}
	if above.FamilyHash() != below.FamilyHash() {
		t.Fatalf("expected identical family hashes, got %d != %d", above.FamilyHash(), below.FamilyHash())
	}
}

func TestFamilyHash_DiffersAcrossMetrics(t *testing.T) {
	a := New(domain.SkillDatabase, domain.MetricLatencyMS, domain.DirectionAbove)
	b := New(domain.SkillDatabase, domain.MetricErrorRate, domain.DirectionAbove)
	if a.FamilyHash() == b.FamilyHash() {
		t.Fatalf("expected distinct family hashes for distinct metrics")
	}
}
