package k8s

import (
	"testing"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/rodgon/aegis/pkg/domain"
)

func TestQuantityFloat64_HandlesMillicoresAndWhole(t *testing.T) {
	q := resource.MustParse("250m")
	if v := quantityFloat64(&q); v != 0.25 {
		t.Errorf("expected 0.25 cores, got %f", v)
	}
	q = resource.MustParse("2")
	if v := quantityFloat64(&q); v != 2 {
		t.Errorf("expected 2 cores, got %f", v)
	}
}

func TestQuantityFloat64_HandlesBinaryAndPetaUnits(t *testing.T) {
	q := resource.MustParse("512Mi")
	if v := quantityFloat64(&q); v != 512*1024*1024 {
		t.Errorf("expected 512Mi in bytes, got %f", v)
	}
	q = resource.MustParse("1Gi")
	if v := quantityFloat64(&q); v != 1024*1024*1024 {
		t.Errorf("expected 1Gi in bytes, got %f", v)
	}
	q = resource.MustParse("1Pi")
	if v := quantityFloat64(&q); v != 1024*1024*1024*1024*1024 {
		t.Errorf("expected 1Pi in bytes, got %f", v)
	}
}

func TestQuantityFloat64_NilIsZero(t *testing.T) {
	if v := quantityFloat64(nil); v != 0 {
		t.Errorf("expected 0 for nil quantity, got %f", v)
	}
}

func TestPercentage_ZeroCapacityIsZero(t *testing.T) {
	if v := percentage(5, 0); v != 0 {
		t.Errorf("expected 0 for zero capacity, got %f", v)
	}
}

func TestNodeCollector_CheckFiresOnHardCeiling(t *testing.T) {
	c := &NodeCollector{cpuHardPercent: 90, memHardPercent: 90}

	a, ok := c.Check(map[string]float64{string(domain.MetricCPUPercent): 95})
	if !ok {
		t.Fatal("expected hard-ceiling anomaly")
	}
	if a.Severity != domain.SeverityCritical {
		t.Errorf("expected critical severity, got %s", a.Severity)
	}
	if a.Details.Metric != domain.MetricCPUPercent {
		t.Errorf("expected cpu_percent metric, got %s", a.Details.Metric)
	}
}

func TestNodeCollector_CheckSilentBelowCeiling(t *testing.T) {
	c := &NodeCollector{cpuHardPercent: 90, memHardPercent: 90}
	_, ok := c.Check(map[string]float64{
		string(domain.MetricCPUPercent):    50,
		string(domain.MetricMemoryPercent): 60,
	})
	if ok {
		t.Fatal("expected no anomaly below hard ceiling")
	}
}

func TestNodeCollector_CheckDisabledWhenThresholdZero(t *testing.T) {
	c := &NodeCollector{}
	_, ok := c.Check(map[string]float64{string(domain.MetricCPUPercent): 999})
	if ok {
		t.Fatal("expected hard-ceiling check disabled when threshold is 0")
	}
}
