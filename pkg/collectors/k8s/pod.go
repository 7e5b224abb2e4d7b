package k8s

import (
	"context"
	"fmt"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/rodgon/aegis/pkg/domain"
)

// PodCollector reports the highest pod restart count seen across a
// namespace, grounded on the earlier collectPods/getPodRestartCount.
// Its Check applies the same hard-ceiling complement NodeCollector
// does.
type PodCollector struct {
	clientset     kubernetes.Interface
	namespace     string
	hardThreshold int32
}

// NewPodCollector builds a PodCollector scoped to one namespace ("" for
// all namespaces). hardThreshold of 0 disables the hard-ceiling check.
func NewPodCollector(restCfg *rest.Config, namespace string, hardThreshold int32) (*PodCollector, error) {
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return &PodCollector{clientset: clientset, namespace: namespace, hardThreshold: hardThreshold}, nil
}

func (c *PodCollector) Name() string        { return "k8s-pods" }
func (c *PodCollector) Skill() domain.Skill { return domain.SkillWorkerPool }

// Collect reports the maximum per-pod restart count observed in the
// namespace, the signal that actually indicates a crash-looping
// workload (an average would dilute a single hot pod into noise).
func (c *PodCollector) Collect(ctx context.Context) (map[string]float64, error) {
	podList, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	var maxRestarts int32
	for _, pod := range podList.Items {
		if r := podRestartCount(&pod); r > maxRestarts {
			maxRestarts = r
		}
	}

	return map[string]float64{
		string(domain.MetricRestartCount): float64(maxRestarts),
	}, nil
}

func (c *PodCollector) Check(metrics map[string]float64) (domain.Anomaly, bool) {
	if c.hardThreshold <= 0 {
		return domain.Anomaly{}, false
	}
	v := metrics[string(domain.MetricRestartCount)]
	if v < float64(c.hardThreshold) {
		return domain.Anomaly{}, false
	}
	return domain.Anomaly{
		Skill:    domain.SkillWorkerPool,
		Severity: domain.SeverityCritical,
		Details: domain.Details{
			Metric: domain.MetricRestartCount,
			Value:  v,
			Extra:  map[string]any{"hard_threshold": c.hardThreshold},
		},
	}, true
}

func podRestartCount(pod *v1.Pod) int32 {
	var restarts int32
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
	}
	return restarts
}
