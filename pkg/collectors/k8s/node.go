// Package k8s adapts the earlier Kubernetes collection logic
// (pkg/agent.go's collectNodes/calculateCPUPercentage/getPodRestartCount)
// into poller.Collector implementations: NodeCollector reports
// cluster-wide CPU/memory utilization, PodCollector reports pod
// restart pressure. Unlike the earlier collectNodes, unit conversion
// is delegated to resource.Quantity.AsApproximateFloat64 instead of
// re-parsing the quantity's string form by hand.
package k8s

import (
	"context"
	"fmt"
	"log"

	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsapi "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/rodgon/aegis/pkg/domain"
)

// Config selects which cluster a collector talks to.
type Config struct {
	Kubeconfig string
	Context    string
}

// BuildRestConfig loads a *rest.Config from a kubeconfig path, the
// same clientcmd.BuildConfigFromFlags call the prior design uses.
func BuildRestConfig(cfg Config) (*rest.Config, error) {
	restCfg, err := clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}
	return restCfg, nil
}

// NodeCollector reports cluster-average node CPU/memory utilization
// percentages. Its Check applies a hard ceiling independent of the
// statistical EWMA baseline the poller maintains via pkg/stats — an
// earlier agent.go used exactly this kind of fixed threshold
// (cfg.AnomalyDetection.CPUThreshold) as its only detection method; here
// it survives as a fast-path complement to EWMA, not a replacement.
type NodeCollector struct {
	clientset      kubernetes.Interface
	metricsClient  metricsv.Interface
	cpuHardPercent float64
	memHardPercent float64
	logger         *log.Logger
}

// NewNodeCollector builds a NodeCollector from a REST config. hard
// thresholds of 0 disable the corresponding hard-ceiling check.
func NewNodeCollector(restCfg *rest.Config, cpuHardPercent, memHardPercent float64, logger *log.Logger) (*NodeCollector, error) {
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	metricsClient, err := metricsv.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &NodeCollector{
		clientset:      clientset,
		metricsClient:  metricsClient,
		cpuHardPercent: cpuHardPercent,
		memHardPercent: memHardPercent,
		logger:         logger,
	}, nil
}

func (c *NodeCollector) Name() string       { return "k8s-nodes" }
func (c *NodeCollector) Skill() domain.Skill { return domain.SkillNode }

// Collect lists nodes and their metrics-server usage, then averages
// CPU/memory utilization percentage across the cluster.
func (c *NodeCollector) Collect(ctx context.Context) (map[string]float64, error) {
	nodeList, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var nodeMetrics *metricsapi.NodeMetricsList
	nodeMetrics, err = c.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		c.logger.Printf("k8s-nodes: metrics-server unavailable: %v", err)
		nodeMetrics = nil
	}

	var cpuSum, memSum float64
	var n int
	for _, node := range nodeList.Items {
		cpuUsage := resource.Quantity{}
		memUsage := resource.Quantity{}
		if nodeMetrics != nil {
			for _, m := range nodeMetrics.Items {
				if m.Name == node.Name {
					cpuUsage = *m.Usage.Cpu()
					memUsage = *m.Usage.Memory()
					break
				}
			}
		}
		cpuCapacity := node.Status.Capacity.Cpu()
		memCapacity := node.Status.Capacity.Memory()

		cpuSum += percentage(quantityFloat64(&cpuUsage), quantityFloat64(cpuCapacity))
		memSum += percentage(quantityFloat64(&memUsage), quantityFloat64(memCapacity))
		n++
	}

	if n == 0 {
		return map[string]float64{}, nil
	}

	return map[string]float64{
		string(domain.MetricCPUPercent):    cpuSum / float64(n),
		string(domain.MetricMemoryPercent): memSum / float64(n),
	}, nil
}

// Check applies the hard ceiling independent of the poller's
// statistical detection path.
func (c *NodeCollector) Check(metrics map[string]float64) (domain.Anomaly, bool) {
	if c.cpuHardPercent > 0 {
		if v := metrics[string(domain.MetricCPUPercent)]; v >= c.cpuHardPercent {
			return c.hardAnomaly(domain.MetricCPUPercent, v, c.cpuHardPercent), true
		}
	}
	if c.memHardPercent > 0 {
		if v := metrics[string(domain.MetricMemoryPercent)]; v >= c.memHardPercent {
			return c.hardAnomaly(domain.MetricMemoryPercent, v, c.memHardPercent), true
		}
	}
	return domain.Anomaly{}, false
}

func (c *NodeCollector) hardAnomaly(metric domain.Metric, value, threshold float64) domain.Anomaly {
	return domain.Anomaly{
		Skill:    domain.SkillNode,
		Severity: domain.SeverityCritical,
		Details: domain.Details{
			Metric: metric,
			Value:  value,
			Extra:  map[string]any{"hard_threshold": threshold},
		},
	}
}

func percentage(usage, capacity float64) float64 {
	if capacity == 0 {
		return 0
	}
	return (usage / capacity) * 100
}

// quantityFloat64 reads a resource.Quantity's value as a float64,
// independent of the binary/decimal unit suffix it was serialized with
// (Ki/Mi/Gi/Ti/Pi/Ei or k/M/G/T/P/E, or a bare millicore "m" for CPU).
// A nil Quantity reads as 0; Collect passes a zero Quantity for a node
// with no metrics-server sample, which also reads as 0.
func quantityFloat64(q *resource.Quantity) float64 {
	if q == nil {
		return 0
	}
	return q.AsApproximateFloat64()
}
