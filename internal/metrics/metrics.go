// Package metrics implements engine.Metrics over Prometheus, adapted from
// the teacher's graph.PrometheusMetrics collector: the same six gauges and
// counters, narrowed to the unlabeled per-call shape engine.Metrics exposes
// and labeled once per Collector by workflow ID instead of per call by
// run_id/node_id, since one Collector is meant to be shared by every
// execution of a single DAGEngine rather than constructed per run.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements engine.Metrics over a set of Prometheus collectors
// namespaced "agentflow_" and labeled by workflowID.
type Collector struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge
	stepLatency   prometheus.Histogram
	retries       prometheus.Counter
	mergeConflicts prometheus.Counter
	backpressure  prometheus.Counter

	mu      sync.RWMutex
	enabled bool
}

// New registers a Collector's metrics with registry (prometheus.DefaultRegisterer
// if nil), labeled by workflowID.
func New(registry prometheus.Registerer, workflowID string) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	labels := prometheus.Labels{"workflow_id": workflowID}

	return &Collector{
		enabled: true,
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "agentflow",
			Name:        "inflight_nodes",
			Help:        "Current number of nodes executing concurrently",
			ConstLabels: labels,
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "agentflow",
			Name:        "queue_depth",
			Help:        "Number of completed-but-undrained results buffered in the scheduler",
			ConstLabels: labels,
		}),
		stepLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "agentflow",
			Name:        "step_latency_ms",
			Help:        "Node execution duration in milliseconds",
			Buckets:     []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
			ConstLabels: labels,
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "agentflow",
			Name:        "retries_total",
			Help:        "Cumulative rejection-feedback re-entries across all executions",
			ConstLabels: labels,
		}),
		mergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "agentflow",
			Name:        "merge_conflicts_total",
			Help:        "Merge nodes whose join readiness was contended by concurrent branch completions",
			ConstLabels: labels,
		}),
		backpressure: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "agentflow",
			Name:        "backpressure_events_total",
			Help:        "Scheduler ticks where the completion queue was at capacity",
			ConstLabels: labels,
		}),
	}
}

func (c *Collector) SetInFlight(n int) {
	if !c.isEnabled() {
		return
	}
	c.inflightNodes.Set(float64(n))
}

func (c *Collector) SetQueueDepth(n int) {
	if !c.isEnabled() {
		return
	}
	c.queueDepth.Set(float64(n))
}

func (c *Collector) ObserveStepLatency(d time.Duration) {
	if !c.isEnabled() {
		return
	}
	c.stepLatency.Observe(float64(d.Milliseconds()))
}

func (c *Collector) IncRetries() {
	if !c.isEnabled() {
		return
	}
	c.retries.Inc()
}

func (c *Collector) IncMergeConflicts() {
	if !c.isEnabled() {
		return
	}
	c.mergeConflicts.Inc()
}

func (c *Collector) IncBackpressureEvents() {
	if !c.isEnabled() {
		return
	}
	c.backpressure.Inc()
}

// Disable stops recording new observations, useful for tests.
func (c *Collector) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

// Enable resumes recording after Disable.
func (c *Collector) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

func (c *Collector) isEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}
