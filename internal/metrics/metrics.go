// Package metrics exposes Prometheus instrumentation for graph runs.
//
// Every Collector owns a private registry, so several engines (or tests) can
// coexist in one process. All methods are safe on a nil *Collector.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

const namespace = "lawgraph"

// Run outcomes.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunBlocked   = "blocked"
	RunError     = "error"
)

type Collector struct {
	registry *prometheus.Registry

	nodeExecutions *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	graphRuns      *prometheus.CounterVec
	runDuration    prometheus.Histogram
}

// New returns a Collector with its metrics registered. When withRuntime is
// set the Go runtime and process collectors are registered too.
func New(withRuntime bool) (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Graph nodes that reached a terminal state, by node kind and outcome.",
		}, []string{"kind", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Conflicts reported by the detector, by type and severity.",
		}, []string{"type", "severity"}),
		graphRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_runs_total",
			Help:      "Graph executions by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_run_duration_seconds",
			Help:      "Wall time of graph executions that started.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	cs := []prometheus.Collector{c.nodeExecutions, c.conflicts, c.graphRuns, c.runDuration}
	if withRuntime {
		cs = append(cs, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	for _, col := range cs {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Registry returns the private registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveNode counts one node reaching a terminal state.
func (c *Collector) ObserveNode(kind, outcome string) {
	if c == nil {
		return
	}
	c.nodeExecutions.WithLabelValues(kind, outcome).Inc()
}

// ObserveConflict counts one detected conflict.
func (c *Collector) ObserveConflict(typ, severity string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(typ, severity).Inc()
}

// ObserveRun counts a finished run. The duration is only recorded for runs
// that actually executed.
func (c *Collector) ObserveRun(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.graphRuns.WithLabelValues(outcome).Inc()
	if outcome == RunSucceeded || outcome == RunFailed {
		c.runDuration.Observe(d.Seconds())
	}
}

// WriteText writes the registry in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
