package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsByLabel(t *testing.T) {
	c, err := New(false)
	require.NoError(t, err)

	c.ObserveNode("law", "completed")
	c.ObserveNode("law", "completed")
	c.ObserveNode("operator", "failed")
	c.ObserveConflict("dependency-conflict", "critical")
	c.ObserveRun(RunSucceeded, 5*time.Millisecond)
	c.ObserveRun(RunBlocked, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.nodeExecutions.WithLabelValues("law", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeExecutions.WithLabelValues("operator", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conflicts.WithLabelValues("dependency-conflict", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.graphRuns.WithLabelValues(RunBlocked)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestCollector_WriteText(t *testing.T) {
	c, err := New(false)
	require.NoError(t, err)
	c.ObserveRun(RunFailed, time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, `lawgraph_graph_runs_total{outcome="failed"} 1`)
	assert.Contains(t, out, "lawgraph_graph_run_duration_seconds_count 1")
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveNode("law", "completed")
	c.ObserveConflict("x", "low")
	c.ObserveRun(RunSucceeded, time.Second)
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteText(&bytes.Buffer{}))
}

func TestNew_WithRuntimeCollectors(t *testing.T) {
	c, err := New(true)
	require.NoError(t, err)
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
