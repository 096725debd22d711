package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCounters(t *testing.T) {
	c := New()
	c.PoolAdmitted()
	c.PoolAdmitted()
	c.PoolCompleted("success")
	c.PoolCompleted("fault")
	c.PoolRejected()

	assert.Equal(t, 0.0, testutil.ToFloat64(c.poolInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.poolRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.poolFaults))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.poolCompleted.WithLabelValues("success")))
}

func TestDiscardedExposition(t *testing.T) {
	c := New()
	c.Discarded(ReasonSuperseded)
	c.Discarded(ReasonSuperseded)
	c.Discarded(ReasonProtocol)

	expected := `
# HELP screen_lookup_orchestrator_discarded_results_total Results discarded at the delivery boundary, by reason.
# TYPE screen_lookup_orchestrator_discarded_results_total counter
screen_lookup_orchestrator_discarded_results_total{reason="protocol"} 1
screen_lookup_orchestrator_discarded_results_total{reason="superseded"} 2
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"screen_lookup_orchestrator_discarded_results_total"))
}

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	c.PoolAdmitted()
	c.PoolCompleted("success")
	c.PoolRejected()
	c.Discarded(ReasonProtocol)
	c.Forwarded("idle")
	c.ObserveLatency("capture", time.Second)
	assert.Nil(t, c.Registry())
}

func TestLatencyHistogram(t *testing.T) {
	c := New()
	c.ObserveLatency("lookup", 30*time.Millisecond)
	c.ObserveLatency("lookup", 3*time.Second)
	assert.Equal(t, 1, testutil.CollectAndCount(c.latency))
}
