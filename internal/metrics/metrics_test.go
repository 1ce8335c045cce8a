package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectorRequestCountsByOutcome(t *testing.T) {
	m := New()
	m.ConnectorRequest("crtsh", "success", 20*time.Millisecond)
	m.ConnectorRequest("crtsh", "success", 35*time.Millisecond)
	m.ConnectorRequest("crtsh", "error", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectorRequests.WithLabelValues("crtsh", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectorRequests.WithLabelValues("crtsh", "error")))
}

func TestActiveRunsGauge(t *testing.T) {
	m := New()
	m.InvestigationStarted()
	m.InvestigationStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeRuns))

	m.InvestigationFinished("completed", 3*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.investigations.WithLabelValues("completed")))
}

func TestRegistryGathersNamespacedMetrics(t *testing.T) {
	m := New()
	m.CacheLookup("hit")
	m.SecurityRejected()

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["trailhound_cache_lookups_total"])
	assert.True(t, names["trailhound_queries_security_rejected_total"])
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.RateLimitWait()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.rateLimitWaits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.rateLimitWaits))
}
