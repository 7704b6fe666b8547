package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewWithRegistry("ilmd", prometheus.NewRegistry())
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("ilmd", reg)
	require.NotNil(t, m)

	// Double registration must panic, proving the collectors landed in reg.
	assert.Panics(t, func() { NewWithRegistry("ilmd", reg) })
}

func TestRecordCycle(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCycle("acme", "ok", 2*time.Second)
	m.RecordCycle("acme", "error", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CycleRunsTotal.WithLabelValues("acme", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CycleRunsTotal.WithLabelValues("acme", "error")))
}

func TestRecordDecision(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordDecision("acme", "retention", "delete", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineDecisions.WithLabelValues("acme", "retention", "delete", "ok")))
}

func TestRecordGatewayCall(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordGatewayCall("acme", "cat_indices", "200", 50*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCallsTotal.WithLabelValues("acme", "cat_indices", "200")))
}

func TestSetAccountingDrift(t *testing.T) {
	m := newTestMetrics(t)
	m.SetAccountingDrift("acme", 12.5)
	assert.Equal(t, 12.5, testutil.ToFloat64(m.AccountingDrift.WithLabelValues("acme")))
}

func TestInFlightCounters(t *testing.T) {
	m := newTestMetrics(t)
	m.IncrementInFlight()
	m.IncrementInFlight()
	m.DecrementInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsInFlight))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordHTTPRequest("ilmd", "POST", "/trigger/{family}", "200", 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ilmd", "POST", "/trigger/{family}", "200")))
}

func TestEnabled(t *testing.T) {
	t.Setenv("ILM_ENV", "production")
	t.Setenv("METRICS_ENABLED", "")
	assert.False(t, Enabled())

	t.Setenv("METRICS_ENABLED", "true")
	assert.True(t, Enabled())

	t.Setenv("ILM_ENV", "development")
	t.Setenv("METRICS_ENABLED", "")
	assert.True(t, Enabled())

	t.Setenv("METRICS_ENABLED", "0")
	assert.False(t, Enabled())
}
