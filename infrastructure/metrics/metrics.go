// Package metrics provides Prometheus metrics for the daemon: ops-surface
// HTTP counters, per-tenant cycle and engine-decision counters, gateway
// call latencies, the accounting drift gauge, and process self-metrics.
package metrics

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gopsutilprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/clusterkeeper/ilm/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Lifecycle engine metrics
	CycleRunsTotal     *prometheus.CounterVec
	CycleDuration      *prometheus.HistogramVec
	EngineDecisions    *prometheus.CounterVec
	GatewayCallsTotal  *prometheus.CounterVec
	GatewayCallLatency *prometheus.HistogramVec
	AccountingDrift    *prometheus.GaugeVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec

	// Process self-metrics, sampled by StartProcessSampler via gopsutil.
	ProcessRSSBytes   prometheus.Gauge
	ProcessCPUPercent prometheus.Gauge
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		// Lifecycle engine metrics
		CycleRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ilm_cycle_runs_total",
				Help: "Total number of scheduler cycle runs per tenant",
			},
			[]string{"tenant", "status"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ilm_cycle_duration_seconds",
				Help:    "Duration of a full scheduler cycle for a tenant",
				Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"tenant"},
		),
		EngineDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ilm_engine_decisions_total",
				Help: "Total number of lifecycle actions decided and applied per engine",
			},
			[]string{"tenant", "engine", "action", "status"},
		),
		GatewayCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ilm_gateway_calls_total",
				Help: "Total number of cluster gateway REST calls",
			},
			[]string{"cluster", "operation", "status"},
		),
		GatewayCallLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ilm_gateway_call_duration_seconds",
				Help:    "Cluster gateway REST call duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"cluster", "operation"},
		),
		AccountingDrift: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ilm_accounting_drift_gb",
				Help: "Gap in GB between the cluster's reported total size and the last accounting snapshot's sum",
			},
			[]string{"tenant"},
		),

		// Service health
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),

		ProcessRSSBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_resident_memory_bytes",
				Help: "Resident memory of this process, sampled via gopsutil",
			},
		),
		ProcessCPUPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_cpu_percent",
				Help: "CPU usage percentage of this process, sampled via gopsutil",
			},
		),
	}

	// Register all collectors
	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.CycleRunsTotal,
			m.CycleDuration,
			m.EngineDecisions,
			m.GatewayCallsTotal,
			m.GatewayCallLatency,
			m.AccountingDrift,
			m.ServiceUptime,
			m.ServiceInfo,
			m.ProcessRSSBytes,
			m.ProcessCPUPercent,
		)
	}

	// Set service info
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordCycle records the outcome and duration of a scheduler cycle for a tenant
func (m *Metrics) RecordCycle(tenant, status string, duration time.Duration) {
	m.CycleRunsTotal.WithLabelValues(tenant, status).Inc()
	m.CycleDuration.WithLabelValues(tenant).Observe(duration.Seconds())
}

// RecordDecision records an engine's applied or skipped lifecycle action
func (m *Metrics) RecordDecision(tenant, engine, action, status string) {
	m.EngineDecisions.WithLabelValues(tenant, engine, action, status).Inc()
}

// RecordGatewayCall records a cluster gateway REST call
func (m *Metrics) RecordGatewayCall(cluster, operation, status string, duration time.Duration) {
	m.GatewayCallsTotal.WithLabelValues(cluster, operation, status).Inc()
	m.GatewayCallLatency.WithLabelValues(cluster, operation).Observe(duration.Seconds())
}

// SetAccountingDrift records the most recent accounting reconciliation
// drift, in GB, for a tenant.
func (m *Metrics) SetAccountingDrift(tenant string, driftGB float64) {
	m.AccountingDrift.WithLabelValues(tenant).Set(driftGB)
}

// UpdateUptime updates the service uptime
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// SampleProcessStats reads this process's current RSS and CPU usage via
// gopsutil and records them. Call it periodically (StartProcessSampler
// does so) rather than per-request: gopsutil's CPUPercent call blocks for
// an interval to measure a delta.
func (m *Metrics) SampleProcessStats(ctx context.Context) error {
	proc, err := gopsutilprocess.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return err
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		m.ProcessRSSBytes.Set(float64(mem.RSS))
	}
	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		m.ProcessCPUPercent.Set(pct)
	}
	return nil
}

// StartProcessSampler samples process RSS/CPU every interval until ctx is
// cancelled. ilmd runs one for the life of the process, giving operators
// the daemon-side counterpart of the cluster resource figures the
// scheduler already polls for pool sizing.
func (m *Metrics) StartProcessSampler(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		_ = m.SampleProcessStats(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = m.SampleProcessStats(ctx)
			}
		}
	}()
}

// IncrementInFlight increments the in-flight requests counter
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if raw == "" {
		return !runtime.IsProduction()
	}
	return runtime.ParseBoolValue(raw)
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
