package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

const namespace = "sandbox"

// Metrics holds all Prometheus metrics and implements sandbox.Observer
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pool metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	QueueWaitSeconds  prometheus.Histogram
	QueueRejections   prometheus.Counter
	PoolTotal         prometheus.Gauge
	PoolAvailable     prometheus.Gauge
	PoolPending       prometheus.Gauge
	BridgeCalls       *prometheus.CounterVec

	// Outbound service metrics
	ServiceCalls    *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec

	startTime time.Time
	latency   *Window

	mu       sync.RWMutex
	snapshot Snapshot
}

// Snapshot holds running totals for the JSON stats API
type Snapshot struct {
	TotalRequests   int64 `json:"totalRequests"`
	TotalErrors     int64 `json:"totalErrors"`
	Executions      int64 `json:"executions"`
	ExecutionErrors int64 `json:"executionErrors"`
	QueueRejections int64 `json:"queueRejections"`
}

// NewMetrics registers every metric with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),
		latency:   NewWindow(1024),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Tool executions by outcome",
			},
			[]string{"status"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Tool execution duration including queue wait",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
		),
		QueueWaitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_wait_seconds",
				Help:      "Time queued requests waited for an isolate",
				Buckets:   []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60},
			},
		),
		QueueRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_rejections_total",
				Help:      "Requests rejected because the queue was full",
			},
		),
		PoolTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_total",
				Help:      "Isolates owned by the pool",
			},
		),
		PoolAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_available",
				Help:      "Isolates not running a call",
			},
		),
		PoolPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_pending",
				Help:      "Requests waiting for an isolate",
			},
		),
		BridgeCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_calls_total",
				Help:      "Resource calls made from sandboxed code",
			},
			[]string{"type", "status"},
		),

		ServiceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_calls_total",
				Help:      "Outbound service calls",
			},
			[]string{"service", "method", "status"},
		),
		ServiceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "service_duration_seconds",
				Help:      "Outbound service call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "method"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordServiceCall records an outbound service call
func (m *Metrics) RecordServiceCall(service, method, status string, duration time.Duration) {
	m.ServiceCalls.WithLabelValues(service, method, status).Inc()
	m.ServiceDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// ExecutionFinished implements sandbox.Observer
func (m *Metrics) ExecutionFinished(errorType string, duration time.Duration) {
	m.ExecutionsTotal.WithLabelValues(errorType).Inc()
	m.ExecutionDuration.Observe(duration.Seconds())
	m.latency.Add(duration)

	m.mu.Lock()
	m.snapshot.Executions++
	if errorType != "success" {
		m.snapshot.ExecutionErrors++
	}
	m.mu.Unlock()
}

// QueueWait implements sandbox.Observer
func (m *Metrics) QueueWait(duration time.Duration) {
	m.QueueWaitSeconds.Observe(duration.Seconds())
}

// QueueRejected implements sandbox.Observer
func (m *Metrics) QueueRejected() {
	m.QueueRejections.Inc()
	m.mu.Lock()
	m.snapshot.QueueRejections++
	m.mu.Unlock()
}

// PoolChanged implements sandbox.Observer
func (m *Metrics) PoolChanged(stats sandbox.Stats) {
	m.PoolTotal.Set(float64(stats.Total))
	m.PoolAvailable.Set(float64(stats.Available))
	m.PoolPending.Set(float64(stats.Pending))
}

// BridgeCalled implements sandbox.Observer
func (m *Metrics) BridgeCalled(resourceType sandbox.ResourceType, status string) {
	m.BridgeCalls.WithLabelValues(string(resourceType), status).Inc()
}

// Snapshot returns running totals
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Latency returns percentiles of recent execution durations
func (m *Metrics) Latency() LatencySummary {
	return m.latency.Summary()
}

// Uptime returns time since the metrics were created
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

var _ sandbox.Observer = (*Metrics)(nil)
