package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

func TestObserverMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ExecutionFinished("success", 10*time.Millisecond)
	m.ExecutionFinished(sandbox.ErrorTypeTimeout, time.Second)
	m.QueueRejected()
	m.QueueWait(5 * time.Millisecond)
	m.PoolChanged(sandbox.Stats{Total: 4, Available: 1, Pending: 0})
	m.BridgeCalled(sandbox.ResourcePostgres, "success")
	m.BridgeCalled(sandbox.ResourcePostgres, "success")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues(sandbox.ErrorTypeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueRejections))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.PoolTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolAvailable))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BridgeCalls.WithLabelValues("postgres", "success")))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Executions)
	assert.Equal(t, int64(1), snap.ExecutionErrors)
	assert.Equal(t, int64(1), snap.QueueRejections)
	assert.Equal(t, 2, m.Latency().Count)
}

func TestMetricsUseSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, int64(3), m.Snapshot().TotalRequests)
	assert.Equal(t, int64(1), m.Snapshot().TotalErrors)
}

func TestTimer(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	NewTimer(m, "gateway", "query").Stop("success")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServiceCalls.WithLabelValues("gateway", "query", "success")))

	assert.NotPanics(t, func() { NewTimer(nil, "gateway", "query").Stop("error") })
}

func TestWindow(t *testing.T) {
	w := NewWindow(4)
	assert.Equal(t, LatencySummary{}, w.Summary())

	for _, ms := range []int{100, 1, 2, 3, 4} {
		w.Add(time.Duration(ms) * time.Millisecond)
	}

	sum := w.Summary()
	require.Equal(t, 4, sum.Count, "oldest sample is evicted")
	assert.InDelta(t, 2.5, sum.MeanMs, 1e-9)
	assert.Equal(t, 2.0, sum.P50Ms)
	assert.Equal(t, 4.0, sum.P95Ms)
}
