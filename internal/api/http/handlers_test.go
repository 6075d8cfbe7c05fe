package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synatrahq/synatra-sub006/internal/infrastructure/monitoring"
	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type stubExecutor struct {
	err   error
	stats sandbox.Stats
	got   *sandbox.ExecuteInput
}

func (s *stubExecutor) Execute(ctx context.Context, input *sandbox.ExecuteInput) (*sandbox.ExecuteResult, error) {
	s.got = input
	if s.err != nil {
		return nil, s.err
	}
	return &sandbox.ExecuteResult{ExecutionID: "exec_1", Value: "ok", Duration: 1500 * time.Microsecond}, nil
}

func (s *stubExecutor) Stats() sandbox.Stats { return s.stats }

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/execute", h.Execute)
	router.GET("/stats", h.Stats)
	router.GET("/health", h.Health)
	return router
}

func newPool(t *testing.T) *sandbox.Pool {
	t.Helper()
	cfg := sandbox.DefaultConfig()
	cfg.PoolSize = 2
	cfg.MemoryLimitMB = 0
	pool, err := sandbox.NewPool(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)
	return pool
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestExecute(t *testing.T) {
	router := newRouter(NewHandlers(newPool(t), nil, nil, nil))

	body := `{
		"organizationId": "org_1",
		"environmentId": "env_1",
		"code": "console.log('sum', payload.a + payload.b); return { total: payload.a + payload.b };",
		"params": {"a": 2, "b": 3},
		"paramAlias": "payload",
		"context": {"resources": []},
		"timeout": 1000
	}`
	w, env := do(t, router, http.MethodPost, "/execute", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)

	var data ExecuteResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, strings.HasPrefix(data.ExecutionID, "exec_"))
	assert.Equal(t, map[string]interface{}{"total": float64(5)}, data.Result)
	assert.Equal(t, [][]interface{}{{"sum", float64(5)}}, data.Logs)
	assert.GreaterOrEqual(t, data.Duration, int64(0))
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest, wantType: sandbox.ErrorTypeValidation},
		{name: "malformed json", body: `{"code":`, wantStatus: http.StatusBadRequest, wantType: sandbox.ErrorTypeValidation},
		{name: "bad alias", body: `{"code":"return 1","paramAlias":"args"}`, wantStatus: http.StatusBadRequest, wantType: sandbox.ErrorTypeValidation},
		{name: "unknown resource type", body: `{"code":"return 1","context":{"resources":[{"name":"db","resourceId":"r1","type":"oracle"}]}}`, wantStatus: http.StatusBadRequest, wantType: sandbox.ErrorTypeValidation},
		{name: "syntax error", body: `{"code":"return {"}`, wantStatus: http.StatusBadRequest, wantType: sandbox.ErrorTypeCompile},
		{name: "thrown error", body: `{"code":"throw new TypeError('nope')"}`, wantStatus: http.StatusInternalServerError, wantType: sandbox.ErrorTypeRuntime},
		{name: "timeout", body: `{"code":"while (true) {}","timeout":50}`, wantStatus: http.StatusGatewayTimeout, wantType: sandbox.ErrorTypeTimeout},
	}

	router := newRouter(NewHandlers(newPool(t), nil, nil, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, router, http.MethodPost, "/execute", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantType, env.Error.Type)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestExecuteRuntimeErrorMessage(t *testing.T) {
	router := newRouter(NewHandlers(newPool(t), nil, nil, nil))

	_, env := do(t, router, http.MethodPost, "/execute", `{"code":"throw new TypeError('nope')"}`)
	assert.Equal(t, "TypeError: nope", env.Error.Message)
}

func TestExecuteStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		retryAfter string
	}{
		{name: "queue full", err: &sandbox.QueueFullError{Limit: 1}, wantStatus: http.StatusServiceUnavailable, wantType: sandbox.ErrorTypeQueueFull, retryAfter: "1"},
		{name: "shutdown", err: &sandbox.ShutdownError{}, wantStatus: http.StatusServiceUnavailable, wantType: sandbox.ErrorTypeShutdown},
		{name: "memory", err: &sandbox.MemoryLimitError{LimitMB: 8}, wantStatus: http.StatusInternalServerError, wantType: sandbox.ErrorTypeMemoryLimit},
		{name: "canceled", err: fmt.Errorf("execution canceled: %w", context.Canceled), wantStatus: StatusClientClosedRequest, wantType: sandbox.ErrorTypeCanceled},
		{name: "unknown", err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError, wantType: sandbox.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandlers(&stubExecutor{err: tt.err, stats: sandbox.Stats{Total: 1}}, nil, nil, nil))
			w, env := do(t, router, http.MethodPost, "/execute", `{"code":"return 1"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantType, env.Error.Type)
			assert.Equal(t, tt.err.Error(), env.Error.Message)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
		})
	}
}

func TestExecuteConvertsTimeout(t *testing.T) {
	stub := &stubExecutor{stats: sandbox.Stats{Total: 1}}
	router := newRouter(NewHandlers(stub, nil, nil, nil))

	w, env := do(t, router, http.MethodPost, "/execute", `{"organizationId":"org","code":"return 1","timeout":250}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.got)
	assert.Equal(t, 250*time.Millisecond, stub.got.Timeout)
	assert.Equal(t, "org", stub.got.OrganizationID)

	var data ExecuteResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(1), data.Duration)
	assert.Equal(t, [][]interface{}{}, data.Logs)
}

func TestExecuteRequestInputTimeout(t *testing.T) {
	tests := []struct {
		name   string
		millis int64
		want   time.Duration
	}{
		{name: "zero", millis: 0, want: 0},
		{name: "milliseconds", millis: 1500, want: 1500 * time.Millisecond},
		{name: "largest exact", millis: maxTimeoutMillis, want: time.Duration(maxTimeoutMillis) * time.Millisecond},
		{name: "saturates", millis: math.MaxInt64, want: time.Duration(maxTimeoutMillis) * time.Millisecond},
		{name: "negative stays negative", millis: -5, want: -5 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ExecuteRequest{Timeout: tt.millis}
			got := req.Input().Timeout
			assert.Equal(t, tt.want, got)
			if tt.millis > 0 {
				assert.Positive(t, got)
			}
		})
	}
}

func TestExecuteHugeTimeoutIsClamped(t *testing.T) {
	router := newRouter(NewHandlers(newPool(t), nil, nil, nil))

	w, env := do(t, router, http.MethodPost, "/execute", `{"code":"return 1","timeout":9223372036854775807}`)
	require.Equal(t, http.StatusOK, w.Code, env.Error.Message)
	assert.True(t, env.Success)
}

func TestStats(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	metrics.ExecutionFinished("success", 10*time.Millisecond)
	metrics.ExecutionFinished(sandbox.ErrorTypeTimeout, 30*time.Millisecond)

	stub := &stubExecutor{stats: sandbox.Stats{Total: 4, Available: 3, Pending: 0}}
	router := newRouter(NewHandlers(stub, metrics, nil, nil))

	w, env := do(t, router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Pool       sandbox.Stats             `json:"pool"`
		Executions monitoring.Snapshot       `json:"executions"`
		Latency    monitoring.LatencySummary `json:"latency"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, stub.stats, data.Pool)
	assert.Equal(t, int64(2), data.Executions.Executions)
	assert.Equal(t, int64(1), data.Executions.ExecutionErrors)
	assert.Equal(t, 2, data.Latency.Count)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		stats      sandbox.Stats
		wantStatus int
		wantState  string
	}{
		{name: "healthy", stats: sandbox.Stats{Total: 2, Available: 2}, wantStatus: http.StatusOK, wantState: "healthy"},
		{name: "shut down", stats: sandbox.Stats{}, wantStatus: http.StatusServiceUnavailable, wantState: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandlers(&stubExecutor{stats: tt.stats}, nil, nil, nil))
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body.Status)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(sandbox.ErrorTypeCompile))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(sandbox.ErrorTypeTimeout))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(sandbox.ErrorTypeRuntime))
}
