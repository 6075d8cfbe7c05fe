package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/synatrahq/synatra-sub006/internal/infrastructure/logging"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/monitoring"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/tracing"
	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

// Executor runs tool code. *sandbox.Pool satisfies it.
type Executor interface {
	Execute(ctx context.Context, input *sandbox.ExecuteInput) (*sandbox.ExecuteResult, error)
	Stats() sandbox.Stats
}

// Handlers serves the sandbox HTTP API
type Handlers struct {
	pool    Executor
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// NewHandlers creates handlers. metrics and tracer may be nil.
func NewHandlers(pool Executor, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handlers{
		pool:    pool,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger.Named("http"),
	}
}

// Health reports whether the pool can take work
func (h *Handlers) Health(c *gin.Context) {
	stats := h.pool.Stats()
	if stats.Total == 0 {
		respond(c, http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"pool":   stats,
		})
		return
	}

	respond(c, http.StatusOK, gin.H{
		"status": "healthy",
		"pool":   stats,
	})
}

// Stats returns pool occupancy and, when metrics are wired, execution totals
// and recent latency percentiles
func (h *Handlers) Stats(c *gin.Context) {
	data := gin.H{"pool": h.pool.Stats()}
	if h.metrics != nil {
		data["executions"] = h.metrics.Snapshot()
		data["latency"] = h.metrics.Latency()
		data["uptimeSeconds"] = int64(h.metrics.Uptime() / time.Second)
	}

	respond(c, http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respond encodes body with sonic
func respond(c *gin.Context, status int, body interface{}) {
	data, err := sonic.Marshal(body)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"type":    sandbox.ErrorTypeInternal,
				"message": "failed to encode response",
			},
		})
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

func (h *Handlers) logFailure(c *gin.Context, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("path", c.FullPath()),
		zap.String("error_type", sandbox.ErrorType(err)),
		zap.Error(err),
	)
	h.logger.Debug("Request failed", fields...)
}
