package http

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

const (
	// MaxRequestBytes bounds the size of an /execute body
	MaxRequestBytes = 10 << 20

	// StatusClientClosedRequest is reported when the caller goes away mid-execution
	StatusClientClosedRequest = 499

	retryAfterSeconds = 1
)

// ExecuteRequest is the /execute body. Timeout is in milliseconds; zero
// means the pool default.
type ExecuteRequest struct {
	OrganizationID string                   `json:"organizationId"`
	EnvironmentID  string                   `json:"environmentId"`
	Code           string                   `json:"code"`
	Params         interface{}              `json:"params"`
	ParamAlias     sandbox.ParamAlias       `json:"paramAlias"`
	Context        sandbox.ExecutionContext `json:"context"`
	Timeout        int64                    `json:"timeout"`
}

// maxTimeoutMillis is the largest timeout that converts to a time.Duration
const maxTimeoutMillis = int64(math.MaxInt64 / time.Millisecond)

// Input converts the request into a pool input. Oversized timeouts saturate
// and are clamped by the pool.
func (r *ExecuteRequest) Input() *sandbox.ExecuteInput {
	timeout := r.Timeout
	if timeout > maxTimeoutMillis {
		timeout = maxTimeoutMillis
	}

	return &sandbox.ExecuteInput{
		OrganizationID: r.OrganizationID,
		EnvironmentID:  r.EnvironmentID,
		Code:           r.Code,
		Params:         r.Params,
		ParamAlias:     r.ParamAlias,
		Context:        r.Context,
		Timeout:        time.Duration(timeout) * time.Millisecond,
	}
}

// ExecuteResponse is the data of a successful /execute call. Duration is in milliseconds.
type ExecuteResponse struct {
	ExecutionID   string          `json:"executionId"`
	Result        interface{}     `json:"result"`
	Logs          [][]interface{} `json:"logs"`
	LogsTruncated bool            `json:"logsTruncated,omitempty"`
	Duration      int64           `json:"duration"`
}

// Execute runs tool code in the pool
func (h *Handlers) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := decode(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	if h.tracer != nil {
		span, spanCtx := h.tracer.StartSpan(ctx, "sandbox.execute")
		span.SetTag("organization_id", req.OrganizationID)
		span.SetTag("environment_id", req.EnvironmentID)
		ctx = spanCtx
		defer func() {
			span.SetStatus(c.Writer.Status())
			if len(c.Errors) > 0 {
				span.SetError(c.Errors.Last())
			}
			span.Finish()
			h.tracer.Submit(span)
		}()
	}

	result, err := h.pool.Execute(ctx, req.Input())
	if err != nil {
		c.Error(err)
		h.logFailure(c, err, zap.String("organization_id", req.OrganizationID))
		h.fail(c, err)
		return
	}

	logs := result.Logs
	if logs == nil {
		logs = [][]interface{}{}
	}
	respond(c, http.StatusOK, gin.H{
		"success": true,
		"data": ExecuteResponse{
			ExecutionID:   result.ExecutionID,
			Result:        result.Value,
			Logs:          logs,
			LogsTruncated: result.LogsTruncated,
			Duration:      result.Duration.Milliseconds(),
		},
	})
}

func decode(c *gin.Context, req *ExecuteRequest) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &sandbox.ValidationError{Field: "body", Message: "request body too large"}
		}
		return &sandbox.ValidationError{Field: "body", Message: err.Error()}
	}
	if len(body) == 0 {
		return &sandbox.ValidationError{Field: "body", Message: "request body is required"}
	}
	if err := sonic.Unmarshal(body, req); err != nil {
		return &sandbox.ValidationError{Field: "body", Message: "malformed JSON"}
	}
	return nil
}

// fail writes the error envelope with the status matching err's type
func (h *Handlers) fail(c *gin.Context, err error) {
	errType := sandbox.ErrorType(err)
	status := StatusFor(errType)
	if errType == sandbox.ErrorTypeQueueFull {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	respond(c, status, gin.H{
		"success": false,
		"error": gin.H{
			"type":    errType,
			"message": err.Error(),
		},
	})
}

// StatusFor maps a sandbox error type to an HTTP status
func StatusFor(errType string) int {
	switch errType {
	case sandbox.ErrorTypeQueueFull, sandbox.ErrorTypeShutdown:
		return http.StatusServiceUnavailable
	case sandbox.ErrorTypeValidation, sandbox.ErrorTypeCompile:
		return http.StatusBadRequest
	case sandbox.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case sandbox.ErrorTypeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
