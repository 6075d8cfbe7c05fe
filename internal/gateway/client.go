package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/synatrahq/synatra-sub006/internal/infrastructure/logging"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/monitoring"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/resilience"
	"github.com/synatrahq/synatra-sub006/internal/infrastructure/tracing"
	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

const (
	QueryPath       = "/internal/resources/query"
	HeaderSecret    = "X-Service-Secret"
	HeaderRequestID = "X-Request-ID"
)

// Options configures the gateway client
type Options struct {
	URL     string
	Secret  string
	Timeout time.Duration

	// Retries is the number of extra attempts after a 5xx or transport error
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RPS caps outbound queries per second. Zero means unlimited.
	RPS   float64
	Burst int

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// StatusError is returned when the gateway answers with a non-2xx status
// and no error message of its own
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resource gateway returned status %d", e.Code)
}

// QueryError carries the gateway's own error message verbatim
type QueryError struct {
	Status  int
	Message string
}

func (e *QueryError) Error() string {
	return e.Message
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client executes resource queries against the external gateway.
// It implements sandbox.ResourceGateway.
type Client struct {
	endpoint string
	secret   string
	resty    *resty.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// New creates a gateway client. metrics may be nil.
func New(opts Options, logger *logging.Logger, metrics *monitoring.Metrics) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("gateway: url is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("gateway")

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 100 * time.Millisecond
	}
	if opts.RetryWaitMax < opts.RetryWaitMin {
		opts.RetryWaitMax = 2 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = leveled{logger.Sugar()}
	// Hand the last response back so its error body reaches the caller.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "synatra-sandbox/1.0").
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	breaker := resilience.New("resource-gateway", resilience.Settings{
		MaxRequests:  1,
		Timeout:      opts.BreakerTimeout,
		ReadyToTrip:  resilience.ConsecutiveFailures(opts.BreakerFailures),
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = max(1, int(opts.RPS))
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &Client{
		endpoint: strings.TrimRight(opts.URL, "/") + QueryPath,
		secret:   opts.Secret,
		resty:    restyClient,
		limiter:  limiter,
		breaker:  breaker,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Query sends one resource call and returns the gateway's data payload
func (c *Client) Query(ctx context.Context, req sandbox.QueryRequest) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	requestID := uuid.NewString()
	headers := map[string]string{HeaderRequestID: requestID}
	if c.secret != "" {
		headers[HeaderSecret] = c.secret
	}
	tracing.Inject(ctx, headers)

	timer := monitoring.NewTimer(c.metrics, "gateway", req.Operation)
	data, err := resilience.Call(c.breaker, func() (json.RawMessage, error) {
		resp, err := c.resty.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetBody(req).
			Post(c.endpoint)
		if err != nil {
			return nil, err
		}
		return decode(resp)
	})
	elapsed := timer.Stop(status(err))

	if err != nil {
		c.logger.Debug("Resource query failed",
			zap.String("request_id", requestID),
			zap.String("resource", req.ResourceName),
			zap.String("type", string(req.ResourceType)),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, fmt.Errorf("resource gateway unavailable: %w", err)
		}
		return nil, err
	}
	return data, nil
}

// BreakerState reports the circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func decode(resp *resty.Response) (json.RawMessage, error) {
	var body response
	if err := sonic.Unmarshal(resp.Body(), &body); err != nil {
		if resp.IsError() {
			return nil, &StatusError{Code: resp.StatusCode()}
		}
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	if !body.Success || resp.IsError() {
		if body.Error != "" {
			return nil, &QueryError{Status: resp.StatusCode(), Message: body.Error}
		}
		if resp.IsError() {
			return nil, &StatusError{Code: resp.StatusCode()}
		}
		return nil, &QueryError{Status: resp.StatusCode(), Message: "resource query failed"}
	}

	if len(body.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return body.Data, nil
}

// countsAsHealthy keeps query-level rejections from tripping the breaker.
// Only 5xx statuses and transport failures count against the gateway.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Status < http.StatusInternalServerError
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < http.StatusInternalServerError
	}
	return false
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "error"
	}
}

// leveled adapts zap to retryablehttp.LeveledLogger
type leveled struct {
	s *zap.SugaredLogger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

var _ sandbox.ResourceGateway = (*Client)(nil)
var _ retryablehttp.LeveledLogger = leveled{}
