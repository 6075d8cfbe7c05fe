package sandbox

import (
	"fmt"
	"time"
)

// Config defines pool and isolate limits
type Config struct {
	PoolSize        int           // Isolates created up front, never resized
	MemoryLimitMB   int64         // Live heap budget per isolate; the pool enforces PoolSize times this
	QueueLimit      int           // Pending requests held while every isolate is busy
	DefaultTimeout  time.Duration // Applied when ExecuteInput.Timeout is zero
	MaxTimeout      time.Duration // Upper bound for ExecuteInput.Timeout
	MaxCallStack    int           // Maximum JavaScript call depth
	MaxLogEntries   int           // console.* calls kept per execution
	MaxBridgeCalls  int           // Resource calls allowed per execution
	MaxResultValues int           // Values a result, or all console output, may serialize to
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		PoolSize:        4,
		MemoryLimitMB:   128,
		QueueLimit:      100,
		DefaultTimeout:  30 * time.Second,
		MaxTimeout:      5 * time.Minute,
		MaxCallStack:    1024,
		MaxLogEntries:   1000,
		MaxBridgeCalls:  100,
		MaxResultValues: 1_000_000,
	}
}

// Validate checks the configuration for values the pool cannot run with
func (c Config) Validate() error {
	switch {
	case c.PoolSize < 1:
		return fmt.Errorf("pool size must be at least 1, got %d", c.PoolSize)
	case c.QueueLimit < 0:
		return fmt.Errorf("queue limit must not be negative, got %d", c.QueueLimit)
	case c.MemoryLimitMB < 0:
		return fmt.Errorf("memory limit must not be negative, got %d", c.MemoryLimitMB)
	case c.DefaultTimeout <= 0:
		return fmt.Errorf("default timeout must be positive, got %s", c.DefaultTimeout)
	case c.MaxTimeout < c.DefaultTimeout:
		return fmt.Errorf("max timeout %s is below default timeout %s", c.MaxTimeout, c.DefaultTimeout)
	}
	return nil
}

// timeoutFor resolves the wall-clock budget for one call
func (c Config) timeoutFor(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return c.DefaultTimeout
	case requested < time.Millisecond:
		return time.Millisecond
	case c.MaxTimeout > 0 && requested > c.MaxTimeout:
		return c.MaxTimeout
	}
	return requested
}

// ParamAlias is an optional second name bound to params inside the sandbox
type ParamAlias string

const (
	AliasNone    ParamAlias = ""
	AliasPayload ParamAlias = "payload"
	AliasInput   ParamAlias = "input"
)

// ResourceMapping binds a friendly name to an external resource
type ResourceMapping struct {
	Name       string       `json:"name"`
	ResourceID string       `json:"resourceId"`
	Type       ResourceType `json:"type"`
}

// ExecutionContext is the caller-supplied context exposed as `context`
type ExecutionContext struct {
	Resources []ResourceMapping `json:"resources"`
}

// ExecuteInput is one tool invocation. It is not modified by the pool.
type ExecuteInput struct {
	OrganizationID string           `json:"organizationId"`
	EnvironmentID  string           `json:"environmentId"`
	Code           string           `json:"code"`
	Params         interface{}      `json:"params"`
	ParamAlias     ParamAlias       `json:"paramAlias,omitempty"`
	Context        ExecutionContext `json:"context"`
	Timeout        time.Duration    `json:"-"`
}

// Validate rejects inputs the execution unit cannot bind
func (in *ExecuteInput) Validate() error {
	if in == nil {
		return &ValidationError{Field: "input", Message: "input is required"}
	}

	switch in.ParamAlias {
	case AliasNone, AliasPayload, AliasInput:
	default:
		return &ValidationError{
			Field:   "paramAlias",
			Message: fmt.Sprintf("unsupported alias %q (must be payload or input)", in.ParamAlias),
		}
	}

	if in.Timeout < 0 {
		return &ValidationError{Field: "timeout", Message: "timeout must not be negative"}
	}

	seen := make(map[string]struct{}, len(in.Context.Resources))
	for _, r := range in.Context.Resources {
		if r.Name == "" {
			return &ValidationError{Field: "context.resources", Message: "resource name is required"}
		}
		if _, dup := seen[r.Name]; dup {
			return &ValidationError{
				Field:   "context.resources",
				Message: fmt.Sprintf("duplicate resource name %q", r.Name),
			}
		}
		seen[r.Name] = struct{}{}

		if _, ok := AccessorFor(r.Type); !ok {
			return &ValidationError{
				Field:   "context.resources",
				Message: fmt.Sprintf("unsupported resource type %q for resource %q", r.Type, r.Name),
			}
		}
	}

	return nil
}

// ExecuteResult holds the outcome of one successful call
type ExecuteResult struct {
	ExecutionID   string          `json:"executionId"`
	Value         interface{}     `json:"value"`
	Logs          [][]interface{} `json:"logs"`
	LogsTruncated bool            `json:"logsTruncated,omitempty"`
	Duration      time.Duration   `json:"duration"`
}

// Stats is a point-in-time view of the pool
type Stats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Pending   int `json:"pending"`
}
