package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrQueueFull   = errors.New("execution queue is full")
	ErrShutdown    = errors.New("sandbox pool is shutting down")
	ErrTimeout     = errors.New("execution timed out")
	ErrMemoryLimit = errors.New("isolate memory limit exceeded")
)

// QueueFullError is returned when no isolate is free and the queue is at capacity.
// Callers should retry later.
type QueueFullError struct {
	Limit int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("%s (limit %d)", ErrQueueFull, e.Limit)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }

// CompileError reports caller code that failed to parse
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string { return e.Message }

// RuntimeError reports a value thrown by caller code or a failed resource call
type RuntimeError struct {
	Name    string
	Message string
}

func (e *RuntimeError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// TimeoutError reports a call that exceeded its wall-clock budget
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %s", ErrTimeout, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ShutdownError is returned for work still queued or running when the pool shuts down
type ShutdownError struct{}

func (e *ShutdownError) Error() string { return ErrShutdown.Error() }

func (e *ShutdownError) Is(target error) bool { return target == ErrShutdown }

// MemoryLimitError reports a call whose heap growth exceeded the isolate cap
type MemoryLimitError struct {
	LimitMB int64
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("%s (%d MB)", ErrMemoryLimit, e.LimitMB)
}

func (e *MemoryLimitError) Is(target error) bool { return target == ErrMemoryLimit }

// ValidationError reports a malformed ExecuteInput
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Error type labels used in responses and metrics
const (
	ErrorTypeQueueFull   = "queue_full"
	ErrorTypeCompile     = "compile"
	ErrorTypeRuntime     = "runtime"
	ErrorTypeTimeout     = "timeout"
	ErrorTypeShutdown    = "shutdown"
	ErrorTypeMemoryLimit = "memory_limit"
	ErrorTypeValidation  = "validation"
	ErrorTypeCanceled    = "canceled"
	ErrorTypeInternal    = "internal"
)

// ErrorType classifies err into one of the ErrorType* labels. A nil error is "success".
func ErrorType(err error) string {
	var (
		compileErr    *CompileError
		runtimeErr    *RuntimeError
		validationErr *ValidationError
	)

	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrQueueFull):
		return ErrorTypeQueueFull
	case errors.Is(err, ErrShutdown):
		return ErrorTypeShutdown
	case errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrMemoryLimit):
		return ErrorTypeMemoryLimit
	case errors.As(err, &compileErr):
		return ErrorTypeCompile
	case errors.As(err, &runtimeErr):
		return ErrorTypeRuntime
	case errors.As(err, &validationErr):
		return ErrorTypeValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeCanceled
	default:
		return ErrorTypeInternal
	}
}
