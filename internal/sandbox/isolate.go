package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Isolate is a long-lived execution slot. Each call gets a fresh goja
// runtime, so nothing caller code defines survives into the next call.
type Isolate struct {
	id       int
	config   Config
	gateway  ResourceGateway
	observer Observer

	mu         sync.Mutex
	cancel     context.CancelCauseFunc
	started    time.Time
	disposed   bool
	executions uint64
	failures   uint64
}

func newIsolate(id int, cfg Config, gw ResourceGateway, obs Observer) *Isolate {
	return &Isolate{id: id, config: cfg, gateway: gw, observer: obs}
}

// ID returns the isolate's index within its pool
func (iso *Isolate) ID() int { return iso.id }

// Executions returns how many calls this isolate has started
func (iso *Isolate) Executions() uint64 {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	return iso.executions
}

// Failures returns how many calls on this isolate ended in an error
func (iso *Isolate) Failures() uint64 {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	return iso.failures
}

// Execute runs one tool call to completion, timeout, or cancellation
func (iso *Isolate) Execute(ctx context.Context, input *ExecuteInput) (result *ExecuteResult, err error) {
	start := time.Now()
	timeout := iso.config.timeoutFor(input.Timeout)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if !iso.begin(cancel) {
		return nil, &ShutdownError{}
	}
	defer func() { iso.end(err != nil) }()

	ctx, stop := context.WithTimeoutCause(ctx, timeout, &TimeoutError{Timeout: timeout})
	defer stop()

	exec := newExecution(ctx, input, iso.config, iso.gateway, iso.observer)

	// Interrupt is safe to call from any goroutine
	stopInterrupt := context.AfterFunc(ctx, func() {
		exec.vm.Interrupt(context.Cause(ctx))
	})
	defer stopInterrupt()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := exec.run()
		done <- outcome{value: v, err: err}
	}()

	// The slot stays busy until the runtime goroutine has exited, so a
	// cancelled call never overlaps the next one
	out := <-done
	if out.err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return nil, causeError(cause)
		}
		return nil, out.err
	}
	return &ExecuteResult{
		Value:         out.value,
		Logs:          exec.logs,
		LogsTruncated: exec.truncated,
		Duration:      time.Since(start),
	}, nil
}

func (iso *Isolate) begin(cancel context.CancelCauseFunc) bool {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.disposed {
		return false
	}
	iso.cancel = cancel
	iso.started = time.Now()
	iso.executions++
	return true
}

func (iso *Isolate) end(failed bool) {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	iso.cancel = nil
	if failed {
		iso.failures++
	}
}

// Dispose stops any running call with a ShutdownError and refuses new ones
func (iso *Isolate) Dispose() {
	iso.mu.Lock()
	iso.disposed = true
	iso.mu.Unlock()
	iso.abort(&ShutdownError{})
}

// abort cancels the running call with cause. It reports false when idle.
func (iso *Isolate) abort(cause error) bool {
	return iso.abortCall(time.Time{}, cause)
}

// abortCall cancels the running call only if it started at started. The
// zero time matches any call.
func (iso *Isolate) abortCall(started time.Time, cause error) bool {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.cancel == nil || (!started.IsZero() && !iso.started.Equal(started)) {
		return false
	}
	iso.cancel(cause)
	return true
}

// runningSince returns when the current call started, or the zero time
func (iso *Isolate) runningSince() time.Time {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.cancel == nil {
		return time.Time{}
	}
	return iso.started
}

// causeError maps a context cancellation cause onto the package error kinds
func causeError(cause error) error {
	var (
		timeoutErr  *TimeoutError
		memoryErr   *MemoryLimitError
		shutdownErr *ShutdownError
	)
	switch {
	case errors.As(cause, &timeoutErr):
		return timeoutErr
	case errors.As(cause, &memoryErr):
		return memoryErr
	case errors.As(cause, &shutdownErr):
		return shutdownErr
	default:
		return fmt.Errorf("execution canceled: %w", cause)
	}
}
