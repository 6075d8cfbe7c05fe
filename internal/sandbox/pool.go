package sandbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synatrahq/synatra-sub006/internal/infrastructure/logging"
	"github.com/synatrahq/synatra-sub006/internal/shared/id"
)

// slot pairs an isolate with its busy flag. Guarded by Pool.mu.
type slot struct {
	iso  *Isolate
	busy bool
}

// Pool owns a fixed set of isolates and a bounded FIFO of waiting callers
type Pool struct {
	config   Config
	gateway  ResourceGateway
	logger   *logging.Logger
	observer Observer

	mu     sync.Mutex
	slots  []*slot
	queue  *waitQueue
	closed bool

	stopGuard context.CancelFunc
}

// NewPool creates a pool with exactly cfg.PoolSize isolates
func NewPool(cfg Config, gateway ResourceGateway, logger *logging.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	p := &Pool{
		config:   cfg,
		gateway:  gateway,
		logger:   logger,
		observer: nopObserver{},
		slots:    make([]*slot, cfg.PoolSize),
		queue:    newWaitQueue(cfg.QueueLimit),
	}
	for i := range p.slots {
		p.slots[i] = &slot{iso: newIsolate(i, cfg, gateway, p.observer)}
	}

	if cfg.MemoryLimitMB > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.stopGuard = cancel
		go p.guardMemory(ctx)
	}

	logger.Info("sandbox pool started",
		zap.Int("size", cfg.PoolSize),
		zap.Int("queue_limit", cfg.QueueLimit),
		zap.Int64("memory_limit_mb", cfg.MemoryLimitMB),
	)
	return p, nil
}

// WithObserver installs o for pool events. Call before the first Execute.
func (p *Pool) WithObserver(o Observer) *Pool {
	if o == nil {
		o = nopObserver{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = o
	for _, s := range p.slots {
		s.iso.observer = o
	}
	p.notifyLocked()
	return p
}

// Execute runs input on a free isolate, waiting in the queue when all are busy
func (p *Pool) Execute(ctx context.Context, input *ExecuteInput) (*ExecuteResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	execID := id.NewExecutionID()
	start := time.Now()

	s, err := p.acquire(ctx, input)
	if err != nil {
		p.observer.ExecutionFinished(ErrorType(err), time.Since(start))
		return nil, err
	}
	defer p.release(s)

	result, err := s.iso.Execute(ctx, input)
	elapsed := time.Since(start)
	p.observer.ExecutionFinished(ErrorType(err), elapsed)

	fields := []zap.Field{
		zap.String("execution_id", execID.String()),
		zap.String("organization_id", input.OrganizationID),
		zap.Int("isolate", s.iso.ID()),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		p.logger.Debug("tool execution failed", append(fields,
			zap.String("error_type", ErrorType(err)),
			zap.Error(err),
		)...)
		return nil, err
	}

	p.logger.Debug("tool execution finished", fields...)
	result.ExecutionID = execID.String()
	return result, nil
}

// acquire returns a busy-marked slot, queueing when none is free
func (p *Pool) acquire(ctx context.Context, input *ExecuteInput) (*slot, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &ShutdownError{}
	}
	for _, s := range p.slots {
		if !s.busy {
			s.busy = true
			p.notifyLocked()
			p.mu.Unlock()
			return s, nil
		}
	}

	req := newPendingRequest(input)
	if !p.queue.push(req) {
		p.mu.Unlock()
		p.observer.QueueRejected()
		p.logger.Warn("sandbox queue full", zap.Int("limit", p.config.QueueLimit))
		return nil, &QueueFullError{Limit: p.config.QueueLimit}
	}
	p.notifyLocked()
	p.mu.Unlock()

	queued := time.Now()
	select {
	case g := <-req.ready:
		p.observer.QueueWait(time.Since(queued))
		return g.slot, g.err
	case <-ctx.Done():
		p.mu.Lock()
		removed := p.queue.remove(req)
		if removed {
			p.notifyLocked()
		}
		p.mu.Unlock()
		if !removed {
			// Dispatched concurrently with cancellation; hand the slot on
			if g := <-req.ready; g.slot != nil {
				p.release(g.slot)
			}
		}
		return nil, causeError(context.Cause(ctx))
	}
}

// release hands s to the oldest waiter or marks it free
func (p *Pool) release(s *slot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		if next := p.queue.pop(); next != nil {
			next.ready <- grant{slot: s}
			p.notifyLocked()
			return
		}
	}
	s.busy = false
	p.notifyLocked()
}

// Shutdown rejects queued callers, stops running calls and disposes every
// isolate. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	waiting := p.queue.drain()
	slots := p.slots
	p.slots = nil
	p.notifyLocked()
	p.mu.Unlock()

	if p.stopGuard != nil {
		p.stopGuard()
	}
	for _, req := range waiting {
		req.ready <- grant{err: &ShutdownError{}}
	}
	for _, s := range slots {
		s.iso.Dispose()
	}

	p.logger.Info("sandbox pool shut down",
		zap.Int("isolates", len(slots)),
		zap.Int("rejected", len(waiting)),
	)
}

// Stats returns isolate and queue counts
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	st := Stats{Total: len(p.slots), Pending: p.queue.len()}
	for _, s := range p.slots {
		if !s.busy {
			st.Available++
		}
	}
	return st
}

func (p *Pool) notifyLocked() {
	p.observer.PoolChanged(p.statsLocked())
}

// Config returns the pool configuration
func (p *Pool) Config() Config {
	return p.config
}
