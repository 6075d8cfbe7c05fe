package sandbox

import (
	"context"
	"runtime"
	"runtime/metrics"
	"time"

	"go.uber.org/zap"
)

const (
	liveHeapMetric     = "/gc/heap/live:bytes"
	gcCyclesMetric     = "/gc/cycles/total:gc-cycles"
	heapSampleInterval = 5 * time.Millisecond
)

// guardMemory enforces a pool-wide live heap budget of PoolSize times
// MemoryLimitMB above the idle baseline. Go cannot attribute heap to a
// goroutine, so a breach aborts only the most recently started call. After
// an abort the guard waits for that call to exit and for a fresh GC reading
// before it judges again.
func (p *Pool) guardMemory(ctx context.Context) {
	samples := []metrics.Sample{{Name: liveHeapMetric}, {Name: gcCyclesMetric}}
	metrics.Read(samples)
	if samples[0].Value.Kind() != metrics.KindUint64 || samples[1].Value.Kind() != metrics.KindUint64 {
		p.logger.Warn("live heap metric unavailable, memory limit disabled")
		return
	}

	budget := (uint64(p.config.MemoryLimitMB) << 20) * uint64(p.config.PoolSize)
	base := samples[0].Value.Uint64()

	var (
		aborted   *Isolate
		abortedAt time.Time // start of the aborted call
		judgedAt  uint64    // GC cycle the next reading must come after
	)

	ticker := time.NewTicker(heapSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if aborted != nil {
			if aborted.runningSince().Equal(abortedAt) {
				continue
			}
			aborted = nil
			runtime.GC()
			metrics.Read(samples)
			judgedAt = samples[1].Value.Uint64()
			continue
		}

		metrics.Read(samples)
		live, cycle := samples[0].Value.Uint64(), samples[1].Value.Uint64()

		newest, started := p.newestRunning()
		if newest == nil {
			base = live
			continue
		}
		if live < base {
			base = live
		}
		if cycle <= judgedAt || live-base <= budget {
			continue
		}

		if newest.abortCall(started, &MemoryLimitError{LimitMB: p.config.MemoryLimitMB}) {
			aborted, abortedAt = newest, started
			p.logger.Warn("sandbox heap budget exceeded",
				zap.Int("isolate", newest.ID()),
				zap.Uint64("live_bytes", live),
				zap.Uint64("baseline_bytes", base),
				zap.Uint64("budget_bytes", budget),
			)
		}
	}
}

// newestRunning returns the isolate whose current call started last and
// when that call started
func (p *Pool) newestRunning() (*Isolate, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		newest *Isolate
		at     time.Time
	)
	for _, s := range p.slots {
		if started := s.iso.runningSince(); !started.IsZero() && started.After(at) {
			newest, at = s.iso, started
		}
	}
	return newest, at
}
