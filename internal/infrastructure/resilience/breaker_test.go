package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFailed = errors.New("failed")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	b := New("test", settings)
	b.now = clk.Now
	b.mu.Lock()
	b.newGeneration(clk.Now())
	b.mu.Unlock()
	return b, clk
}

func outcome(ok bool) func() error {
	return func() error {
		if ok {
			return nil
		}
		return errFailed
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool
		advance  time.Duration
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{},
			requests: []bool{true, true, true},
			want:     StateClosed,
		},
		{
			name:     "opens after consecutive failures",
			settings: Settings{ReadyToTrip: ConsecutiveFailures(3)},
			requests: []bool{false, false, false},
			want:     StateOpen,
		},
		{
			name:     "success resets the streak",
			settings: Settings{ReadyToTrip: ConsecutiveFailures(3)},
			requests: []bool{false, false, true, false, false},
			want:     StateClosed,
		},
		{
			name:     "half-open after timeout",
			settings: Settings{Timeout: time.Second, ReadyToTrip: ConsecutiveFailures(2)},
			requests: []bool{false, false},
			advance:  2 * time.Second,
			want:     StateHalfOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clk := newTestBreaker(tt.settings)
			for _, ok := range tt.requests {
				_ = b.Do(outcome(ok))
			}
			clk.Advance(tt.advance)
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b, _ := newTestBreaker(Settings{})

	require.NoError(t, b.Do(outcome(true)))
	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, b.Do(outcome(false)), errFailed)
	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	b, clk := newTestBreaker(Settings{Interval: time.Second})

	_ = b.Do(outcome(false))
	assert.Equal(t, uint32(1), b.Counts().TotalFailures)

	clk.Advance(2 * time.Second)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{}, b.Counts())
}

func TestBreakerOpenRejects(t *testing.T) {
	b, _ := newTestBreaker(Settings{ReadyToTrip: ConsecutiveFailures(2)})
	_ = b.Do(outcome(false))
	_ = b.Do(outcome(false))

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	t.Run("closes after enough trial successes", func(t *testing.T) {
		b, clk := newTestBreaker(Settings{MaxRequests: 2, Timeout: time.Second, ReadyToTrip: ConsecutiveFailures(1)})
		_ = b.Do(outcome(false))
		clk.Advance(2 * time.Second)

		require.NoError(t, b.Do(outcome(true)))
		assert.Equal(t, StateHalfOpen, b.State())
		require.NoError(t, b.Do(outcome(true)))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("trial failure reopens", func(t *testing.T) {
		b, clk := newTestBreaker(Settings{MaxRequests: 2, Timeout: time.Second, ReadyToTrip: ConsecutiveFailures(1)})
		_ = b.Do(outcome(false))
		clk.Advance(2 * time.Second)

		_ = b.Do(outcome(false))
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("limits concurrent trial calls", func(t *testing.T) {
		b, clk := newTestBreaker(Settings{MaxRequests: 1, Timeout: time.Second, ReadyToTrip: ConsecutiveFailures(1)})
		_ = b.Do(outcome(false))
		clk.Advance(2 * time.Second)

		err := b.Do(func() error {
			return b.Do(outcome(true))
		})
		assert.ErrorIs(t, err, ErrTooManyRequests)
	})
}

func TestBreakerIsSuccessful(t *testing.T) {
	errClient := errors.New("bad request")
	b, _ := newTestBreaker(Settings{
		ReadyToTrip:  ConsecutiveFailures(1),
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errClient) },
	})

	assert.ErrorIs(t, b.Do(func() error { return errClient }), errClient)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().TotalSuccesses)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{ReadyToTrip: ConsecutiveFailures(1)})

	assert.Panics(t, func() {
		_ = b.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string
	b, clk := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: ConsecutiveFailures(2),
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Do(outcome(false))
	_ = b.Do(outcome(false))
	clk.Advance(2 * time.Second)
	_ = b.Do(outcome(true))

	assert.Equal(t, []string{
		"test:closed->open",
		"test:open->half-open",
		"test:half-open->closed",
	}, transitions)
}

func TestCall(t *testing.T) {
	b, _ := newTestBreaker(Settings{})

	got, err := Call(b, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	got, err = Call(b, func() (string, error) { return "partial", errFailed })
	assert.ErrorIs(t, err, errFailed)
	assert.Equal(t, "partial", got)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
