package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Window keeps the most recent durations in a fixed-size ring
type Window struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// LatencySummary describes a window in milliseconds
type LatencySummary struct {
	Count  int     `json:"count"`
	MeanMs float64 `json:"meanMs"`
	P50Ms  float64 `json:"p50Ms"`
	P95Ms  float64 `json:"p95Ms"`
	P99Ms  float64 `json:"p99Ms"`
}

// NewWindow creates a window holding up to size samples
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{samples: make([]float64, size)}
}

// Add records one duration, evicting the oldest when full
func (w *Window) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = float64(d) / float64(time.Millisecond)
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Summary computes mean and empirical quantiles over the window
func (w *Window) Summary() LatencySummary {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	sorted := make([]float64, n)
	copy(sorted, w.samples[:n])
	w.mu.Unlock()

	if n == 0 {
		return LatencySummary{}
	}
	sort.Float64s(sorted)

	return LatencySummary{
		Count:  n,
		MeanMs: stat.Mean(sorted, nil),
		P50Ms:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95Ms:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99Ms:  stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}
