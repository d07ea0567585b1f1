package gateway

import (
	"math"
	"sort"
	"sync"
)

// LatencyTracker keeps the last N render latency samples (ms) and reports
// percentiles over them. Safe for concurrent use.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int // overwrite position once samples is full
}

// NewLatencyTracker creates a tracker holding up to capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{samples: make([]float64, 0, capacity)}
}

// Record adds a sample in milliseconds. Negative samples (producer clock
// ahead of ours) are ignored.
func (lt *LatencyTracker) Record(ms float64) {
	if ms < 0 {
		return
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if len(lt.samples) < cap(lt.samples) {
		lt.samples = append(lt.samples, ms)
		return
	}
	lt.samples[lt.next] = ms
	lt.next = (lt.next + 1) % len(lt.samples)
}

// Percentiles returns p50, p95 and p99, or zeros with no samples.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	sorted := append([]float64(nil), lt.samples...)
	lt.mu.Unlock()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	return percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

// Count returns the number of samples held.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.samples)
}

// percentile linearly interpolates the p-th percentile (0..1) of sorted.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
