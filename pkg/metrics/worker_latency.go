// Package metrics tracks job durations with percentile calculations.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Latency Tracker with P50/P95/P99 Percentiles
// =============================================================================

// LatencyTracker keeps a sliding window of durations.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // milliseconds
	maxSamples int
	total      int64
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 500
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record records one duration.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// drop the oldest 10% at once
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = append(lt.samples[:0], lt.samples[drop:]...)
	}
	lt.samples = append(lt.samples, d.Milliseconds())
	lt.total++
}

// Stats returns statistics over the current window. Count covers every sample ever recorded.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	sorted := append([]int64(nil), lt.samples...)
	total := lt.total
	lt.mu.Unlock()

	if len(sorted) == 0 {
		return LatencyStats{Count: total}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)

	return LatencyStats{
		Count:   total,
		Samples: n,
		MinMS:   sorted[0],
		MaxMS:   sorted[n-1],
		AvgMS:   sum / int64(n),
		P50MS:   percentile(sorted, 0.50),
		P95MS:   percentile(sorted, 0.95),
		P99MS:   percentile(sorted, 0.99),
	}
}

func percentile(sorted []int64, p float64) int64 {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// LatencyStats holds latency statistics in milliseconds.
type LatencyStats struct {
	Count   int64 `json:"count"`
	Samples int   `json:"samples"`
	MinMS   int64 `json:"min_ms"`
	MaxMS   int64 `json:"max_ms"`
	AvgMS   int64 `json:"avg_ms"`
	P50MS   int64 `json:"p50_ms"`
	P95MS   int64 `json:"p95_ms"`
	P99MS   int64 `json:"p99_ms"`
}

// =============================================================================
// Registry - one tracker per key (job type)
// =============================================================================

type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

// Record records a duration under key.
func (r *LatencyRegistry) Record(key string, d time.Duration) {
	r.mu.RLock()
	tracker, ok := r.trackers[key]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[key]; !ok {
			tracker = NewLatencyTracker(r.window)
			r.trackers[key] = tracker
		}
		r.mu.Unlock()
	}

	tracker.Record(d)
}

// AllStats returns statistics for every key seen so far.
func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]LatencyStats, len(r.trackers))
	for key, tracker := range r.trackers {
		result[key] = tracker.Stats()
	}
	return result
}
