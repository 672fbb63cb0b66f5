package metrics

import (
	"testing"
	"time"
)

func TestLatencyTrackerStats(t *testing.T) {
	lt := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}

	s := lt.Stats()
	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"count", s.Count, 100},
		{"min", s.MinMS, 1},
		{"max", s.MaxMS, 100},
		{"avg", s.AvgMS, 50},
		{"p50", s.P50MS, 50},
		{"p95", s.P95MS, 95},
		{"p99", s.P99MS, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLatencyTrackerWindow(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 1; i <= 11; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}

	s := lt.Stats()
	if s.Count != 11 {
		t.Errorf("Count = %d, want 11", s.Count)
	}
	if s.Samples != 10 {
		t.Errorf("Samples = %d, want 10", s.Samples)
	}
	if s.MinMS != 2 {
		t.Errorf("MinMS = %d, want 2 (oldest sample dropped)", s.MinMS)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	if s := NewLatencyTracker(0).Stats(); s != (LatencyStats{}) {
		t.Errorf("Stats() = %+v, want zero", s)
	}
}

func TestLatencyRegistry(t *testing.T) {
	r := NewLatencyRegistry(10)
	r.Record("BACKFILL", 3*time.Second)
	r.Record("BACKFILL", time.Second)
	r.Record("INCREMENTAL", 200*time.Millisecond)

	all := r.AllStats()
	if len(all) != 2 {
		t.Fatalf("keys = %d, want 2", len(all))
	}
	if got := all["BACKFILL"]; got.Count != 2 || got.MaxMS != 3000 {
		t.Errorf("BACKFILL = %+v", got)
	}
	if got := all["INCREMENTAL"]; got.P50MS != 200 {
		t.Errorf("INCREMENTAL p50 = %d, want 200", got.P50MS)
	}
}
