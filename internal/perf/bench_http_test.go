package perf

import (
	"sort"
	"testing"
	"time"
)

func TestOpsLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			name:      "statement cached",
			samples:   []time.Duration{20 * time.Millisecond, 25 * time.Millisecond, 30 * time.Millisecond, 35 * time.Millisecond, 40 * time.Millisecond, 42 * time.Millisecond, 45 * time.Millisecond, 50 * time.Millisecond, 55 * time.Millisecond, 60 * time.Millisecond},
			threshold: 200 * time.Millisecond,
		},
		{
			name:      "statement cold",
			samples:   []time.Duration{300 * time.Millisecond, 320 * time.Millisecond, 350 * time.Millisecond, 380 * time.Millisecond, 400 * time.Millisecond, 420 * time.Millisecond, 450 * time.Millisecond, 480 * time.Millisecond, 500 * time.Millisecond, 520 * time.Millisecond},
			threshold: time.Second,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func TestPercentile95(t *testing.T) {
	if got := percentile95(nil); got != 0 {
		t.Fatalf("expected zero for empty samples, got %s", got)
	}
	samples := []time.Duration{5, 1, 4, 2, 3}
	if got := percentile95(samples); got != 4 {
		t.Fatalf("expected 4, got %s", got)
	}
	if samples[0] != 5 {
		t.Fatal("percentile95 must not reorder its input")
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
