package hints

import (
	"testing"
	"time"
)

// mockRandomSource returns a fixed value for deterministic testing.
type mockRandomSource struct {
	value float64
}

func (m mockRandomSource) Float64() float64 {
	return m.value
}

func TestBackoff_Table(t *testing.T) {
	timeout := 100 * time.Millisecond

	// min = 100ms * 1.6^max(0, n-1); max = min * 1.25
	expected := []struct {
		timeouts int
		minMs    int
		maxMs    int
	}{
		{0, 100, 125},
		{1, 100, 125},
		{2, 160, 200},
		{3, 256, 320},
		{4, 409, 512},
	}

	calc := NewBackoffCalculator(nil)

	for _, tc := range expected {
		t.Run("", func(t *testing.T) {
			minMs := int(calc.CalculateMin(timeout, tc.timeouts).Milliseconds())
			maxMs := int(calc.CalculateMax(timeout, tc.timeouts).Milliseconds())

			if minMs < tc.minMs-1 || minMs > tc.minMs+1 {
				t.Errorf("timeouts %d: min = %dms, want %dms", tc.timeouts, minMs, tc.minMs)
			}
			if maxMs < tc.maxMs-1 || maxMs > tc.maxMs+1 {
				t.Errorf("timeouts %d: max = %dms, want %dms", tc.timeouts, maxMs, tc.maxMs)
			}
		})
	}
}

func TestBackoff_Jitter(t *testing.T) {
	timeout := 100 * time.Millisecond

	low := NewBackoffCalculator(mockRandomSource{value: 0.0}).Calculate(timeout, 0)
	if low != timeout {
		t.Errorf("Calculate(random=0) = %v, want %v", low, timeout)
	}

	high := NewBackoffCalculator(mockRandomSource{value: 1.0}).Calculate(timeout, 0)
	if want := 125 * time.Millisecond; high != want {
		t.Errorf("Calculate(random=1) = %v, want %v", high, want)
	}
}

func TestBackoff_Capped(t *testing.T) {
	calc := NewBackoffCalculator(mockRandomSource{value: 0})
	timeout := 10 * time.Millisecond

	capped := calc.Calculate(timeout, ReplyBackoffThreshold+ReplyBackoffMaxExponent)
	beyond := calc.Calculate(timeout, ReplyBackoffThreshold+ReplyBackoffMaxExponent+10)
	if capped != beyond {
		t.Errorf("Calculate beyond cap = %v, want %v", beyond, capped)
	}
}
