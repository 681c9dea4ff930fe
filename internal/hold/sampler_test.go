package hold

import (
	"math"
	"testing"
)

func TestSamplerReduce(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{0.4}, 0.4},
		{"plain mean below five", []float64{0.2, 0.4, 0.6}, 0.4},
		{"four samples keep extremes", []float64{0, 0.5, 0.5, 1}, 0.5},
		{"five samples drop extremes", []float64{0, 0.5, 0.5, 0.5, 1}, 0.5},
		{"spike rejected", []float64{0.5, 0.5, 0.5, 0.5, 1.0}, 0.5},
		{"dropout rejected", []float64{0, 0.5, 0.5, 0.5, 0.5}, 0.5},
		{"unsorted input", []float64{1.0, 0.5, 0, 0.5, 0.5}, 0.5},
	}

	var s Sampler
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Reduce(tt.vals)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Reduce(%v) = %v, want %v", tt.vals, got, tt.want)
			}
		})
	}
}

func TestSamplerReduceDoesNotMutateInput(t *testing.T) {
	vals := []float64{0.9, 0.1, 0.5}
	Sampler{}.Reduce(vals)
	if vals[0] != 0.9 || vals[1] != 0.1 || vals[2] != 0.5 {
		t.Errorf("Reduce reordered its input: %v", vals)
	}
}

func TestEMA(t *testing.T) {
	got := EMA(0.2, 1.0, 0.3)
	want := 0.3*1.0 + 0.7*0.2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EMA(0.2, 1.0, 0.3) = %v, want %v", got, want)
	}
	if got := EMA(0.5, 0.5, 0.3); got != 0.5 {
		t.Errorf("EMA at steady state = %v, want 0.5", got)
	}
}
