package bench

import "slices"

// RunStatistics holds the elapsed-time samples of the current window, in
// milliseconds. The zero value is empty and ready to use. It is owned by one
// harness run and is not safe for concurrent use.
type RunStatistics struct {
	samples []float64
}

// Add appends one sample.
func (s *RunStatistics) Add(ms float64) {
	s.samples = append(s.samples, ms)
}

// Len returns the number of samples.
func (s *RunStatistics) Len() int {
	return len(s.samples)
}

// Samples returns a copy of the samples in insertion order.
func (s *RunStatistics) Samples() []float64 {
	return slices.Clone(s.samples)
}

// Mean returns the arithmetic mean, or 0 when empty.
func (s *RunStatistics) Mean() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.samples {
		sum += v
	}
	return sum / float64(len(s.samples))
}

// Min returns the smallest sample, or 0 when empty.
func (s *RunStatistics) Min() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	return slices.Min(s.samples)
}

// Max returns the largest sample, or 0 when empty.
func (s *RunStatistics) Max() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	return slices.Max(s.samples)
}

// Reset empties the window, keeping the backing array.
func (s *RunStatistics) Reset() {
	s.samples = s.samples[:0]
}
