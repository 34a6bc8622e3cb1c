package anomaly

import (
	"fmt"
	"math"
)

// Window is one observation interval of a metric stream: an ordered,
// non-empty sequence of samples. A Window never changes after NewWindow
// returns it, so it can be shared with the engine without copying.
type Window struct {
	samples []float64
}

// NewWindow copies samples into a Window.
// It fails with ErrInvalidInput when samples is empty or holds NaN or ±Inf.
func NewWindow(samples []float64) (Window, error) {
	if len(samples) == 0 {
		return Window{}, fmt.Errorf("window: no samples: %w", ErrInvalidInput)
	}
	if err := checkFinite(samples); err != nil {
		return Window{}, fmt.Errorf("window: %w", err)
	}

	cp := make([]float64, len(samples))
	copy(cp, samples)
	return Window{samples: cp}, nil
}

// MustWindow is like NewWindow but panics on error.
// Intended for fixtures and tests.
func MustWindow(samples ...float64) Window {
	w, err := NewWindow(samples)
	if err != nil {
		panic(err)
	}
	return w
}

// Len returns the number of samples.
func (w Window) Len() int { return len(w.samples) }

// At returns the i-th sample.
func (w Window) At(i int) float64 { return w.samples[i] }

// Values returns a copy of the samples.
func (w Window) Values() []float64 {
	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}

// Max returns the largest sample, or 0 for the zero Window.
func (w Window) Max() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	m := w.samples[0]
	for _, v := range w.samples[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func checkFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("sample %d is not finite (%v): %w", i, v, ErrInvalidInput)
		}
	}
	return nil
}
