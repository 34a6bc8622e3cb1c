package anomaly

import (
	"fmt"
	"math"
)

// DefaultSigmaMultiplier places the threshold five standard deviations above
// the mean, so only extreme deviations count as violations.
const DefaultSigmaMultiplier = 5.0

// Baseline is the statistical profile learned from a training corpus.
//
// Threshold always equals Mean + Multiplier*Spread. A Baseline is never
// modified after Train returns it; retraining produces a new value.
type Baseline struct {
	Mean       float64 `json:"mean"`
	Spread     float64 `json:"spread"`
	Threshold  float64 `json:"threshold"`
	Multiplier float64 `json:"multiplier"`
	Samples    int     `json:"samples"`
}

// Train computes a Baseline from history.
//
// Spread is the population standard deviation (variance divided by n, not n-1).
// Fails with ErrInvalidInput when history is empty or not finite, or when
// multiplier is negative or not finite.
func Train(history []float64, multiplier float64) (Baseline, error) {
	if len(history) == 0 {
		return Baseline{}, fmt.Errorf("train: empty history: %w", ErrInvalidInput)
	}
	if err := checkFinite(history); err != nil {
		return Baseline{}, fmt.Errorf("train: %w", err)
	}
	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier < 0 {
		return Baseline{}, fmt.Errorf("train: sigma multiplier %v: %w", multiplier, ErrInvalidInput)
	}

	mean, spread := meanStdDev(history)

	return Baseline{
		Mean:       mean,
		Spread:     spread,
		Threshold:  mean + multiplier*spread,
		Multiplier: multiplier,
		Samples:    len(history),
	}, nil
}

// meanStdDev returns the arithmetic mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}
