package anomaly

import "fmt"

// DefaultMinViolations is how many samples must exceed the threshold before
// a window is anomalous under ThresholdCount.
const DefaultMinViolations uint = 3

// ScoreThreshold counts the samples of w strictly above b.Threshold.
// A sample equal to the threshold is not a violation.
func ScoreThreshold(w Window, b Baseline, minViolations uint) (Verdict, error) {
	if w.Len() == 0 {
		return Verdict{}, fmt.Errorf("score: empty window: %w", ErrInvalidInput)
	}

	v := Verdict{
		Strategy:         ThresholdCount,
		MaxObservedValue: w.At(0),
	}

	for _, sample := range w.samples {
		if sample > v.MaxObservedValue {
			v.MaxObservedValue = sample
		}
		if sample > b.Threshold {
			if v.ViolatingCount == 0 || sample > v.MaxViolatingValue {
				v.MaxViolatingValue = sample
			}
			v.ViolatingCount++
		}
	}

	v.IsAnomaly = v.ViolatingCount >= minViolations
	return v, nil
}

type thresholdScorer struct {
	baseline      Baseline
	minViolations uint
}

func (s thresholdScorer) Kind() StrategyKind { return ThresholdCount }

func (s thresholdScorer) Score(w Window) (Verdict, error) {
	return ScoreThreshold(w, s.baseline, s.minViolations)
}
