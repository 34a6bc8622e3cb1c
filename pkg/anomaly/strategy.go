package anomaly

import "fmt"

// StrategyKind selects how windows are scored.
type StrategyKind int

const (
	// ThresholdCount flags a window when at least MinViolations samples
	// exceed the baseline threshold.
	ThresholdCount StrategyKind = iota
	// EnsembleOutlier flags a window when an isolation forest fitted on the
	// training corpus classifies at least one sample as an outlier.
	EnsembleOutlier
)

func (k StrategyKind) String() string {
	switch k {
	case ThresholdCount:
		return "threshold"
	case EnsembleOutlier:
		return "ensemble"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k StrategyKind) MarshalText() ([]byte, error) {
	if k != ThresholdCount && k != EnsembleOutlier {
		return nil, fmt.Errorf("unknown strategy %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StrategyKind) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseStrategy maps "threshold" or "ensemble" to a StrategyKind.
func ParseStrategy(s string) (StrategyKind, error) {
	switch s {
	case "threshold", "threshold-count":
		return ThresholdCount, nil
	case "ensemble", "ensemble-outlier", "isolation-forest":
		return EnsembleOutlier, nil
	default:
		return 0, fmt.Errorf("strategy %q (must be threshold or ensemble): %w", s, ErrInvalidInput)
	}
}

// Verdict is the outcome of scoring one window.
type Verdict struct {
	Strategy  StrategyKind `json:"strategy"`
	IsAnomaly bool         `json:"isAnomaly"`

	// ViolatingCount is the number of samples above the threshold
	// (ThresholdCount) or classified as outliers (EnsembleOutlier).
	ViolatingCount uint `json:"violatingCount"`

	// MaxObservedValue is the largest sample of the whole window.
	MaxObservedValue float64 `json:"maxObservedValue"`

	// MaxViolatingValue is the largest violating sample, 0 when there is none.
	// Report this one for anomalous windows.
	MaxViolatingValue float64 `json:"maxViolatingValue"`
}

// Scorer scores windows against a fitted model.
type Scorer interface {
	Kind() StrategyKind
	Score(w Window) (Verdict, error)
}

// AlertState is the engine's one-shot alert latch.
type AlertState int

const (
	// StateQuiescent means no anomalous window has been seen in the current run.
	StateQuiescent AlertState = iota
	// StateActive is entered on the first anomalous window and kept until
	// the next Train or Reset.
	StateActive
)

func (s AlertState) String() string {
	switch s {
	case StateQuiescent:
		return "quiescent"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s AlertState) MarshalText() ([]byte, error) {
	if s != StateQuiescent && s != StateActive {
		return nil, fmt.Errorf("unknown alert state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AlertState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "quiescent":
		*s = StateQuiescent
	case "active":
		*s = StateActive
	default:
		return fmt.Errorf("alert state %q: %w", text, ErrInvalidInput)
	}
	return nil
}
