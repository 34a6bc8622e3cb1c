package anomaly

import "errors"

var (
	// ErrInvalidInput reports an empty or malformed window, history or option.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData reports a training corpus too small for the chosen strategy.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNotTrained is returned by Evaluate before any successful Train.
	ErrNotTrained = errors.New("engine not trained")
)
