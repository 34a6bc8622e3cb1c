// Package anomaly implements the detection engine: it learns a baseline from
// historical samples, scores metric windows against it and latches a one-shot
// alert.
//
// Two scoring strategies are available and are deliberately not harmonized:
//   - ThresholdCount: a window is anomalous when at least MinViolations samples
//     exceed mean + SigmaMultiplier*stddev of the training corpus.
//   - EnsembleOutlier: a window is anomalous when an isolation forest fitted on
//     the training corpus classifies a single sample as an outlier.
//
// Typical use:
//
//	eng, err := anomaly.NewEngine(anomaly.DefaultOptions())
//	baseline, err := eng.Train(history)
//	for each window {
//		verdict, err := eng.Evaluate(window)
//		if eng.State() == anomaly.StateActive { stop }
//	}
//
// An Engine is safe for concurrent use, but each metric stream should own its
// own Engine: the alert state belongs to one stream.
package anomaly

import (
	"fmt"
	"sync"
)

// Engine owns the active scoring strategy, the current Baseline and the
// alert state of one metric stream.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	scorer   Scorer
	baseline Baseline
	trained  bool
	state    AlertState
}

// NewEngine validates opts (after applying defaults) and returns an untrained
// engine in StateQuiescent.
func NewEngine(opts Options) (*Engine, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("engine options: %w", err)
	}
	return &Engine{opts: opts, state: StateQuiescent}, nil
}

// Train builds a new Baseline from history and, for EnsembleOutlier, fits the
// isolation forest. On success the previous model is replaced and the alert
// state returns to StateQuiescent, starting a new run. On failure nothing changes.
func (e *Engine) Train(history []float64) (Baseline, error) {
	baseline, err := Train(history, e.opts.SigmaMultiplier)
	if err != nil {
		return Baseline{}, err
	}

	var scorer Scorer
	switch e.opts.Strategy {
	case EnsembleOutlier:
		ens, err := FitEnsemble(history, e.opts.ensembleParams())
		if err != nil {
			return Baseline{}, err
		}
		scorer = ens
	default:
		scorer = thresholdScorer{baseline: baseline, minViolations: e.opts.MinViolations}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.scorer = scorer
	e.baseline = baseline
	e.trained = true
	e.state = StateQuiescent

	return baseline, nil
}

// Evaluate scores w with the active strategy. An anomalous verdict moves the
// engine to StateActive; once there it stays until Train or Reset, whatever
// later verdicts say.
func (e *Engine) Evaluate(w Window) (Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.trained {
		return Verdict{}, fmt.Errorf("evaluate: %w", ErrNotTrained)
	}

	v, err := e.scorer.Score(w)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate: %w", err)
	}

	if v.IsAnomaly {
		e.state = StateActive
	}
	return v, nil
}

// State returns the current alert state.
func (e *Engine) State() AlertState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reset clears an active alert without retraining.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateQuiescent
}

// Baseline returns the current baseline and whether the engine is trained.
func (e *Engine) Baseline() (Baseline, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline, e.trained
}

// Options returns the engine's options with defaults applied.
func (e *Engine) Options() Options {
	return e.opts
}

// Strategy returns the engine's scoring strategy.
func (e *Engine) Strategy() StrategyKind {
	return e.opts.Strategy
}
