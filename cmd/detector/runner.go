package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/HatiCode/spikewatch/cmd/detector/config"
	"github.com/HatiCode/spikewatch/cmd/detector/metrics"
	"github.com/HatiCode/spikewatch/pkg/adapters"
	"github.com/HatiCode/spikewatch/pkg/anomaly"
	"github.com/HatiCode/spikewatch/pkg/storage"
)

// Runner drives the detection loop of one stream:
//
//	train → (collect → evaluate → report) every interval
//
// A run starts with every successful training and is identified by a fresh
// UUID. Within a run the engine's alert latches on the first anomalous window.
type Runner struct {
	stream  config.StreamConfig
	adapter adapters.Adapter
	engine  *anomaly.Engine
	store   storage.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	// newBackOff returns the retry policy of a single collection.
	newBackOff func() backoff.BackOff

	runID     string
	cycle     int
	alertedAt *time.Time
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(
	stream config.StreamConfig,
	adapter adapters.Adapter,
	engine *anomaly.Engine,
	store storage.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		stream:  stream,
		adapter: adapter,
		engine:  engine,
		store:   store,
		metrics: m,
		logger:  logger.With("stream", stream.Name),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// RunID returns the identifier of the current run, empty before training.
func (r *Runner) RunID() string { return r.runID }

// Run trains the engine and evaluates a window every interval until ctx is
// done, the adapter runs out of windows, or an alert is raised with the
// stop policy. The last two end the run with a nil error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting detection loop",
		"adapter", r.adapter.Name(),
		"strategy", r.engine.Strategy(),
		"interval", r.stream.Interval,
		"window", r.stream.Window,
		"on_alert", r.stream.OnAlert,
	)

	ticker := time.NewTicker(r.stream.Interval)
	defer ticker.Stop()

	for {
		done, err := r.step(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("detection cycle failed", "cycle", r.cycle, "error", err)
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			r.logger.Info("detection loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// step trains when needed, evaluates one window and applies the alert
// policy. It reports whether the loop is over.
func (r *Runner) step(ctx context.Context) (bool, error) {
	if _, trained := r.engine.Baseline(); !trained {
		if err := r.Train(ctx); err != nil {
			return errors.Is(err, adapters.ErrExhausted), err
		}
	}

	_, err := r.Tick(ctx)
	if errors.Is(err, adapters.ErrExhausted) {
		r.logger.Info("adapter exhausted, ending run", "run_id", r.runID, "cycles", r.cycle)
		return true, nil
	}

	if r.engine.State() != anomaly.StateActive {
		return false, err
	}

	if r.stream.OnAlert == config.OnAlertRetrain {
		r.logger.Info("alert raised, retraining", "run_id", r.runID, "cycle", r.cycle)
		if terr := r.Train(ctx); terr != nil {
			return errors.Is(terr, adapters.ErrExhausted), errors.Join(err, terr)
		}
		return false, err
	}

	r.logger.Warn("alert raised, stopping detection", "run_id", r.runID, "cycle", r.cycle)
	return true, err
}

// Train fits the engine on the stream's history and starts a new run.
// Adapters implementing adapters.HistorySource provide the corpus directly;
// other adapters are asked for a TrainWindow-long collection.
func (r *Runner) Train(ctx context.Context) error {
	start := time.Now()

	history, err := r.history(ctx)
	if err != nil {
		if !errors.Is(err, adapters.ErrExhausted) {
			r.metrics.RecordError("adapter", "history_failed")
		}
		return fmt.Errorf("train: %w", err)
	}

	baseline, err := r.engine.Train(history)
	if err != nil {
		r.metrics.RecordError("engine", "train_failed")
		return fmt.Errorf("train: %w", err)
	}

	r.runID = uuid.NewString()
	r.cycle = 0
	r.alertedAt = nil

	r.metrics.RecordTraining(baseline)
	r.metrics.SetAlertState(r.engine.State())

	r.logger.Info("baseline trained",
		"run_id", r.runID,
		"samples", baseline.Samples,
		"mean", baseline.Mean,
		"spread", baseline.Spread,
		"threshold", baseline.Threshold,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *Runner) history(ctx context.Context) ([]float64, error) {
	if hs, ok := r.adapter.(adapters.HistorySource); ok {
		return hs.History(ctx)
	}

	df, err := r.collect(ctx, r.stream.TrainWindow)
	if err != nil {
		return nil, err
	}
	return adapters.Samples(df)
}

// Tick collects and evaluates one window, then stores the resulting report.
// Exported for testing purposes.
func (r *Runner) Tick(ctx context.Context) (anomaly.Verdict, error) {
	df, err := r.collect(ctx, r.stream.Window)
	if err != nil {
		if !errors.Is(err, adapters.ErrExhausted) {
			r.metrics.RecordError("adapter", "collect_failed")
		}
		return anomaly.Verdict{}, fmt.Errorf("collect: %w", err)
	}

	samples, err := adapters.Samples(df)
	if err != nil {
		r.metrics.RecordError("adapter", "invalid_frame")
		return anomaly.Verdict{}, fmt.Errorf("collect: %w", err)
	}

	window, err := anomaly.NewWindow(samples)
	if err != nil {
		r.metrics.RecordError("engine", "invalid_window")
		return anomaly.Verdict{}, fmt.Errorf("evaluate: %w", err)
	}

	evalStart := time.Now()
	verdict, err := r.engine.Evaluate(window)
	if err != nil {
		r.metrics.RecordError("engine", "evaluate_failed")
		return anomaly.Verdict{}, fmt.Errorf("evaluate: %w", err)
	}
	evalDuration := time.Since(evalStart)

	r.cycle++
	state := r.engine.State()
	now := time.Now().UTC()
	if state == anomaly.StateActive && r.alertedAt == nil {
		r.alertedAt = &now
	}

	r.metrics.RecordVerdict(evalDuration.Seconds(), verdict, state)
	r.logVerdict(verdict, state)

	baseline, _ := r.engine.Baseline()
	report := storage.Report{
		Stream:      r.stream.Name,
		Metric:      r.stream.Metric,
		RunID:       r.runID,
		Strategy:    r.engine.Strategy(),
		State:       state,
		Cycle:       r.cycle,
		GeneratedAt: now,
		AlertedAt:   r.alertedAt,
		Baseline:    baseline,
		Verdict:     verdict,
	}
	if err := r.store.Put(ctx, report); err != nil {
		r.metrics.RecordError("store", "put_failed")
		return verdict, fmt.Errorf("store: %w", err)
	}

	return verdict, nil
}

func (r *Runner) logVerdict(v anomaly.Verdict, state anomaly.AlertState) {
	if v.IsAnomaly {
		r.logger.Warn("anomaly detected",
			"run_id", r.runID,
			"cycle", r.cycle,
			"violating", v.ViolatingCount,
			"max_violating", v.MaxViolatingValue,
			"max_observed", v.MaxObservedValue,
			"state", state,
		)
		return
	}
	r.logger.Info("window nominal",
		"run_id", r.runID,
		"cycle", r.cycle,
		"violating", v.ViolatingCount,
		"max_observed", v.MaxObservedValue,
		"state", state,
	)
}

// collect asks the adapter for span worth of samples, retrying transient
// failures up to CollectRetries times. ErrExhausted is never retried.
func (r *Runner) collect(ctx context.Context, span time.Duration) (*adapters.DataFrame, error) {
	var df *adapters.DataFrame

	op := func() error {
		start := time.Now()
		out, err := r.adapter.Collect(ctx, int(span.Seconds()))
		if err != nil {
			if errors.Is(err, adapters.ErrExhausted) {
				return backoff.Permanent(err)
			}
			return err
		}
		duration := time.Since(start)
		r.metrics.RecordCollect(duration.Seconds())

		r.logger.Debug("collected metrics",
			"adapter", r.adapter.Name(),
			"rows", len(out.Rows),
			"window_seconds", int(span.Seconds()),
			"duration_ms", duration.Milliseconds(),
		)
		df = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("collect failed, retrying", "error", err, "retry_in", wait)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(r.newBackOff(), uint64(max(r.stream.CollectRetries, 0))),
		ctx,
	)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return df, nil
}
