// Package metrics instruments the detection loop of one stream.
//
// Metrics exposed, all with a const "stream" label:
//   - spikewatch_collect_seconds: adapter collection duration
//   - spikewatch_evaluate_seconds: window scoring duration
//   - spikewatch_windows_total{outcome}: evaluated windows, nominal or anomalous
//   - spikewatch_violating_samples: violating samples in the last window
//   - spikewatch_max_observed_value: largest sample of the last window
//   - spikewatch_threshold: current baseline threshold
//   - spikewatch_alert_active: 1 while the engine is in the active state
//   - spikewatch_trainings_total: successful baseline trainings
//   - spikewatch_errors_total{component,reason}: failures by stage
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/spikewatch/pkg/anomaly"
)

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	CollectSeconds   prometheus.Histogram
	EvaluateSeconds  prometheus.Histogram
	WindowsTotal     *prometheus.CounterVec
	ViolatingSamples prometheus.Gauge
	MaxObservedValue prometheus.Gauge
	Threshold        prometheus.Gauge
	AlertActive      prometheus.Gauge
	TrainingsTotal   prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
}

// New registers the metrics of stream with reg. Registering the same stream
// twice on one registry panics.
func New(reg prometheus.Registerer, stream string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"stream": stream}

	return &Metrics{
		CollectSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "spikewatch_collect_seconds",
			Help:        "Time spent collecting a window from the adapter",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		EvaluateSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "spikewatch_evaluate_seconds",
			Help:        "Time spent scoring a window",
			ConstLabels: labels,
			Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		WindowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "spikewatch_windows_total",
			Help:        "Evaluated windows by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		ViolatingSamples: f.NewGauge(prometheus.GaugeOpts{
			Name:        "spikewatch_violating_samples",
			Help:        "Violating samples in the last evaluated window",
			ConstLabels: labels,
		}),
		MaxObservedValue: f.NewGauge(prometheus.GaugeOpts{
			Name:        "spikewatch_max_observed_value",
			Help:        "Largest sample of the last evaluated window",
			ConstLabels: labels,
		}),
		Threshold: f.NewGauge(prometheus.GaugeOpts{
			Name:        "spikewatch_threshold",
			Help:        "Baseline threshold: mean + multiplier * stddev",
			ConstLabels: labels,
		}),
		AlertActive: f.NewGauge(prometheus.GaugeOpts{
			Name:        "spikewatch_alert_active",
			Help:        "1 while the stream's alert is active",
			ConstLabels: labels,
		}),
		TrainingsTotal: f.NewCounter(prometheus.CounterOpts{
			Name:        "spikewatch_trainings_total",
			Help:        "Successful baseline trainings",
			ConstLabels: labels,
		}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "spikewatch_errors_total",
			Help:        "Errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

func (m *Metrics) RecordCollect(seconds float64) {
	if m == nil {
		return
	}
	m.CollectSeconds.Observe(seconds)
}

func (m *Metrics) RecordTraining(b anomaly.Baseline) {
	if m == nil {
		return
	}
	m.TrainingsTotal.Inc()
	m.Threshold.Set(b.Threshold)
}

// RecordVerdict records a scored window and the engine state that followed it.
func (m *Metrics) RecordVerdict(seconds float64, v anomaly.Verdict, state anomaly.AlertState) {
	if m == nil {
		return
	}
	m.EvaluateSeconds.Observe(seconds)

	outcome := "nominal"
	if v.IsAnomaly {
		outcome = "anomalous"
	}
	m.WindowsTotal.WithLabelValues(outcome).Inc()
	m.ViolatingSamples.Set(float64(v.ViolatingCount))
	m.MaxObservedValue.Set(v.MaxObservedValue)
	m.SetAlertState(state)
}

func (m *Metrics) SetAlertState(state anomaly.AlertState) {
	if m == nil {
		return
	}
	if state == anomaly.StateActive {
		m.AlertActive.Set(1)
		return
	}
	m.AlertActive.Set(0)
}

func (m *Metrics) RecordError(component, reason string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
