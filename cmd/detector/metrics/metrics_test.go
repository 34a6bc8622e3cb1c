package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/spikewatch/pkg/anomaly"
)

func TestMetrics_RecordVerdict(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "checkout")

	m.RecordVerdict(0.001, anomaly.Verdict{MaxObservedValue: 25}, anomaly.StateQuiescent)
	m.RecordVerdict(0.001, anomaly.Verdict{IsAnomaly: true, ViolatingCount: 10, MaxObservedValue: 140}, anomaly.StateActive)

	if got := testutil.ToFloat64(m.WindowsTotal.WithLabelValues("nominal")); got != 1 {
		t.Errorf("nominal windows = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WindowsTotal.WithLabelValues("anomalous")); got != 1 {
		t.Errorf("anomalous windows = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ViolatingSamples); got != 10 {
		t.Errorf("violating samples = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.MaxObservedValue); got != 140 {
		t.Errorf("max observed = %v, want 140", got)
	}
	if got := testutil.ToFloat64(m.AlertActive); got != 1 {
		t.Errorf("alert active = %v, want 1", got)
	}

	m.SetAlertState(anomaly.StateQuiescent)
	if got := testutil.ToFloat64(m.AlertActive); got != 0 {
		t.Errorf("alert active after reset = %v, want 0", got)
	}
}

func TestMetrics_TrainingAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "checkout")

	m.RecordTraining(anomaly.Baseline{Threshold: 32.25})
	m.RecordError("adapter", "collect_failed")
	m.RecordError("adapter", "collect_failed")
	m.RecordCollect(0.2)

	if got := testutil.ToFloat64(m.TrainingsTotal); got != 1 {
		t.Errorf("trainings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Threshold); got != 32.25 {
		t.Errorf("threshold = %v, want 32.25", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("adapter", "collect_failed")); got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.CollectSeconds); got != 1 {
		t.Errorf("collect histogram series = %d, want 1", got)
	}
}

func TestNew_StreamsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "a")
	b := New(reg, "b")

	a.RecordTraining(anomaly.Baseline{Threshold: 1})
	b.RecordTraining(anomaly.Baseline{Threshold: 2})

	n, err := testutil.GatherAndCount(reg, "spikewatch_threshold")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("spikewatch_threshold series = %d, want 2", n)
	}
}
