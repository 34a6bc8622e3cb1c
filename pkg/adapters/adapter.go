// Package adapters connects spikewatch to the systems a metric stream is read
// from and normalizes what they return into a DataFrame.
//
// Available adapters:
//   - PrometheusAdapter: range queries against Prometheus or VictoriaMetrics
//   - HTTPAdapter: any JSON API, with gjson paths for values and timestamps
//   - ReplayAdapter: recorded training data and windows from a YAML file
//
// Adapters only fetch and shape data. Baselines and scoring live in
// package anomaly.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"
)

// ErrExhausted is returned by adapters with a finite supply of windows once
// the last one has been collected.
var ErrExhausted = errors.New("adapter exhausted")

// Row is a single observation: {"ts": RFC3339 string, "value": float64}.
type Row map[string]any

// DataFrame is the tabular result of one collection, ordered by time.
type DataFrame struct {
	Rows []Row
}

// Adapter is implemented by every metric source.
//
// Collect must honour ctx cancellation and never panic. Name is a short
// identifier used in logs and metrics, e.g. "prometheus".
type Adapter interface {
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)
	Name() string
}

// HistorySource is implemented by adapters that carry their own training
// corpus. Callers prefer it over collecting a long training window.
type HistorySource interface {
	History(ctx context.Context) ([]float64, error)
}

// Samples returns the "value" column of df in row order.
func Samples(df *DataFrame) ([]float64, error) {
	if df == nil {
		return nil, errors.New("nil data frame")
	}

	out := make([]float64, 0, len(df.Rows))
	for i, row := range df.Rows {
		raw, ok := row["value"]
		if !ok {
			return nil, fmt.Errorf("row %d: missing value", i)
		}
		v, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("row %d: value has type %T, want float64", i, raw)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("row %d: non-finite value %v", i, v)
		}
		out = append(out, v)
	}
	return out, nil
}

// sortedFrame orders rows holding time.Time timestamps and renders the
// timestamps as RFC3339 strings.
func sortedFrame(rows []Row) *DataFrame {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["ts"].(time.Time).Before(rows[j]["ts"].(time.Time))
	})
	for i := range rows {
		rows[i]["ts"] = rows[i]["ts"].(time.Time).UTC().Format(time.RFC3339)
	}
	return &DataFrame{Rows: rows}
}

func stepOrDefault(step int) int {
	if step <= 0 {
		return 60
	}
	return step
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 10 * time.Second}
}
