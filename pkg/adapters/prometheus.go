package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Flavour names a Prometheus-compatible backend.
type Flavour string

const (
	FlavourPrometheus      Flavour = "prometheus"
	FlavourVictoriaMetrics Flavour = "victoriametrics"
)

// DefaultURL returns the address the backend listens on out of the box.
func (f Flavour) DefaultURL() string {
	if f == FlavourVictoriaMetrics {
		return "http://localhost:8428"
	}
	return "http://localhost:9090"
}

// PrometheusAdapter runs a range query through the /api/v1/query_range
// endpoint shared by Prometheus and VictoriaMetrics.
//
// If the query returns several series, values at the same timestamp are summed.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090.
	ServerURL string
	// Query is the PromQL or MetricsQL expression.
	Query string
	// StepSeconds is the query resolution, 60 when <= 0.
	StepSeconds int
	// Flavour only affects Name; empty means FlavourPrometheus.
	Flavour Flavour
	// HTTPClient is optional.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string {
	if p.Flavour == "" {
		return string(FlavourPrometheus)
	}
	return string(p.Flavour)
}

// Collect queries the last windowSeconds of the expression.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if p.ServerURL == "" || p.Query == "" {
		return &DataFrame{}, fmt.Errorf("%s adapter: ServerURL and Query are required", p.Name())
	}
	if windowSeconds <= 0 {
		return &DataFrame{}, fmt.Errorf("%s adapter: window must be positive, got %ds", p.Name(), windowSeconds)
	}

	step := stepOrDefault(p.StepSeconds)
	end := time.Now().UTC().Truncate(time.Second)
	start := end.Add(-time.Duration(windowSeconds) * time.Second)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &DataFrame{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := defaultClient(p.HTTPClient).Do(req)
	if err != nil {
		return &DataFrame{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DataFrame{}, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	var rr RangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return &DataFrame{}, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if rr.Status != "success" {
		return &DataFrame{}, fmt.Errorf("%s status: %s", p.Name(), rr.Status)
	}

	rows, err := SumSeries(rr.Data.Result)
	if err != nil {
		return &DataFrame{}, err
	}
	return sortedFrame(rows), nil
}

// RangeResponse is the body of a query_range call.
type RangeResponse struct {
	Status string    `json:"status"`
	Data   RangeData `json:"data"`
}

type RangeData struct {
	ResultType string        `json:"resultType"`
	Result     []RangeSeries `json:"result"`
}

// RangeSeries holds one labelled series; each value is [unix_seconds, "value"].
type RangeSeries struct {
	Metric map[string]string `json:"metric"`
	Values [][]any           `json:"values"`
}

// SumSeries merges series into rows, summing values that share a timestamp.
// Row timestamps are time.Time.
func SumSeries(series []RangeSeries) ([]Row, error) {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}
			ts, err := pairNumber(pair[0])
			if err != nil {
				return nil, fmt.Errorf("timestamp: %w", err)
			}
			val, err := pairNumber(pair[1])
			if err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			acc[int64(ts)] += val
		}
	}

	rows := make([]Row, 0, len(acc))
	for ts, v := range acc {
		rows = append(rows, Row{"ts": time.Unix(ts, 0).UTC(), "value": v})
	}
	return rows, nil
}

func pairNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}
