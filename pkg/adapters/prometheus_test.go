package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPrometheusAdapter_Collect(t *testing.T) {
	const body = `{
		"status": "success",
		"data": {
			"resultType": "matrix",
			"result": [
				{"metric": {"pod": "a"}, "values": [[1704067260, "2"], [1704067200, "1"]]},
				{"metric": {"pod": "b"}, "values": [[1704067200, "10"], [1704067260, "20"]]}
			]
		}
	}`

	for _, flavour := range []Flavour{FlavourPrometheus, FlavourVictoriaMetrics} {
		t.Run(string(flavour), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/query_range" {
					t.Errorf("path = %s, want /api/v1/query_range", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("query") != "sum(rate(cpu[1m]))" {
					t.Errorf("query = %q", q.Get("query"))
				}
				if q.Get("step") != "15" {
					t.Errorf("step = %q, want 15", q.Get("step"))
				}
				fmt.Fprint(w, body)
			}))
			defer server.Close()

			p := &PrometheusAdapter{
				ServerURL:   server.URL,
				Query:       "sum(rate(cpu[1m]))",
				StepSeconds: 15,
				Flavour:     flavour,
			}
			if p.Name() != string(flavour) {
				t.Errorf("Name() = %s, want %s", p.Name(), flavour)
			}

			df, err := p.Collect(context.Background(), 120)
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			got, err := Samples(df)
			if err != nil {
				t.Fatalf("Samples() error = %v", err)
			}
			if len(got) != 2 || got[0] != 11 || got[1] != 22 {
				t.Errorf("values = %v, want [11 22]", got)
			}
			if df.Rows[0]["ts"] != "2024-01-01T00:00:00Z" {
				t.Errorf("first ts = %v", df.Rows[0]["ts"])
			}
		})
	}
}

func TestPrometheusAdapter_CollectErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusServiceUnavailable, body: ""},
		{name: "query error", status: http.StatusOK, body: `{"status": "error", "data": {}}`},
		{name: "malformed json", status: http.StatusOK, body: `{"status":`},
		{name: "bad value", status: http.StatusOK, body: `{"status": "success", "data": {"result": [{"values": [[1, "abc"]]}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			p := &PrometheusAdapter{ServerURL: server.URL, Query: "up"}
			if _, err := p.Collect(context.Background(), 60); err == nil {
				t.Error("Collect() error = nil, want error")
			}
		})
	}
}

func TestPrometheusAdapter_RequiresConfig(t *testing.T) {
	p := &PrometheusAdapter{}
	if _, err := p.Collect(context.Background(), 60); err == nil {
		t.Error("Collect() without ServerURL and Query should fail")
	}
}

func TestFlavour_DefaultURL(t *testing.T) {
	if got := FlavourPrometheus.DefaultURL(); got != "http://localhost:9090" {
		t.Errorf("prometheus DefaultURL() = %s", got)
	}
	if got := FlavourVictoriaMetrics.DefaultURL(); got != "http://localhost:8428" {
		t.Errorf("victoriametrics DefaultURL() = %s", got)
	}
}
