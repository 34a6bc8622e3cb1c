// Package router configures the detector's HTTP API.
//
// Routes:
//   - GET /status?stream=<name>: latest detection report of a stream
//   - GET /streams: latest report of every configured stream
//   - GET /healthz: 200 OK, or 503 when the store is unreachable
//   - GET /metrics: Prometheus metrics
//
// A report older than twice its stream's interval is served with an
// X-Spikewatch-Stale: true header.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/spikewatch/pkg/httpx"
	"github.com/HatiCode/spikewatch/pkg/storage"
)

// StaleHeader marks reports the detector has not refreshed in time.
const StaleHeader = "X-Spikewatch-Stale"

// DefaultStaleAfter applies to streams without a configured interval, e.g.
// reports written by another replica into a shared store.
const DefaultStaleAfter = 5 * time.Minute

const lookupTimeout = 2 * time.Second

// Deps are the collaborators of the routes. Only Store is required.
type Deps struct {
	Store storage.Store
	// Intervals maps configured streams to their detection interval.
	Intervals map[string]time.Duration
	Gatherer  prometheus.Gatherer
	Health    func() error
	Logger    *slog.Logger
}

// SetupRoutes returns a mux serving the detector API, wrapped in recovery
// and request logging.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandler(d.Health))
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /status", handleStatus(d))
	mux.HandleFunc("GET /streams", handleStreams(d))

	return httpx.Chain(mux, httpx.Recovery(d.Logger), httpx.Logging(d.Logger))
}

func (d Deps) staleAfter(stream string) time.Duration {
	if iv, ok := d.Intervals[stream]; ok && iv > 0 {
		return 2 * iv
	}
	return DefaultStaleAfter
}

func handleStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream := r.URL.Query().Get("stream")
		if stream == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "stream parameter required")
			return
		}
		if err := storage.ValidateStream(stream); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid stream name format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
		defer cancel()

		report, found, err := d.Store.GetLatest(ctx, stream)
		if err != nil {
			d.Logger.Error("failed to get report", "stream", stream, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no report for stream %q", stream))
			return
		}

		if time.Since(report.GeneratedAt) > d.staleAfter(stream) {
			w.Header().Set(StaleHeader, "true")
		}
		if err := httpx.WriteJSON(w, http.StatusOK, report); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// StreamSummary is one entry of the /streams reply.
type StreamSummary struct {
	Stream string          `json:"stream"`
	Stale  bool            `json:"stale"`
	Report *storage.Report `json:"report,omitempty"`
}

func handleStreams(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
		defer cancel()

		names := make([]string, 0, len(d.Intervals))
		for name := range d.Intervals {
			names = append(names, name)
		}
		slices.Sort(names)

		out := make([]StreamSummary, 0, len(names))
		for _, name := range names {
			report, found, err := d.Store.GetLatest(ctx, name)
			if err != nil {
				d.Logger.Error("failed to get report", "stream", name, "error", err)
				httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				return
			}
			s := StreamSummary{Stream: name}
			if found {
				s.Report = &report
				s.Stale = time.Since(report.GeneratedAt) > d.staleAfter(name)
			}
			out = append(out, s)
		}

		if err := httpx.WriteJSON(w, http.StatusOK, out); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}
