// Command detector watches metric streams for sudden spikes.
//
// For every configured stream the detector:
//  1. Learns a baseline from the stream's history
//  2. Collects a window of recent samples every interval
//  3. Scores the window (sigma threshold or isolation forest ensemble)
//  4. Latches an alert on the first anomalous window, then stops or retrains
//  5. Stores the latest report for the HTTP API
//
// The detector serves an HTTP API on port 8082 (configurable) providing:
//   - GET /status?stream=<name> - Latest detection report of a stream
//   - GET /streams - Latest report of every configured stream
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	detector \
//	  -stream=checkout-cpu \
//	  -adapter=prometheus \
//	  -strategy=threshold -sigma=5 -min-violations=3 \
//	  -interval=30s -window=5m -train-window=1h
//
//	detector -config-file=streams.yaml -storage=redis -redis-addr=redis:6379
//
// Environment variables:
//
//	STREAM           - Stream name (single-stream mode)
//	ADAPTER          - prometheus, victoriametrics, http or replay
//	ADAPTER_*        - Adapter settings, e.g. ADAPTER_QUERY, ADAPTER_URL, ADAPTER_PATH
//	STRATEGY         - threshold or ensemble (default: threshold)
//	SEED             - Random seed, required by the ensemble strategy
//	INTERVAL         - Detection interval (default: 30s)
//	WINDOW           - Evaluated window (default: 5m)
//	TRAIN_WINDOW     - Training history (default: 1h)
//	ON_ALERT         - stop or retrain (default: stop)
//	CONFIG_FILE      - YAML stream file (multi-stream mode)
//	STORAGE          - memory or redis (default: memory)
//	REDIS_ADDR       - Redis address (default: localhost:6379)
//	TLS_CERT_FILE    - Serve HTTPS with this certificate (with TLS_KEY_FILE)
//	TLS_CA_FILE      - Require client certificates signed by this CA
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/spikewatch/cmd/detector/config"
	"github.com/HatiCode/spikewatch/cmd/detector/logger"
	"github.com/HatiCode/spikewatch/cmd/detector/metrics"
	"github.com/HatiCode/spikewatch/cmd/detector/router"
	"github.com/HatiCode/spikewatch/cmd/detector/store"
	"github.com/HatiCode/spikewatch/pkg/adapters"
	"github.com/HatiCode/spikewatch/pkg/anomaly"
	"github.com/HatiCode/spikewatch/pkg/httpx"
	"github.com/HatiCode/spikewatch/pkg/storage"
	"github.com/HatiCode/spikewatch/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("detector failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *slog.Logger) error {
	streams, err := config.LoadStreams(cfg)
	if err != nil {
		return fmt.Errorf("load streams: %w", err)
	}

	log.Info("starting spikewatch detector", "version", version, "streams", len(streams))

	reports, err := store.New(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore(reports, log)

	runners := make([]*Runner, 0, len(streams))
	intervals := make(map[string]time.Duration, len(streams))
	for _, s := range streams {
		r, err := newStreamRunner(s, reports, log)
		if err != nil {
			return err
		}
		runners = append(runners, r)
		intervals[s.Name] = s.Interval
	}

	handler := router.SetupRoutes(router.Deps{
		Store:     reports,
		Intervals: intervals,
		Health:    healthCheck(reports),
		Logger:    log,
	})
	server := httpx.NewServer(cfg.Listen, handler, log)
	if cfg.TLS.Enabled() {
		tlsCfg, err := tls.ServerConfig(cfg.TLS)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		server.WithTLS(tlsCfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("detection loop failed", "stream", r.stream.Name, "error", err)
			}
		}()
	}

	err = server.Run(ctx, cfg.ShutdownWait)
	stop()
	wg.Wait()
	return err
}

func newStreamRunner(s config.StreamConfig, reports storage.Store, log *slog.Logger) (*Runner, error) {
	adapter, err := adapters.New(s.Adapter, s.AdapterConfig, int(s.Step.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", s.Name, err)
	}

	opts, err := s.EngineOptions()
	if err != nil {
		return nil, err
	}
	engine, err := anomaly.NewEngine(opts)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", s.Name, err)
	}

	m := metrics.New(prometheus.DefaultRegisterer, s.Name)
	return NewRunner(s, adapter, engine, reports, m, log), nil
}

func healthCheck(s storage.Store) func() error {
	pinger, ok := s.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pinger.Ping(ctx)
	}
}

func closeStore(s storage.Store, log *slog.Logger) {
	switch c := s.(type) {
	case io.Closer:
		if err := c.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	case interface{ Stop() }:
		c.Stop()
	}
}
