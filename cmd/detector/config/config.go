// Package config parses the detector configuration.
//
// Flags take precedence over environment variables, which take precedence
// over defaults. In single-stream mode one stream is described by flags
// (-stream, -adapter, ADAPTER_* variables, ...). With -config-file the
// streams are read from a YAML file instead and the stream flags are ignored.
//
//	cfg, err := config.Parse(os.Args[1:])
//	streams, err := config.LoadStreams(cfg)
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/spikewatch/pkg/tls"
)

// Config holds process-wide settings plus the single-stream flags.
type Config struct {
	Listen       string
	LogFormat    string
	LogLevel     string
	ConfigFile   string
	ShutdownWait time.Duration
	TLS          tls.Config

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	Stream StreamConfig
}

// Parse reads args (without the program name) and the environment.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	s := &cfg.Stream
	fs := flag.NewFlagSet("detector", flag.ContinueOnError)

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ConfigFile, "config-file", getEnv("CONFIG_FILE", ""), "YAML file describing the streams (multi-stream mode)")
	fs.DurationVar(&cfg.ShutdownWait, "shutdown-timeout", getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second), "Grace period for in-flight HTTP requests")

	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "Serve HTTPS with this certificate")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "Require client certificates signed by this CA")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Report storage: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis report TTL")

	fs.StringVar(&s.Name, "stream", getEnv("STREAM", ""), "Stream name (single-stream mode)")
	fs.StringVar(&s.Metric, "metric", getEnv("METRIC", ""), "Metric name, informational")
	fs.StringVar(&s.Adapter, "adapter", getEnv("ADAPTER", ""), "Adapter: prometheus, victoriametrics, http or replay")
	fs.DurationVar(&s.Interval, "interval", getEnvDuration("INTERVAL", 30*time.Second), "Detection interval")
	fs.DurationVar(&s.Window, "window", getEnvDuration("WINDOW", 5*time.Minute), "Window evaluated each cycle")
	fs.DurationVar(&s.TrainWindow, "train-window", getEnvDuration("TRAIN_WINDOW", time.Hour), "History collected for training")
	fs.DurationVar(&s.Step, "step", getEnvDuration("STEP", time.Minute), "Sample resolution")
	fs.StringVar(&s.OnAlert, "on-alert", getEnv("ON_ALERT", OnAlertStop), "After an alert: stop or retrain")
	fs.IntVar(&s.CollectRetries, "collect-retries", getEnvInt("COLLECT_RETRIES", 3), "Retries for a failed collection")

	fs.StringVar(&s.Strategy, "strategy", getEnv("STRATEGY", "threshold"), "Scoring strategy: threshold or ensemble")
	fs.Float64Var(&s.SigmaMultiplier, "sigma", getEnvFloat("SIGMA", 5), "Threshold = mean + sigma * stddev")
	fs.UintVar(&s.MinViolations, "min-violations", uint(getEnvInt("MIN_VIOLATIONS", 3)), "Violating samples that make a window anomalous")
	fs.Float64Var(&s.Contamination, "contamination", getEnvFloat("CONTAMINATION", 0.1), "Expected outlier fraction of the training corpus (ensemble)")
	fs.IntVar(&s.Trees, "trees", getEnvInt("TREES", 100), "Isolation trees (ensemble)")
	fs.IntVar(&s.MaxSamples, "max-samples", getEnvInt("MAX_SAMPLES", 256), "Subsample per tree (ensemble)")
	fs.Float64Var(&s.DeviationCutoff, "deviation-cutoff", getEnvFloat("DEVIATION_CUTOFF", 3.5), "Modified z-score an outlier must exceed (ensemble)")
	seed := fs.String("seed", getEnv("SEED", ""), "Random seed (required for ensemble)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *seed != "" {
		v, err := strconv.ParseUint(*seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", *seed, err)
		}
		s.Seed = &v
	}
	s.AdapterConfig = parseAdapterConfig(os.Environ())

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFlags is Parse on the command line; it exits on error.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

func (c *Config) validate() error {
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	switch c.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.ConfigFile != "" {
		return nil
	}
	if c.Stream.Name == "" {
		return errors.New("--stream is required without --config-file")
	}
	if c.Stream.Adapter == "" {
		return errors.New("--adapter is required without --config-file")
	}
	return nil
}

// parseAdapterConfig turns ADAPTER_* variables into adapter keys:
// ADAPTER_VALUE_PATH=data.#.v becomes valuePath. ADAPTER itself is the kind.
func parseAdapterConfig(environ []string) map[string]string {
	out := make(map[string]string)
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "ADAPTER_") {
			continue
		}
		out[lowerCamel(strings.TrimPrefix(key, "ADAPTER_"))] = value
	}
	return out
}

func lowerCamel(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
