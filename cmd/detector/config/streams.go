package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/HatiCode/spikewatch/pkg/anomaly"
	"github.com/HatiCode/spikewatch/pkg/storage"
)

// What a runner does once its engine has raised an alert.
const (
	OnAlertStop    = "stop"
	OnAlertRetrain = "retrain"
)

// StreamConfig describes one monitored metric stream.
type StreamConfig struct {
	Name          string            `yaml:"name" validate:"required,stream"`
	Metric        string            `yaml:"metric"`
	Adapter       string            `yaml:"adapter" validate:"required,oneof=prometheus victoriametrics http replay"`
	AdapterConfig map[string]string `yaml:"adapterConfig"`

	Interval       time.Duration `yaml:"interval" default:"30s" validate:"gt=0s"`
	Window         time.Duration `yaml:"window" default:"5m" validate:"gtefield=Step"`
	TrainWindow    time.Duration `yaml:"trainWindow" default:"1h" validate:"gtefield=Window"`
	Step           time.Duration `yaml:"step" default:"1m" validate:"gt=0s"`
	OnAlert        string        `yaml:"onAlert" default:"stop" validate:"oneof=stop retrain"`
	CollectRetries int           `yaml:"collectRetries" default:"3" validate:"gte=0,lte=10"`

	Strategy        string  `yaml:"strategy" default:"threshold" validate:"oneof=threshold ensemble"`
	SigmaMultiplier float64 `yaml:"sigma" default:"5" validate:"gte=0"`
	MinViolations   uint    `yaml:"minViolations" default:"3" validate:"gte=1"`
	Contamination   float64 `yaml:"contamination" default:"0.1" validate:"gt=0,lte=0.5"`
	Seed            *uint64 `yaml:"seed" validate:"required_if=Strategy ensemble"`
	Trees           int     `yaml:"trees" default:"100" validate:"gt=0"`
	MaxSamples      int     `yaml:"maxSamples" default:"256" validate:"gte=2"`
	DeviationCutoff float64 `yaml:"deviationCutoff" default:"3.5" validate:"gt=0"`
}

// EngineOptions maps the scoring settings onto anomaly.Options.
func (s StreamConfig) EngineOptions() (anomaly.Options, error) {
	kind, err := anomaly.ParseStrategy(s.Strategy)
	if err != nil {
		return anomaly.Options{}, fmt.Errorf("stream %q: %w", s.Name, err)
	}
	return anomaly.Options{
		Strategy:        kind,
		SigmaMultiplier: s.SigmaMultiplier,
		MinViolations:   s.MinViolations,
		Contamination:   s.Contamination,
		RandomSeed:      s.Seed,
		Trees:           s.Trees,
		MaxSamples:      s.MaxSamples,
		DeviationCutoff: s.DeviationCutoff,
	}, nil
}

type streamFile struct {
	Streams []StreamConfig `yaml:"streams" validate:"required,min=1,unique=Name,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("stream", func(fl validator.FieldLevel) bool {
		return storage.ValidateStream(fl.Field().String()) == nil
	})
	return v
}

// LoadStreams returns the streams to run: the one described by flags, or
// those of cfg.ConfigFile. Defaults are applied and every stream is validated.
func LoadStreams(cfg *Config) ([]StreamConfig, error) {
	if cfg.ConfigFile == "" {
		s := cfg.Stream
		if err := prepare(&s); err != nil {
			return nil, err
		}
		return []StreamConfig{s}, nil
	}
	return LoadStreamFile(cfg.ConfigFile)
}

// LoadStreamFile reads a YAML stream file. ${VAR} references are expanded
// from the environment, and relative replay paths are resolved against the
// file's directory.
func LoadStreamFile(path string) ([]StreamConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f streamFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range f.Streams {
		if err := defaults.Set(&f.Streams[i]); err != nil {
			return nil, fmt.Errorf("defaults for streams[%d]: %w", i, err)
		}
		resolveReplayPath(&f.Streams[i], filepath.Dir(path))
	}
	if err := validate.Struct(&f); err != nil {
		return nil, describe(err)
	}
	return f.Streams, nil
}

func prepare(s *StreamConfig) error {
	if err := defaults.Set(s); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return describe(err)
	}
	return nil
}

func resolveReplayPath(s *StreamConfig, dir string) {
	if s.Adapter != "replay" {
		return
	}
	if p := s.AdapterConfig["path"]; p != "" && !filepath.IsAbs(p) {
		s.AdapterConfig["path"] = filepath.Join(dir, p)
	}
}

// describe flattens validator errors into one error per field, named by
// their YAML path.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		errs = append(errs, fmt.Errorf("%s: %s", field, message(fe)))
	}
	return errors.Join(errs...)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + strings.Replace(fe.Param(), " ", " is ", 1)
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "unique":
		return "must be unique by " + fe.Param()
	case "stream":
		return fmt.Sprintf("invalid name %q (letters, digits, '-', '_' and '.')", fe.Value())
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "gtefield":
		return "must not be shorter than " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	default:
		return "failed validation: " + fe.Tag()
	}
}
