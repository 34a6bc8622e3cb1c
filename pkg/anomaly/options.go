package anomaly

import (
	"errors"
	"fmt"
	"math"
)

// Options configures an Engine. Zero numeric fields take the package defaults
// through WithDefaults. RandomSeed has no default: the ensemble strategy must
// be given one so its results are reproducible.
type Options struct {
	Strategy        StrategyKind
	SigmaMultiplier float64
	MinViolations   uint
	Contamination   float64
	RandomSeed      *uint64
	Trees           int
	MaxSamples      int
	DeviationCutoff float64
}

// Seed returns a pointer to seed, for Options.RandomSeed.
func Seed(seed uint64) *uint64 { return &seed }

// DefaultOptions returns ThresholdCount options with a 5 sigma threshold and
// three required violations.
func DefaultOptions() Options {
	return Options{}.WithDefaults()
}

// WithDefaults fills zero fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.SigmaMultiplier == 0 {
		o.SigmaMultiplier = DefaultSigmaMultiplier
	}
	if o.MinViolations == 0 {
		o.MinViolations = DefaultMinViolations
	}
	if o.Contamination == 0 {
		o.Contamination = DefaultContamination
	}
	if o.Trees == 0 {
		o.Trees = DefaultTrees
	}
	if o.MaxSamples == 0 {
		o.MaxSamples = DefaultMaxSamples
	}
	if o.DeviationCutoff == 0 {
		o.DeviationCutoff = DefaultDeviationCutoff
	}
	return o
}

// Validate reports every invalid field, each wrapping ErrInvalidInput.
func (o Options) Validate() error {
	var errs []error

	if o.Strategy != ThresholdCount && o.Strategy != EnsembleOutlier {
		errs = append(errs, fmt.Errorf("strategy %d: %w", int(o.Strategy), ErrInvalidInput))
	}
	if math.IsNaN(o.SigmaMultiplier) || math.IsInf(o.SigmaMultiplier, 0) || o.SigmaMultiplier < 0 {
		errs = append(errs, fmt.Errorf("sigma multiplier %v must be finite and >= 0: %w", o.SigmaMultiplier, ErrInvalidInput))
	}

	if o.Strategy == EnsembleOutlier {
		if o.Contamination <= 0 || o.Contamination > 0.5 {
			errs = append(errs, fmt.Errorf("contamination %v not in (0, 0.5]: %w", o.Contamination, ErrInvalidInput))
		}
		if o.RandomSeed == nil {
			errs = append(errs, fmt.Errorf("ensemble strategy requires a random seed: %w", ErrInvalidInput))
		}
		if o.Trees <= 0 {
			errs = append(errs, fmt.Errorf("trees %d must be > 0: %w", o.Trees, ErrInvalidInput))
		}
		if o.MaxSamples < minFitPoints {
			errs = append(errs, fmt.Errorf("max samples %d must be >= %d: %w", o.MaxSamples, minFitPoints, ErrInvalidInput))
		}
		if o.DeviationCutoff <= 0 {
			errs = append(errs, fmt.Errorf("deviation cutoff %v must be > 0: %w", o.DeviationCutoff, ErrInvalidInput))
		}
	}

	return errors.Join(errs...)
}

func (o Options) ensembleParams() EnsembleParams {
	p := EnsembleParams{
		Contamination:   o.Contamination,
		Trees:           o.Trees,
		MaxSamples:      o.MaxSamples,
		DeviationCutoff: o.DeviationCutoff,
	}
	if o.RandomSeed != nil {
		p.Seed = *o.RandomSeed
	}
	return p
}
