package anomaly

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

const (
	// DefaultContamination is the expected fraction of outliers in a training corpus.
	DefaultContamination = 0.1
	// DefaultTrees is the number of isolation trees in the ensemble.
	DefaultTrees = 100
	// DefaultMaxSamples caps the subsample each tree is grown on.
	DefaultMaxSamples = 256
	// DefaultDeviationCutoff is the modified z-score (Iglewicz-Hoaglin) a
	// sample must exceed, in addition to its isolation score, to be an outlier.
	DefaultDeviationCutoff = 3.5

	madScale     = 0.6745
	meanADScale  = 1.2533
	minFitPoints = 2
)

// EnsembleParams configures FitEnsemble. Zero values except Seed take the
// package defaults.
type EnsembleParams struct {
	Contamination   float64
	Trees           int
	MaxSamples      int
	DeviationCutoff float64
	Seed            uint64
}

// Ensemble is an isolation forest fitted on a training corpus together with
// the score cut-off implied by the contamination rate and the robust centre
// and scale of that corpus.
//
// A window sample is an outlier when both hold:
//   - its isolation score is at or above the cut-off, i.e. it isolates at least
//     as fast as the top contamination fraction of the training samples;
//   - its modified z-score 0.6745*|x-median|/MAD exceeds the deviation cut-off.
//
// The second condition keeps the ensemble from flagging the most isolated
// points of a corpus that has no real outliers.
type Ensemble struct {
	forest    *forest
	cutoff    float64
	median    float64
	scale     float64
	deviation float64
	params    EnsembleParams
}

// FitEnsemble grows the isolation forest on history.
// Fails with ErrInvalidInput for empty or non-finite history and
// ErrInsufficientData for fewer than two points.
func FitEnsemble(history []float64, p EnsembleParams) (*Ensemble, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("fit ensemble: empty history: %w", ErrInvalidInput)
	}
	if err := checkFinite(history); err != nil {
		return nil, fmt.Errorf("fit ensemble: %w", err)
	}
	if len(history) < minFitPoints {
		return nil, fmt.Errorf("fit ensemble: need at least %d points, got %d: %w",
			minFitPoints, len(history), ErrInsufficientData)
	}

	p = p.withDefaults()
	if p.Contamination <= 0 || p.Contamination > 0.5 {
		return nil, fmt.Errorf("fit ensemble: contamination %v not in (0, 0.5]: %w", p.Contamination, ErrInvalidInput)
	}
	if p.MaxSamples < minFitPoints {
		return nil, fmt.Errorf("fit ensemble: max samples %d < %d: %w", p.MaxSamples, minFitPoints, ErrInvalidInput)
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	f := growForest(history, p.Trees, p.MaxSamples, rng)

	scores := make([]float64, len(history))
	for i, v := range history {
		scores[i] = f.score(v)
	}

	med, scale := robustScale(history)

	return &Ensemble{
		forest:    f,
		cutoff:    contaminationCutoff(scores, p.Contamination),
		median:    med,
		scale:     scale,
		deviation: p.DeviationCutoff,
		params:    p,
	}, nil
}

// ScoreEnsemble fits an ensemble on history and scores w with it.
func ScoreEnsemble(w Window, history []float64, contamination float64, seed uint64) (Verdict, error) {
	e, err := FitEnsemble(history, EnsembleParams{Contamination: contamination, Seed: seed})
	if err != nil {
		return Verdict{}, err
	}
	return e.Score(w)
}

// Kind implements Scorer.
func (e *Ensemble) Kind() StrategyKind { return EnsembleOutlier }

// Cutoff returns the isolation score a sample must reach to be an outlier candidate.
func (e *Ensemble) Cutoff() float64 { return e.cutoff }

// Score classifies every sample of w. It is deterministic for a fitted Ensemble.
func (e *Ensemble) Score(w Window) (Verdict, error) {
	if w.Len() == 0 {
		return Verdict{}, fmt.Errorf("score: empty window: %w", ErrInvalidInput)
	}

	v := Verdict{
		Strategy:         EnsembleOutlier,
		MaxObservedValue: w.At(0),
	}

	for _, x := range w.samples {
		if x > v.MaxObservedValue {
			v.MaxObservedValue = x
		}
		if !e.isOutlier(x) {
			continue
		}
		if v.ViolatingCount == 0 || x > v.MaxViolatingValue {
			v.MaxViolatingValue = x
		}
		v.ViolatingCount++
	}

	v.IsAnomaly = v.ViolatingCount >= 1
	return v, nil
}

// IsolationScore returns the forest score of x in (0, 1].
func (e *Ensemble) IsolationScore(x float64) float64 {
	return e.forest.score(x)
}

// Deviation returns the modified z-score of x against the training corpus.
func (e *Ensemble) Deviation(x float64) float64 {
	d := math.Abs(x - e.median)
	if e.scale == 0 {
		if d == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return madScale * d / e.scale
}

func (e *Ensemble) isOutlier(x float64) bool {
	return e.forest.score(x) >= e.cutoff && e.Deviation(x) > e.deviation
}

func (p EnsembleParams) withDefaults() EnsembleParams {
	if p.Contamination == 0 {
		p.Contamination = DefaultContamination
	}
	if p.Trees <= 0 {
		p.Trees = DefaultTrees
	}
	if p.MaxSamples == 0 {
		p.MaxSamples = DefaultMaxSamples
	}
	if p.DeviationCutoff <= 0 {
		p.DeviationCutoff = DefaultDeviationCutoff
	}
	return p
}

// contaminationCutoff returns the training score at the (1-contamination)
// quantile: the sorted score at index int(n*(1-contamination)).
func contaminationCutoff(scores []float64, contamination float64) float64 {
	sorted := slices.Clone(scores)
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * (1 - contamination))
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}

// robustScale returns the median of values and the MAD. When the MAD is 0
// (more than half the samples are equal) the mean absolute deviation, scaled
// to be MAD-comparable, is used instead.
func robustScale(values []float64) (float64, float64) {
	med := median(values)

	deviations := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
		sum += deviations[i]
	}

	mad := median(deviations)
	if mad > 0 {
		return med, mad
	}

	meanAD := sum / float64(len(values))
	return med, meanADScale * meanAD * madScale
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Params returns the parameters the ensemble was fitted with, defaults applied.
func (e *Ensemble) Params() EnsembleParams { return e.params }
