package anomaly

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestFitEnsemble_Errors(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		params  EnsembleParams
		wantErr error
	}{
		{name: "empty history", history: nil, wantErr: ErrInvalidInput},
		{name: "non-finite history", history: []float64{1, math.Inf(-1)}, wantErr: ErrInvalidInput},
		{name: "single point", history: []float64{42}, wantErr: ErrInsufficientData},
		{name: "contamination above 0.5", history: spikyCPU, params: EnsembleParams{Contamination: 0.6}, wantErr: ErrInvalidInput},
		{name: "negative contamination", history: spikyCPU, params: EnsembleParams{Contamination: -0.1}, wantErr: ErrInvalidInput},
		{name: "max samples below two", history: spikyCPU, params: EnsembleParams{MaxSamples: 1}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitEnsemble(tt.history, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FitEnsemble() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFitEnsemble_Defaults(t *testing.T) {
	e, err := FitEnsemble(spikyCPU, EnsembleParams{Seed: testSeed})
	if err != nil {
		t.Fatalf("FitEnsemble() error = %v", err)
	}

	p := e.Params()
	if p.Contamination != DefaultContamination || p.Trees != DefaultTrees ||
		p.MaxSamples != DefaultMaxSamples || p.DeviationCutoff != DefaultDeviationCutoff {
		t.Errorf("Params() = %+v, want package defaults", p)
	}
	if p.Seed != testSeed {
		t.Errorf("Seed = %d, want %d", p.Seed, testSeed)
	}
	if e.Kind() != EnsembleOutlier {
		t.Errorf("Kind() = %v, want %v", e.Kind(), EnsembleOutlier)
	}
}

func TestEnsemble_SpikyCorpus(t *testing.T) {
	v, err := ScoreEnsemble(MustWindow(spikyCPU...), spikyCPU, DefaultContamination, testSeed)
	if err != nil {
		t.Fatalf("ScoreEnsemble() error = %v", err)
	}

	if !v.IsAnomaly {
		t.Fatalf("IsAnomaly = false, want true (%+v)", v)
	}
	if v.Strategy != EnsembleOutlier {
		t.Errorf("Strategy = %v, want %v", v.Strategy, EnsembleOutlier)
	}
	if v.MaxViolatingValue < 150 || v.MaxViolatingValue > 160 {
		t.Errorf("MaxViolatingValue = %v, want a value of the 150-160 spike", v.MaxViolatingValue)
	}
	if v.MaxObservedValue != 160 {
		t.Errorf("MaxObservedValue = %v, want 160", v.MaxObservedValue)
	}
	if v.ViolatingCount > 3 {
		t.Errorf("ViolatingCount = %d, only the three spike samples may be outliers", v.ViolatingCount)
	}
}

func TestEnsemble_SteadyCorpus(t *testing.T) {
	for _, seed := range []uint64{testSeed, 1, 7, 1234} {
		v, err := ScoreEnsemble(MustWindow(steadyCPU...), steadyCPU, DefaultContamination, seed)
		if err != nil {
			t.Fatalf("seed %d: ScoreEnsemble() error = %v", seed, err)
		}
		if v.IsAnomaly || v.ViolatingCount != 0 {
			t.Errorf("seed %d: verdict = %+v, want no outliers", seed, v)
		}
		if v.MaxObservedValue != 11 {
			t.Errorf("seed %d: MaxObservedValue = %v, want 11", seed, v.MaxObservedValue)
		}
	}
}

func TestEnsemble_DisjointWindow(t *testing.T) {
	fit := []float64{10, 11, 10, 12, 10, 11, 12, 10, 11, 30}

	e, err := FitEnsemble(fit, EnsembleParams{Contamination: DefaultContamination, Seed: testSeed})
	if err != nil {
		t.Fatalf("FitEnsemble() error = %v", err)
	}

	tests := []struct {
		name      string
		window    []float64
		wantCount uint
		wantMax   float64
	}{
		{name: "far beyond the corpus", window: []float64{11, 300}, wantCount: 1, wantMax: 300},
		{name: "inside the corpus range", window: []float64{10, 11, 12}, wantCount: 0, wantMax: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := e.Score(MustWindow(tt.window...))
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if v.ViolatingCount != tt.wantCount {
				t.Errorf("ViolatingCount = %d, want %d", v.ViolatingCount, tt.wantCount)
			}
			if v.MaxViolatingValue != tt.wantMax {
				t.Errorf("MaxViolatingValue = %v, want %v", v.MaxViolatingValue, tt.wantMax)
			}
			if v.IsAnomaly != (tt.wantCount > 0) {
				t.Errorf("IsAnomaly = %v with %d outliers", v.IsAnomaly, v.ViolatingCount)
			}
		})
	}
}

func TestEnsemble_Deterministic(t *testing.T) {
	a, err := FitEnsemble(spikyCPU, EnsembleParams{Seed: testSeed})
	if err != nil {
		t.Fatalf("FitEnsemble() error = %v", err)
	}
	b, err := FitEnsemble(spikyCPU, EnsembleParams{Seed: testSeed})
	if err != nil {
		t.Fatalf("FitEnsemble() error = %v", err)
	}

	if a.Cutoff() != b.Cutoff() {
		t.Errorf("Cutoff() differs under the same seed: %v vs %v", a.Cutoff(), b.Cutoff())
	}
	for _, x := range []float64{0, 10, 11, 80, 155, 1000} {
		if a.IsolationScore(x) != b.IsolationScore(x) {
			t.Errorf("IsolationScore(%v) differs under the same seed", x)
		}
	}

	w := MustWindow(spikyCPU...)
	va, _ := a.Score(w)
	vb, _ := a.Score(w)
	if va != vb {
		t.Errorf("Score() is not idempotent: %+v vs %+v", va, vb)
	}
}

func TestEnsemble_EmptyWindow(t *testing.T) {
	e, err := FitEnsemble(spikyCPU, EnsembleParams{Seed: testSeed})
	if err != nil {
		t.Fatalf("FitEnsemble() error = %v", err)
	}
	if _, err := e.Score(Window{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Score() error = %v, want ErrInvalidInput", err)
	}
}

func TestEnsemble_Deviation(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		x       float64
		want    float64
	}{
		// median 6.5, MAD 1.5
		{name: "median itself", history: steadyCPU, x: 6.5, want: 0},
		{name: "MAD based", history: steadyCPU, x: 11, want: 0.6745 * 4.5 / 1.5},
		// median 1, MAD 0, mean absolute deviation 0.5
		{name: "mean absolute deviation fallback", history: []float64{1, 1, 1, 3}, x: 3, want: 0.6745 * 2 / (1.2533 * 0.5 * 0.6745)},
		{name: "constant corpus at the median", history: []float64{4, 4}, x: 4, want: 0},
		{name: "constant corpus elsewhere", history: []float64{4, 4}, x: 5, want: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := FitEnsemble(tt.history, EnsembleParams{Seed: testSeed})
			if err != nil {
				t.Fatalf("FitEnsemble() error = %v", err)
			}
			got := e.Deviation(tt.x)
			if math.IsInf(tt.want, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("Deviation(%v) = %v, want +Inf", tt.x, got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Deviation(%v) = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestContaminationCutoff(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.5, 0.3, 0.7, 0.2, 0.4, 0.6, 0.8, 0.35}

	tests := []struct {
		contamination float64
		want          float64
	}{
		{contamination: 0.1, want: 0.9},
		{contamination: 0.2, want: 0.8},
		{contamination: 0.5, want: 0.5},
	}

	for _, tt := range tests {
		if got := contaminationCutoff(scores, tt.contamination); got != tt.want {
			t.Errorf("contaminationCutoff(%v) = %v, want %v", tt.contamination, got, tt.want)
		}
	}
}

func TestForest_ScoreRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	f := growForest(spikyCPU, 50, DefaultMaxSamples, rng)

	if f.sampleSize != len(spikyCPU) {
		t.Errorf("sampleSize = %d, want %d", f.sampleSize, len(spikyCPU))
	}
	for _, x := range []float64{-100, 10, 155, 1e6} {
		s := f.score(x)
		if s <= 0 || s > 1 {
			t.Errorf("score(%v) = %v, want in (0, 1]", x, s)
		}
	}
	if f.score(155) <= f.score(10) {
		t.Errorf("score(155) = %v should exceed score(10) = %v", f.score(155), f.score(10))
	}
}

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{n: 0, want: 0},
		{n: 1, want: 0},
		{n: 2, want: 1},
		{n: 256, want: 2*(math.Log(255)+eulerGamma) - 2*255.0/256.0},
	}

	for _, tt := range tests {
		if got := averagePathLength(tt.n); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("averagePathLength(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
