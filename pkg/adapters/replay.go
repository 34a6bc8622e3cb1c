package adapters

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Recording is the on-disk form of a replay:
//
//	training: [18.2, 22.5, ...]
//	windows:
//	  - [20.0, 21.5, ...]
//	  - [25.0, 24.5, ...]
type Recording struct {
	Training []float64   `yaml:"training"`
	Windows  [][]float64 `yaml:"windows"`
}

// ReplayAdapter serves a Recording: History returns the training corpus and
// each Collect returns the next window, then ErrExhausted.
type ReplayAdapter struct {
	rec         Recording
	stepSeconds int

	mu   sync.Mutex
	next int
}

// NewReplay validates rec and returns an adapter positioned on its first window.
func NewReplay(rec Recording, stepSeconds int) (*ReplayAdapter, error) {
	if len(rec.Training) == 0 {
		return nil, fmt.Errorf("replay: training corpus is empty")
	}
	for i, w := range rec.Windows {
		if len(w) == 0 {
			return nil, fmt.Errorf("replay: window %d is empty", i)
		}
	}
	return &ReplayAdapter{rec: rec, stepSeconds: stepOrDefault(stepSeconds)}, nil
}

// LoadReplay reads a YAML recording from path.
func LoadReplay(path string, stepSeconds int) (*ReplayAdapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read %s: %w", path, err)
	}
	var rec Recording
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("replay: parse %s: %w", path, err)
	}
	return NewReplay(rec, stepSeconds)
}

func (r *ReplayAdapter) Name() string { return "replay" }

// History implements HistorySource.
func (r *ReplayAdapter) History(ctx context.Context) ([]float64, error) {
	return append([]float64(nil), r.rec.Training...), ctx.Err()
}

// Collect returns the next recorded window. windowSeconds is ignored; rows
// are stamped StepSeconds apart, ending now.
func (r *ReplayAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return &DataFrame{}, err
	}

	r.mu.Lock()
	if r.next >= len(r.rec.Windows) {
		r.mu.Unlock()
		return &DataFrame{}, ErrExhausted
	}
	window := r.rec.Windows[r.next]
	r.next++
	r.mu.Unlock()

	step := time.Duration(r.stepSeconds) * time.Second
	end := time.Now().UTC().Truncate(time.Second)
	start := end.Add(-step * time.Duration(len(window)-1))

	rows := make([]Row, len(window))
	for i, v := range window {
		rows[i] = Row{"ts": start.Add(step * time.Duration(i)), "value": v}
	}
	return sortedFrame(rows), nil
}

// Remaining reports how many windows are left.
func (r *ReplayAdapter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rec.Windows) - r.next
}

// Rewind starts the recording over.
func (r *ReplayAdapter) Rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
}
