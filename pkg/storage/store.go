// Package storage keeps the latest detection report of every stream so it
// can be served over HTTP. It is not a metric history store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/spikewatch/pkg/anomaly"
)

// Report is the outcome of the latest detection cycle of a stream.
type Report struct {
	Stream   string               `json:"stream"`
	Metric   string               `json:"metric,omitempty"`
	RunID    string               `json:"runId"`
	Strategy anomaly.StrategyKind `json:"strategy"`
	State    anomaly.AlertState   `json:"state"`
	// Cycle counts evaluated windows since the run started, from 1.
	Cycle       int        `json:"cycle"`
	GeneratedAt time.Time  `json:"generatedAt"`
	AlertedAt   *time.Time `json:"alertedAt,omitempty"`

	Baseline anomaly.Baseline `json:"baseline"`
	Verdict  anomaly.Verdict  `json:"verdict"`
}

// Store holds one Report per stream; Put replaces the previous one.
type Store interface {
	Put(ctx context.Context, r Report) error
	GetLatest(ctx context.Context, stream string) (Report, bool, error)
}

// ErrInvalidStream is returned for empty stream names or names that are not
// safe as a key segment.
var ErrInvalidStream = errors.New("invalid stream name")

// ValidateStream accepts names made of letters, digits, '-', '_' and '.'.
func ValidateStream(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidStream)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("%q: only alphanumeric, '-', '_' and '.' allowed: %w", name, ErrInvalidStream)
		}
	}
	return nil
}
