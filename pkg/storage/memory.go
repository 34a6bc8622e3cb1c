package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reports in a map. It is safe for concurrent use.
//
// With a TTL, a background sweep drops reports whose GeneratedAt is older
// than the TTL; Stop must then be called to end it.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]Report

	ttl      time.Duration
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore returns a store that keeps reports until they are replaced.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]Report)}
}

// NewMemoryStoreWithTTL returns a store swept every interval (one minute when
// interval <= 0). It panics if ttl is not positive.
func NewMemoryStoreWithTTL(ttl, interval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("storage: TTL must be positive")
	}
	if interval <= 0 {
		interval = time.Minute
	}

	s := &MemoryStore{
		reports: make(map[string]Report),
		ttl:     ttl,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.sweepEvery(interval)
	return s
}

// Stop ends the sweep and waits for it. It is a no-op without TTL and safe
// to call more than once.
func (s *MemoryStore) Stop() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *MemoryStore) sweepEvery(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for stream, r := range s.reports {
		if now.Sub(r.GeneratedAt) > s.ttl {
			delete(s.reports, stream)
		}
	}
}

// Put stores r as the latest report of r.Stream.
func (s *MemoryStore) Put(ctx context.Context, r Report) error {
	if err := ValidateStream(r.Stream); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.Stream] = r
	return nil
}

// GetLatest returns the latest report of stream and whether one exists.
func (s *MemoryStore) GetLatest(ctx context.Context, stream string) (Report, bool, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[stream]
	return r, ok, nil
}

// Len returns the number of stored reports.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Delete drops the report of stream and reports whether there was one.
func (s *MemoryStore) Delete(stream string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.reports[stream]
	delete(s.reports, stream)
	return ok
}
