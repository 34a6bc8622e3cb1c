package store

import (
	"testing"
	"time"

	"github.com/HatiCode/spikewatch/cmd/detector/config"
	"github.com/HatiCode/spikewatch/pkg/storage"
)

func TestNew_Memory(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"with ttl", config.Config{Storage: "memory", RedisTTL: time.Minute}},
		{"without ttl", config.Config{Storage: "memory"}},
		{"empty kind", config.Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(&tt.cfg, nil)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			mem, ok := s.(*storage.MemoryStore)
			if !ok {
				t.Fatalf("New() = %T, want *storage.MemoryStore", s)
			}
			mem.Stop()
		})
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"unknown kind", config.Config{Storage: "etcd"}},
		{"redis without address", config.Config{Storage: "redis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg, nil); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}
