package cacheinfra

import (
	"context"
	"fmt"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
)

// RistrettoStore exposes a ristretto cache through the flat key-value
// contract the TTL driver expects. Unlike sturdyc, ristretto honours a TTL
// per write.
type RistrettoStore struct {
	cache *ristretto.Cache[string, any]
}

// NewRistrettoStore creates a ristretto backed store holding up to
// cfg.Capacity entries.
func NewRistrettoStore(cfg Config) (*RistrettoStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters:        int64(cfg.Capacity) * 10, // ten counters per entry, as ristretto recommends
		MaxCost:            int64(cfg.Capacity),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto store: %w", err)
	}
	return &RistrettoStore{cache: cache}, nil
}

// Get returns the value stored under key, if present and not expired.
func (s *RistrettoStore) Get(ctx context.Context, key string) (any, bool, error) {
	value, ok := s.cache.Get(key)
	return value, ok, nil
}

// Put stores value under key for ttl. It waits for ristretto's write buffer
// to drain so the value is visible to the next Get.
func (s *RistrettoStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.cache.SetWithTTL(key, value, 1, ttl) {
		return fmt.Errorf("ristretto store: write of %q was dropped", key)
	}
	s.cache.Wait()
	return nil
}

// Has reports whether key holds a live value.
func (s *RistrettoStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok := s.cache.Get(key)
	return ok, nil
}

// Forget removes a single key.
func (s *RistrettoStore) Forget(ctx context.Context, key string) error {
	s.cache.Del(key)
	s.cache.Wait()
	return nil
}

// Close stops ristretto's background goroutines.
func (s *RistrettoStore) Close() {
	s.cache.Close()
}
