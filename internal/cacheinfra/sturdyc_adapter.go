package cacheinfra

import (
	"context"
	"errors"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration shared by the external store adapters.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Only used by the sturdyc store. Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live for cached entries.
	// After this duration, entries are considered expired.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	// Only used by the sturdyc store. Default: 10
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                60 * time.Second,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the optional settings to sturdyc options.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included here.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
// The first invalid field, in alphabetical order, is reported as a *ConfigError.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	return AsConfigError(err)
}

// AsConfigError converts ozzo validation errors into a *ConfigError.
// Other errors are returned unchanged.
func AsConfigError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	return &ConfigError{Field: fields[0], Message: fieldErrs[fields[0]].Error()}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// SturdycStore exposes a sturdyc client through the flat key-value contract
// the TTL driver expects.
type SturdycStore struct {
	client *sturdyc.Client[any]
	ttl    time.Duration
}

// NewSturdycStore creates a sturdyc backed store.
// It validates the configuration and initializes a sturdyc client with the provided settings.
//
// sturdyc applies one TTL to the whole client, so every Put uses cfg.TTL
// regardless of the ttl argument.
func NewSturdycStore(cfg Config) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycStore{client: client, ttl: cfg.TTL}, nil
}

// TTL returns the client-wide time-to-live.
func (s *SturdycStore) TTL() time.Duration {
	return s.ttl
}

// Get returns the value stored under key, if present and not expired.
func (s *SturdycStore) Get(ctx context.Context, key string) (any, bool, error) {
	value, ok := s.client.Get(key)
	return value, ok, nil
}

// Put stores value under key with the client-wide TTL.
func (s *SturdycStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.client.Set(key, value)
	return nil
}

// Has reports whether key holds a live value.
func (s *SturdycStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok := s.client.Get(key)
	return ok, nil
}

// Forget removes a single key.
func (s *SturdycStore) Forget(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// Keys lists every key currently held by the client, so the TTL driver
// can sweep entries its indexes lost.
func (s *SturdycStore) Keys() []string {
	return s.client.ScanKeys()
}
