package cache

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-memoize/internal/cacheinfra"
)

var _ KeyLister = (*cacheinfra.SturdycStore)(nil)

// Backend names the storage used by NewDriver.
type Backend string

const (
	// BackendMemory keeps live values in process memory.
	BackendMemory Backend = "memory"
	// BackendSturdyc uses the TTL driver on a sturdyc client.
	BackendSturdyc Backend = "sturdyc"
	// BackendRistretto uses the TTL driver on a ristretto cache.
	BackendRistretto Backend = "ristretto"
)

// Config exposes cache configuration options for consumers of the cache
// package. Every field can be set from the environment with LoadConfig.
type Config struct {
	Backend            Backend       `env:"MEMOIZE_BACKEND" envDefault:"memory"`
	TTL                time.Duration `env:"MEMOIZE_TTL" envDefault:"60s"`
	Prefix             string        `env:"MEMOIZE_PREFIX" envDefault:"memoize"`
	Capacity           int           `env:"MEMOIZE_CAPACITY" envDefault:"10000"`
	NumShards          int           `env:"MEMOIZE_NUM_SHARDS" envDefault:"256"`
	EvictionPercentage int           `env:"MEMOIZE_EVICTION_PERCENTAGE" envDefault:"10"`
	EvictionInterval   time.Duration `env:"MEMOIZE_EVICTION_INTERVAL"`
	// SharedTypeScope makes every identity-less owner of a type share a
	// single cache scope instead of one scope per instance.
	SharedTypeScope bool `env:"MEMOIZE_SHARED_TYPE_SCOPE"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.Backend = BackendMemory
	cfg.Prefix = DefaultPrefix
	return cfg
}

// LoadConfig reads the configuration from MEMOIZE_* environment variables,
// falling back to the documented defaults, and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendSturdyc, BackendRistretto)),
		validation.Field(&c.Prefix, validation.Required),
	)
	if err != nil {
		return cacheinfra.AsConfigError(err)
	}
	if c.Backend == BackendMemory {
		return nil
	}
	return c.toInternal().Validate()
}

// NewDriver constructs the driver selected by cfg.Backend.
func NewDriver(cfg Config) (Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryDriver(), nil
	case BackendSturdyc:
		store, err = cacheinfra.NewSturdycStore(cfg.toInternal())
	case BackendRistretto:
		store, err = cacheinfra.NewRistrettoStore(cfg.toInternal())
	}
	if err != nil {
		return nil, err
	}

	return NewTTLDriver(store, WithTTL(cfg.TTL), WithPrefix(cfg.Prefix)), nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
