package di

import (
	"sync"

	"github.com/goliatone/go-memoize/cache"
	"github.com/goliatone/go-memoize/lifecycle"
	"github.com/goliatone/go-memoize/memoize"
	repository "github.com/goliatone/go-repository-bun"
	"go.uber.org/zap"
)

// Interface assertion to ensure Container can override serializer factories
var _ memoize.SerializerResolver = (*Container)(nil)

// Container wires the memoization components together.
// It owns a single driver, event dispatcher and manager built from a
// cache.Config, and is the registration point for a serializer factory
// override.
type Container struct {
	config  cache.Config
	driver  cache.Driver
	events  *lifecycle.Dispatcher
	manager *memoize.Manager
	logger  *zap.Logger

	mu      sync.RWMutex
	factory cache.SerializerFactory
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to the manager.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContainer creates a new DI container with the provided configuration.
// It builds the configured driver and a manager that resolves its
// serializer factory through the container.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	driver, err := cache.NewDriver(config)
	if err != nil {
		return nil, err
	}

	c := &Container{
		config: config,
		driver: driver,
		events: lifecycle.NewDispatcher(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	managerOpts := []memoize.Option{
		memoize.WithDispatcher(c.events),
		memoize.WithSerializerResolver(c),
		memoize.WithLogger(c.logger),
	}
	if config.SharedTypeScope {
		managerOpts = append(managerOpts, memoize.WithSharedTypeScope())
	}
	c.manager = memoize.NewManager(driver, managerOpts...)

	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Driver returns the singleton driver instance.
func (c *Container) Driver() cache.Driver {
	return c.driver
}

// Events returns the dispatcher invalidation listens on.
func (c *Container) Events() *lifecycle.Dispatcher {
	return c.events
}

// Manager returns the singleton memoize manager.
func (c *Container) Manager() *memoize.Manager {
	return c.manager
}

// For returns the memoizer owner should hold.
func (c *Container) For(owner any) *memoize.Memoizer {
	return c.manager.For(owner)
}

// RegisterSerializerFactory overrides the serializer factory used by every
// memoizer of this container. A nil factory restores the default.
func (c *Container) RegisterSerializerFactory(factory cache.SerializerFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factory = factory
}

// SerializerFactory implements memoize.SerializerResolver.
func (c *Container) SerializerFactory() (cache.SerializerFactory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.factory, c.factory != nil
}

// Close releases background resources held by the driver.
func (c *Container) Close() error {
	if closer, ok := c.driver.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// NewRepository wraps base so that its writes invalidate memoized values.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewRepository[*User](container, baseUserRepository)
func NewRepository[T any](container *Container, base repository.Repository[T]) *lifecycle.Repository[T] {
	return lifecycle.NewRepository(base, container.events)
}
