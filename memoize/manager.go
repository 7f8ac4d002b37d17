package memoize

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/goliatone/go-memoize/cache"
	"github.com/goliatone/go-memoize/lifecycle"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// SerializerResolver supplies an alternate serializer factory. It is queried
// on every memoize call; returning false selects the default factory.
type SerializerResolver interface {
	SerializerFactory() (cache.SerializerFactory, bool)
}

// SerializerResolverFunc adapts a function to SerializerResolver.
type SerializerResolverFunc func() (cache.SerializerFactory, bool)

// SerializerFactory implements SerializerResolver.
func (f SerializerResolverFunc) SerializerFactory() (cache.SerializerFactory, bool) {
	return f()
}

// Invalidator lets an entity type choose the events that clear its cache
// scope. Types that do not implement it use the manager's defaults.
type Invalidator interface {
	InvalidateOn() []lifecycle.Event
}

// DefaultEvents returns the events that clear an entity's cache scope:
// any save and any delete.
func DefaultEvents() []lifecycle.Event {
	return []lifecycle.Event{lifecycle.Persisted, lifecycle.Removed}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDispatcher hooks invalidation into events. Without a dispatcher,
// cache scopes are only cleared explicitly.
func WithDispatcher(events *lifecycle.Dispatcher) Option {
	return func(m *Manager) {
		m.events = events
	}
}

// WithSerializerResolver installs a resolver queried for an alternate
// serializer factory on every memoize call.
func WithSerializerResolver(r SerializerResolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithSerializerFactory replaces the default serializer factory.
func WithSerializerFactory(f cache.SerializerFactory) Option {
	return WithSerializerResolver(SerializerResolverFunc(func() (cache.SerializerFactory, bool) {
		return f, f != nil
	}))
}

// WithEvents replaces the default invalidation events for entity types
// that do not implement Invalidator.
func WithEvents(events ...lifecycle.Event) Option {
	return func(m *Manager) {
		m.defaults = append([]lifecycle.Event(nil), events...)
	}
}

// WithSharedTypeScope makes all identity-less owners of a type share one
// cache scope keyed by the type name alone.
func WithSharedTypeScope() Option {
	return func(m *Manager) {
		m.sharedType = true
	}
}

// Manager owns the shared pieces of memoization: the driver, the serializer
// selection and the invalidation hooks. Owners hold the Memoizer returned by
// For.
type Manager struct {
	driver     cache.Driver
	events     *lifecycle.Dispatcher
	resolver   SerializerResolver
	defaults   []lifecycle.Event
	sharedType bool
	logger     *zap.Logger
	booted     *xsync.MapOf[reflect.Type, struct{}]
	factory    cache.SerializerFactory
}

// NewManager creates a manager storing values in driver.
func NewManager(driver cache.Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:   driver,
		defaults: DefaultEvents(),
		logger:   zap.NewNop(),
		booted:   xsync.NewMapOf[reflect.Type, struct{}](),
		factory:  cache.NewDefaultSerializerFactory(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Driver returns the driver holding the cached values.
func (m *Manager) Driver() cache.Driver {
	return m.driver
}

// For returns the memoizer owner should hold. Entity types have their
// invalidation listeners registered the first time they are seen.
// Identity-less owners get a fresh scope per call unless the manager uses
// a shared type scope.
func (m *Manager) For(owner any) *Memoizer {
	mz := &Memoizer{manager: m, owner: owner}

	if _, ok := owner.(cache.Entity); ok {
		m.boot(owner)
		return mz
	}

	mz.scope = cache.TypeName(owner)
	if !m.sharedType {
		mz.scope += cache.KeySeparator + uuid.NewString()
	}
	return mz
}

// ForgetAll clears every owner scope.
func (m *Manager) ForgetAll(ctx context.Context) error {
	return m.driver.ForgetAll(ctx)
}

func (m *Manager) serializerFactory() cache.SerializerFactory {
	if m.resolver != nil {
		if f, ok := m.resolver.SerializerFactory(); ok && f != nil {
			return f
		}
	}
	return m.factory
}

// boot registers the invalidation listeners of owner's type, once.
func (m *Manager) boot(owner any) {
	if m.events == nil {
		return
	}

	t := lifecycle.TypeOf(owner)
	if _, loaded := m.booted.LoadOrStore(t, struct{}{}); loaded {
		return
	}

	events := m.defaults
	if inv, ok := owner.(Invalidator); ok {
		events = inv.InvalidateOn()
	}
	name := cache.TypeName(owner)
	for _, event := range events {
		m.events.Listen(t, event, m.invalidate(name, event))
	}

	m.logger.Debug("memoize invalidation registered",
		zap.Stringer("type", t),
		zap.Int("events", len(events)),
	)
}

func (m *Manager) invalidate(typeName string, event lifecycle.Event) lifecycle.Listener {
	return func(ctx context.Context, instance any) error {
		if instance == nil {
			return m.forgetType(ctx, typeName, event)
		}

		e, ok := instance.(cache.Entity)
		if !ok {
			return nil
		}

		owner, err := cache.EntityKey(e)
		if errors.Is(err, cache.ErrNoIdentity) {
			// never persisted, so nothing can be cached for it
			return nil
		}
		if err != nil {
			return err
		}

		if err := m.driver.Forget(ctx, owner); err != nil {
			m.logger.Error("memoize invalidation failed",
				zap.String("owner", owner),
				zap.String("event", string(event)),
				zap.Error(err),
			)
			return err
		}

		m.logger.Info("memoize owner forgotten",
			zap.String("owner", owner),
			zap.String("event", string(event)),
		)
		return nil
	}
}

// forgetType clears the scope of every cached owner of the named entity
// type. Owners of other types keep their values.
func (m *Manager) forgetType(ctx context.Context, typeName string, event lifecycle.Event) error {
	all, err := m.driver.All(ctx)
	if err != nil {
		return err
	}

	prefix := typeName + cache.KeySeparator
	forgotten := 0
	for owner := range all {
		if !strings.HasPrefix(owner, prefix) {
			continue
		}
		if err := m.driver.Forget(ctx, owner); err != nil {
			m.logger.Error("memoize invalidation failed",
				zap.String("owner", owner),
				zap.String("event", string(event)),
				zap.Error(err),
			)
			return err
		}
		forgotten++
	}

	m.logger.Info("memoize type owners forgotten",
		zap.String("type", typeName),
		zap.String("event", string(event)),
		zap.Int("owners", forgotten),
	)
	return nil
}
