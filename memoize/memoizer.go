package memoize

import (
	"context"

	"github.com/goliatone/go-memoize/cache"
	"go.uber.org/zap"
)

// ComputeFn produces the value to memoize.
type ComputeFn[T any] func(ctx context.Context) (T, error)

// Memoizer caches method results on behalf of a single owner.
type Memoizer struct {
	manager *Manager
	owner   any
	// scope is the owner key of identity-less owners. Entities derive
	// theirs from their identifier on every call.
	scope string
}

// OwnerKey returns the cache scope of the owner. It fails with a
// *cache.NoIdentityError for entities without an identifier.
func (mz *Memoizer) OwnerKey() (string, error) {
	if e, ok := mz.owner.(cache.Entity); ok {
		return cache.EntityKey(e)
	}
	return mz.scope, nil
}

// Memoize returns the value cached for method and args, calling compute on
// a miss. method identifies the call site and is usually the name of the
// calling method. Values stored as payloads are decoded into generic values;
// use Do to decode into a concrete type.
func (mz *Memoizer) Memoize(ctx context.Context, method string, compute ComputeFn[any], args ...any) (any, error) {
	value, err := mz.remember(ctx, method, args, compute)
	if err != nil {
		return nil, err
	}
	return cache.DecodeAny(value)
}

// Do is the typed form of Memoizer.Memoize.
//
//	func (p *Post) WordCount(ctx context.Context) (int, error) {
//		return memoize.Do(ctx, p.memo, "WordCount", func(ctx context.Context) (int, error) {
//			return countWords(p.Body), nil
//		})
//	}
func Do[T any](ctx context.Context, mz *Memoizer, method string, compute ComputeFn[T], args ...any) (T, error) {
	value, err := mz.remember(ctx, method, args, func(ctx context.Context) (any, error) {
		return compute(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return cache.Decode[T](value)
}

// Forget clears the owner's cache scope.
func (mz *Memoizer) Forget(ctx context.Context) error {
	owner, err := mz.OwnerKey()
	if err != nil {
		return err
	}
	return mz.manager.driver.Forget(ctx, owner)
}

// Cache returns a snapshot of the owner's cached values keyed by method key.
func (mz *Memoizer) Cache(ctx context.Context) (map[string]any, error) {
	owner, err := mz.OwnerKey()
	if err != nil {
		return nil, err
	}

	values, err := mz.manager.driver.Owner(ctx, owner)
	if err != nil {
		return nil, err
	}
	for method, value := range values {
		if values[method], err = cache.DecodeAny(value); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// remember resolves both keys before touching the driver, so identity and
// serialization errors leave no partial state behind. The value returned is
// always the one read back from the driver.
func (mz *Memoizer) remember(ctx context.Context, method string, args []any, compute ComputeFn[any]) (any, error) {
	owner, err := mz.OwnerKey()
	if err != nil {
		return nil, err
	}

	key, err := cache.MethodKey(mz.manager.serializerFactory(), method, args...)
	if err != nil {
		return nil, err
	}

	driver := mz.manager.driver
	logger := mz.manager.logger

	has, err := driver.Has(ctx, owner, key)
	if err != nil {
		return nil, err
	}
	if has {
		value, ok, err := driver.Get(ctx, owner, key)
		if err != nil {
			return nil, err
		}
		if ok {
			if ce := logger.Check(zap.DebugLevel, "memoize hit"); ce != nil {
				ce.Write(zap.String("owner", owner), zap.String("method", key))
			}
			return value, nil
		}
	}

	if ce := logger.Check(zap.DebugLevel, "memoize miss"); ce != nil {
		ce.Write(zap.String("owner", owner), zap.String("method", key))
	}

	computed, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := driver.Set(ctx, owner, key, computed); err != nil {
		return nil, err
	}

	stored, ok, err := driver.Get(ctx, owner, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Warn("memoized value not readable after write",
			zap.String("owner", owner),
			zap.String("method", key),
		)
		return computed, nil
	}
	return stored, nil
}
