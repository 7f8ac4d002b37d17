package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Driver stores memoized values under a two-level key: the owner scope and
// the method key inside it.
type Driver interface {
	// All returns every owner scope with its cached methods.
	All(ctx context.Context) (map[string]map[string]any, error)
	// Owner returns the method→value mapping of a single owner.
	Owner(ctx context.Context, owner string) (map[string]any, error)
	// Get returns a single cached value.
	Get(ctx context.Context, owner, method string) (any, bool, error)
	Set(ctx context.Context, owner, method string, value any) error
	Has(ctx context.Context, owner, method string) (bool, error)
	// Forget clears a single owner scope.
	Forget(ctx context.Context, owner string) error
	// ForgetAll clears every owner scope.
	ForgetAll(ctx context.Context) error
}

// Store is the flat key-value contract of an external cache with lazy TTL
// expiry. Expired keys behave as missing.
type Store interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// KeyLister is implemented by stores that can enumerate their live keys.
// The TTL driver uses it to sweep entries whose index expired first.
type KeyLister interface {
	Keys() []string
}

// Payload is a msgpack encoded value, as written by drivers that cannot hold
// live Go values.
type Payload []byte

// Encode serializes v into a Payload.
func Encode(v any) (Payload, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return Payload(data), nil
}

// Decode converts a value read from a Driver into T. Payloads are decoded
// with msgpack; live values are type asserted.
func Decode[T any](v any) (T, error) {
	var zero T

	switch x := v.(type) {
	case nil:
		return zero, nil
	case Payload:
		var out T
		if err := msgpack.Unmarshal(x, &out); err != nil {
			return zero, fmt.Errorf("decode payload into %T: %w", zero, err)
		}
		return out, nil
	case T:
		return x, nil
	}

	return zero, fmt.Errorf("%w: want %T, got %T", ErrInvalidResultType, zero, v)
}

// DecodeAny unwraps a Payload into a generic value. Other values are
// returned unchanged.
func DecodeAny(v any) (any, error) {
	p, ok := v.(Payload)
	if !ok {
		return v, nil
	}
	var out any
	if err := msgpack.Unmarshal(p, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}
