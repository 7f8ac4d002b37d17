package cache

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-memoize/internal/cacheinfra"
)

// ErrNoIdentity is matched by every NoIdentityError through errors.Is.
var ErrNoIdentity = errors.New("cannot memoize an entity without an identifier")

// ErrInvalidResultType is returned when a cached value cannot be converted
// into the type requested by the caller.
var ErrInvalidResultType = errors.New("cached value has an unexpected type")

// NoIdentityError reports an entity that has no identifier yet, either as the
// owner of a memoized call or as one of its arguments.
type NoIdentityError struct {
	Type string
}

// Error implements the error interface.
func (e *NoIdentityError) Error() string {
	return fmt.Sprintf("cannot memoize %s without an identifier", e.Type)
}

// Is makes errors.Is(err, ErrNoIdentity) hold for any NoIdentityError.
func (e *NoIdentityError) Is(target error) bool {
	return target == ErrNoIdentity
}

// ReflectionError reports a function value whose definition site could not
// be resolved by the runtime.
type ReflectionError struct {
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *ReflectionError) Error() string {
	return "cannot resolve source location of " + e.Value + ": " + e.Reason
}

// ConfigError represents a configuration validation error.
type ConfigError = cacheinfra.ConfigError
