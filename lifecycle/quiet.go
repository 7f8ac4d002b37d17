package lifecycle

import (
	"context"
)

type quietContextKey struct{}

// Quietly returns a context under which no lifecycle event is dispatched.
// Writes made with it leave memoized values untouched.
func Quietly(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, quietContextKey{}, true)
}

// IsQuiet reports whether ctx suppresses lifecycle events.
func IsQuiet(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	quiet, _ := ctx.Value(quietContextKey{}).(bool)
	return quiet
}
