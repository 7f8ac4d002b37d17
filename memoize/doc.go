// Package memoize caches method results per owner instance.
//
// # Overview
//
// A Manager holds the shared driver, serializer selection and invalidation
// hooks. Each owner holds the Memoizer returned by Manager.For and routes
// expensive computations through it:
//
//	type Post struct {
//		ID   int
//		Body string
//		memo *memoize.Memoizer
//	}
//
//	func (p *Post) EntityID() any { return p.ID }
//
//	func (p *Post) Summary(ctx context.Context, words int) (string, error) {
//		return memoize.Do(ctx, p.memo, "Summary", func(ctx context.Context) (string, error) {
//			return summarize(p.Body, words), nil
//		}, words)
//	}
//
// Values are stored under the owner key ("{type}:{id}" for entities) and the
// method key ("{method}:{serialized args}"). The compute function runs only
// on a miss; a computed nil or zero value is cached like any other.
//
// # Invalidation
//
// With a lifecycle.Dispatcher (see WithDispatcher) the first memoizer built
// for an entity type registers listeners that forget an owner's values when
// it is persisted or removed. Types implementing Invalidator choose their
// own events. Writes under lifecycle.Quietly leave cached values in place.
//
// Type-wide events, such as criteria deletes, clear every cached owner of
// that type. Owners of other types are untouched.
//
// # Identity-less Owners
//
// Owners that do not implement cache.Entity get a scope unique to the
// memoizer, so two plain values never share cached results. With
// WithSharedTypeScope every identity-less owner of a type shares one scope.
//
// # Errors
//
// An entity without an identifier, as owner or argument, fails with a
// *cache.NoIdentityError before anything is computed or stored. Errors from
// the compute function and the driver are returned unchanged and nothing is
// cached.
package memoize
