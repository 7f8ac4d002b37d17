// Package lifecycle provides the owner lifecycle source memoization hooks into.
//
// # Overview
//
// A Dispatcher routes named events (Persisted, Removed, or any custom Event)
// to listeners registered per type. The memoize package registers a
// listener per owner type that forgets the affected owner's cached values.
//
// # Repository Decorator
//
// Repository[T] wraps a go-repository-bun repository and fires events after
// successful writes:
//
//   - Create, Update, Upsert, GetOrCreate and their Many/Tx variants fire
//     Persisted for every returned record
//   - Delete and ForceDelete (and Tx variants) fire Removed for the record
//   - DeleteMany and DeleteWhere fire Removed type-wide with a nil instance,
//     since the affected records are unknown
//
// Reads, raw SQL and failed writes fire nothing.
//
//	events := lifecycle.NewDispatcher()
//	users := lifecycle.NewRepository[*User](baseRepo, events)
//
//	// memoized values of this user are forgotten after the update
//	user, err := users.Update(ctx, user)
//
// # Quiet Writes
//
// Writes made with a context from Quietly fire no events, so memoized
// values survive them:
//
//	_, err := users.Update(lifecycle.Quietly(ctx), user)
package lifecycle
