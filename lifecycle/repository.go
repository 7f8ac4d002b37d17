package lifecycle

import (
	"context"
	"errors"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Interface assertion to ensure Repository implements repository.Repository[T]
var _ repository.Repository[any] = (*Repository[any])(nil)

// Repository decorates a base repository so that successful writes fire
// lifecycle events. Reads, raw queries and failed writes fire nothing.
//
// Event errors are returned after the write has been committed, so callers
// can tell that dependent caches may be stale.
type Repository[T any] struct {
	base   repository.Repository[T]
	events *Dispatcher
}

// NewRepository wraps base, firing events on events.
func NewRepository[T any](base repository.Repository[T], events *Dispatcher) *Repository[T] {
	return &Repository[T]{
		base:   base,
		events: events,
	}
}

// Get retrieves a single record using the provided criteria
func (r *Repository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.Get(ctx, criteria...)
}

// GetByID retrieves a record by ID with optional criteria
func (r *Repository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByID(ctx, id, criteria...)
}

// List retrieves multiple records using the provided criteria
func (r *Repository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return r.base.List(ctx, criteria...)
}

// Count returns the number of records matching the criteria
func (r *Repository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return r.base.Count(ctx, criteria...)
}

// GetByIdentifier retrieves a record by identifier with optional criteria
func (r *Repository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIdentifier(ctx, identifier, criteria...)
}

// Create creates a new record and fires Persisted for it
func (r *Repository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return r.persisted(ctx)(r.base.Create(ctx, record, criteria...))
}

// CreateTx creates a new record within a transaction
func (r *Repository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return r.persisted(ctx)(r.base.CreateTx(ctx, tx, record, criteria...))
}

// CreateMany creates multiple records
func (r *Repository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return r.persistedMany(ctx)(r.base.CreateMany(ctx, records, criteria...))
}

// CreateManyTx creates multiple records within a transaction
func (r *Repository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return r.persistedMany(ctx)(r.base.CreateManyTx(ctx, tx, records, criteria...))
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (r *Repository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return r.persisted(ctx)(r.base.GetOrCreate(ctx, record))
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (r *Repository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return r.persisted(ctx)(r.base.GetOrCreateTx(ctx, tx, record))
}

// Update updates a record and fires Persisted for it
func (r *Repository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return r.persisted(ctx)(r.base.Update(ctx, record, criteria...))
}

// UpdateTx updates a record within a transaction
func (r *Repository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return r.persisted(ctx)(r.base.UpdateTx(ctx, tx, record, criteria...))
}

// UpdateMany updates multiple records
func (r *Repository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return r.persistedMany(ctx)(r.base.UpdateMany(ctx, records, criteria...))
}

// UpdateManyTx updates multiple records within a transaction
func (r *Repository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return r.persistedMany(ctx)(r.base.UpdateManyTx(ctx, tx, records, criteria...))
}

// Upsert inserts or updates a record
func (r *Repository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return r.persisted(ctx)(r.base.Upsert(ctx, record, criteria...))
}

// UpsertTx inserts or updates a record within a transaction
func (r *Repository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return r.persisted(ctx)(r.base.UpsertTx(ctx, tx, record, criteria...))
}

// UpsertMany inserts or updates multiple records
func (r *Repository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return r.persistedMany(ctx)(r.base.UpsertMany(ctx, records, criteria...))
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (r *Repository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return r.persistedMany(ctx)(r.base.UpsertManyTx(ctx, tx, records, criteria...))
}

// Delete deletes a record and fires Removed for it
func (r *Repository[T]) Delete(ctx context.Context, record T) error {
	return r.removed(ctx, record, r.base.Delete(ctx, record))
}

// DeleteTx deletes a record within a transaction
func (r *Repository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return r.removed(ctx, record, r.base.DeleteTx(ctx, tx, record))
}

// DeleteMany deletes multiple records based on criteria.
// The affected records are unknown, so Removed fires type-wide.
func (r *Repository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return r.removedAll(ctx, r.base.DeleteMany(ctx, criteria...))
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (r *Repository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return r.removedAll(ctx, r.base.DeleteManyTx(ctx, tx, criteria...))
}

// DeleteWhere deletes records based on criteria
func (r *Repository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return r.removedAll(ctx, r.base.DeleteWhere(ctx, criteria...))
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (r *Repository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return r.removedAll(ctx, r.base.DeleteWhereTx(ctx, tx, criteria...))
}

// ForceDelete force deletes a record (bypassing soft delete)
func (r *Repository[T]) ForceDelete(ctx context.Context, record T) error {
	return r.removed(ctx, record, r.base.ForceDelete(ctx, record))
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (r *Repository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return r.removed(ctx, record, r.base.ForceDeleteTx(ctx, tx, record))
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (r *Repository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (r *Repository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (r *Repository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return r.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (r *Repository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return r.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (r *Repository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return r.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results.
// Raw statements may write, but the affected records are unknown; fire
// events explicitly when needed.
func (r *Repository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return r.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (r *Repository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return r.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (r *Repository[T]) Handlers() repository.ModelHandlers[T] {
	return r.base.Handlers()
}

func (r *Repository[T]) persisted(ctx context.Context) func(T, error) (T, error) {
	return func(record T, err error) (T, error) {
		if err != nil {
			return record, err
		}
		return record, r.events.Fire(ctx, Persisted, record)
	}
}

func (r *Repository[T]) persistedMany(ctx context.Context) func([]T, error) ([]T, error) {
	return func(records []T, err error) ([]T, error) {
		if err != nil {
			return records, err
		}
		if !r.events.HasListeners(recordType[T](), Persisted) {
			return records, nil
		}
		var errs []error
		for _, record := range records {
			if err := r.events.Fire(ctx, Persisted, record); err != nil {
				errs = append(errs, err)
			}
		}
		return records, errors.Join(errs...)
	}
}

func (r *Repository[T]) removed(ctx context.Context, record T, err error) error {
	if err != nil {
		return err
	}
	return r.events.Fire(ctx, Removed, record)
}

func (r *Repository[T]) removedAll(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	return r.events.FireType(ctx, Removed, recordType[T]())
}

func recordType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
