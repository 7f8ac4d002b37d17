package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultTTL is applied to every write of a TTLDriver unless overridden.
	DefaultTTL = 60 * time.Second
	// DefaultPrefix namespaces every key a TTLDriver writes.
	DefaultPrefix = "memoize"
)

// Interface assertion to ensure TTLDriver implements Driver
var _ Driver = (*TTLDriver)(nil)

// TTLDriver stores memoized values in an external Store. Values are msgpack
// encoded, so reads return a Payload that callers decode with Decode.
//
// The store has no prefix delete, so the driver keeps two indexes next to
// the entries: one per owner listing its method keys, and a top-level one
// listing the owners. Indexes share the entries' TTL and are rewritten with
// a read-modify-write on every Set; concurrent writers to the same owner may
// lose index updates, and an index that expires before its entries leaves
// them unreachable by Forget until their own TTL reclaims them. ForgetAll
// also sweeps such entries when the store implements KeyLister.
type TTLDriver struct {
	store  Store
	ttl    time.Duration
	prefix string
}

// TTLOption configures a TTLDriver.
type TTLOption func(*TTLDriver)

// WithTTL sets the time-to-live applied to every write.
func WithTTL(ttl time.Duration) TTLOption {
	return func(d *TTLDriver) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithPrefix sets the namespace of every key written to the store.
func WithPrefix(prefix string) TTLOption {
	return func(d *TTLDriver) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// NewTTLDriver wraps store with the memoize key layout.
func NewTTLDriver(store Store, opts ...TTLOption) *TTLDriver {
	d := &TTLDriver{
		store:  store,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TTL returns the time-to-live applied to writes.
func (d *TTLDriver) TTL() time.Duration {
	return d.ttl
}

// All implements Driver.
func (d *TTLDriver) All(ctx context.Context) (map[string]map[string]any, error) {
	owners, err := d.readList(ctx, d.ownersKey())
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]any, len(owners))
	for _, owner := range owners {
		methods, err := d.Owner(ctx, owner)
		if err != nil {
			return nil, err
		}
		if len(methods) > 0 {
			out[owner] = methods
		}
	}
	return out, nil
}

// Owner implements Driver.
func (d *TTLDriver) Owner(ctx context.Context, owner string) (map[string]any, error) {
	methods, err := d.readList(ctx, d.indexKey(owner))
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(methods))
	for _, method := range methods {
		value, ok, err := d.Get(ctx, owner, method)
		if err != nil {
			return nil, err
		}
		if ok {
			out[method] = value
		}
	}
	return out, nil
}

// Get implements Driver.
func (d *TTLDriver) Get(ctx context.Context, owner, method string) (any, bool, error) {
	value, ok, err := d.store.Get(ctx, d.entryKey(owner, method))
	if err != nil {
		return nil, false, fmt.Errorf("ttl driver: get %s %s: %w", owner, method, err)
	}
	return value, ok, nil
}

// Set implements Driver.
func (d *TTLDriver) Set(ctx context.Context, owner, method string, value any) error {
	payload, err := Encode(value)
	if err != nil {
		return err
	}
	if err := d.store.Put(ctx, d.entryKey(owner, method), payload, d.ttl); err != nil {
		return fmt.Errorf("ttl driver: set %s %s: %w", owner, method, err)
	}
	if err := d.track(ctx, d.indexKey(owner), method); err != nil {
		return err
	}
	return d.track(ctx, d.ownersKey(), owner)
}

// Has implements Driver.
func (d *TTLDriver) Has(ctx context.Context, owner, method string) (bool, error) {
	ok, err := d.store.Has(ctx, d.entryKey(owner, method))
	if err != nil {
		return false, fmt.Errorf("ttl driver: has %s %s: %w", owner, method, err)
	}
	return ok, nil
}

// Forget implements Driver.
func (d *TTLDriver) Forget(ctx context.Context, owner string) error {
	if err := d.forgetScope(ctx, owner); err != nil {
		return err
	}

	owners, err := d.readList(ctx, d.ownersKey())
	if err != nil {
		return err
	}
	owners = slices.DeleteFunc(owners, func(o string) bool { return o == owner })
	if len(owners) == 0 {
		return d.forgetKey(ctx, d.ownersKey())
	}
	return d.writeList(ctx, d.ownersKey(), owners)
}

// ForgetAll implements Driver.
func (d *TTLDriver) ForgetAll(ctx context.Context) error {
	owners, err := d.readList(ctx, d.ownersKey())
	if err != nil {
		return err
	}
	for _, owner := range owners {
		if err := d.forgetScope(ctx, owner); err != nil {
			return err
		}
	}
	if err := d.forgetKey(ctx, d.ownersKey()); err != nil {
		return err
	}
	return d.sweep(ctx)
}

// sweep removes every key under the driver prefix that the indexes no
// longer reach. It is a no-op unless the store implements KeyLister.
func (d *TTLDriver) sweep(ctx context.Context) error {
	lister, ok := d.store.(KeyLister)
	if !ok {
		return nil
	}
	prefix := d.prefix + KeySeparator
	for _, key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := d.forgetKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// forgetScope removes every entry listed in the owner index, then the index.
func (d *TTLDriver) forgetScope(ctx context.Context, owner string) error {
	methods, err := d.readList(ctx, d.indexKey(owner))
	if err != nil {
		return err
	}
	for _, method := range methods {
		if err := d.forgetKey(ctx, d.entryKey(owner, method)); err != nil {
			return err
		}
	}
	return d.forgetKey(ctx, d.indexKey(owner))
}

func (d *TTLDriver) track(ctx context.Context, key, member string) error {
	members, err := d.readList(ctx, key)
	if err != nil {
		return err
	}
	if !slices.Contains(members, member) {
		members = append(members, member)
	}
	// rewritten even when unchanged so the index outlives the newest entry
	return d.writeList(ctx, key, members)
}

func (d *TTLDriver) readList(ctx context.Context, key string) ([]string, error) {
	value, ok, err := d.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("ttl driver: read index %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	payload, isPayload := value.(Payload)
	if !isPayload {
		return nil, fmt.Errorf("ttl driver: read index %s: %w: got %T", key, ErrInvalidResultType, value)
	}

	var members []string
	if err := msgpack.Unmarshal(payload, &members); err != nil {
		return nil, fmt.Errorf("ttl driver: decode index %s: %w", key, err)
	}
	return members, nil
}

func (d *TTLDriver) writeList(ctx context.Context, key string, members []string) error {
	payload, err := Encode(members)
	if err != nil {
		return err
	}
	if err := d.store.Put(ctx, key, payload, d.ttl); err != nil {
		return fmt.Errorf("ttl driver: write index %s: %w", key, err)
	}
	return nil
}

func (d *TTLDriver) forgetKey(ctx context.Context, key string) error {
	if err := d.store.Forget(ctx, key); err != nil {
		return fmt.Errorf("ttl driver: forget %s: %w", key, err)
	}
	return nil
}

func (d *TTLDriver) ownersKey() string {
	return d.prefix + KeySeparator + "owners"
}

func (d *TTLDriver) indexKey(owner string) string {
	return d.prefix + KeySeparator + "index" + KeySeparator + flattenOwner(owner)
}

func (d *TTLDriver) entryKey(owner, method string) string {
	return d.prefix + KeySeparator + "entry" + KeySeparator + flattenOwner(owner) + KeySeparator + hashKey(method)
}

// Close releases the underlying store when it holds background resources.
func (d *TTLDriver) Close() error {
	switch c := d.store.(type) {
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
