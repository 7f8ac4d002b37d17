package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with a controllable clock.
type fakeStore struct {
	mu     sync.Mutex
	now    time.Time
	items  map[string]fakeItem
	getErr error
	closed bool
}

type fakeItem struct {
	value     any
	expiresAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		items: make(map[string]fakeItem),
	}
}

func (s *fakeStore) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, item := range s.items {
		if s.now.Before(item.expiresAt) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *fakeStore) Get(ctx context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	item, ok := s.items[key]
	if !ok || !s.now.Before(item.expiresAt) {
		return nil, false, nil
	}
	return item.value, true, nil
}

func (s *fakeStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = fakeItem{value: value, expiresAt: s.now.Add(ttl)}
	return nil
}

func (s *fakeStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *fakeStore) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type driverFactory struct {
	name string
	new  func() Driver
}

func drivers() []driverFactory {
	return []driverFactory{
		{name: "memory", new: func() Driver { return NewMemoryDriver() }},
		{name: "ttl", new: func() Driver { return NewTTLDriver(newFakeStore()) }},
	}
}

func decodeOwner(t *testing.T, values map[string]any) map[string]string {
	t.Helper()
	out := make(map[string]string, len(values))
	for method, value := range values {
		s, err := Decode[string](value)
		require.NoError(t, err)
		out[method] = s
	}
	return out
}

func TestDriver_SetGetHas(t *testing.T) {
	for _, f := range drivers() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			d := f.new()

			_, ok, err := d.Get(ctx, "blog.Post:1", "Title:")
			require.NoError(t, err)
			assert.False(t, ok)

			has, err := d.Has(ctx, "blog.Post:1", "Title:")
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "hello"))

			has, err = d.Has(ctx, "blog.Post:1", "Title:")
			require.NoError(t, err)
			assert.True(t, has)

			value, ok, err := d.Get(ctx, "blog.Post:1", "Title:")
			require.NoError(t, err)
			require.True(t, ok)
			got, err := Decode[string](value)
			require.NoError(t, err)
			assert.Equal(t, "hello", got)
		})
	}
}

func TestDriver_NilValuesAreCached(t *testing.T) {
	for _, f := range drivers() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			d := f.new()

			require.NoError(t, d.Set(ctx, "blog.Post:1", "Parent:", nil))

			has, err := d.Has(ctx, "blog.Post:1", "Parent:")
			require.NoError(t, err)
			assert.True(t, has)

			value, ok, err := d.Get(ctx, "blog.Post:1", "Parent:")
			require.NoError(t, err)
			assert.True(t, ok)
			decoded, err := DecodeAny(value)
			require.NoError(t, err)
			assert.Nil(t, decoded)
		})
	}
}

func TestDriver_OwnerAndAll(t *testing.T) {
	for _, f := range drivers() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			d := f.new()

			require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
			require.NoError(t, d.Set(ctx, "blog.Post:1", "Slug:en", "one-en"))
			require.NoError(t, d.Set(ctx, "blog.Post:2", "Title:", "two"))

			owner, err := d.Owner(ctx, "blog.Post:1")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"Title:": "one", "Slug:en": "one-en"}, decodeOwner(t, owner))

			missing, err := d.Owner(ctx, "blog.Post:3")
			require.NoError(t, err)
			assert.Empty(t, missing)

			all, err := d.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, map[string]string{"Title:": "two"}, decodeOwner(t, all["blog.Post:2"]))
		})
	}
}

func TestDriver_Forget(t *testing.T) {
	for _, f := range drivers() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			d := f.new()

			require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
			require.NoError(t, d.Set(ctx, "blog.Post:1", "Slug:", "one"))
			require.NoError(t, d.Set(ctx, "blog.Post:2", "Title:", "two"))

			require.NoError(t, d.Forget(ctx, "blog.Post:1"))

			for _, method := range []string{"Title:", "Slug:"} {
				has, err := d.Has(ctx, "blog.Post:1", method)
				require.NoError(t, err)
				assert.False(t, has, method)
			}

			has, err := d.Has(ctx, "blog.Post:2", "Title:")
			require.NoError(t, err)
			assert.True(t, has, "sibling owners keep their values")

			all, err := d.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)

			require.NoError(t, d.Forget(ctx, "blog.Post:9"), "forgetting an unknown owner is a no-op")
		})
	}
}

func TestDriver_ForgetAll(t *testing.T) {
	for _, f := range drivers() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			d := f.new()

			require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
			require.NoError(t, d.Set(ctx, "blog.Comment:5", "Body:", "five"))

			require.NoError(t, d.ForgetAll(ctx))

			all, err := d.All(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			has, err := d.Has(ctx, "blog.Comment:5", "Body:")
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "again"))
			has, err = d.Has(ctx, "blog.Post:1", "Title:")
			require.NoError(t, err)
			assert.True(t, has, "driver stays usable after ForgetAll")
		})
	}
}

func TestMemoryDriver_KeepsLiveValues(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()

	type summary struct{ Words int }
	value := &summary{Words: 3}
	require.NoError(t, d.Set(ctx, "blog.Post:1", "Summary:", value))

	got, ok, err := d.Get(ctx, "blog.Post:1", "Summary:")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, value, got)
}

func TestTTLDriver_Expiry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(store, WithTTL(10*time.Second))
	assert.Equal(t, 10*time.Second, d.TTL())

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))

	store.advance(9 * time.Second)
	has, err := d.Has(ctx, "blog.Post:1", "Title:")
	require.NoError(t, err)
	assert.True(t, has)

	store.advance(time.Second)
	has, err = d.Has(ctx, "blog.Post:1", "Title:")
	require.NoError(t, err)
	assert.False(t, has, "expired entries behave as missing")

	all, err := d.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTTLDriver_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(store)
	assert.Equal(t, DefaultTTL, d.TTL())

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))

	store.advance(DefaultTTL - time.Second)
	has, err := d.Has(ctx, "blog.Post:1", "Title:")
	require.NoError(t, err)
	assert.True(t, has)

	store.advance(time.Second)
	has, err = d.Has(ctx, "blog.Post:1", "Title:")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestTTLDriver_IndexFollowsNewestEntry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(store, WithTTL(10*time.Second))

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
	store.advance(6 * time.Second)
	require.NoError(t, d.Set(ctx, "blog.Post:1", "Slug:", "one"))
	store.advance(6 * time.Second)

	owner, err := d.Owner(ctx, "blog.Post:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Slug:": "one"}, decodeOwner(t, owner))

	require.NoError(t, d.Forget(ctx, "blog.Post:1"))
	assert.Empty(t, store.keys())
}

func TestTTLDriver_KeyLayout(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(store, WithPrefix("app"))

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))

	keys := store.keys()
	require.Len(t, keys, 3)
	assert.Contains(t, keys, "app:owners")
	assert.Contains(t, keys, "app:index:blog_post_1:"+hashKey("blog.Post:1"))
	assert.Contains(t, keys, "app:entry:blog_post_1:"+hashKey("blog.Post:1")+":"+hashKey("Title:"))
	for _, key := range keys {
		assert.True(t, strings.HasPrefix(key, "app:"), key)
	}
}

func TestTTLDriver_ForgetAllRemovesIndexes(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(store)

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
	require.NoError(t, d.Set(ctx, "blog.Post:2", "Title:", "two"))
	require.NoError(t, d.Set(ctx, "shop.Order:1", "Total:", "9"))

	require.NoError(t, d.ForgetAll(ctx))
	assert.Empty(t, store.keys())
}

// listingStore exposes the live keys of a fakeStore through KeyLister.
type listingStore struct {
	*fakeStore
}

func (s listingStore) Keys() []string { return s.keys() }

func TestTTLDriver_ForgetAllSweepsOrphanedEntries(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(listingStore{store}, WithPrefix("app"))

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
	require.NoError(t, store.Put(ctx, "other:key", "kept", time.Minute))

	// the indexes are gone, the entry is not
	require.NoError(t, store.Forget(ctx, d.indexKey("blog.Post:1")))
	require.NoError(t, store.Forget(ctx, d.ownersKey()))
	require.Len(t, store.keys(), 2)

	require.NoError(t, d.ForgetAll(ctx))
	assert.Equal(t, []string{"other:key"}, store.keys())
}

func TestTTLDriver_ForgetAllWithoutKeyLister(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(store)

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
	require.NoError(t, store.Forget(ctx, d.ownersKey()))

	require.NoError(t, d.ForgetAll(ctx))
	assert.Len(t, store.keys(), 2, "unreachable entries wait for their own TTL")
}

func TestTTLDriver_ForgetKeepsOwnersIndex(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	d := NewTTLDriver(store)

	require.NoError(t, d.Set(ctx, "blog.Post:1", "Title:", "one"))
	require.NoError(t, d.Set(ctx, "blog.Post:2", "Title:", "two"))
	require.NoError(t, d.Forget(ctx, "blog.Post:1"))

	owners, err := d.readList(ctx, d.ownersKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"blog.Post:2"}, owners)
}

func TestTTLDriver_TypedPayloads(t *testing.T) {
	ctx := context.Background()
	d := NewTTLDriver(newFakeStore())

	type summary struct {
		Words int
		Tags  []string
	}
	require.NoError(t, d.Set(ctx, "blog.Post:1", "Summary:", summary{Words: 3, Tags: []string{"go"}}))

	value, ok, err := d.Get(ctx, "blog.Post:1", "Summary:")
	require.NoError(t, err)
	require.True(t, ok)
	require.IsType(t, Payload(nil), value)

	got, err := Decode[summary](value)
	require.NoError(t, err)
	assert.Equal(t, summary{Words: 3, Tags: []string{"go"}}, got)
}

func TestTTLDriver_UnencodableValue(t *testing.T) {
	ctx := context.Background()
	d := NewTTLDriver(newFakeStore())

	err := d.Set(ctx, "blog.Post:1", "Stream:", make(chan int))
	require.Error(t, err)

	has, err := d.Has(ctx, "blog.Post:1", "Stream:")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestTTLDriver_StoreErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.getErr = errors.New("backend down")
	d := NewTTLDriver(store)

	_, _, err := d.Get(ctx, "blog.Post:1", "Title:")
	assert.ErrorIs(t, err, store.getErr)

	_, err = d.All(ctx)
	assert.ErrorIs(t, err, store.getErr)
}

func TestTTLDriver_Close(t *testing.T) {
	store := newFakeStore()
	d := NewTTLDriver(store)

	require.NoError(t, d.Close())
	assert.True(t, store.closed)
}
