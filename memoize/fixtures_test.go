package memoize_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-memoize/cache"
	"github.com/goliatone/go-memoize/lifecycle"
	"github.com/goliatone/go-memoize/memoize"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// post is an identity-bearing owner.
type post struct {
	ID    int
	Value int
	memo  *memoize.Memoizer
	calls int
}

func newPost(m *memoize.Manager, id, value int) *post {
	p := &post{ID: id, Value: value}
	p.memo = m.For(p)
	return p
}

func (p *post) EntityID() any { return p.ID }

func (p *post) value(ctx context.Context) (int, error) {
	return memoize.Do(ctx, p.memo, "value", func(context.Context) (int, error) {
		p.calls++
		return p.Value, nil
	})
}

func (p *post) echo(ctx context.Context, args ...any) (string, error) {
	return memoize.Do(ctx, p.memo, "echo", func(context.Context) (string, error) {
		p.calls++
		return fmt.Sprint(len(args)), nil
	}, args...)
}

// article only forgets its values when published.
type article struct {
	ID    int
	Title string
	memo  *memoize.Memoizer
	calls int
}

const published lifecycle.Event = "published"

func newArticle(m *memoize.Manager, id int, title string) *article {
	a := &article{ID: id, Title: title}
	a.memo = m.For(a)
	return a
}

func (a *article) EntityID() any { return a.ID }

func (a *article) InvalidateOn() []lifecycle.Event {
	return []lifecycle.Event{published}
}

func (a *article) title(ctx context.Context) (string, error) {
	return memoize.Do(ctx, a.memo, "title", func(context.Context) (string, error) {
		a.calls++
		return a.Title, nil
	})
}

// account is identified by a uuid.
type account struct {
	ID   uuid.UUID
	memo *memoize.Memoizer
}

func (a *account) EntityID() any { return a.ID }

// calculator has no identity.
type calculator struct {
	memo  *memoize.Memoizer
	calls int
}

func newCalculator(m *memoize.Manager) *calculator {
	c := &calculator{}
	c.memo = m.For(c)
	return c
}

func (c *calculator) concat(ctx context.Context, a, b string) (any, error) {
	return c.memo.Memoize(ctx, "concat", func(context.Context) (any, error) {
		c.calls++
		return a + b, nil
	}, a, b)
}

type backend struct {
	name   string
	driver func(t *testing.T) cache.Driver
}

func backends() []backend {
	return []backend{
		{name: "memory", driver: func(*testing.T) cache.Driver { return cache.NewMemoryDriver() }},
		{name: "sturdyc", driver: ttlBackend(cache.BackendSturdyc)},
		{name: "ristretto", driver: ttlBackend(cache.BackendRistretto)},
	}
}

func ttlBackend(b cache.Backend) func(*testing.T) cache.Driver {
	return func(t *testing.T) cache.Driver {
		cfg := cache.DefaultConfig()
		cfg.Backend = b

		driver, err := cache.NewDriver(cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = driver.(*cache.TTLDriver).Close()
		})
		return driver
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, driver cache.Driver)) {
	t.Helper()
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.driver(t))
		})
	}
}

// faultyDriver fails selected operations.
type faultyDriver struct {
	cache.Driver
	hasErr    error
	forgetErr error
}

func (d faultyDriver) Has(ctx context.Context, owner, method string) (bool, error) {
	if d.hasErr != nil {
		return false, d.hasErr
	}
	return d.Driver.Has(ctx, owner, method)
}

func (d faultyDriver) Forget(ctx context.Context, owner string) error {
	if d.forgetErr != nil {
		return d.forgetErr
	}
	return d.Driver.Forget(ctx, owner)
}

// lowerFactory folds string arguments to lower case.
type lowerFactory struct{}

func (lowerFactory) Make(value any) cache.Serializer {
	if _, ok := value.(string); ok {
		return cache.SerializerFunc(func(v any) (string, error) {
			return fmt.Sprintf("lower(%s)", toLower(v.(string))), nil
		})
	}
	return cache.NewDefaultSerializerFactory().Make(value)
}

func toLower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}
