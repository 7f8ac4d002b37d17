package cache

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// Interface assertion to ensure MemoryDriver implements Driver
var _ Driver = (*MemoryDriver)(nil)

// MemoryDriver keeps live values in a nested owner→method map for the
// lifetime of the driver. There is no eviction and no size bound: entries
// stay until they are forgotten.
type MemoryDriver struct {
	owners *xsync.MapOf[string, *xsync.MapOf[string, any]]
}

// NewMemoryDriver creates an empty in-process driver. Share one instance to
// get a process-wide cache, or create one per request or test.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		owners: xsync.NewMapOf[string, *xsync.MapOf[string, any]](),
	}
}

// All implements Driver.
func (d *MemoryDriver) All(ctx context.Context) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, d.owners.Size())
	d.owners.Range(func(owner string, methods *xsync.MapOf[string, any]) bool {
		out[owner] = snapshot(methods)
		return true
	})
	return out, nil
}

// Owner implements Driver.
func (d *MemoryDriver) Owner(ctx context.Context, owner string) (map[string]any, error) {
	methods, ok := d.owners.Load(owner)
	if !ok {
		return map[string]any{}, nil
	}
	return snapshot(methods), nil
}

// Get implements Driver.
func (d *MemoryDriver) Get(ctx context.Context, owner, method string) (any, bool, error) {
	methods, ok := d.owners.Load(owner)
	if !ok {
		return nil, false, nil
	}
	value, ok := methods.Load(method)
	return value, ok, nil
}

// Set implements Driver.
func (d *MemoryDriver) Set(ctx context.Context, owner, method string, value any) error {
	methods, _ := d.owners.LoadOrCompute(owner, func() *xsync.MapOf[string, any] {
		return xsync.NewMapOf[string, any]()
	})
	methods.Store(method, value)
	return nil
}

// Has implements Driver.
func (d *MemoryDriver) Has(ctx context.Context, owner, method string) (bool, error) {
	_, ok, err := d.Get(ctx, owner, method)
	return ok, err
}

// Forget implements Driver.
func (d *MemoryDriver) Forget(ctx context.Context, owner string) error {
	d.owners.Delete(owner)
	return nil
}

// ForgetAll implements Driver.
func (d *MemoryDriver) ForgetAll(ctx context.Context) error {
	d.owners.Clear()
	return nil
}

func snapshot(methods *xsync.MapOf[string, any]) map[string]any {
	out := make(map[string]any, methods.Size())
	methods.Range(func(method string, value any) bool {
		out[method] = value
		return true
	})
	return out
}
