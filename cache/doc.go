// Package cache provides the storage drivers and key serialization used by
// the memoize package.
//
// # Overview
//
// Memoized values live under a two-level key:
//
//   - the owner key, "{type}:{identifier}" for entities (see Entity) or a
//     per-instance scope for plain values
//   - the method key, "{method}:{serialized args}", built by MethodKey
//
// A Driver stores values under those keys. Two implementations ship with the
// package:
//
//   - MemoryDriver: a nested in-process map with no eviction
//   - TTLDriver: flattened keys in an external Store with a fixed TTL
//
// # Basic Usage
//
//	driver := cache.NewMemoryDriver()
//	key, err := cache.MethodKey(nil, "Total", 42, []string{"a", "b"})
//	if err != nil {
//		return err
//	}
//	err = driver.Set(ctx, "shop.Order:7", key, 99)
//
// Drivers can also be built from configuration:
//
//	cfg, err := cache.LoadConfig() // MEMOIZE_BACKEND, MEMOIZE_TTL, ...
//	driver, err := cache.NewDriver(cfg)
//
// # Key Serialization Strategy
//
// The default SerializerFactory classifies every argument once and applies,
// in order of precedence:
//
//   - Entities: "{type}:{identifier}"; an entity without an identifier is an
//     error (NoIdentityError), never a cache miss
//   - Functions: the source file and line of the function literal, so every
//     closure created from the same literal shares a key
//   - Composites (slices, arrays, maps, structs): a structural dump with
//     sorted map keys and quoted strings
//   - Scalars: the %v rendering
//
// # Important Warnings for Function Arguments
//
//   - Closures created from the same literal collapse to one key whatever
//     they capture
//   - Method values (obj.Method) share the wrapper's position, so they
//     collapse across receivers too
//   - Two literals on the same source line share a key
//
// # TTL Driver Indexes
//
// Stores have no prefix delete, so the TTLDriver keeps an index of method
// keys per owner and an index of owners. Index updates are not atomic, and an
// index that expires before its entries orphans them until their own TTL
// runs out. Values written through the TTLDriver come back as Payload and
// must be decoded with Decode or DecodeAny; integers decoded into an
// interface come back as the narrowest msgpack integer type.
package cache
