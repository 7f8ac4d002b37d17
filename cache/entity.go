package cache

import (
	"fmt"
	"reflect"
)

// Entity is implemented by identity-bearing values, typically persisted
// models. EntityID returns nil or the zero value of its type while the
// entity has not been assigned an identifier.
type Entity interface {
	EntityID() any
}

// Named lets a value choose the type name used in its cache keys.
type Named interface {
	EntityName() string
}

// TypeName returns the name used for v in cache keys.
func TypeName(v any) string {
	if n, ok := v.(Named); ok {
		return n.EntityName()
	}

	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EntityKey builds the "{type}:{identifier}" key of an entity.
// It fails with a *NoIdentityError when the entity has no identifier.
func EntityKey(e Entity) (string, error) {
	if isNilValue(e) {
		return "", &NoIdentityError{Type: TypeName(e)}
	}

	id := e.EntityID()
	if isZeroID(id) {
		return "", &NoIdentityError{Type: TypeName(e)}
	}

	return TypeName(e) + ":" + fmt.Sprint(derefID(id)), nil
}

func isZeroID(id any) bool {
	if id == nil {
		return true
	}
	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	return rv.IsZero()
}

func derefID(id any) any {
	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return id
}

// isNilValue reports typed nil pointers hidden behind an interface.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
