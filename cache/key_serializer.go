package cache

import (
	"encoding"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// Serializer converts a single argument value into a deterministic token.
type Serializer interface {
	Serialize(value any) (string, error)
}

// SerializerFunc adapts a plain function to the Serializer interface.
type SerializerFunc func(value any) (string, error)

// Serialize implements Serializer.
func (f SerializerFunc) Serialize(value any) (string, error) {
	return f(value)
}

// SerializerFactory picks the Serializer used for a given argument.
type SerializerFactory interface {
	Make(value any) Serializer
}

// Kind is the shape of an argument as seen by the default factory.
type Kind int

const (
	// KindScalar covers nil, booleans, numbers, strings and named
	// enum-like types built on them.
	KindScalar Kind = iota
	// KindEntity covers values implementing Entity.
	KindEntity
	// KindClosure covers function values. A nil function serializes as "nil".
	KindClosure
	// KindComposite covers slices, arrays, maps, structs and channels.
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindClosure:
		return "closure"
	case KindComposite:
		return "composite"
	default:
		return "scalar"
	}
}

// Classify resolves the Kind of v. Entities win over every other shape,
// then closures, then composites.
func Classify(v any) Kind {
	if v == nil {
		return KindScalar
	}
	if _, ok := v.(Entity); ok {
		return KindEntity
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return KindScalar
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Func:
		return KindClosure
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Chan:
		return KindComposite
	}
	return KindScalar
}

// defaultSerializerFactory dispatches on Classify.
type defaultSerializerFactory struct{}

// NewDefaultSerializerFactory returns the factory used when no override is
// registered.
func NewDefaultSerializerFactory() SerializerFactory {
	return defaultSerializerFactory{}
}

// Make implements SerializerFactory.
func (defaultSerializerFactory) Make(value any) Serializer {
	switch Classify(value) {
	case KindEntity:
		return EntitySerializer{}
	case KindClosure:
		return ClosureSerializer{}
	case KindComposite:
		return CompositeSerializer{}
	default:
		return ScalarSerializer{}
	}
}

// SerializeArgs serializes every argument with the serializer chosen by
// factory and joins the tokens with KeySeparator.
func SerializeArgs(factory SerializerFactory, args ...any) (string, error) {
	if factory == nil {
		factory = NewDefaultSerializerFactory()
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		token, err := factory.Make(arg).Serialize(arg)
		if err != nil {
			return "", err
		}
		parts[i] = token
	}
	return strings.Join(parts, KeySeparator), nil
}

// MethodKey builds "{method}:{serialized args}".
func MethodKey(factory SerializerFactory, method string, args ...any) (string, error) {
	serialized, err := SerializeArgs(factory, args...)
	if err != nil {
		return "", err
	}
	return method + KeySeparator + serialized, nil
}

// EntitySerializer renders an entity as "{type}:{identifier}".
type EntitySerializer struct{}

// Serialize implements Serializer.
func (EntitySerializer) Serialize(value any) (string, error) {
	e, ok := value.(Entity)
	if !ok {
		return "", fmt.Errorf("entity serializer: %T does not implement Entity", value)
	}
	return EntityKey(e)
}

// ClosureSerializer renders a function as the source position of its
// definition. Every closure created from the same literal shares the token.
type ClosureSerializer struct{}

// Serialize implements Serializer.
func (ClosureSerializer) Serialize(value any) (string, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Func {
		return "", &ReflectionError{Value: fmt.Sprintf("%T", value), Reason: "not a function"}
	}
	return closureKey(rv)
}

func closureKey(rv reflect.Value) (string, error) {
	if rv.IsNil() {
		return "nil", nil
	}

	fn := runtime.FuncForPC(rv.Pointer())
	if fn == nil {
		return "", &ReflectionError{Value: rv.Type().String(), Reason: "no runtime symbol for function"}
	}

	file, line := fn.FileLine(fn.Entry())
	if file == "" || line == 0 {
		return "", &ReflectionError{Value: fn.Name(), Reason: "no line table entry"}
	}
	return file + KeySeparator + strconv.Itoa(line), nil
}

// ScalarSerializer uses the canonical %v rendering, honouring fmt.Stringer.
type ScalarSerializer struct{}

// Serialize implements Serializer.
func (ScalarSerializer) Serialize(value any) (string, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "nil", nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "nil", nil
	}
	if rv.CanInterface() {
		return fmt.Sprint(rv.Interface()), nil
	}
	return rv.String(), nil
}

// CompositeSerializer renders the structure of a value deterministically:
// map entries are sorted, struct fields (exported or not) are listed in
// declaration order, and strings are quoted so element boundaries stay
// unambiguous. Nested entities and closures use their own tokens.
type CompositeSerializer struct{}

// Serialize implements Serializer.
func (CompositeSerializer) Serialize(value any) (string, error) {
	enc := &compositeEncoder{seen: make(map[visitKey]struct{})}
	var b strings.Builder
	if err := enc.encode(&b, reflect.ValueOf(value)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// visitKey identifies a reference being encoded. Slices sharing a backing
// array are told apart by length.
type visitKey struct {
	ptr uintptr
	n   int
	typ reflect.Type
}

type compositeEncoder struct {
	seen map[visitKey]struct{}
}

var (
	entityType        = reflect.TypeOf((*Entity)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func (e *compositeEncoder) encode(b *strings.Builder, rv reflect.Value) error {
	if !rv.IsValid() {
		b.WriteString("nil")
		return nil
	}

	if rv.Kind() == reflect.Interface && rv.IsNil() {
		b.WriteString("nil")
		return nil
	}

	if rv.Type().Implements(entityType) && rv.CanInterface() {
		key, err := EntityKey(rv.Interface().(Entity))
		if err != nil {
			return err
		}
		b.WriteString(key)
		return nil
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			b.WriteString("nil")
			return nil
		}
		return e.visit(b, visitKey{ptr: rv.Pointer(), typ: rv.Type()}, func() error {
			return e.encode(b, rv.Elem())
		})

	case reflect.Interface:
		if rv.IsNil() {
			b.WriteString("nil")
			return nil
		}
		return e.encode(b, rv.Elem())

	case reflect.Func:
		key, err := closureKey(rv)
		if err != nil {
			return err
		}
		b.WriteString("func(" + key + ")")
		return nil

	case reflect.Slice:
		if rv.IsNil() {
			b.WriteString("slice:nil")
			return nil
		}
		if rv.Len() == 0 {
			return e.encodeList(b, "slice", rv)
		}
		return e.visit(b, visitKey{ptr: rv.Pointer(), n: rv.Len(), typ: rv.Type()}, func() error {
			return e.encodeList(b, "slice", rv)
		})

	case reflect.Array:
		if ok, err := e.encodeText(b, rv); ok || err != nil {
			return err
		}
		return e.encodeList(b, "array", rv)

	case reflect.Map:
		if rv.IsNil() {
			b.WriteString("map:nil")
			return nil
		}
		return e.visit(b, visitKey{ptr: rv.Pointer(), typ: rv.Type()}, func() error {
			return e.encodeMap(b, rv)
		})

	case reflect.Struct:
		if ok, err := e.encodeText(b, rv); ok || err != nil {
			return err
		}
		return e.encodeStruct(b, rv)

	case reflect.Chan:
		if rv.IsNil() {
			b.WriteString("chan:nil")
			return nil
		}
		fmt.Fprintf(b, "chan:%x", rv.Pointer())
		return nil

	case reflect.String:
		b.WriteString(strconv.Quote(rv.String()))
		return nil

	case reflect.Bool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil

	case reflect.Float32, reflect.Float64:
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
		return nil

	case reflect.Complex64, reflect.Complex128:
		b.WriteString(strconv.FormatComplex(rv.Complex(), 'g', -1, 128))
		return nil

	case reflect.UnsafePointer:
		fmt.Fprintf(b, "ptr:%x", rv.Pointer())
		return nil
	}

	fmt.Fprintf(b, "%s:?", rv.Type())
	return nil
}

// visit runs fn unless v is already on the current encoding path, in
// which case the reference is rendered as <cycle>.
func (e *compositeEncoder) visit(b *strings.Builder, v visitKey, fn func() error) error {
	if _, ok := e.seen[v]; ok {
		b.WriteString("<cycle>")
		return nil
	}
	e.seen[v] = struct{}{}
	defer delete(e.seen, v)
	return fn()
}

// encodeText uses MarshalText for value types such as uuid.UUID and
// time.Time whose internal layout is not meaningful.
func (e *compositeEncoder) encodeText(b *strings.Builder, rv reflect.Value) (bool, error) {
	if !rv.CanInterface() || !rv.Type().Implements(textMarshalerType) {
		return false, nil
	}
	text, err := rv.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return false, nil
	}
	fmt.Fprintf(b, "%s(%s)", rv.Type(), text)
	return true, nil
}

func (e *compositeEncoder) encodeList(b *strings.Builder, label string, rv reflect.Value) error {
	fmt.Fprintf(b, "%s[%d]:{", label, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := e.encode(b, rv.Index(i)); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func (e *compositeEncoder) encodeMap(b *strings.Builder, rv reflect.Value) error {
	type pair struct{ key, value string }

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		var kb, vb strings.Builder
		if err := e.encode(&kb, iter.Key()); err != nil {
			return err
		}
		if err := e.encode(&vb, iter.Value()); err != nil {
			return err
		}
		pairs = append(pairs, pair{key: kb.String(), value: vb.String()})
	}
	// distinct keys may encode alike, e.g. pointers to equal structs
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	fmt.Fprintf(b, "map[%d]:{", len(pairs))
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	b.WriteByte('}')
	return nil
}

func (e *compositeEncoder) encodeStruct(b *strings.Builder, rv reflect.Value) error {
	rt := rv.Type()
	b.WriteString(rt.String())
	b.WriteByte('{')
	for i := 0; i < rv.NumField(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(rt.Field(i).Name)
		b.WriteByte(':')
		if err := e.encode(b, rv.Field(i)); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}
