package value

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/ebogdum/cleanlog/metrics"
)

// TimeLayout renders instants in UTC with 100ns resolution.
const TimeLayout = "2006-01-02T15:04:05.0000000Z"

var (
	timeType          = reflect.TypeOf(time.Time{})
	durationType      = reflect.TypeOf(time.Duration(0))
	urlType           = reflect.TypeOf(url.URL{})
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
	stringerType      = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	reflectTypeType   = reflect.TypeOf((*reflect.Type)(nil)).Elem()
	reflectValueType  = reflect.TypeOf(reflect.Value{})
)

// Identity is the reference identity of a pointer, map or slice.
type Identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// IdentityOf returns the reference identity of rv. Values that are not
// non-nil pointers, maps or slices have no identity.
func IdentityOf(rv reflect.Value) (Identity, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return Identity{}, false
		}
		return Identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.IsNil() {
			return Identity{}, false
		}
		return Identity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true
	default:
		return Identity{}, false
	}
}

// IsScalar reports whether t is rendered as a single scalar: booleans,
// numbers, strings, instants, durations, URLs, text-marshalable types such as
// UUIDs and IPs, integer enums with a String method, and pointers to any of
// these.
func IsScalar(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType, durationType, urlType:
		return true
	}
	if t.Implements(textMarshalerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

// IsOpaque reports whether t can never be meaningfully serialized and is
// always rendered by its type or string form: functions, channels, unsafe
// pointers and reflection handles.
func IsOpaque(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t == reflectValueType || t.Implements(reflectTypeType) {
		return true
	}
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

// Sanitize converts v into a Value. It never panics: a value that cannot be
// converted degrades to its string form. Sanitize is idempotent on Values.
func Sanitize(v any) Value {
	s := sanitizer{visited: make(map[Identity]struct{})}
	return s.convert(v)
}

type sanitizer struct {
	visited map[Identity]struct{}
}

func (s *sanitizer) convert(v any) (out Value) {
	defer func() {
		if r := recover(); r != nil {
			out = Fallback(v, "panic")
		}
	}()

	switch val := v.(type) {
	case nil:
		return Null{}
	case *Object:
		if val == nil {
			return Null{}
		}
		return val
	case Value:
		return val
	case string:
		return String(val)
	case bool:
		return Bool(val)
	case int:
		return Int(val)
	case int8:
		return Int(val)
	case int16:
		return Int(val)
	case int32:
		return Int(val)
	case int64:
		return Int(val)
	case uint8:
		return Int(val)
	case uint16:
		return Int(val)
	case uint32:
		return Int(val)
	case uint:
		return fromUint(uint64(val))
	case uint64:
		return fromUint(val)
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case time.Time:
		return String(val.UTC().Format(TimeLayout))
	case time.Duration:
		return String(val.String())
	case url.URL:
		return String(val.String())
	case json.Number:
		return fromNumber(val)
	case json.RawMessage:
		parsed, err := ParseJSON(val)
		if err != nil {
			return Fallback(string(val), "json")
		}
		return parsed
	case []byte:
		if val == nil {
			return Null{}
		}
		return String(base64.StdEncoding.EncodeToString(val))
	case reflect.Type:
		return String(val.String())
	case reflect.Value:
		return String(fmt.Sprint(val))
	}

	rv := reflect.ValueOf(v)
	t := rv.Type()

	if isNil(rv) {
		return Null{}
	}
	if IsOpaque(t) {
		return String(fmt.Sprintf("%T", v))
	}
	if t.Implements(errorType) {
		return String(v.(error).Error())
	}
	if t.Kind() == reflect.Pointer && t.Elem().Implements(textMarshalerType) {
		// pointees with their own layout, such as time.Time, keep it
		return s.enter(rv, func() Value { return s.convert(rv.Elem().Interface()) })
	}
	if t.Implements(textMarshalerType) {
		text, err := v.(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return Fallback(v, "text")
		}
		return String(text)
	}
	if t.Kind() == reflect.Pointer {
		return s.enter(rv, func() Value { return s.convert(rv.Elem().Interface()) })
	}
	if isInteger(t.Kind()) && t.Implements(stringerType) {
		return String(v.(fmt.Stringer).String())
	}

	switch t.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.String:
		return String(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return fromFloat(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		return String(strconv.FormatComplex(rv.Complex(), 'g', -1, 128))
	case reflect.Map:
		return s.enter(rv, func() Value { return s.convertMap(rv) })
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return String(base64.StdEncoding.EncodeToString(rv.Bytes()))
		}
		return s.enter(rv, func() Value { return s.convertList(rv) })
	case reflect.Array:
		return s.convertList(rv)
	case reflect.Interface:
		return s.convert(rv.Elem().Interface())
	}

	return s.passThrough(v)
}

// enter runs fn with rv marked as visited. Re-entering a value already on
// the current path yields an empty object.
func (s *sanitizer) enter(rv reflect.Value, fn func() Value) Value {
	id, ok := IdentityOf(rv)
	if !ok {
		return fn()
	}
	if _, seen := s.visited[id]; seen {
		return NewObject()
	}
	s.visited[id] = struct{}{}
	defer delete(s.visited, id)
	return fn()
}

func (s *sanitizer) convertMap(rv reflect.Value) Value {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: KeyString(iter.Key()), val: iter.Value()})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	obj := NewObject()
	for _, e := range entries {
		obj.Set(e.key, s.convert(e.val.Interface()))
	}
	return obj
}

func (s *sanitizer) convertList(rv reflect.Value) Value {
	arr := make(Array, rv.Len())
	for i := range arr {
		arr[i] = s.convert(rv.Index(i).Interface())
	}
	return arr
}

// passThrough hands v to encoding/json and reads the result back into a
// Value, falling back to the string form when v cannot be marshaled.
func (s *sanitizer) passThrough(v any) Value {
	data, err := json.Marshal(v)
	if err != nil {
		return Fallback(v, "marshal")
	}
	parsed, err := ParseJSON(data)
	if err != nil {
		return Fallback(v, "marshal")
	}
	return parsed
}

// KeyString converts a map key to its string form. Nil keys become "null".
func KeyString(k reflect.Value) string {
	if !k.IsValid() || isNil(k) {
		return "null"
	}
	if k.Kind() == reflect.Interface {
		return KeyString(k.Elem())
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

// Fallback renders v with its default string conversion and counts the
// degradation under kind.
func Fallback(v any, kind string) (out Value) {
	metrics.SanitizeFallbacksTotal.WithLabelValues(kind).Inc()
	defer func() {
		if r := recover(); r != nil {
			out = String(fmt.Sprintf("%T", v))
		}
	}()
	return String(fmt.Sprintf("%v", v))
}

func fromUint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(u)
	}
	return Uint(u)
}

func fromFloat(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return String(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Float(f)
}

func fromNumber(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int(i)
	}
	if f, err := n.Float64(); err == nil {
		return fromFloat(f)
	}
	return String(n.String())
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
