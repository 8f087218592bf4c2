// Package flatten converts arbitrary Go object graphs into ordered,
// cycle-free property mappings suitable for structured log records.
//
// Nesting is preserved: a struct field holding another struct becomes a nested
// object, not a dotted key. Types can opt out of reflection by implementing
// zapcore.ObjectMarshaler, in which case their MarshalLogObject output is used.
package flatten

import (
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/cleanlog/core/log/value"
)

// TagName is the struct tag consulted for field names. `log:"-"` skips a
// field, `log:"name"` renames it.
const TagName = "log"

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Flatten returns the named fields of obj. Nil, scalar and sequence inputs
// yield an empty mapping. References already on the current traversal path
// resolve to empty mappings, so cyclic graphs terminate.
//
// Panics raised while reading a single member or map entry drop only that
// member. A panic from obj's own MarshalLogObject propagates to the caller.
func Flatten(obj any) *value.Object {
	if o, ok := obj.(*value.Object); ok {
		if o == nil {
			return value.NewObject()
		}
		return o.Clone()
	}
	f := newFlattener()
	if o, ok := f.convert(reflect.ValueOf(obj)).(*value.Object); ok {
		return o
	}
	return value.NewObject()
}

// ConvertValue converts a single property value. Scalars are sanitized,
// mappings and structs become nested objects, sequences become arrays.
func ConvertValue(v any) value.Value {
	return newFlattener().convert(reflect.ValueOf(v))
}

type flattener struct {
	visited map[value.Identity]struct{}
}

func newFlattener() *flattener {
	return &flattener{visited: make(map[value.Identity]struct{})}
}

func (f *flattener) convert(rv reflect.Value) value.Value {
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return value.Null{}
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || isNil(rv) || !rv.CanInterface() {
		return value.Null{}
	}

	v := rv.Interface()
	switch val := v.(type) {
	case value.Value:
		return val
	case zapcore.ObjectMarshaler:
		return f.enter(rv, func() value.Value { return f.marshal(val) })
	}

	t := rv.Type()
	if value.IsOpaque(t) || value.IsScalar(t) || t.Implements(errorType) {
		return value.Sanitize(v)
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return f.enter(rv, func() value.Value { return f.convert(rv.Elem()) })
	case reflect.Map:
		return f.enter(rv, func() value.Value { return f.convertMap(rv) })
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return value.Sanitize(v)
		}
		return f.enter(rv, func() value.Value { return f.convertList(rv) })
	case reflect.Array:
		return f.convertList(rv)
	case reflect.Struct:
		obj := value.NewObject()
		f.appendFields(obj, rv, false)
		return obj
	}
	return value.Sanitize(v)
}

// enter marks rv as being on the traversal path while fn runs.
func (f *flattener) enter(rv reflect.Value, fn func() value.Value) value.Value {
	id, ok := value.IdentityOf(rv)
	if !ok {
		return fn()
	}
	if _, seen := f.visited[id]; seen {
		return value.NewObject()
	}
	f.visited[id] = struct{}{}
	defer delete(f.visited, id)
	return fn()
}

// safeConvert converts rv, reporting false if conversion panicked.
func (f *flattener) safeConvert(rv reflect.Value) (out value.Value, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
		}
	}()
	return f.convert(rv), true
}

func (f *flattener) marshal(m zapcore.ObjectMarshaler) value.Value {
	enc := newEncoder(f)
	// A failing marshaler keeps whatever it managed to add.
	_ = m.MarshalLogObject(enc)
	return enc.root
}

func (f *flattener) convertMap(rv reflect.Value) value.Value {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: value.KeyString(iter.Key()), val: iter.Value()})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	obj := value.NewObject()
	for _, e := range entries {
		if v, ok := f.safeConvert(e.val); ok {
			obj.Set(e.key, v)
		}
	}
	return obj
}

func (f *flattener) convertList(rv reflect.Value) value.Value {
	arr := make(value.Array, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, ok := f.safeConvert(rv.Index(i))
		if !ok {
			v = value.Null{}
		}
		arr = append(arr, v)
	}
	return arr
}

// appendFields adds the exported fields of the struct rv to obj. Fields of
// embedded structs are promoted; promoted fields never replace a field
// declared on an enclosing struct.
func (f *flattener) appendFields(obj *value.Object, rv reflect.Value, promoted bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, tagged, skip := fieldName(sf)
		if skip {
			continue
		}

		if sf.Anonymous && !tagged && isPromotable(sf.Type) {
			fv := rv.Field(i)
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.CanInterface() {
				f.appendFields(obj, fv, true)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if promoted && obj.Has(name) {
			continue
		}
		if v, ok := f.safeConvert(rv.Field(i)); ok {
			obj.Set(name, v)
		}
	}
}

func fieldName(sf reflect.StructField) (name string, tagged, skip bool) {
	tag, ok := sf.Tag.Lookup(TagName)
	if !ok {
		return sf.Name, false, false
	}
	name, _, _ = strings.Cut(tag, ",")
	if name == "-" {
		return "", false, true
	}
	if name == "" {
		return sf.Name, false, false
	}
	return name, true, false
}

// isPromotable reports whether an embedded field of type t contributes its
// own fields rather than appearing as a single named field.
func isPromotable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || value.IsScalar(t) {
		return false
	}
	return !t.Implements(errorType) && !reflect.PointerTo(t).Implements(errorType)
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
