// Package value defines the JSON-safe value model used by log records and the
// sanitizer that converts arbitrary Go values into it.
package value

// Value is a sealed interface representing a JSON-representable value.
// Only Null, String, Int, Uint, Float, Bool, Array and *Object implement it.
type Value interface {
	jsonValue()
}

// Null represents a JSON null.
type Null struct{}

func (Null) jsonValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a JSON string.
type String string

func (String) jsonValue() {}

// Int represents a signed JSON integer.
type Int int64

func (Int) jsonValue() {}

// Uint represents an unsigned JSON integer that may not fit in an int64.
type Uint uint64

func (Uint) jsonValue() {}

// Float represents a finite JSON number. NaN and infinities are never stored
// as Float; Sanitize renders them as strings.
type Float float64

func (Float) jsonValue() {}

// Bool represents a JSON boolean.
type Bool bool

func (Bool) jsonValue() {}

// Array represents an ordered JSON array.
type Array []Value

func (Array) jsonValue() {}

// Object is an insertion-ordered mapping from string keys to values.
// Setting an existing key replaces its value but keeps its original position.
// The zero value is an empty object ready to use. A nil *Object behaves as an
// empty, read-only object.
type Object struct {
	keys []string
	vals map[string]Value
}

func (*Object) jsonValue() {}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set assigns v to key. A nil v is stored as Null.
func (o *Object) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes key, preserving the order of the remaining keys.
func (o *Object) Delete(key string) {
	if o == nil {
		return
	}
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Range calls fn for every entry in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.vals[k]) {
			return
		}
	}
}

// Clone returns a deep copy of o. Nested objects and arrays are copied too,
// so the clone can be mutated without affecting o.
func (o *Object) Clone() *Object {
	c := NewObject()
	o.Range(func(k string, v Value) bool {
		c.Set(k, cloneValue(v))
		return true
	})
	return c
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case *Object:
		return val.Clone()
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// ToAny converts v into plain Go values: nil, string, int64, uint64, float64,
// bool, []any and map[string]any. Key order of objects is lost.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Uint:
		return uint64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case *Object:
		out := make(map[string]any, val.Len())
		val.Range(func(k string, elem Value) bool {
			out[k] = ToAny(elem)
			return true
		})
		return out
	default:
		return nil
	}
}
