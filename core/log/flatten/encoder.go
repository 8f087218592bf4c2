package flatten

import (
	"encoding/base64"
	"reflect"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/cleanlog/core/log/value"
)

// Encoder is a zapcore.ObjectEncoder that collects fields into an ordered
// value.Object. Reflected values and nested marshalers are flattened with
// the same rules as Flatten.
type Encoder struct {
	root *value.Object
	cur  *value.Object
	ns   []string

	// f is shared while flattening a single graph; nil means each added
	// field starts a fresh traversal.
	f *flattener
}

var _ zapcore.ObjectEncoder = (*Encoder)(nil)

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return newEncoder(nil)
}

func newEncoder(f *flattener) *Encoder {
	root := value.NewObject()
	return &Encoder{root: root, cur: root, f: f}
}

// Object returns the collected fields. The result is owned by the encoder.
func (e *Encoder) Object() *value.Object {
	return e.root
}

// Clone returns an independent copy of the encoder, including any open
// namespaces.
func (e *Encoder) Clone() *Encoder {
	c := &Encoder{root: e.root.Clone(), ns: append([]string(nil), e.ns...), f: e.f}
	c.cur = c.root
	for _, key := range c.ns {
		next, ok := c.cur.Get(key)
		nested, isObj := next.(*value.Object)
		if !ok || !isObj {
			nested = value.NewObject()
			c.cur.Set(key, nested)
		}
		c.cur = nested
	}
	return c
}

func (e *Encoder) flattener() *flattener {
	if e.f != nil {
		return e.f
	}
	return newFlattener()
}

func (e *Encoder) AddArray(key string, m zapcore.ArrayMarshaler) error {
	arr := &arrayEncoder{f: e.flattener()}
	err := m.MarshalLogArray(arr)
	e.cur.Set(key, arr.elems)
	return err
}

func (e *Encoder) AddObject(key string, m zapcore.ObjectMarshaler) error {
	if o, ok := m.(*value.Object); ok {
		e.cur.Set(key, o.Clone())
		return nil
	}
	f := e.flattener()
	var err error
	v := f.enter(reflect.ValueOf(m), func() value.Value {
		nested := newEncoder(f)
		err = m.MarshalLogObject(nested)
		return nested.root
	})
	e.cur.Set(key, v)
	return err
}

func (e *Encoder) AddBinary(key string, b []byte) {
	e.cur.Set(key, value.String(base64.StdEncoding.EncodeToString(b)))
}

func (e *Encoder) AddByteString(key string, b []byte) {
	e.cur.Set(key, value.String(b))
}

func (e *Encoder) AddBool(key string, b bool)             { e.cur.Set(key, value.Bool(b)) }
func (e *Encoder) AddComplex128(key string, c complex128) { e.cur.Set(key, value.Sanitize(c)) }
func (e *Encoder) AddComplex64(key string, c complex64)   { e.cur.Set(key, value.Sanitize(c)) }
func (e *Encoder) AddDuration(key string, d time.Duration) {
	e.cur.Set(key, value.String(d.String()))
}
func (e *Encoder) AddFloat64(key string, f float64) { e.cur.Set(key, value.Sanitize(f)) }
func (e *Encoder) AddFloat32(key string, f float32) { e.cur.Set(key, value.Sanitize(f)) }
func (e *Encoder) AddInt(key string, i int)         { e.cur.Set(key, value.Int(i)) }
func (e *Encoder) AddInt64(key string, i int64)     { e.cur.Set(key, value.Int(i)) }
func (e *Encoder) AddInt32(key string, i int32)     { e.cur.Set(key, value.Int(i)) }
func (e *Encoder) AddInt16(key string, i int16)     { e.cur.Set(key, value.Int(i)) }
func (e *Encoder) AddInt8(key string, i int8)       { e.cur.Set(key, value.Int(i)) }
func (e *Encoder) AddString(key, s string)          { e.cur.Set(key, value.String(s)) }
func (e *Encoder) AddTime(key string, t time.Time)  { e.cur.Set(key, value.Sanitize(t)) }
func (e *Encoder) AddUint(key string, u uint)       { e.cur.Set(key, value.Sanitize(u)) }
func (e *Encoder) AddUint64(key string, u uint64)   { e.cur.Set(key, value.Sanitize(u)) }
func (e *Encoder) AddUint32(key string, u uint32)   { e.cur.Set(key, value.Int(u)) }
func (e *Encoder) AddUint16(key string, u uint16)   { e.cur.Set(key, value.Int(u)) }
func (e *Encoder) AddUint8(key string, u uint8)     { e.cur.Set(key, value.Int(u)) }
func (e *Encoder) AddUintptr(key string, u uintptr) { e.cur.Set(key, value.Sanitize(uint64(u))) }

func (e *Encoder) AddReflected(key string, obj interface{}) error {
	e.cur.Set(key, e.flattener().convert(reflect.ValueOf(obj)))
	return nil
}

func (e *Encoder) OpenNamespace(key string) {
	nested := value.NewObject()
	e.cur.Set(key, nested)
	e.cur = nested
	e.ns = append(e.ns, key)
}

type arrayEncoder struct {
	elems value.Array
	f     *flattener
}

var _ zapcore.ArrayEncoder = (*arrayEncoder)(nil)

func (a *arrayEncoder) add(v value.Value) { a.elems = append(a.elems, v) }

func (a *arrayEncoder) AppendBool(b bool)              { a.add(value.Bool(b)) }
func (a *arrayEncoder) AppendByteString(b []byte)      { a.add(value.String(b)) }
func (a *arrayEncoder) AppendComplex128(c complex128)  { a.add(value.Sanitize(c)) }
func (a *arrayEncoder) AppendComplex64(c complex64)    { a.add(value.Sanitize(c)) }
func (a *arrayEncoder) AppendFloat64(f float64)        { a.add(value.Sanitize(f)) }
func (a *arrayEncoder) AppendFloat32(f float32)        { a.add(value.Sanitize(f)) }
func (a *arrayEncoder) AppendInt(i int)                { a.add(value.Int(i)) }
func (a *arrayEncoder) AppendInt64(i int64)            { a.add(value.Int(i)) }
func (a *arrayEncoder) AppendInt32(i int32)            { a.add(value.Int(i)) }
func (a *arrayEncoder) AppendInt16(i int16)            { a.add(value.Int(i)) }
func (a *arrayEncoder) AppendInt8(i int8)              { a.add(value.Int(i)) }
func (a *arrayEncoder) AppendString(s string)          { a.add(value.String(s)) }
func (a *arrayEncoder) AppendUint(u uint)              { a.add(value.Sanitize(u)) }
func (a *arrayEncoder) AppendUint64(u uint64)          { a.add(value.Sanitize(u)) }
func (a *arrayEncoder) AppendUint32(u uint32)          { a.add(value.Int(u)) }
func (a *arrayEncoder) AppendUint16(u uint16)          { a.add(value.Int(u)) }
func (a *arrayEncoder) AppendUint8(u uint8)            { a.add(value.Int(u)) }
func (a *arrayEncoder) AppendUintptr(u uintptr)        { a.add(value.Sanitize(uint64(u))) }
func (a *arrayEncoder) AppendDuration(d time.Duration) { a.add(value.String(d.String())) }
func (a *arrayEncoder) AppendTime(t time.Time)         { a.add(value.Sanitize(t)) }

func (a *arrayEncoder) AppendArray(m zapcore.ArrayMarshaler) error {
	nested := &arrayEncoder{f: a.f}
	err := m.MarshalLogArray(nested)
	a.add(nested.elems)
	return err
}

func (a *arrayEncoder) AppendObject(m zapcore.ObjectMarshaler) error {
	if o, ok := m.(*value.Object); ok {
		a.add(o.Clone())
		return nil
	}
	var err error
	a.add(a.f.enter(reflect.ValueOf(m), func() value.Value {
		nested := newEncoder(a.f)
		err = m.MarshalLogObject(nested)
		return nested.root
	}))
	return err
}

func (a *arrayEncoder) AppendReflected(obj interface{}) error {
	a.add(a.f.convert(reflect.ValueOf(obj)))
	return nil
}
