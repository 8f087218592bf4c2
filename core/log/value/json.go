package value

import (
	"fmt"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var parsers fastjson.ParserPool

// ParseJSON decodes data into a Value. Object key order is preserved.
// Integers that fit int64 become Int, larger unsigned ones Uint, anything
// else numeric becomes Float.
func ParseJSON(data []byte) (Value, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	fv, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON value: %w", err)
	}
	return fromFastJSON(fv), nil
}

// ParseObject decodes data and requires the top-level value to be an object.
func ParseObject(data []byte) (*Object, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

func fromFastJSON(v *fastjson.Value) Value {
	switch v.Type() {
	case fastjson.TypeNull:
		return Null{}
	case fastjson.TypeTrue:
		return Bool(true)
	case fastjson.TypeFalse:
		return Bool(false)
	case fastjson.TypeString:
		return String(v.GetStringBytes())
	case fastjson.TypeNumber:
		if i, err := v.Int64(); err == nil {
			return Int(i)
		}
		if u, err := v.Uint64(); err == nil {
			return Uint(u)
		}
		f, _ := v.Float64()
		return Float(f)
	case fastjson.TypeArray:
		items, _ := v.Array()
		arr := make(Array, len(items))
		for i, item := range items {
			arr[i] = fromFastJSON(item)
		}
		return arr
	case fastjson.TypeObject:
		fo, _ := v.Object()
		obj := NewObject()
		fo.Visit(func(key []byte, item *fastjson.Value) {
			obj.Set(string(key), fromFastJSON(item))
		})
		return obj
	default:
		return Null{}
	}
}

// Field converts a key and Value into a zap field that encodes it natively.
func Field(key string, v Value) zapcore.Field {
	switch val := v.(type) {
	case String:
		return zap.String(key, string(val))
	case Int:
		return zap.Int64(key, int64(val))
	case Uint:
		return zap.Uint64(key, uint64(val))
	case Float:
		return zap.Float64(key, float64(val))
	case Bool:
		return zap.Bool(key, bool(val))
	case Array:
		return zap.Array(key, val)
	case *Object:
		if val == nil {
			return zap.Reflect(key, nil)
		}
		return zap.Object(key, val)
	default:
		return zap.Reflect(key, nil)
	}
}

// MarshalLogObject writes the entries of o in insertion order.
func (o *Object) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	o.Range(func(k string, v Value) bool {
		Field(k, v).AddTo(enc)
		return true
	})
	return nil
}

// MarshalLogArray writes the elements of a in order.
func (a Array) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, elem := range a {
		switch val := elem.(type) {
		case String:
			enc.AppendString(string(val))
		case Int:
			enc.AppendInt64(int64(val))
		case Uint:
			enc.AppendUint64(uint64(val))
		case Float:
			enc.AppendFloat64(float64(val))
		case Bool:
			enc.AppendBool(bool(val))
		case Array:
			if err := enc.AppendArray(val); err != nil {
				return err
			}
		case *Object:
			if val == nil {
				if err := enc.AppendReflected(nil); err != nil {
					return err
				}
				continue
			}
			if err := enc.AppendObject(val); err != nil {
				return err
			}
		default:
			if err := enc.AppendReflected(nil); err != nil {
				return err
			}
		}
	}
	return nil
}

var marshalConfig = zapcore.EncoderConfig{SkipLineEnding: true}

// MarshalJSON encodes o as a compact JSON object in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	enc := zapcore.NewJSONEncoder(marshalConfig)
	fields := make([]zapcore.Field, 0, o.Len())
	o.Range(func(k string, v Value) bool {
		fields = append(fields, Field(k, v))
		return true
	})
	buf, err := enc.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return nil, err
	}
	defer buf.Free()
	return append([]byte(nil), buf.Bytes()...), nil
}
