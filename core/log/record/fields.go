package record

import (
	"unicode"
	"unicode/utf8"

	"github.com/ebogdum/cleanlog/core/log/value"
)

// Framework property names. Properties with these names are written at the
// root of a record instead of under "properties".
const (
	TraceID         = "TraceId"
	SpanID          = "SpanId"
	RequestID       = "RequestId"
	ConnectionID    = "ConnectionId"
	RequestPath     = "RequestPath"
	ActionID        = "ActionId"
	ActionName      = "ActionName"
	SourceContext   = "SourceContext"
	EnvironmentName = "EnvironmentName"
	MachineName     = "MachineName"
	ThreadID        = "ThreadId"
)

// FrameworkFields lists the framework properties in output order.
var FrameworkFields = []string{
	TraceID,
	SpanID,
	RequestID,
	ConnectionID,
	RequestPath,
	ActionID,
	ActionName,
	SourceContext,
	EnvironmentName,
	MachineName,
	ThreadID,
}

var frameworkSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(FrameworkFields))
	for _, name := range FrameworkFields {
		set[name] = struct{}{}
	}
	return set
}()

// IsFrameworkField reports whether key is a framework property. The match
// is case-sensitive.
func IsFrameworkField(key string) bool {
	_, ok := frameworkSet[key]
	return ok
}

// CamelCase lowercases the first character of s if it is uppercase.
func CamelCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || !unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// camelKeys returns v with the keys of every nested object camelCased.
func camelKeys(v value.Value) value.Value {
	switch val := v.(type) {
	case *value.Object:
		out := value.NewObject()
		val.Range(func(k string, elem value.Value) bool {
			out.Set(CamelCase(k), camelKeys(elem))
			return true
		})
		return out
	case value.Array:
		out := make(value.Array, len(val))
		for i, elem := range val {
			out[i] = camelKeys(elem)
		}
		return out
	default:
		return v
	}
}
