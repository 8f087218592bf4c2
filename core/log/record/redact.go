package record

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ebogdum/cleanlog/core/log/value"
)

// RedactionMode controls how values of sensitive properties are written.
type RedactionMode int

const (
	// RedactProduction replaces sensitive values with a short hash
	RedactProduction RedactionMode = iota
	// RedactDevelopment shows truncated sensitive values for debugging
	RedactDevelopment
	// RedactDebug shows sensitive values unchanged (only for development)
	RedactDebug
	// RedactOff disables redaction entirely
	RedactOff
)

func (m RedactionMode) String() string {
	switch m {
	case RedactProduction:
		return "production"
	case RedactDevelopment:
		return "development"
	case RedactDebug:
		return "debug"
	case RedactOff:
		return "off"
	default:
		return fmt.Sprintf("RedactionMode(%d)", int(m))
	}
}

// ParseRedactionMode parses a mode name. An empty name selects production.
func ParseRedactionMode(s string) (RedactionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "production":
		return RedactProduction, nil
	case "development":
		return RedactDevelopment, nil
	case "debug":
		return RedactDebug, nil
	case "off", "none":
		return RedactOff, nil
	default:
		return RedactProduction, fmt.Errorf("unknown redaction mode: %q", s)
	}
}

// Redactor masks the values of sensitive user properties.
type Redactor struct {
	mode RedactionMode
	keys map[string]struct{}
}

// NewRedactor returns a redactor for the given property names. Names are
// matched case-insensitively at any depth.
func NewRedactor(mode RedactionMode, keys []string) *Redactor {
	r := &Redactor{mode: mode, keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			r.keys[strings.ToLower(k)] = struct{}{}
		}
	}
	return r
}

// Redact returns a copy of obj with sensitive values masked. obj is not
// modified.
func (r *Redactor) Redact(obj *value.Object) *value.Object {
	if r == nil || r.mode == RedactOff || r.mode == RedactDebug || len(r.keys) == 0 {
		return obj
	}
	out, _ := r.redact(obj).(*value.Object)
	return out
}

func (r *Redactor) redact(v value.Value) value.Value {
	switch val := v.(type) {
	case *value.Object:
		out := value.NewObject()
		val.Range(func(k string, elem value.Value) bool {
			if _, sensitive := r.keys[strings.ToLower(k)]; sensitive {
				out.Set(k, r.mask(elem))
			} else {
				out.Set(k, r.redact(elem))
			}
			return true
		})
		return out
	case value.Array:
		out := make(value.Array, len(val))
		for i, elem := range val {
			out[i] = r.redact(elem)
		}
		return out
	default:
		return v
	}
}

func (r *Redactor) mask(v value.Value) value.Value {
	text, ok := plainText(v)
	if !ok {
		return v
	}

	switch r.mode {
	case RedactDevelopment:
		// Show truncated value for debugging
		runes := []rune(text)
		if len(runes) <= 20 {
			return value.String(text)
		}
		return value.String(string(runes[:10]) + "..." + string(runes[len(runes)-7:]))
	default:
		hash := sha256.Sum256([]byte(text))
		return value.String(fmt.Sprintf("hash:%x", hash[:8])) // Show first 8 bytes of hash
	}
}

// plainText returns the text a masked value is derived from. Null has
// nothing to hide and is left alone.
func plainText(v value.Value) (string, bool) {
	switch val := v.(type) {
	case nil, value.Null:
		return "", false
	case value.String:
		return string(val), true
	case value.Int, value.Uint, value.Float, value.Bool:
		return fmt.Sprint(value.ToAny(val)), true
	default:
		data, err := json.Marshal(value.ToAny(val))
		if err != nil {
			return fmt.Sprint(value.ToAny(val)), true
		}
		return string(data), true
	}
}
