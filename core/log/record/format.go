// Package record renders log events as single-line JSON records.
//
// A record always starts with timestamp, level and message. Framework
// properties such as TraceId or MachineName follow at the root under their
// camelCase names, and all remaining properties are nested under
// "properties", which is omitted when empty.
package record

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/cleanlog/core/log/value"
)

// Root keys of every record.
const (
	TimestampKey  = "timestamp"
	LevelKey      = "level"
	MessageKey    = "message"
	PropertiesKey = "properties"
)

// Event is a log event ready to be formatted.
type Event struct {
	Time       time.Time
	Level      Level
	Message    string
	Properties *value.Object
}

// Formatter renders events. The zero value formats without redaction.
type Formatter struct {
	Redactor *Redactor
}

// lineEncoder writes nothing but the fields it is given, followed by a
// newline.
var lineEncoder = zapcore.NewJSONEncoder(zapcore.EncoderConfig{})

// Format renders e as one JSON object terminated by a newline.
func (f *Formatter) Format(e Event) ([]byte, error) {
	buf, err := f.encode(e)
	if err != nil {
		return nil, err
	}
	defer buf.Free()
	return append([]byte(nil), buf.Bytes()...), nil
}

func (f *Formatter) encode(e Event) (buf *buffer.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("failed to format log record: %v", r)
		}
	}()
	return lineEncoder.EncodeEntry(zapcore.Entry{}, f.fields(e))
}

func (f *Formatter) fields(e Event) []zapcore.Field {
	fields := make([]zapcore.Field, 0, 4+len(FrameworkFields))
	fields = append(fields,
		zap.String(TimestampKey, e.Time.UTC().Format(value.TimeLayout)),
		zap.String(LevelKey, e.Level.String()),
		zap.String(MessageKey, e.Message),
	)

	framework := make(map[string]value.Value)
	props := value.NewObject()
	e.Properties.Range(func(k string, v value.Value) bool {
		if IsFrameworkField(k) {
			framework[k] = v
			return true
		}
		props.Set(CamelCase(k), camelKeys(value.Sanitize(v)))
		return true
	})

	for _, name := range FrameworkFields {
		if v, ok := framework[name]; ok {
			fields = append(fields, value.Field(CamelCase(name), camelKeys(value.Sanitize(v))))
		}
	}

	if f != nil {
		props = f.Redactor.Redact(props)
	}
	if props.Len() > 0 {
		fields = append(fields, zap.Object(PropertiesKey, props))
	}
	return fields
}
