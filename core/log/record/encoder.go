package record

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/cleanlog/core/log/flatten"
	"github.com/ebogdum/cleanlog/core/log/value"
)

// Encoder is a zapcore.Encoder producing records in the format of
// Formatter. Context fields added through With are collected as properties;
// a zap logger name becomes SourceContext unless a property already sets it.
type Encoder struct {
	*flatten.Encoder
	formatter *Formatter
}

var _ zapcore.Encoder = (*Encoder)(nil)

// NewEncoder returns an Encoder formatting with f. A nil f formats without
// redaction.
func NewEncoder(f *Formatter) *Encoder {
	if f == nil {
		f = &Formatter{}
	}
	return &Encoder{Encoder: flatten.NewEncoder(), formatter: f}
}

func (e *Encoder) Clone() zapcore.Encoder {
	return &Encoder{Encoder: e.Encoder.Clone(), formatter: e.formatter}
}

func (e *Encoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	collector := e.Encoder.Clone()
	for _, field := range fields {
		field.AddTo(collector)
	}

	props := collector.Object()
	if ent.LoggerName != "" && !props.Has(SourceContext) {
		props.Set(SourceContext, value.String(ent.LoggerName))
	}

	return e.formatter.encode(Event{
		Time:       ent.Time,
		Level:      FromZap(ent.Level),
		Message:    ent.Message,
		Properties: props,
	})
}
