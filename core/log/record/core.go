package record

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/ebogdum/cleanlog/core/log/value"
	"github.com/ebogdum/cleanlog/metrics"
)

// Reasons a record is dropped, as reported in metrics.
const (
	DropFormat = "format"
	DropWrite  = "write"
	DropPanic  = "panic"
)

// Core is a fail-open zapcore.Core. A record that cannot be encoded or
// written is dropped and counted; Write never returns an error and never
// panics.
type Core struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
	out zapcore.WriteSyncer

	errOut  zapcore.WriteSyncer
	limiter *rate.Limiter
}

var _ zapcore.Core = (*Core)(nil)

// CoreOption configures a Core.
type CoreOption func(*Core)

// WithErrorOutput reports dropped records to ws, at most limit reports per
// second with a burst of one. Without it drops are only counted.
func WithErrorOutput(ws zapcore.WriteSyncer, limit float64) CoreOption {
	return func(c *Core) {
		if ws == nil || limit <= 0 {
			return
		}
		c.errOut = ws
		c.limiter = rate.NewLimiter(rate.Limit(limit), 1)
	}
}

// NewCore returns a Core writing records encoded by enc to out.
func NewCore(enc zapcore.Encoder, out zapcore.WriteSyncer, enab zapcore.LevelEnabler, opts ...CoreOption) *Core {
	c := &Core{LevelEnabler: enab, enc: enc, out: out}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithLevel returns a copy of c gated by enab instead.
func (c *Core) WithLevel(enab zapcore.LevelEnabler) *Core {
	clone := *c
	clone.LevelEnabler = enab
	return &clone
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.enc = c.enc.Clone()
	for _, field := range fields {
		field.AddTo(clone.enc)
	}
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.drop(DropPanic, fmt.Errorf("%v", r))
			err = nil
		}
	}()

	buf, encErr := c.enc.EncodeEntry(ent, fields)
	if encErr != nil {
		c.drop(DropFormat, encErr)
		return nil
	}
	_, writeErr := c.out.Write(buf.Bytes())
	buf.Free()
	if writeErr != nil {
		c.drop(DropWrite, writeErr)
		return nil
	}

	metrics.RecordsEmittedTotal.WithLabelValues(FromZap(ent.Level).String()).Inc()
	if ent.Level > zapcore.ErrorLevel {
		// Flush before a potential crash, like zap's own cores do.
		_ = c.Sync()
	}
	return nil
}

func (c *Core) Sync() error {
	return c.out.Sync()
}

// drop counts a dropped record and, if configured, reports it. Reporting
// failures are ignored.
func (c *Core) drop(reason string, err error) {
	metrics.RecordsDroppedTotal.WithLabelValues(reason).Inc()
	if c.errOut == nil || !c.limiter.Allow() {
		return
	}
	defer func() { _ = recover() }()
	fmt.Fprintf(c.errOut, "%s cleanlog: dropped log record (%s): %v\n",
		time.Now().UTC().Format(value.TimeLayout), reason, err)
	_ = c.errOut.Sync()
}
