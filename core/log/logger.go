// Package log provides the structured logging facade for cleanlog.
//
// Every call takes a context.Context carrying the ambient scope stack and an
// optional properties object. The properties are flattened into a scope frame
// that lives for the duration of the call, merged with all frames active in
// the context, and written as one JSON record. Logging never fails the
// caller: records that cannot be produced are dropped and counted.
package log

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/cleanlog/config"
	"github.com/ebogdum/cleanlog/core/log/flatten"
	"github.com/ebogdum/cleanlog/core/log/record"
	"github.com/ebogdum/cleanlog/core/log/scope"
	"github.com/ebogdum/cleanlog/core/log/sink"
	"github.com/ebogdum/cleanlog/core/log/value"
	"github.com/ebogdum/cleanlog/metrics"
)

// Logger emits structured records. A nil *Logger is valid and discards
// everything.
type Logger struct {
	base      *record.Core
	core      zapcore.Core
	fields    []zapcore.Field
	level     zap.AtomicLevel
	overrides overrides
	name      string
	clock     zapcore.Clock
	closers   []func()
}

// New builds a Logger from configuration, opening the configured outputs.
func New(cfg config.LogConfig) (*Logger, error) {
	lvl, err := record.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	mode, err := record.ParseRedactionMode(cfg.Redaction.Mode)
	if err != nil {
		return nil, err
	}

	out, closeOut, err := sink.Open(cfg.Outputs...)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLevel(lvl),
		WithRedactor(record.NewRedactor(mode, cfg.Redaction.Keys)),
		WithFields(enrichment(cfg.Environment)...),
	}
	for _, o := range cfg.Overrides {
		ovLevel, err := record.ParseLevel(o.Level)
		if err != nil {
			closeOut()
			return nil, err
		}
		opts = append(opts, WithOverride(o.Prefix, ovLevel))
	}

	closers := []func(){closeOut}
	if cfg.ErrorOutput != "" {
		errOut, closeErr, err := sink.Open(cfg.ErrorOutput)
		if err != nil {
			closeOut()
			return nil, err
		}
		closers = append(closers, closeErr)
		opts = append(opts, WithErrorOutput(errOut, cfg.ErrorRateLimit))
	}

	l := NewLogger(out, opts...)
	l.closers = closers
	return l, nil
}

// enrichment returns the process-wide framework properties. ThreadId is not
// enriched: goroutines have no stable identity.
func enrichment(environment string) []zapcore.Field {
	var fields []zapcore.Field
	if environment != "" {
		fields = append(fields, zap.String(record.EnvironmentName, environment))
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		fields = append(fields, zap.String(record.MachineName, host))
	}
	return fields
}

// NewLogger returns a Logger writing to out. The default minimum level is
// Information.
func NewLogger(out zapcore.WriteSyncer, opts ...Option) *Logger {
	s := settings{level: record.Information, clock: zapcore.DefaultClock}
	for _, opt := range opts {
		opt(&s)
	}

	level := zap.NewAtomicLevelAt(s.level.Zap())
	enc := record.NewEncoder(&record.Formatter{Redactor: s.redactor})

	l := &Logger{
		base:      record.NewCore(enc, out, level, s.coreOpts...),
		fields:    s.fields,
		level:     level,
		overrides: s.overrides.sorted(),
		clock:     s.clock,
	}
	l.rebuild()
	return l
}

// rebuild derives the effective core for the logger's name.
func (l *Logger) rebuild() {
	var enab zapcore.LevelEnabler = l.level
	if lvl, ok := l.overrides.match(l.name); ok {
		enab = lvl.Zap()
	}
	l.core = l.base.WithLevel(enab).With(l.fields)
}

// Named returns a child logger whose records carry SourceContext name,
// joined to the parent's name with a dot.
func (l *Logger) Named(name string) *Logger {
	if l == nil || name == "" {
		return l
	}
	child := *l
	if child.name == "" {
		child.name = name
	} else {
		child.name = child.name + "." + name
	}
	child.closers = nil
	child.rebuild()
	return &child
}

// Name returns the logger's SourceContext.
func (l *Logger) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Debug logs at Debug level.
func (l *Logger) Debug(ctx context.Context, msg string, props any) {
	l.Log(ctx, record.Debug, msg, props)
}

// Info logs at Information level.
func (l *Logger) Info(ctx context.Context, msg string, props any) {
	l.Log(ctx, record.Information, msg, props)
}

// Warn logs at Warning level.
func (l *Logger) Warn(ctx context.Context, msg string, props any) {
	l.Log(ctx, record.Warning, msg, props)
}

// Error logs at Error level.
func (l *Logger) Error(ctx context.Context, msg string, props any) {
	l.Log(ctx, record.Error, msg, props)
}

// Log emits one record at lvl. A non-nil props is flattened into a scope
// frame that is active only for this call and takes precedence over the
// frames in ctx. Fatal records are written like any other; Log never exits
// the process.
func (l *Logger) Log(ctx context.Context, lvl record.Level, msg string, props any) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordsDroppedTotal.WithLabelValues(record.DropPanic).Inc()
		}
	}()

	ent := zapcore.Entry{
		LoggerName: l.name,
		Time:       l.clock.Now(),
		Level:      lvl.Zap(),
		Message:    msg,
	}
	ce := l.core.Check(ent, nil)
	if ce == nil {
		return
	}

	stack := scope.FromContext(ctx)
	if props == nil {
		ce.Write(fields(stack.Merged())...)
		return
	}

	frame, ok := flattenProps(props)
	if !ok {
		// Emit without the call's properties rather than lose the record
		ce.Write(fields(stack.Merged())...)
		return
	}

	call := stack.Child()
	h := call.Push(frame)
	defer h.Release()
	ce.Write(fields(call.Merged())...)
}

// AddContext flattens obj into a frame that stays active in the returned
// context, and contexts derived from it, until the handle is released. The
// frame is never visible through ctx itself or through siblings sharing ctx. A nil logger or obj, or a
// failure while building the frame, yields ctx unchanged and a nil handle,
// whose Release is a no-op.
func (l *Logger) AddContext(ctx context.Context, obj any) (context.Context, *scope.Handle) {
	return l.addContext(ctx, obj, false)
}

// AddFlatContext is like AddContext, but nested objects in obj are merged
// into records as dot-joined keys, so that a later scope can override a
// single nested value.
func (l *Logger) AddFlatContext(ctx context.Context, obj any) (context.Context, *scope.Handle) {
	return l.addContext(ctx, obj, true)
}

func (l *Logger) addContext(ctx context.Context, obj any, dotted bool) (outCtx context.Context, h *scope.Handle) {
	if ctx == nil {
		ctx = context.Background()
	}
	if l == nil || obj == nil {
		return ctx, nil
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.ScopeSetupFailuresTotal.Inc()
			outCtx, h = ctx, nil
		}
	}()

	props := flatten.Flatten(obj)
	// The frame goes on a child of ctx's stack, so goroutines sharing ctx
	// never see it.
	child := scope.FromContext(ctx).Child()
	if dotted {
		h = child.PushDotted(props)
	} else {
		h = child.Push(props)
	}
	return scope.WithStack(ctx, child), h
}

// flattenProps flattens per-call properties, reporting false if that panicked.
func flattenProps(props any) (obj *value.Object, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ScopeSetupFailuresTotal.Inc()
			obj, ok = nil, false
		}
	}()
	return flatten.Flatten(props), true
}

func fields(props *value.Object) []zapcore.Field {
	out := make([]zapcore.Field, 0, props.Len())
	props.Range(func(k string, v value.Value) bool {
		out = append(out, zap.Reflect(k, v))
		return true
	})
	return out
}

// Enabled reports whether records at lvl would be written.
func (l *Logger) Enabled(lvl record.Level) bool {
	return l != nil && l.core.Enabled(lvl.Zap())
}

// SetLevel changes the minimum level of l and every logger derived from
// the same root. Overrides are unaffected.
func (l *Logger) SetLevel(lvl record.Level) {
	if l == nil {
		return
	}
	l.level.SetLevel(lvl.Zap())
}

// Level returns the current minimum level.
func (l *Logger) Level() record.Level {
	if l == nil {
		return record.Fatal
	}
	return record.FromZap(l.level.Level())
}

// Zap returns a *zap.Logger writing through the same pipeline, for code
// that expects zap. Ambient scopes are not applied to its records.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return zap.New(l.core, zap.WithClock(l.clock)).Named(l.name)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.core.Sync()
}

// Close flushes and closes the outputs opened by New.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	err := l.Sync()
	for _, closeFn := range l.closers {
		closeFn()
	}
	l.closers = nil
	if err != nil && isIgnorableSyncError(err) {
		return nil
	}
	return err
}

// isIgnorableSyncError reports errors returned when syncing terminals and
// pipes, which do not support fsync.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
