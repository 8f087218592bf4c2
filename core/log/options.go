package log

import (
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/cleanlog/core/log/record"
)

// Option configures a Logger built by NewLogger.
type Option func(*settings)

type settings struct {
	level     record.Level
	redactor  *record.Redactor
	fields    []zapcore.Field
	overrides overrides
	coreOpts  []record.CoreOption
	clock     zapcore.Clock
}

// WithLevel sets the initial minimum level.
func WithLevel(lvl record.Level) Option {
	return func(s *settings) { s.level = lvl }
}

// WithRedactor masks sensitive user properties.
func WithRedactor(r *record.Redactor) Option {
	return func(s *settings) { s.redactor = r }
}

// WithFields attaches properties to every record, below all scopes in
// precedence.
func WithFields(fields ...zapcore.Field) Option {
	return func(s *settings) { s.fields = append(s.fields, fields...) }
}

// WithOverride sets the minimum level for loggers named prefix or nested
// below it ("db" matches "db" and "db.pool", not "dbx"). The longest
// matching prefix wins.
func WithOverride(prefix string, lvl record.Level) Option {
	return func(s *settings) { s.overrides = append(s.overrides, override{prefix: prefix, level: lvl}) }
}

// WithErrorOutput reports dropped records to ws, at most limit per second.
func WithErrorOutput(ws zapcore.WriteSyncer, limit float64) Option {
	return func(s *settings) { s.coreOpts = append(s.coreOpts, record.WithErrorOutput(ws, limit)) }
}

// WithClock sets the source of record timestamps.
func WithClock(clock zapcore.Clock) Option {
	return func(s *settings) { s.clock = clock }
}

type override struct {
	prefix string
	level  record.Level
}

type overrides []override

// sorted returns a copy ordered longest prefix first.
func (o overrides) sorted() overrides {
	out := append(overrides(nil), o...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].prefix) > len(out[j].prefix) })
	return out
}

func (o overrides) match(name string) (record.Level, bool) {
	for _, ov := range o {
		if name == ov.prefix || strings.HasPrefix(name, ov.prefix+".") {
			return ov.level, true
		}
	}
	return 0, false
}
