package record

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level is the severity of a log record.
type Level int8

const (
	Debug Level = iota
	Information
	Warning
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "Debug"
	case Information:
		return "Information"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case Fatal:
		return "Fatal"
	default:
		return fmt.Sprintf("Level(%d)", int8(l))
	}
}

// Zap returns the zap level l is emitted at.
func (l Level) Zap() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Information:
		return zapcore.InfoLevel
	case Warning:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

// FromZap maps a zap level onto a record level. DPanic, Panic and Fatal all
// become Fatal.
func FromZap(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return Debug
	case l == zapcore.InfoLevel:
		return Information
	case l == zapcore.WarnLevel:
		return Warning
	case l == zapcore.ErrorLevel:
		return Error
	default:
		return Fatal
	}
}

// ParseLevel parses a level name. Both record names ("Information") and
// zap names ("info") are accepted, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "information", "info":
		return Information, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	case "fatal":
		return Fatal, nil
	default:
		return Information, fmt.Errorf("unknown log level: %q", s)
	}
}
