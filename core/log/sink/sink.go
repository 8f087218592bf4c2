// Package sink opens the outputs log records are written to.
//
// Outputs are zap sink URLs. Besides zap's built-in stdout, stderr and file
// outputs, two schemes are registered:
//
//	zstd:///var/log/app.jsonl.zst?level=better   zstd-compressed JSON lines file
//	redis://:pass@host:6379/0?key=logs           each record RPUSHed onto a Redis list
package sink

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/cleanlog/internal/pathutil"
)

const (
	SchemeZstd  = "zstd"
	SchemeRedis = "redis"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register installs the zstd and redis schemes in zap's sink registry. It is
// safe to call repeatedly.
func Register() error {
	registerOnce.Do(func() {
		if err := zap.RegisterSink(SchemeZstd, newZstdSink); err != nil {
			registerErr = fmt.Errorf("failed to register %s sink: %w", SchemeZstd, err)
			return
		}
		if err := zap.RegisterSink(SchemeRedis, newRedisSink); err != nil {
			registerErr = fmt.Errorf("failed to register %s sink: %w", SchemeRedis, err)
		}
	})
	return registerErr
}

// Open opens all outputs and combines them into one locked WriteSyncer. The
// returned function closes every opened output.
func Open(outputs ...string) (zapcore.WriteSyncer, func(), error) {
	if len(outputs) == 0 {
		return nil, nil, fmt.Errorf("at least one log output is required")
	}
	if err := Register(); err != nil {
		return nil, nil, err
	}

	resolved := make([]string, 0, len(outputs))
	for _, out := range outputs {
		r, err := resolve(strings.TrimSpace(out))
		if err != nil {
			return nil, nil, err
		}
		resolved = append(resolved, r)
	}

	ws, closeAll, err := zap.Open(resolved...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log outputs: %w", err)
	}
	return ws, closeAll, nil
}

// resolve validates file paths before they reach zap.
func resolve(out string) (string, error) {
	switch out {
	case "stdout", "stderr":
		return out, nil
	}

	u, err := url.Parse(out)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path, possibly with a Windows drive letter
		path, err := pathutil.ValidateLogPath(out)
		if err != nil {
			return "", fmt.Errorf("invalid log output %q: %w", out, err)
		}
		return path, nil
	}

	if u.Scheme == "file" {
		if _, err := pathutil.ValidateLogPath(u.Path); err != nil {
			return "", fmt.Errorf("invalid log output %q: %w", out, err)
		}
	}
	return out, nil
}

// filePath extracts and validates the file path of a zstd:// URL.
func filePath(u *url.URL) (string, error) {
	if u.User != nil {
		return "", fmt.Errorf("user and password not allowed with %s URLs: got %v", u.Scheme, u)
	}
	if u.Fragment != "" {
		return "", fmt.Errorf("fragments not allowed with %s URLs: got %v", u.Scheme, u)
	}
	if hn := u.Hostname(); hn != "" && hn != "localhost" {
		return "", fmt.Errorf("%s URLs must be local, got host %q", u.Scheme, hn)
	}

	path := u.Path
	if u.Opaque != "" {
		path = u.Opaque
	}
	return pathutil.ValidateLogPath(path)
}
