package sink

import (
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// zstdSink appends zstd frames to a file. Each Sync ends the current block
// so everything written so far can be decoded.
type zstdSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *zstd.Encoder
}

func newZstdSink(u *url.URL) (zap.Sink, error) {
	path, err := filePath(u)
	if err != nil {
		return nil, err
	}

	level := zstd.SpeedDefault
	for key, vals := range u.Query() {
		if key != "level" || len(vals) != 1 {
			return nil, fmt.Errorf("unsupported zstd sink option %q", key)
		}
		ok, l := zstd.EncoderLevelFromString(vals[0])
		if !ok {
			return nil, fmt.Errorf("unknown zstd level %q", vals[0])
		}
		level = l
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd log file %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(level))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &zstdSink{file: file, enc: enc}, nil
}

func (s *zstdSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Write(p)
}

func (s *zstdSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Flush(); err != nil {
		return fmt.Errorf("failed to flush zstd encoder: %w", err)
	}
	return s.file.Sync()
}

func (s *zstdSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to close zstd encoder: %w", err)
	}
	return s.file.Close()
}
