package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultRedisKey     = "cleanlog"
	defaultRedisTimeout = 2 * time.Second
)

// listPusher is the part of the Redis client the sink needs.
type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// dialRedis creates the client for a redis:// output. Tests replace it.
var dialRedis = func(opt *redis.Options) listPusher {
	return redis.NewClient(opt)
}

// redisSink pushes every record line, without its trailing newline, onto a
// Redis list.
type redisSink struct {
	client  listPusher
	key     string
	timeout time.Duration
}

func newRedisSink(u *url.URL) (zap.Sink, error) {
	key := defaultRedisKey
	timeout := defaultRedisTimeout

	// key and timeout are sink options; the rest belongs to the client
	query := u.Query()
	if k := query.Get("key"); k != "" {
		key = k
	}
	if t := query.Get("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid redis sink timeout %q", t)
		}
		timeout = d
	}
	query.Del("key")
	query.Del("timeout")

	clientURL := *u
	clientURL.RawQuery = query.Encode()
	opt, err := redis.ParseURL(clientURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis sink URL: %w", err)
	}

	return &redisSink{client: dialRedis(opt), key: key, timeout: timeout}, nil
}

func (s *redisSink) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	line := string(bytes.TrimSuffix(p, []byte("\n")))
	if err := s.client.RPush(ctx, s.key, line).Err(); err != nil {
		return 0, fmt.Errorf("failed to push log record to redis list %s: %w", s.key, err)
	}
	return len(p), nil
}

func (s *redisSink) Sync() error {
	return nil
}

func (s *redisSink) Close() error {
	return s.client.Close()
}
