package log

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/ebogdum/cleanlog/config"
	"github.com/ebogdum/cleanlog/core/log/record"
	"github.com/ebogdum/cleanlog/core/log/scope"
	"github.com/ebogdum/cleanlog/metrics"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time                         { return c.t }
func (c fixedClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

var testClock = fixedClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

type brokenProps struct{}

func (brokenProps) MarshalLogObject(zapcore.ObjectEncoder) error { panic("cannot describe") }

func newTestLogger(opts ...Option) (*Logger, *zaptest.Buffer) {
	buf := &zaptest.Buffer{}
	opts = append([]Option{WithClock(testClock)}, opts...)
	return NewLogger(buf, opts...), buf
}

func decode(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	return m
}

func TestInfoWithProperties(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Info(context.Background(), "Echo endpoint called", struct{ Text string }{Text: "hello"})

	assert.Equal(t, []string{
		`{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Information","message":"Echo endpoint called","properties":{"text":"hello"}}`,
	}, buf.Lines())
}

func TestBareScalarPropertiesProduceNoPropertiesKey(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Info(context.Background(), "answer", 42)
	logger.Info(context.Background(), "nothing", nil)

	assert.Equal(t, []string{
		`{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Information","message":"answer"}`,
		`{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Information","message":"nothing"}`,
	}, buf.Lines())
}

func TestNullMapKey(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Info(context.Background(), "m", map[any]any{nil: "v"})

	assert.Contains(t, buf.Lines()[0], `"properties":{"null":"v"}`)
}

func TestAddContextAppliesToLaterCalls(t *testing.T) {
	logger, buf := newTestLogger()

	ctx, h := logger.AddContext(context.Background(), map[string]any{"UserId": 123})
	require.NotNil(t, h)
	logger.Info(ctx, "x", nil)
	h.Release()
	logger.Info(ctx, "y", nil)

	lines := buf.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"properties":{"userId":123}`)
	assert.NotContains(t, lines[1], "properties")
}

func TestCallPropertiesOverrideContextAndAreReleased(t *testing.T) {
	logger, buf := newTestLogger()

	ctx, h := logger.AddContext(context.Background(), map[string]any{"Tenant": "a", "Region": "eu"})
	defer h.Release()

	logger.Warn(ctx, "first", map[string]any{"Tenant": "b"})
	logger.Warn(ctx, "second", nil)

	lines := buf.Lines()
	assert.Contains(t, lines[0], `"properties":{"region":"eu","tenant":"b"}`)
	assert.Contains(t, lines[1], `"properties":{"region":"eu","tenant":"a"}`)
	assert.Equal(t, 1, scope.FromContext(ctx).Len())
}

func TestNestedAddContextReleasedOutOfOrder(t *testing.T) {
	logger, buf := newTestLogger()

	ctx, outer := logger.AddContext(context.Background(), map[string]any{"Step": "outer", "Job": 1})
	ctx, inner := logger.AddContext(ctx, map[string]any{"Step": "inner"})

	logger.Info(ctx, "a", nil)
	outer.Release()
	logger.Info(ctx, "b", nil)
	inner.Release()
	inner.Release()
	logger.Info(ctx, "c", nil)

	lines := buf.Lines()
	assert.Contains(t, lines[0], `"properties":{"job":1,"step":"inner"}`)
	assert.Contains(t, lines[1], `"properties":{"step":"inner"}`)
	assert.NotContains(t, lines[2], "properties")
}

func TestAddFlatContext(t *testing.T) {
	logger, buf := newTestLogger()
	type service struct {
		Name    string
		Version int
	}

	ctx, h := logger.AddFlatContext(context.Background(), struct{ Service service }{Service: service{Name: "api", Version: 2}})
	defer h.Release()
	logger.Info(ctx, "m", map[string]any{"Service.Version": 3})

	assert.Contains(t, buf.Lines()[0], `"properties":{"service.Name":"api","service.Version":3}`)
}

func TestFrameworkPropertiesGoToRoot(t *testing.T) {
	logger, buf := newTestLogger()

	ctx, h := logger.AddContext(context.Background(), map[string]any{"RequestId": "r-1"})
	defer h.Release()
	logger.Info(ctx, "m", struct {
		TraceId string
		Name    string
	}{TraceId: "t-1", Name: "n"})

	assert.Equal(t,
		`{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Information","message":"m","traceId":"t-1","requestId":"r-1","properties":{"name":"n"}}`,
		buf.Lines()[0])
}

func TestFlattenFailureFallsBackToUnscopedRecord(t *testing.T) {
	logger, buf := newTestLogger()
	before := testutil.ToFloat64(metrics.ScopeSetupFailuresTotal)

	ctx, h := logger.AddContext(context.Background(), map[string]any{"Ambient": true})
	defer h.Release()
	logger.Error(ctx, "still logged", brokenProps{})

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ScopeSetupFailuresTotal))
	require.Len(t, buf.Lines(), 1)
	assert.Contains(t, buf.Lines()[0], `"message":"still logged","properties":{"ambient":true}`)
}

func TestAddContextFailureReturnsNilHandle(t *testing.T) {
	logger, _ := newTestLogger()
	before := testutil.ToFloat64(metrics.ScopeSetupFailuresTotal)
	ctx := context.Background()

	got, h := logger.AddContext(ctx, brokenProps{})

	assert.Nil(t, h)
	assert.Equal(t, ctx, got)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ScopeSetupFailuresTotal))
	assert.NotPanics(t, h.Release)
}

func TestNilLoggerAndNilContextAreSafe(t *testing.T) {
	var logger *Logger

	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "m", map[string]any{"a": 1})
		ctx, h := logger.AddContext(context.Background(), map[string]any{"a": 1})
		assert.Nil(t, h)
		assert.NotNil(t, ctx)
		h.Release()
		assert.Nil(t, logger.Named("x"))
		assert.NoError(t, logger.Sync())
	})

	logger2, buf := newTestLogger()
	ctx, h := logger2.AddContext(context.Background(), nil)
	assert.Nil(t, h)
	assert.Nil(t, scope.FromContext(ctx))

	//nolint:staticcheck // a nil context must not break logging
	logger2.Info(nil, "no context", map[string]any{"k": "v"})
	assert.Contains(t, buf.Lines()[0], `"properties":{"k":"v"}`)
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger()
	ctx := context.Background()

	logger.Debug(ctx, "hidden", nil)
	assert.Empty(t, buf.Lines())
	assert.False(t, logger.Enabled(record.Debug))

	logger.SetLevel(record.Debug)
	logger.Debug(ctx, "shown", nil)
	assert.Equal(t, record.Debug, logger.Level())
	require.Len(t, buf.Lines(), 1)
	assert.Contains(t, buf.Lines()[0], `"level":"Debug"`)
}

func TestFatalDoesNotExit(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Log(context.Background(), record.Fatal, "unrecoverable", nil)

	assert.Contains(t, buf.Lines()[0], `"level":"Fatal"`)
}

func TestNamedLoggersAndOverrides(t *testing.T) {
	logger, buf := newTestLogger(WithOverride("db", record.Warning), WithOverride("db.audit", record.Debug))
	ctx := context.Background()

	logger.Named("db").Info(ctx, "dropped", nil)
	logger.Named("db").Named("pool").Info(ctx, "dropped too", nil)
	logger.Named("db").Warn(ctx, "kept", nil)
	logger.Named("dbx").Info(ctx, "not an override match", nil)
	logger.Named("db").Named("audit").Debug(ctx, "longest prefix wins", nil)

	lines := buf.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "db", decode(t, lines[0])["sourceContext"])
	assert.Equal(t, "dbx", decode(t, lines[1])["sourceContext"])
	assert.Equal(t, "db.audit", decode(t, lines[2])["sourceContext"])
}

func TestBaseFieldsHaveLowestPrecedence(t *testing.T) {
	logger, buf := newTestLogger(WithFields(
		zap.String(record.EnvironmentName, "Test"),
		zap.String("Region", "eu"),
	))

	logger.Info(context.Background(), "m", map[string]any{"Region": "us"})

	line := decode(t, buf.Lines()[0])
	assert.Equal(t, "Test", line["environmentName"])
	assert.Equal(t, map[string]any{"region": "us"}, line["properties"])
}

func TestRedaction(t *testing.T) {
	logger, buf := newTestLogger(WithRedactor(record.NewRedactor(record.RedactProduction, []string{"password"})))

	logger.Info(context.Background(), "login", map[string]any{"User": "bob", "Password": "hunter2"})

	assert.Contains(t, buf.Lines()[0], `"properties":{"password":"hash:f52fbd32b2b3b86f","user":"bob"}`)
}

func TestZapLoggerSharesPipeline(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Named("legacy").Zap().Info("from zap", zap.Int("Attempt", 2))

	assert.Equal(t,
		`{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Information","message":"from zap","sourceContext":"legacy","properties":{"attempt":2}}`,
		buf.Lines()[0])
}

func TestConcurrentRequestsDoNotShareScopes(t *testing.T) {
	out := &lockedBuffer{}
	logger := NewLogger(out, WithClock(testClock))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, h := logger.AddContext(context.Background(), map[string]any{"Worker": i})
			defer h.Release()
			logger.Info(ctx, "work", map[string]any{"Echo": i})
		}(i)
	}
	wg.Wait()

	lines := out.lines()
	require.Len(t, lines, 20)
	for _, line := range lines {
		props := decode(t, line)["properties"].(map[string]any)
		assert.Equal(t, props["worker"], props["echo"])
	}
}

func TestSiblingGoroutinesSharingContextDoNotSeeEachOthersScopes(t *testing.T) {
	logger, buf := newTestLogger()

	req, h := logger.AddContext(context.Background(), map[string]any{"RequestId": "r-1"})
	defer h.Release()

	aPushed := make(chan struct{})
	bDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		ctx, h := logger.AddContext(req, map[string]any{"Job": "A"})
		defer h.Release()
		close(aPushed)
		<-bDone
		logger.Info(ctx, "from A", nil)
	}()

	go func() {
		defer wg.Done()
		defer close(bDone)
		<-aPushed
		logger.Info(req, "from B unscoped", nil)
		ctx, h := logger.AddContext(req, map[string]any{"Step": "B"})
		defer h.Release()
		logger.Info(ctx, "from B scoped", nil)
	}()
	wg.Wait()

	logger.Info(req, "after", nil)

	lines := buf.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t,
		`{"timestamp":"2024-01-01T00:00:00.0000000Z","level":"Information","message":"from B unscoped","requestId":"r-1"}`,
		lines[0])
	assert.Contains(t, lines[1], `"message":"from B scoped","requestId":"r-1","properties":{"step":"B"}`)
	assert.Contains(t, lines[2], `"message":"from A","requestId":"r-1","properties":{"job":"A"}`)
	assert.NotContains(t, lines[3], "properties")
	assert.Equal(t, 1, scope.FromContext(req).Len())
}

func TestNewFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.jsonl")
	cfg := config.DefaultAppConfig().Log
	cfg.Outputs = []string{path}
	cfg.Environment = "Staging"
	cfg.Overrides = []config.LevelOverride{{Prefix: "noisy", Level: "error"}}

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Info(context.Background(), "configured", map[string]any{"Token": "abc"})
	logger.Named("noisy").Warn(context.Background(), "suppressed", nil)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	line := decode(t, lines[0])
	assert.Equal(t, "Staging", line["environmentName"])
	assert.NotEmpty(t, line["machineName"])
	assert.Equal(t, "Information", line["level"])
	token := line["properties"].(map[string]any)["token"].(string)
	assert.True(t, strings.HasPrefix(token, "hash:"))
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultAppConfig().Log
	cfg.Level = "chatty"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = config.DefaultAppConfig().Log
	cfg.Outputs = []string{"../../escape.log"}
	_, err = New(cfg)
	assert.Error(t, err)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf zaptest.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Lines()
}
