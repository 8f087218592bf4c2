package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ebogdum/cleanlog/auth"
	"github.com/ebogdum/cleanlog/core/log"
	"github.com/ebogdum/cleanlog/locks"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmitCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.jsonl")
	cfgPath := writeConfig(t, dir, "log:\n  level: info\n  environment: Test\n  outputs:\n    - "+out+"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"emit", "--config", cfgPath,
		"--level", "warning",
		"-m", "Disk almost full",
		"--props", `{"FreeMb":12,"Volume":"data"}`,
		"--context", `{"TraceId":"t-1","Host":"db-1"}`,
		"--name", "cli",
	})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "Warning", rec["level"])
	assert.Equal(t, "Disk almost full", rec["message"])
	assert.Equal(t, "t-1", rec["traceId"])
	assert.Equal(t, "cli", rec["sourceContext"])
	assert.Equal(t, "Test", rec["environmentName"])
	assert.Equal(t, map[string]any{"host": "db-1", "freeMb": float64(12), "volume": "data"}, rec["properties"])
}

func TestEmitCommandRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{"emit", "--level", "loud", "-m", "x"},
		{"emit", "--props", "[1,2]", "-m", "x"},
		{"emit", "--context", "{bad", "-m", "x"},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		assert.Error(t, cmd.Execute(), args)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "log:\n  level: debug\n  outputs:\n    - stdout\n    - redis://:secret@localhost:6379/0\n")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "validate", "--config", cfgPath})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Configuration is valid")
	assert.Contains(t, out.String(), "Level: debug")
	assert.Contains(t, out.String(), "Outputs: stdout, redis://***@localhost:6379/0")
	assert.NotContains(t, out.String(), ":secret@")

	bad := writeConfig(t, t.TempDir(), "log:\n  level: chatty\n")
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "validate", "--config", bad})
	assert.Error(t, cmd.Execute())
}

func TestParseAPIKeys(t *testing.T) {
	users, err := parseAPIKeys([]string{"k1:alice", "k2:bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", users["k1"].Username)
	assert.NotEqual(t, users["k1"].ID, users["k2"].ID)

	_, err = parseAPIKeys([]string{"no-separator"})
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	buf := &zaptest.Buffer{}
	logger := log.NewLogger(buf)
	authn := auth.NewAPIKeyAuthenticator(map[string]auth.User{"k1": {Username: "alice"}})
	h := newRouter(logger, authn, locks.NewLocalProvider(1, logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/echo?text=hello", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"hello"}`, rec.Body.String())
	requestID := rec.Header().Get("X-Request-ID")
	assert.NotEmpty(t, requestID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/export", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cleanlog_records_emitted_total")

	lines := buf.Lines()
	var echo, jobStarted string
	for _, line := range lines {
		switch {
		case strings.Contains(line, `"message":"Echo endpoint called"`):
			echo = line
		case strings.Contains(line, `"message":"Job started"`):
			jobStarted = line
		}
	}
	assert.Contains(t, echo, `"requestId":"`+requestID+`"`)
	assert.Contains(t, echo, `"properties":{"text":"hello"}`)
	assert.Contains(t, jobStarted, `"properties":{"jobName":"export"}`)
}

func TestMaskOutput(t *testing.T) {
	assert.Equal(t, "stdout", maskOutput("stdout"))
	assert.Equal(t, "redis://localhost:6379", maskOutput("redis://localhost:6379"))
	assert.Equal(t, "redis://***@localhost:6379/1", maskOutput("redis://user:pw@localhost:6379/1"))
}
