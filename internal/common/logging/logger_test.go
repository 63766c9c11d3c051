package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level LogLevel) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: level, Output: &buf})
	require.NoError(t, err)
	return logger, &buf
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" ERROR "))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestLogger_LogLevels(t *testing.T) {
	logger, buf := newBufferLogger(t, DebugLevel)

	tests := []struct {
		name     string
		logFunc  func()
		contains []string
	}{
		{
			name:     "debug log",
			logFunc:  func() { logger.Debug("signature verified", String("app_id", "c1")) },
			contains: []string{"DEBUG", "signature verified", "c1"},
		},
		{
			name:     "info log",
			logFunc:  func() { logger.Info("server started", Int("port", 8080)) },
			contains: []string{"INFO", "server started", "8080"},
		},
		{
			name:     "warn log",
			logFunc:  func() { logger.Warn("request rejected", String("kind", "INVALID_SIGN")) },
			contains: []string{"WARN", "request rejected", "INVALID_SIGN"},
		},
		{
			name:     "error log",
			logFunc:  func() { logger.Error("secret lookup failed", errors.New("redis down"), Int("attempt", 2)) },
			contains: []string{"ERROR", "secret lookup failed", "redis down", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestLogger_LogFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", errors.New("test error"))

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestLogger_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, DebugLevel)

	logger.
		WithFields(String("component", "verifier")).
		WithFields(String("location", "headers")).
		Info("chained fields test")

	output := buf.String()
	assert.Contains(t, output, "verifier")
	assert.Contains(t, output, "headers")
	assert.Same(t, logger, logger.WithFields())
}

func TestLogger_WithContext(t *testing.T) {
	logger, buf := newBufferLogger(t, DebugLevel)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")
	ctx = context.WithValue(ctx, AppIDKey, "client-9")

	logger.WithContext(ctx).Info("context message")

	output := buf.String()
	assert.Contains(t, output, "req-123")
	assert.Contains(t, output, "client-9")
}

func TestLogger_WithContext_IgnoresForeignKeys(t *testing.T) {
	logger, buf := newBufferLogger(t, DebugLevel)

	// Plain string keys are not ContextKey values and must not be picked up.
	ctx := context.WithValue(context.Background(), "request_id", "plain-key") //nolint:staticcheck
	ctx = context.WithValue(ctx, AppIDKey, 42)

	scoped := logger.WithContext(ctx)
	scoped.Info("context message")

	assert.Same(t, logger, scoped)
	assert.NotContains(t, buf.String(), "plain-key")
	assert.Contains(t, buf.String(), "context message")
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	logger, buf := newBufferLogger(t, DebugLevel)
	SetGlobalLogger(logger)
	assert.Equal(t, logger, GetGlobalLogger())

	Info("info from global")
	Warn("warn from global")
	Error("error from global", errors.New("global error"))

	output := buf.String()
	assert.Contains(t, output, "info from global")
	assert.Contains(t, output, "warn from global")
	assert.Contains(t, output, "global error")
}

func TestInitGlobalLogger_WritesToFile(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	path := filepath.Join(t.TempDir(), "apisign.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_LEVEL", "debug")

	logger, err := InitGlobalLogger()
	require.NoError(t, err)
	logger.Debug("written to file")
	MustSync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Logger initialized")
	assert.Contains(t, string(data), "written to file")
}

func TestInitGlobalLogger_BadFile(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "missing", "dir", "apisign.log"))

	_, err := InitGlobalLogger()
	assert.Error(t, err)
}

func TestLogger_Concurrency(t *testing.T) {
	logger, buf := newBufferLogger(t, DebugLevel)

	const numGoroutines = 10
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			scoped := logger.WithFields(Int("goroutine", id))
			for j := 0; j < 5; j++ {
				scoped.Info("concurrent message", Int("iteration", j))
			}
			done <- true
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	assert.Contains(t, buf.String(), "concurrent message")
}

func TestNewZapLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf, JSON: true})
	require.NoError(t, err)

	logger.Warn("signature rejected", String("kind", "INVALID_SIGN"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "signature rejected", entry["msg"])
	assert.Equal(t, "INVALID_SIGN", entry["kind"])
}
