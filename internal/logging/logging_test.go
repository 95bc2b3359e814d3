package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stone-age-io/svcctl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewWritesConsole(t *testing.T) {
	var console bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info"}, &console)
	require.NoError(t, err)

	logger.Info("probe complete", zap.String("service", "demo"))
	logger.Debug("filtered out")
	_ = logger.Sync()

	out := console.String()
	assert.Contains(t, out, "probe complete")
	assert.Contains(t, out, "demo")
	assert.NotContains(t, out, "filtered out")
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "svcctl.log")
	var console bytes.Buffer

	logger, err := New(config.LoggingConfig{Level: "warn", File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)

	logger.Warn("stop confirm slow")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"stop confirm slow"`)
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewWorkerLineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	var console bytes.Buffer

	logger, closer, err := NewWorker(path, config.LoggingConfig{Level: "warn"}, &console)
	require.NoError(t, err)

	logger.Info("Incoming request GET /health")
	_ = logger.Sync()
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	pattern := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z\] Incoming request GET /health$`)
	assert.Regexp(t, pattern, line)
	assert.Equal(t, line, strings.TrimSpace(console.String()))
}

func TestNewWorkerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	require.NoError(t, os.WriteFile(path, []byte("[2024-01-01T00:00:00.000Z] earlier run\n"), 0o644))

	logger, closer, err := NewWorker(path, config.LoggingConfig{Level: "info"}, nil)
	require.NoError(t, err)
	logger.Info("Worker started")
	_ = logger.Sync()
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "earlier run")
	assert.Contains(t, lines[1], "Worker started")
}

func TestNewWorkerNeverRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.log")
	// Rotation settings meant for the CLI log must not apply here
	cfg := config.LoggingConfig{Level: "info", MaxSizeMB: 1, MaxBackups: 1}

	logger, closer, err := NewWorker(path, cfg, nil)
	require.NoError(t, err)

	lj, ok := closer.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Zero(t, lj.MaxBackups)
	assert.Zero(t, lj.MaxAge)
	assert.False(t, lj.Compress)

	line := strings.Repeat("x", 1024)
	for i := 0; i < 1500; i++ {
		logger.Info(line)
	}
	_ = logger.Sync()
	require.NoError(t, closer.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no backup file may be created")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(1500*1024))
}
