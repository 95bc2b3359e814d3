// Package logging builds the zap loggers used by the controller tools and
// the worker daemon.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/stone-age-io/svcctl/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel parses a zap level name such as "debug" or "warn"
func ParseLevel(name string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

// New creates the diagnostic logger for the command line tools. Console
// output goes to console (normally stderr) and, when cfg.File is set, JSON
// lines are appended to a rotated file.
func New(cfg config.LoggingConfig, console io.Writer) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(console), level),
	}

	if cfg.File != "" {
		fileWriter, err := rotatingFile(cfg.File, cfg)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewWorker creates the worker's activity logger. Every entry is written as
// "[<ISO-8601 timestamp>] <message>" followed by any fields, appended to the
// file at path. The file is never rotated or truncated. console may be nil; when set, the same lines are
// teed to it.
//
// The returned closer releases the log file.
func NewWorker(path string, cfg config.LoggingConfig, console io.Writer) (*zap.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	// Request lines are part of the worker's contract
	if level > zapcore.InfoLevel {
		level = zapcore.InfoLevel
	}

	fileWriter, err := appendOnlyFile(path)
	if err != nil {
		return nil, nil, err
	}

	encoder := zapcore.NewConsoleEncoder(WorkerEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(fileWriter), level),
	}
	if console != nil {
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.AddSync(console), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, fileWriter, nil
}

// WorkerEncoderConfig renders entries as "[timestamp] message". Level,
// caller and logger name are omitted.
func WorkerEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "timestamp",
		MessageKey:       "message",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       bracketedTime,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

func bracketedTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + t.UTC().Format("2006-01-02T15:04:05.000Z") + "]")
}

// workerFileMaxMB keeps lumberjack from ever reaching its rotation threshold
const workerFileMaxMB = 1 << 30

// appendOnlyFile opens path for appending through lumberjack with rotation
// effectively disabled: no size cap reachable in practice, no backups
// pruned and no compression
func appendOnlyFile(path string) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename: path,
		MaxSize:  workerFileMaxMB, // megabytes
	}, nil
}

// rotatingFile opens path for appending through lumberjack, creating the
// parent directory when needed
func rotatingFile(path string, cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     28, // days
		Compress:   true,
	}, nil
}
