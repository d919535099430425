// Package log implements structured logging using slog.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/stallwatch/internal/config"
)

var (
	// level is shared by every handler Init installs so SetLevel applies
	// without rebuilding the logger.
	level = new(slog.LevelVar)

	mu      sync.Mutex
	rotator *lumberjack.Logger
)

// Init initializes the global logger based on configuration. Every record
// carries the node hostname.
func Init(cfg config.LogConfig, node config.NodeConfig) error {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	// stdout is always included.
	writers := []io.Writer{os.Stdout}

	var fileWriter *lumberjack.Logger
	if cfg.Outputs.File.Enabled {
		fileWriter, err = createFileWriter(cfg.Outputs.File)
		if err != nil {
			return fmt.Errorf("failed to create file output: %w", err)
		}
		writers = append(writers, fileWriter)
	}

	handler, err := newHandler(io.MultiWriter(writers...), cfg.Format)
	if err != nil {
		return err
	}

	level.Set(lvl)
	logger := slog.New(handler)
	if node.Hostname != "" {
		logger = logger.With("host", node.Hostname)
	}
	slog.SetDefault(logger)

	mu.Lock()
	old := rotator
	rotator = fileWriter
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	return nil
}

// SetLevel changes the level of the installed logger.
func SetLevel(s string) error {
	lvl, err := parseLevel(s)
	if err != nil {
		return err
	}
	if lvl != level.Level() {
		slog.Info("log level changed", "from", level.Level().String(), "to", lvl.String())
		level.Set(lvl)
	}
	return nil
}

// Close flushes and closes the rotating file output, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

func newHandler(w io.Writer, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json or text)", format)
	}
}

// parseLevel converts string level to slog.Level.
func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.FileOutputConfig) (*lumberjack.Logger, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}, nil
}
