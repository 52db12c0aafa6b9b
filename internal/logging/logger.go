package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/coldbell/chronos/backend/internal/config"
)

// New builds the service logger described by cfg. The returned closer
// releases the log file, if any.
func New(service string, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out, err := openSink(service, cfg)
	if err != nil {
		return nil, nil, err
	}

	handler, err := newHandler(cfg.Format, out, &slog.HandlerOptions{Level: level})
	if err != nil {
		_ = out.Close()
		return nil, nil, err
	}
	return slog.New(handler).With("service", service), out.Close, nil
}

// Component tags log lines emitted by one part of a service.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = Nop()
	}
	return logger.With("component", name)
}

// Nop discards everything; used where no logger was injected.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	}
	return nil, fmt.Errorf("invalid log format %q (expected text|json)", format)
}

// sink is the log destination plus whatever must be closed on shutdown.
type sink struct {
	io.Writer
	file *os.File
}

func (s *sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func openSink(service string, cfg config.LogConfig) (*sink, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Output))
	switch mode {
	case "", "console":
		return &sink{Writer: os.Stdout}, nil
	case "file", "both":
	default:
		return nil, fmt.Errorf("invalid log output %q (expected console|file|both)", cfg.Output)
	}

	path := strings.TrimSpace(cfg.FilePath)
	if path == "" {
		path = filepath.Join("var", "log", service+".log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %q: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	if mode == "both" {
		return &sink{Writer: io.MultiWriter(os.Stdout, file), file: file}, nil
	}
	return &sink{Writer: file, file: file}, nil
}
