// Package logging provides the process-wide structured logger.
//
// A status command owns its stdout: that stream is the swaybar protocol
// and nothing else may be written to it. All logging therefore goes to
// stderr, and optionally to a size-rotated file when a log directory is
// configured.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompBar    = "bar"
	CompBlock  = "block"
	CompConfig = "config"
	CompSignal = "signal"
	CompWatch  = "watch"
	CompMain   = "main"
)

// Config holds logging configuration.
type Config struct {
	// LogDir, when non-empty, is a directory to write a rotated
	// barkeep.log into, in addition to stderr.
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format is "text" (default) or "json"
	Format string

	// MaxSizeMB is the max file size in MB before rotation (default: 5)
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default: 3)
	MaxBackups int

	// Quiet discards everything. Used by tests.
	Quiet bool
}

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex
	lumberjackW  *lumberjack.Logger
)

// Init initializes the global logging system.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 5
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Quiet {
		globalLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}

	var w io.Writer = os.Stderr
	if cfg.LogDir != "" {
		lumberjackW = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "barkeep.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = io.MultiWriter(os.Stderr, lumberjackW)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	globalLogger = slog.New(handler)
}

// Logger returns the global logger. Safe to call before Init; until
// then it logs to stderr at info level.
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return globalLogger
}

// ForComponent returns a sub-logger with the component field set.
// It resolves the global handler at log time, so loggers created as
// package-level vars before Init() still pick up the real handler.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{component: name})
}

type dynamicHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler()
	handler = handler.WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &dynamicHandler{component: h.component, attrs: newAttrs, group: h.group}
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	return &dynamicHandler{component: h.component, attrs: h.attrs, group: name}
}

// Shutdown closes the rotated log file, if any.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if lumberjackW != nil {
		lumberjackW.Close()
		lumberjackW = nil
	}
	globalLogger = nil
}
