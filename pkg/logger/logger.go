// Package logger owns the process-wide structured loggers: the application
// logger and the audit logger that records every action invocation.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	AddSource   bool
	Audit       AuditConfig
}

// AuditConfig controls the rotated audit log.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Set bundles the loggers built from one Config together with the
// outputs that must be closed on shutdown.
type Set struct {
	App     *slog.Logger
	Audit   *slog.Logger
	closers []io.Closer
}

// Close releases every file and rotated output opened by Build.
func (s *Set) Close() error {
	var err error
	for _, closer := range s.closers {
		err = errors.Join(err, closer.Close())
	}
	s.closers = nil
	return err
}

var (
	mu       sync.RWMutex
	current  *Set
	initOnce sync.Once
	initErr  error
)

// Build creates loggers without installing them globally.
func Build(cfg Config) (*Set, error) {
	set := &Set{}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}

	handler, err := set.buildHandler(cfg.Format, cfg.OutputPaths, opts)
	if err != nil {
		_ = set.Close()
		return nil, err
	}
	set.App = slog.New(handler)
	set.Audit = set.App

	if cfg.Audit.Enabled {
		audit, err := set.buildAudit(cfg.Audit)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		set.Audit = audit
	}
	return set, nil
}

// Init builds the global loggers once; later calls return the first result.
func Init(cfg Config) error {
	initOnce.Do(func() {
		set, err := Build(cfg)
		if err != nil {
			initErr = err
			return
		}
		mu.Lock()
		current = set
		mu.Unlock()
		slog.SetDefault(set.App)
	})
	return initErr
}

func (s *Set) buildHandler(format string, outputs []string, opts *slog.HandlerOptions) (slog.Handler, error) {
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		writer, closer, err := openWriter(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
		writers = append(writers, writer)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func (s *Set) buildAudit(cfg AuditConfig) (*slog.Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    positiveOr(cfg.MaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.MaxBackups, 7),
		MaxAge:     positiveOr(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
	}
	s.closers = append(s.closers, rotated)
	return slog.New(slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: slog.LevelInfo})), nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, file, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func active() *Set {
	mu.RLock()
	set := current
	mu.RUnlock()
	if set != nil {
		return set
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return &Set{App: slog.Default(), Audit: slog.Default()}
	}
	return current
}

// L returns the application logger.
func L() *slog.Logger {
	return active().App
}

// Audit returns the audit logger. Without an audit sink it is the application logger.
func Audit() *slog.Logger {
	return active().Audit
}

// Named returns a child logger tagged with a component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync flushes and closes the global outputs.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil
	}
	return current.Close()
}
