// Package logging configures the rotating JSONL runtime log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rbright/murmur/internal/config"
)

// Runtime bundles the configured logger and its sink lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the log sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger under the state directory, rotated by size.
func New(cfg config.LogConfig) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log dir: %w", err)
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return Runtime{}, err
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    max(cfg.MaxSizeMB, 1),
		MaxBackups: cfg.MaxBackups,
	}
	h := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level})
	return Runtime{Logger: slog.New(h), Path: path, closer: sink}, nil
}

// StateDir is $XDG_STATE_HOME/murmur, falling back to ~/.local/state/murmur.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "murmur"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "murmur"), nil
}

func resolveLogPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "log.jsonl"), nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", raw, err)
	}
	return level, nil
}
