// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init sets the package-level default slog logger. With a non-empty path,
// log lines go to a size-rotating file as JSON; otherwise to stderr as text.
// Returns a closer for the file writer (nil-safe no-op for stderr).
func Init(path string, maxSize int64, level slog.Level) (io.Closer, error) {
	opts := &slog.HandlerOptions{Level: level}

	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return nopCloser{}, nil
	}

	w, err := NewRotatingWriter(path, maxSize)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	return w, nil
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to a
// slog.Level. Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
