package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRotatingWriter_NoRotationUnderLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 1024)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("small line\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Fatal("no rotation expected under the size limit")
	}
}

func TestRotatingWriter_RotatesAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 20)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	first := []byte("0123456789abcdef\n") // 17 bytes
	if _, err := w.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Next write would exceed 20 bytes, so the current file moves to .1.
	if _, err := w.Write([]byte("next\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rotated, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("expected rotated file: %v", err)
	}
	if string(rotated) != string(first) {
		t.Fatalf("rotated content mismatch: %q", rotated)
	}
	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(current) != "next\n" {
		t.Fatalf("current content mismatch: %q", current)
	}
}

func TestRotatingWriter_CapsRotatedFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 4)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	// Force more rotations than the cap allows.
	for i := 0; i < 15; i++ {
		if _, err := w.Write([]byte("12345\n")); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(fmt.Sprintf("%s.%d", path, maxRotatedFiles)); err != nil {
		t.Fatalf("expected .%d to exist: %v", maxRotatedFiles, err)
	}
	if _, err := os.Stat(fmt.Sprintf("%s.%d", path, maxRotatedFiles+1)); !os.IsNotExist(err) {
		t.Fatalf("rotation must stop at .%d", maxRotatedFiles)
	}
}

func TestRotatingWriter_AppendsOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingWriter(path, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	w.Write([]byte("one\n"))
	w.Close()

	w2, err := NewRotatingWriter(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	w2.Write([]byte("two\n"))
	w2.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Fatalf("expected append on reopen, got %q", data)
	}
}

func TestInit_FileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	closer, err := Init(path, 1<<20, slog.LevelInfo)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		closer.Close()
	}()

	slog.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"key":"value"`) {
		t.Fatalf("expected a JSON log line, got %q", line)
	}
}

func TestInit_StderrNopCloser(t *testing.T) {
	closer, err := Init("", 0, slog.LevelInfo)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("nop closer must not error: %v", err)
	}
}
