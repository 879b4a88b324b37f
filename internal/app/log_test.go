package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestArtaiHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "logged in",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tlogged in\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "cache hit",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tcache hit\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "api request",
			attrs:   []slog.Attr{slog.String("op", "GET /images"), slog.Int("status", 200)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tapi request\top=GET /images\tstatus=200\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newHandler(tt.opID, sink{w: &buf, min: slog.LevelDebug})

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestArtaiHandler_SinkLevels(t *testing.T) {
	var file, stderr bytes.Buffer
	logger := slog.New(newHandler("op-1", sink{w: &file, min: slog.LevelInfo}, sink{w: &stderr, min: slog.LevelWarn}))

	logger.Debug("dropped")
	logger.Info("file only")
	logger.Warn("both")

	if got := file.String(); strings.Contains(got, "dropped") || !strings.Contains(got, "file only") || !strings.Contains(got, "both") {
		t.Errorf("file sink = %q", got)
	}
	if got := stderr.String(); strings.Contains(got, "file only") || !strings.Contains(got, "both") {
		t.Errorf("stderr sink = %q", got)
	}
}

func TestArtaiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newHandler("op-1", sink{w: &buf})

	// Add pre-set attrs
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "session")}).(*artaiHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "transition", 0)
	r.AddAttrs(slog.String("status", "authenticated"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=session") {
		t.Errorf("expected pre-set attr component=session, got: %q", got)
	}
	if !strings.Contains(got, "status=authenticated") {
		t.Errorf("expected record attr status=authenticated, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := parseLevel(in)
		if err != nil || got != want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("parseLevel(loud) expected error")
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer

	logger, f, err := newLogger(dir, "debug", "test-op", &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Debug("hello")
	b, err := os.ReadFile(filepath.Join(dir, "artai.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "\ttest-op\thello") {
		t.Errorf("log file = %q", b)
	}
	if stderr.Len() != 0 {
		t.Errorf("debug record reached stderr: %q", stderr.String())
	}
}
