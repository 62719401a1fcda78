package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewTextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup := New(&buf, Options{Level: "warn", Format: "text", Attrs: []any{"service", "riskdesk"}})
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown", "risk_type", "trading")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "service=riskdesk") {
		t.Fatalf("unexpected text output: %s", out)
	}
}

func TestNewFansOutToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riskdesk.log")
	var buf bytes.Buffer
	logger, cleanup := New(&buf, Options{Format: "text", File: path})
	logger.Info("run completed", "polls", 2)
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file sink should be JSON: %v (%s)", err, data)
	}
	if rec["msg"] != "run completed" || rec["polls"] != float64(2) {
		t.Fatalf("unexpected record: %v", rec)
	}
	if !strings.Contains(buf.String(), "run completed") {
		t.Fatal("primary sink missed the record")
	}
}

func TestNewWithWriters(t *testing.T) {
	var out, file bytes.Buffer
	logger := NewWithWriters(&out, &file, Options{Format: "json"})
	logger.Info("hello")
	if !strings.Contains(out.String(), `"msg":"hello"`) || !strings.Contains(file.String(), `"msg":"hello"`) {
		t.Fatalf("both sinks should receive the record: %q / %q", out.String(), file.String())
	}
}
