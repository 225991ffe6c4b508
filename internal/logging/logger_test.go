package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cshealth/internal/config"
)

func TestConsoleLineHighlightsSeverity(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, cleanup, err := NewWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "info", Format: "line"},
	}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer cleanup()

	logger.Info("alert raised", "severity", "critical", "score", 12)
	logger.Debug("hidden")

	out := buf.String()
	if !strings.HasPrefix(out, ansiBlue) {
		t.Fatalf("expected info color prefix, got %q", out)
	}
	if !strings.Contains(out, ansiMagenta+"severity=critical"+ansiReset) {
		t.Fatalf("expected severity highlight, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record must be filtered")
	}
}

func TestTeeWritesConsoleAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cshealth.log")
	var buf bytes.Buffer
	logger, cleanup, err := NewWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "error", Format: "json"},
		File:    config.LogSinkConfig{Enabled: true, Level: "debug", Format: "json", Path: path},
	}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.With("account_id", "acc-1").Debug("scored", "score", 40)
	cleanup()

	if buf.Len() != 0 {
		t.Fatalf("console must skip debug, got %q", buf.String())
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(body), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["account_id"] != "acc-1" || record["msg"] != "scored" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewRejectsBadSinks(t *testing.T) {
	t.Parallel()

	if _, _, err := New(config.LogConfig{}); err == nil {
		t.Fatalf("expected error without sinks")
	}
	if _, _, err := New(config.LogConfig{Console: config.LogSinkConfig{Enabled: true, Level: "trace", Format: "line"}}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := ParseLevel("PANIC"); err != nil {
		t.Fatalf("panic level must parse: %v", err)
	}
}
