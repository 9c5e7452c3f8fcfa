package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
		Close()
	})
	return &buf
}

func TestLabelsWithoutColor(t *testing.T) {
	buf := captureOutput(t)

	Info("created %s", "/data")
	Warn("chown failed")
	Error("exec failed")

	got := buf.String()
	for _, want := range []string{"[INFO] created /data", "[WARN] chown failed", "[EROR] exec failed"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\033[") {
		t.Errorf("expected no color escapes for a non-terminal writer, got %q", got)
	}
}

func TestSetLevelFiltersLowerLevels(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	Info("hidden")
	Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info line should be filtered at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"debug", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWritesDailyFile(t *testing.T) {
	captureOutput(t)
	dir := t.TempDir()

	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("to file")
	Close()

	name := filepath.Join(dir, "logs", time.Now().Format("2006-01-02")+".log")
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(b), "[INFO] to file") {
		t.Errorf("log file content = %q", b)
	}
}
