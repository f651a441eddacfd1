package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newCaptureLogger(level LogLevel) (*RuntimeLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	cfg.AddSource = false
	return NewLogger(cfg), buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"warn":    LogLevelWarn,
		"error":   LogLevelError,
		"info":    LogLevelInfo,
		"":        LogLevelInfo,
		"verbose": LogLevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRuntimeLogger_LevelGating(t *testing.T) {
	l, buf := newCaptureLogger(LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("below-threshold entries must be dropped, got %q", buf.String())
	}

	l.Warn("shown")
	l.Error("shown too")
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Fatalf("expected 2 entries, got %d: %q", got, buf.String())
	}
}

func TestRuntimeLogger_WithClonesAttachFields(t *testing.T) {
	l, buf := newCaptureLogger(LogLevelInfo)

	scoped := l.WithComponent("webhook").
		WithExtension("notifier").
		WithExecution("exec-42").
		WithContext("endpoint", "https://example.com/hook")
	scoped.Info("delivery scheduled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not valid json: %v", err)
	}
	if entry["component"] != "webhook" || entry["extension"] != "notifier" {
		t.Fatalf("missing scope fields: %v", entry)
	}
	if entry["execution_id"] != "exec-42" {
		t.Fatalf("missing execution id: %v", entry)
	}
	if entry["endpoint"] != "https://example.com/hook" {
		t.Fatalf("missing custom attribute: %v", entry)
	}
}

func TestRuntimeLogger_ClonesDoNotShareState(t *testing.T) {
	base, buf := newCaptureLogger(LogLevelInfo)
	_ = base.WithContext("leaked", true)

	base.Info("clean entry")
	if strings.Contains(buf.String(), "leaked") {
		t.Fatalf("clone mutated its parent: %q", buf.String())
	}
}

func TestRuntimeLogger_TextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Format = "text"
	cfg.Output = buf
	cfg.AddSource = false
	NewLogger(cfg).Info("plain entry")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("text format must not emit json: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "plain entry") {
		t.Fatalf("message missing from output: %q", buf.String())
	}
}
