package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		baseDir   string
		sessionID string
		wantFile  string
	}{
		{
			name:      "valid directory and session ID",
			baseDir:   t.TempDir(),
			sessionID: "test-session-123",
			wantFile:  "test-session-123.jsonl",
		},
		{
			name:      "creates directories if not exist",
			baseDir:   filepath.Join(t.TempDir(), "nested", "path"),
			sessionID: "session-456",
			wantFile:  "session-456.jsonl",
		},
		{
			name:      "empty session ID",
			baseDir:   t.TempDir(),
			sessionID: "",
			wantFile:  "default.jsonl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.baseDir, tt.sessionID)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			defer logger.Close()

			if logger.SessionID() != tt.sessionID {
				t.Errorf("SessionID() = %q, want %q", logger.SessionID(), tt.sessionID)
			}
			if _, err := os.Stat(filepath.Join(tt.baseDir, "sessions", tt.wantFile)); err != nil {
				t.Errorf("session log file not created: %v", err)
			}
			if _, err := os.Stat(filepath.Join(tt.baseDir, "errors.jsonl")); err != nil {
				t.Errorf("errors.jsonl not created: %v", err)
			}
		})
	}
}

func TestLogger_WritesSessionAndErrorFiles(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "s1")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info(CategoryParser, "directive.discarded", "bad duration", map[string]any{"pattern": "scroll_down_from"})
	logger.Error(CategoryEngine, "command.failed", "click failed", nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	session := readJSONLines(t, filepath.Join(dir, "sessions", "s1.jsonl"))
	if len(session) != 2 {
		t.Fatalf("session lines = %d, want 2", len(session))
	}
	if session[0]["category"] != "parser" || session[0]["type"] != "directive.discarded" {
		t.Errorf("unexpected first event: %v", session[0])
	}
	if session[0]["session_id"] != "s1" {
		t.Errorf("session_id = %v, want s1", session[0]["session_id"])
	}
	details, ok := session[0]["details"].(map[string]any)
	if !ok || details["pattern"] != "scroll_down_from" {
		t.Errorf("details = %v", session[0]["details"])
	}

	errs := readJSONLines(t, filepath.Join(dir, "errors.jsonl"))
	if len(errs) != 1 {
		t.Fatalf("error lines = %d, want 1", len(errs))
	}
	if errs[0]["message"] != "click failed" {
		t.Errorf("message = %v", errs[0]["message"])
	}
}

func TestLogger_MinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "levels")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug(CategoryResolver, "tree.refresh", "hidden by default", nil)
	logger.SetMinLevel(LevelDebug)
	logger.Debug(CategoryResolver, "tree.refresh", "visible", nil)
	logger.SetMinLevel(LevelWarn)
	logger.Info(CategoryResolver, "tree.refresh", "hidden again", nil)
	_ = logger.Close()

	lines := readJSONLines(t, filepath.Join(dir, "sessions", "levels.jsonl"))
	if len(lines) != 1 || lines[0]["message"] != "visible" {
		t.Fatalf("lines = %v, want only the visible debug event", lines)
	}
}

func TestNewWithCore_Observer(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewWithCore(core, "obs")

	logger.Warn(CategoryGesture, "gesture.cancelled", "swipe cancelled", map[string]any{"duration_ms": 300})

	entries := logs.FilterMessage("swipe cancelled").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["category"] != "gesture" {
		t.Errorf("category = %v", fields["category"])
	}
	if fields["session_id"] != "obs" {
		t.Errorf("session_id = %v", fields["session_id"])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info(CategoryPilot, "noop", "nothing", nil)
	logger.SetMinLevel(LevelDebug)
	if err := logger.Close(); err != nil {
		t.Errorf("Close on nil = %v", err)
	}
	if logger.Zap() == nil {
		t.Error("Zap() on nil should return a nop logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
