package activitylog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSessionStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "aiterm", "sess-123")
	defer l.Close()

	l.SessionStart("/bin/bash", "pty", "/tmp", 4242)

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var e struct {
		Actor     string `json:"actor"`
		SessionID string `json:"session_id"`
		Event     string `json:"event"`
		Shell     string `json:"shell"`
		Backend   string `json:"backend"`
		Dir       string `json:"dir"`
		Pid       int    `json:"pid"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Actor != "aiterm" {
		t.Errorf("actor = %q, want %q", e.Actor, "aiterm")
	}
	if e.SessionID != "sess-123" {
		t.Errorf("session_id = %q, want %q", e.SessionID, "sess-123")
	}
	if e.Event != "session_start" {
		t.Errorf("event = %q, want %q", e.Event, "session_start")
	}
	if e.Shell != "/bin/bash" || e.Backend != "pty" || e.Dir != "/tmp" || e.Pid != 4242 {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "activity.log")
	l := New(true, path, "aiterm", "sess")
	defer l.Close()
	if !l.Enabled() {
		t.Fatal("expected logger to be enabled")
	}
	l.CommandSubmitted("ls")
	if len(readLines(t, path)) != 1 {
		t.Fatal("expected 1 line")
	}
}

func TestCommandResolved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "aiterm", "sess")
	defer l.Close()

	code := 127
	l.CommandResolved("nope", "failed", &code, 1500*time.Millisecond)
	l.CommandResolved("echo hi", "succeeded", nil, 0)

	lines := readLines(t, path)
	var e struct {
		Event      string `json:"event"`
		Command    string `json:"command"`
		Status     string `json:"status"`
		ExitCode   *int   `json:"exit_code"`
		DurationMS int64  `json:"duration_ms"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Event != "command_resolved" || e.Status != "failed" {
		t.Errorf("event/status = %q/%q", e.Event, e.Status)
	}
	if e.ExitCode == nil || *e.ExitCode != 127 {
		t.Errorf("exit_code = %v, want 127", e.ExitCode)
	}
	if e.DurationMS != 1500 {
		t.Errorf("duration_ms = %d, want 1500", e.DurationMS)
	}
	if strings.Contains(lines[1], "exit_code") {
		t.Error("expected exit_code to be omitted when unknown")
	}
}

func TestErrorDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "aiterm", "sess")
	defer l.Close()

	l.ErrorDetected("nonexistentcmd123", "bash: nonexistentcmd123: command not found", 1)

	lines := readLines(t, path)
	var e struct {
		Event       string `json:"event"`
		Command     string `json:"command"`
		Reason      string `json:"reason"`
		OutputLines int    `json:"output_lines"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Event != "error_detected" {
		t.Errorf("event = %q, want %q", e.Event, "error_detected")
	}
	if !strings.Contains(e.Reason, "command not found") {
		t.Errorf("reason = %q", e.Reason)
	}
	if e.OutputLines != 1 {
		t.Errorf("output_lines = %d, want 1", e.OutputLines)
	}
}

func TestSuggestion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "aiterm", "sess")
	defer l.Close()

	l.Suggestion("troubleshoot", "cd out", "mkdir out", nil)
	l.Suggestion("ask", "", "", errors.New("timed out"))

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ok, failed struct {
		Event     string `json:"event"`
		Kind      string `json:"kind"`
		Suggested string `json:"suggested"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &ok); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok.Event != "suggestion" || ok.Suggested != "mkdir out" || ok.Error != "" {
		t.Errorf("unexpected success entry %+v", ok)
	}
	if failed.Kind != "ask" || failed.Error != "timed out" {
		t.Errorf("unexpected failure entry %+v", failed)
	}
}

func TestStateChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "aiterm", "sess")
	defer l.Close()

	l.StateChange("active", "idle")

	lines := readLines(t, path)
	var e struct {
		Event string `json:"event"`
		From  string `json:"from"`
		To    string `json:"to"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.From != "active" || e.To != "idle" {
		t.Errorf("from/to = %q/%q, want active/idle", e.From, e.To)
	}
}

func TestSessionExit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "aiterm", "sess")
	defer l.Close()

	l.SessionExit(0, 0, 0)

	lines := readLines(t, path)
	// Counters are present even when zero.
	for _, field := range []string{"exit_code", "commands", "failures"} {
		if !strings.Contains(lines[0], `"`+field+`"`) {
			t.Errorf("expected field %q to be present in output", field)
		}
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(false, path, "aiterm", "sess")
	defer l.Close()

	l.SessionStart("/bin/sh", "pipe", "", 1)
	l.CommandSubmitted("ls")
	l.StateChange("active", "idle")
	l.SessionExit(0, 1, 0)

	if l.Enabled() {
		t.Error("expected disabled logger")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file to be created when disabled")
	}
}

func TestNopLoggerIsNoop(t *testing.T) {
	l := Nop()
	// Should not panic.
	l.SessionStart("/bin/sh", "pipe", "", 1)
	l.CommandSubmitted("ls")
	l.CommandResolved("ls", "succeeded", nil, time.Second)
	l.ErrorDetected("ls", "", 0)
	l.Suggestion("ask", "", "ls", nil)
	l.StateChange("active", "idle")
	l.SessionExit(0, 1, 0)
	l.Close()
}

func TestMultipleEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l := New(true, path, "aiterm", "sess")
	defer l.Close()

	l.CommandSubmitted("ls")
	l.CommandSubmitted("pwd")
	l.StateChange("active", "idle")

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var e struct {
		Timestamp string `json:"ts"`
	}
	if err := json.Unmarshal([]byte(lines[2]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Timestamp == "" {
		t.Error("expected ts field to be present")
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
