package activitylog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes structured JSONL entries to an activity log file.
// All methods are safe for concurrent use. When disabled (w is nil),
// all methods are no-ops.
type Logger struct {
	mu        sync.Mutex
	w         *os.File
	actor     string
	sessionID string
}

// New creates a Logger that appends to logPath. If enabled is false or the
// file cannot be opened, returns a no-op logger (safe to call methods on).
func New(enabled bool, logPath, actor, sessionID string) *Logger {
	if !enabled {
		return &Logger{}
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return &Logger{}
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Logger{}
	}
	return &Logger{w: f, actor: actor, sessionID: sessionID}
}

// Nop returns a disabled logger. All methods are no-ops.
func Nop() *Logger {
	return &Logger{}
}

// Enabled reports whether entries are written anywhere.
func (l *Logger) Enabled() bool { return l.w != nil }

// entry is the common envelope for all log lines.
type entry struct {
	Timestamp string `json:"ts"`
	Actor     string `json:"actor"`
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
}

// SessionStart logs that the shell process was spawned.
func (l *Logger) SessionStart(shell, backend, dir string, pid int) {
	l.log(struct {
		entry
		Shell   string `json:"shell"`
		Backend string `json:"backend"`
		Dir     string `json:"dir,omitempty"`
		Pid     int    `json:"pid"`
	}{
		entry:   l.entry("session_start"),
		Shell:   shell,
		Backend: backend,
		Dir:     dir,
		Pid:     pid,
	})
}

// CommandSubmitted logs a command entered by the user.
func (l *Logger) CommandSubmitted(command string) {
	l.log(struct {
		entry
		Command string `json:"command"`
	}{
		entry:   l.entry("command_submitted"),
		Command: command,
	})
}

// CommandResolved logs the final status of a command. exitCode is nil when
// the shell did not report one.
func (l *Logger) CommandResolved(command, status string, exitCode *int, duration time.Duration) {
	l.log(struct {
		entry
		Command    string `json:"command"`
		Status     string `json:"status"`
		ExitCode   *int   `json:"exit_code,omitempty"`
		DurationMS int64  `json:"duration_ms"`
	}{
		entry:      l.entry("command_resolved"),
		Command:    command,
		Status:     status,
		ExitCode:   exitCode,
		DurationMS: duration.Milliseconds(),
	})
}

// ErrorDetected logs a failed command and what gave it away.
func (l *Logger) ErrorDetected(command, reason string, outputLines int) {
	l.log(struct {
		entry
		Command     string `json:"command"`
		Reason      string `json:"reason,omitempty"`
		OutputLines int    `json:"output_lines"`
	}{
		entry:       l.entry("error_detected"),
		Command:     command,
		Reason:      reason,
		OutputLines: outputLines,
	})
}

// Suggestion logs the assistant's answer to a request.
func (l *Logger) Suggestion(kind, command, suggested string, err error) {
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}
	l.log(struct {
		entry
		Kind      string `json:"kind"`
		Command   string `json:"command,omitempty"`
		Suggested string `json:"suggested,omitempty"`
		Error     string `json:"error,omitempty"`
	}{
		entry:     l.entry("suggestion"),
		Kind:      kind,
		Command:   command,
		Suggested: suggested,
		Error:     errMsg,
	})
}

// StateChange logs a session state transition.
func (l *Logger) StateChange(from, to string) {
	l.log(struct {
		entry
		From string `json:"from"`
		To   string `json:"to"`
	}{
		entry: l.entry("state_change"),
		From:  from,
		To:    to,
	})
}

// SessionExit logs cumulative session counters when the shell exits.
func (l *Logger) SessionExit(exitCode int, commands, failures int64) {
	l.log(struct {
		entry
		ExitCode int   `json:"exit_code"`
		Commands int64 `json:"commands"`
		Failures int64 `json:"failures"`
	}{
		entry:    l.entry("session_exit"),
		ExitCode: exitCode,
		Commands: commands,
		Failures: failures,
	})
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l.w == nil {
		return nil
	}
	return l.w.Close()
}

func (l *Logger) entry(event string) entry {
	return entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Actor:     l.actor,
		SessionID: l.sessionID,
		Event:     event,
	}
}

func (l *Logger) log(v any) {
	if l.w == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')
	l.mu.Lock()
	l.w.Write(data)
	l.mu.Unlock()
}
