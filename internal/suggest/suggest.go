// Package suggest is the boundary to the AI assistant. The terminal core
// hands it failed commands (and free-form questions) and gets back advice
// plus an optional command to run. Transport, retries and credentials are
// the implementation's business.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Kind says what the assistant is asked to do.
type Kind string

const (
	// KindTroubleshoot asks why a command failed and how to fix it.
	KindTroubleshoot Kind = "troubleshoot"
	// KindAsk asks for a command that does what Query describes.
	KindAsk Kind = "ask"
)

// Request is what the assistant receives.
type Request struct {
	Kind     Kind   `json:"kind"`
	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Query    string `json:"query,omitempty"`
	OS       string `json:"os"`
	Shell    string `json:"shell"`
	Dir      string `json:"dir,omitempty"`
}

// Suggestion is the assistant's answer. Command is empty when it proposes
// nothing runnable.
type Suggestion struct {
	Text    string `json:"text"`
	Command string `json:"command,omitempty"`
}

// Suggester produces suggestions. Implementations must honor ctx.
type Suggester interface {
	Suggest(ctx context.Context, req Request) (Suggestion, error)
}

// ErrDisabled is returned by Nop.
var ErrDisabled = errors.New("suggestions are disabled")

// Nop is a Suggester that is switched off.
type Nop struct{}

func (Nop) Suggest(context.Context, Request) (Suggestion, error) {
	return Suggestion{}, ErrDisabled
}

// Func adapts a function to Suggester.
type Func func(ctx context.Context, req Request) (Suggestion, error)

func (f Func) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	return f(ctx, req)
}

// ParseSuggestion interprets an assistant reply. A JSON object with "text"
// and "command" is taken as is. Otherwise the reply is free text, and a
// line starting with "Command:" or "Solution:" names the command. For
// KindAsk a one-line reply is the command itself.
func ParseSuggestion(kind Kind, reply []byte) Suggestion {
	s := strings.TrimSpace(string(reply))
	if strings.HasPrefix(s, "{") {
		var sg Suggestion
		if err := json.Unmarshal([]byte(s), &sg); err == nil && (sg.Text != "" || sg.Command != "") {
			sg.Command = cleanCommand(sg.Command)
			return sg
		}
	}
	sg := Suggestion{Text: s}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"command:", "solution:"} {
			if len(line) > len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
				if cmd := cleanCommand(line[len(prefix):]); looksRunnable(cmd) {
					sg.Command = cmd
					return sg
				}
			}
		}
	}
	if kind == KindAsk && s != "" && !strings.Contains(s, "\n") {
		sg.Command = cleanCommand(s)
	}
	return sg
}

// cleanCommand strips code quoting from a proposed command.
func cleanCommand(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.Trim(s, "`")
	s = strings.TrimPrefix(s, "$ ")
	return strings.TrimSpace(s)
}

// looksRunnable rejects prose after a "Solution:" label.
func looksRunnable(cmd string) bool {
	if cmd == "" {
		return false
	}
	if strings.HasSuffix(cmd, ".") && strings.Count(cmd, " ") > 3 {
		return false
	}
	return true
}
