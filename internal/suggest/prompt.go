package suggest

import (
	"fmt"
	"runtime"

	"aiterm/internal/tmpl"
)

// DefaultAskPrompt asks for a bare command.
const DefaultAskPrompt = `You are a helpful terminal assistant. The user is on {{ .OSName }} using {{ .Shell }}.
When asked for a command, provide ONLY the command itself, nothing else. No explanations, no markdown, just the raw command.
If the user's request is unclear, provide the most likely command they need.

Examples:
User: "list files"
Assistant: ls -la

User: "find large files"
Assistant: find . -type f -size +100M

User: "check disk space"
Assistant: df -h

User request: {{ .Query }}
`

// DefaultTroubleshootPrompt asks for a Problem/Solution pair, which
// ParseSuggestion understands.
const DefaultTroubleshootPrompt = `You are a helpful terminal assistant debugging errors. The user is on {{ .OSName }} using {{ .Shell }}.
Analyze the error and provide:
1. A brief explanation of what went wrong
2. A suggested fix or corrected command
3. Keep your response concise and actionable

Format your response as:
Problem: [brief explanation]
Solution: [suggested fix or command]

Command executed: {{ .Command }}
{{- if .HasExitCode }}
Exit status: {{ .ExitCode }}
{{- end }}

Error output:
{{ default .Output "(no output)" }}
`

// Prompts renders requests as plain text for assistant programs that take
// a prompt on stdin. Empty templates select the defaults.
type Prompts struct {
	Ask          string
	Troubleshoot string
}

// Validate parses both templates.
func (p Prompts) Validate() error {
	if err := tmpl.Parse(p.template(KindAsk)); err != nil {
		return fmt.Errorf("ask prompt: %w", err)
	}
	if err := tmpl.Parse(p.template(KindTroubleshoot)); err != nil {
		return fmt.Errorf("troubleshoot prompt: %w", err)
	}
	return nil
}

// Render returns the prompt for req.
func (p Prompts) Render(req Request) (string, error) {
	return tmpl.Render(p.template(req.Kind), promptContext(req))
}

func (p Prompts) template(kind Kind) string {
	if kind == KindAsk {
		if p.Ask != "" {
			return p.Ask
		}
		return DefaultAskPrompt
	}
	if p.Troubleshoot != "" {
		return p.Troubleshoot
	}
	return DefaultTroubleshootPrompt
}

func promptContext(req Request) *tmpl.Context {
	goos := req.OS
	if goos == "" {
		goos = runtime.GOOS
	}
	ctx := &tmpl.Context{
		Kind:    string(req.Kind),
		OS:      goos,
		OSName:  tmpl.OSName(goos),
		Shell:   req.Shell,
		Dir:     req.Dir,
		Command: req.Command,
		Output:  req.Output,
		Query:   req.Query,
	}
	if req.ExitCode != nil {
		ctx.ExitCode = *req.ExitCode
		ctx.HasExitCode = true
	}
	return ctx
}
