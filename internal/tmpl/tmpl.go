// Package tmpl renders the text prompts sent to an assistant command that
// reads plain text instead of JSON.
package tmpl

import (
	"fmt"
	"strings"
	"text/template"
)

// Context holds all template data available during rendering.
type Context struct {
	Kind        string // "troubleshoot" or "ask"
	OS          string // runtime.GOOS
	OSName      string // human name, e.g. "Linux"
	Shell       string
	Dir         string
	Command     string
	Output      string
	ExitCode    int
	HasExitCode bool
	Query       string
}

// Parse checks templateText without rendering it.
func Parse(templateText string) error {
	_, err := parse(templateText)
	return err
}

// Render processes a template string with the given context.
// Returns the rendered string or an error with source context.
func Render(templateText string, ctx *Context) (string, error) {
	t, err := parse(templateText)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return buf.String(), nil
}

func parse(templateText string) (*template.Template, error) {
	t, err := template.New("").Option("missingkey=error").Funcs(funcMap()).Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("template parse error: %w", err)
	}
	return t, nil
}

// OSName returns the name prompts use for goos.
func OSName(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	default:
		return goos
	}
}

// funcMap returns the custom template functions.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"tail":      tailFunc,
		"split":     splitFunc,
		"join":      joinFunc,
		"default":   defaultFunc,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"contains":  strings.Contains,
		"trimSpace": strings.TrimSpace,
		"quote":     quoteFunc,
	}
}

// tailFunc keeps the last n lines of s.
func tailFunc(n int, s string) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func splitFunc(s, sep string) []string {
	return strings.Split(s, sep)
}

func joinFunc(elems []string, sep string) string {
	return strings.Join(elems, sep)
}

// defaultFunc returns val if non-empty, otherwise fallback.
// String semantics: "0" and "false" are non-empty.
func defaultFunc(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

// quoteFunc returns a double-quoted string with Go escaping.
func quoteFunc(s string) string {
	return fmt.Sprintf("%q", s)
}
