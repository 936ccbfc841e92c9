package tracker

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPromptPatterns match the tail of a typical POSIX, PowerShell or
// cmd.exe prompt. They are tested against the unfinished last line only.
// The sigil must not follow a digit, so progress tails like "45% " do not
// count.
var DefaultPromptPatterns = []string{
	`(^|[^0-9])[$#%>❯] $`,
	`^PS [^>]*> ?$`,
	`^[A-Za-z]:\\[^>]*>$`,
}

// DefaultErrorPatterns flag output lines that almost always mean a command
// failed. Generic words like "error" only count when they lead the line in
// diagnostic position, so summaries such as "0 errors" stay quiet.
var DefaultErrorPatterns = []string{
	`(?i)\bcommand not found\b`,
	`(?i)is not recognized as (an internal or external command|the name of a cmdlet)`,
	`(?i)\bno such file or directory\b`,
	`(?i)\bpermission denied\b`,
	`(?i)^(error|fatal)(\[[^\]]*\])?:`,
	`(?i)^[\w./-]+: (error|fatal):`,
	`(?i)^[\w./-]+: cannot `,
	`^\S+: \d+: \S+: not found$`,
	`(?i)^traceback \(most recent call last\)`,
	`^panic: `,
	`(?i)^exception in thread `,
	`(?i)\bsegmentation fault\b`,
	`(?i)^(npm|yarn|pnpm) (err!|error)`,
	`^make(\[\d+\])?: \*\*\*`,
	`(?i)\bexit (status|code):? [1-9]\d*\b`,
}

// Patterns holds the compiled prompt and error expressions.
type Patterns struct {
	Prompt []*regexp.Regexp
	Errors []*regexp.Regexp
}

// CompilePatterns compiles the given expressions. An empty list selects the
// corresponding defaults.
func CompilePatterns(prompt, errs []string) (Patterns, error) {
	if len(prompt) == 0 {
		prompt = DefaultPromptPatterns
	}
	if len(errs) == 0 {
		errs = DefaultErrorPatterns
	}
	var p Patterns
	for _, expr := range prompt {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Patterns{}, fmt.Errorf("prompt pattern %q: %w", expr, err)
		}
		p.Prompt = append(p.Prompt, re)
	}
	for _, expr := range errs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Patterns{}, fmt.Errorf("error pattern %q: %w", expr, err)
		}
		p.Errors = append(p.Errors, re)
	}
	return p, nil
}

// DefaultPatterns returns the compiled defaults.
func DefaultPatterns() Patterns {
	p, err := CompilePatterns(nil, nil)
	if err != nil {
		panic(err) // defaults are constant
	}
	return p
}

// IsPrompt reports whether s looks like a shell prompt waiting for input.
func (p Patterns) IsPrompt(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, re := range p.Prompt {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// MatchError returns the text of the first error pattern found in line. A
// match that also occurs in the command itself (echo "permission denied")
// is not evidence of failure and is skipped.
func (p Patterns) MatchError(line, command string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	lowerCmd := strings.ToLower(command)
	for _, re := range p.Errors {
		m := re.FindString(line)
		if m == "" {
			continue
		}
		if strings.Contains(lowerCmd, strings.ToLower(strings.TrimSpace(m))) {
			continue
		}
		return line, true
	}
	return "", false
}
