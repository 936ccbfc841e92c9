package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
)

// DefaultExecTimeout bounds one run of the suggestion command.
const DefaultExecTimeout = 60 * time.Second

const (
	maxStderrLen = 500
	// waitDelay caps how long output pipes are drained after the process
	// is killed, in case a grandchild still holds them.
	waitDelay = time.Second
)

// Exec runs an external program per request. The request is written to its
// stdin as JSON, or as a rendered text prompt after WithPrompts; the reply
// is read from stdout (see ParseSuggestion). This keeps API keys and HTTP
// clients out of the terminal core.
type Exec struct {
	path    string
	args    []string
	timeout time.Duration
	env     []string
	prompts *Prompts
}

// NewExec parses commandLine with shell quoting rules and resolves the
// program in PATH.
func NewExec(commandLine string, timeout time.Duration) (*Exec, error) {
	argv, err := shlex.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("invalid suggest command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty suggest command")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("suggest command %q not found in PATH: %w", argv[0], err)
	}
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return &Exec{path: path, args: argv[1:], timeout: timeout}, nil
}

// WithEnv returns a copy that adds env (KEY=VALUE entries) to the child's
// environment.
func (e *Exec) WithEnv(env []string) *Exec {
	c := *e
	c.env = append(append([]string(nil), e.env...), env...)
	return &c
}

// WithPrompts returns a copy that sends text prompts instead of JSON.
func (e *Exec) WithPrompts(p Prompts) *Exec {
	c := *e
	c.prompts = &p
	return &c
}

func (e *Exec) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	payload, err := e.payload(req)
	if err != nil {
		return Suggestion{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.path, e.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = waitDelay
	if len(e.env) > 0 {
		cmd.Env = append(cmd.Environ(), e.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Suggestion{}, fmt.Errorf("suggest command timed out after %s", e.timeout)
		}
		if ctx.Err() != nil {
			return Suggestion{}, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Suggestion{}, fmt.Errorf("suggest command exit %d: %s", exitErr.ExitCode(), truncate(stderr.String()))
		}
		return Suggestion{}, fmt.Errorf("run suggest command: %w", err)
	}

	sg := ParseSuggestion(req.Kind, stdout.Bytes())
	if sg.Text == "" && sg.Command == "" {
		return Suggestion{}, errors.New("suggest command returned no output")
	}
	return sg, nil
}

func (e *Exec) payload(req Request) ([]byte, error) {
	if e.prompts != nil {
		text, err := e.prompts.Render(req)
		if err != nil {
			return nil, fmt.Errorf("render prompt: %w", err)
		}
		return []byte(text), nil
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return payload, nil
}

// truncate shortens s to maxStderrLen runes.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxStderrLen {
		return s
	}
	return string(runes[:maxStderrLen]) + "... (truncated)"
}
