// Package backend owns the shell process and the byte streams to and from it.
//
// Two variants share the Backend interface: a PTY backend that attaches the
// shell to a pseudo-terminal, and a pipe backend that redirects the standard
// streams for platforms without one. The variant is chosen once, at Start.
package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCols = 100
	defaultRows = 30

	DefaultWriteTimeout = 3 * time.Second
	DefaultGrace        = 2 * time.Second
)

// Kind identifies the backend variant.
type Kind int

const (
	KindAuto Kind = iota // resolved to DefaultKind at Start
	KindPTY
	KindPipe
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindAuto:
		return "auto"
	case KindPTY:
		return "pty"
	case KindPipe:
		return "pipe"
	default:
		return "unknown"
	}
}

// ParseKind parses "auto", "pty" or "pipe". The empty string means auto.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "pty":
		return KindPTY, nil
	case "pipe":
		return KindPipe, nil
	default:
		return KindAuto, fmt.Errorf("unknown backend %q (want auto, pty or pipe)", s)
	}
}

// DefaultKind returns the variant used for KindAuto on the host platform.
func DefaultKind() Kind {
	if runtime.GOOS == "windows" {
		return KindPipe
	}
	return KindPTY
}

// Backend is one live shell process and its byte streams.
//
// Read is meant for a single reader goroutine and returns io.EOF once the
// process has exited. Write may be called concurrently with Read.
type Backend interface {
	Kind() Kind
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Resize changes the terminal size. It is a no-op on the pipe backend.
	Resize(cols, rows int) error
	// Interrupt delivers the platform interrupt to the foreground job.
	Interrupt() error
	// Terminate kills and reaps the shell. Safe to call more than once.
	Terminate() error
	// Done is closed once the shell process has been reaped.
	Done() <-chan struct{}
	// ExitCode is the shell's exit status. Only valid after Done is closed.
	ExitCode() int
	Pid() int
}

// InputCloser is implemented by backends that can signal end-of-input by
// closing the shell's standard input.
type InputCloser interface {
	CloseInput() error
}

// Options configures the shell process.
type Options struct {
	Kind         Kind
	Shell        string
	Args         []string
	Dir          string
	Env          map[string]string // overrides on top of the current environment
	Cols         int
	Rows         int
	WriteTimeout time.Duration
	Grace        time.Duration // how long Terminate waits before SIGKILL
	Logger       *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Shell == "" {
		o.Shell = DefaultShell()
	}
	if o.Cols <= 0 {
		o.Cols = defaultCols
	}
	if o.Rows <= 0 {
		o.Rows = defaultRows
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Start spawns the shell with the requested variant, or the platform default
// for KindAuto. Spawn failures are returned as *SpawnError.
func Start(opts Options) (Backend, error) {
	opts.setDefaults()
	kind := opts.Kind
	if kind == KindAuto {
		kind = DefaultKind()
	}
	if opts.Args == nil {
		opts.Args = DefaultArgs(opts.Shell, kind)
	}
	opts.Logger.Debug("starting shell",
		zap.String("shell", opts.Shell),
		zap.Strings("args", opts.Args),
		zap.Stringer("backend", kind),
		zap.String("dir", opts.Dir))

	switch kind {
	case KindPTY:
		return startPTY(opts)
	case KindPipe:
		return startPipe(opts)
	default:
		return nil, fmt.Errorf("unknown backend kind %d", kind)
	}
}

// DefaultShell returns $SHELL, falling back to bash (or PowerShell on Windows).
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "powershell.exe"
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// DefaultArgs returns the arguments that make the shell interactive for the
// given variant: a login shell on a PTY, and "-i" on pipes so the shell still
// prints its prompt without a terminal.
func DefaultArgs(shell string, kind Kind) []string {
	name := strings.ToLower(filepath.Base(shell))
	name = strings.TrimSuffix(name, ".exe")
	switch name {
	case "powershell", "pwsh":
		return []string{"-NoLogo"}
	case "cmd":
		return nil
	}
	if kind == KindPTY {
		return []string{"-l", "-i"}
	}
	return []string{"-i"}
}

// mergeEnv returns base with the entries in extra added, replacing any
// existing values for the same keys.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return append([]string(nil), base...)
	}
	env := make([]string, 0, len(base)+len(extra))
	for _, e := range base {
		key := e
		if idx := strings.Index(e, "="); idx >= 0 {
			key = e[:idx]
		}
		if _, override := extra[key]; !override {
			env = append(env, e)
		}
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
