package backend

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// pipeBackend runs the shell with redirected standard streams. There is no
// line discipline: no echo, no line editing, and stdout and stderr arrive
// merged on one stream.
type pipeBackend struct {
	*proc
	stdin   io.WriteCloser
	out     *os.File // read end of the merged stdout/stderr pipe
	timeout time.Duration
}

func startPipe(opts Options) (Backend, error) {
	cmd := exec.Command(opts.Shell, opts.Args...)
	cmd.Dir = opts.Dir
	env := map[string]string{"TERM": "dumb"}
	for k, v := range opts.Env {
		env[k] = v
	}
	cmd.Env = mergeEnv(os.Environ(), env)
	cmd.SysProcAttr = newSysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Shell: opts.Shell, Err: err}
	}
	r, w, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Shell: opts.Shell, Err: err}
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		stdin.Close()
		r.Close()
		w.Close()
		return nil, &SpawnError{Shell: opts.Shell, Err: err}
	}
	// The child holds its own copy; ours must go so Read sees EOF on exit.
	w.Close()

	b := &pipeBackend{
		proc:    newProc(cmd, opts.Grace, opts.Logger),
		stdin:   stdin,
		out:     r,
		timeout: opts.WriteTimeout,
	}
	go b.reap()
	opts.Logger.Info("shell started", zap.Int("pid", b.pid()), zap.Stringer("backend", KindPipe))
	return b, nil
}

func (b *pipeBackend) Kind() Kind { return KindPipe }

func (b *pipeBackend) Pid() int { return b.pid() }

func (b *pipeBackend) Done() <-chan struct{} { return b.done }

func (b *pipeBackend) ExitCode() int { return int(b.exitCode.Load()) }

func (b *pipeBackend) Read(p []byte) (int, error) {
	n, err := b.out.Read(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || !b.alive() {
		return n, io.EOF
	}
	return n, &IOError{Op: "read", Err: err}
}

// Write sends raw bytes to the shell's stdin. Line endings are translated to
// CRLF on Windows, where console shells expect them.
func (b *pipeBackend) Write(p []byte) (int, error) {
	data := p
	if runtime.GOOS == "windows" {
		data = toCRLF(p)
	}
	n, err := b.write(b.stdin, data, b.timeout, func() { go b.Terminate() })
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Resize is a no-op: a pipe has no window size.
func (b *pipeBackend) Resize(cols, rows int) error {
	return nil
}

func (b *pipeBackend) Interrupt() error {
	if !b.alive() {
		return ErrSessionTerminated
	}
	if err := interruptProcess(b.cmd.Process); err != nil {
		_, werr := b.Write([]byte{0x03})
		return werr
	}
	return nil
}

// CloseInput closes the shell's stdin, the pipe equivalent of ^D.
func (b *pipeBackend) CloseInput() error {
	if !b.alive() {
		return ErrSessionTerminated
	}
	return b.stdin.Close()
}

func (b *pipeBackend) Terminate() error {
	return b.terminate(b.stdin, b.out)
}

func toCRLF(p []byte) []byte {
	out := make([]byte, 0, len(p)+4)
	for i, c := range p {
		if c == '\n' && (i == 0 || p[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	return out
}
