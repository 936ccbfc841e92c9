package backend

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// proc tracks the lifecycle of the shell process shared by both variants.
type proc struct {
	cmd   *exec.Cmd
	grace time.Duration
	log   *zap.Logger
	jobs  func() []int // process groups outside the shell's own; nil for none

	done       chan struct{}
	writing    chan struct{} // holds a token while a write is in flight
	exitCode   atomic.Int64
	terminated atomic.Bool
	termOnce   sync.Once
	termErr    error
}

func newProc(cmd *exec.Cmd, grace time.Duration, log *zap.Logger) *proc {
	p := &proc{cmd: cmd, grace: grace, log: log, done: make(chan struct{}), writing: make(chan struct{}, 1)}
	p.exitCode.Store(-1)
	return p
}

// reap waits for the process and records its exit status. Run it in its own
// goroutine right after Start so the child never lingers as a zombie.
func (p *proc) reap() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	p.exitCode.Store(int64(code))
	p.log.Debug("shell exited", zap.Int("pid", p.pid()), zap.Int("exit_code", code))
	close(p.done)
}

func (p *proc) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *proc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// alive reports whether writes should still be attempted.
func (p *proc) alive() bool {
	return !p.terminated.Load() && !p.exited()
}

// terminate asks the shell and its jobs to hang up, escalates to SIGKILL
// after the grace period, and closes the given streams. Jobs are killed even
// when the shell exits on its own: a job that ignores the hangup would keep
// the terminal open. Only the first call has effect.
func (p *proc) terminate(closers ...io.Closer) error {
	p.termOnce.Do(func() {
		p.terminated.Store(true)
		pid := p.pid()
		if pid > 0 {
			groups := p.jobGroups()
			if !p.exited() {
				hangup(p.cmd.Process, groups)
				select {
				case <-p.done:
				case <-time.After(p.grace):
					p.log.Warn("shell did not exit after hangup, killing", zap.Int("pid", pid))
				}
			}
			kill(p.cmd.Process, append(groups, p.jobGroups()...))
			if !p.exited() {
				select {
				case <-p.done:
				case <-time.After(p.grace):
					p.termErr = fmt.Errorf("shell process %d did not exit", pid)
				}
			}
		}
		for _, c := range closers {
			if c != nil {
				c.Close()
			}
		}
	})
	return p.termErr
}

// jobGroups returns the job process groups, without duplicates, the
// shell's own group or ours.
func (p *proc) jobGroups() []int {
	if p.jobs == nil {
		return nil
	}
	skip := map[int]bool{0: true, 1: true, p.pid(): true, ownGroup(): true}
	var groups []int
	for _, g := range p.jobs() {
		if g > 0 && !skip[g] {
			skip[g] = true
			groups = append(groups, g)
		}
	}
	return groups
}

// writeTimeout writes p to w, giving up after timeout. A write that blocks
// means the child is not reading its input. The write itself carries on in
// the background; release runs once it returns.
func writeTimeout(w io.Writer, p []byte, timeout time.Duration, release func()) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer release()
		n, err := w.Write(p)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrWriteTimeout
	}
}

// write is the shared Write path: it refuses writes on a dead session and
// degrades the session on a failed write. Writes are serialized; one still
// stuck after an earlier timeout makes the next fail with ErrWriteTimeout
// once its own deadline passes.
func (p *proc) write(w io.Writer, b []byte, timeout time.Duration, onFail func()) (int, error) {
	if !p.alive() {
		return 0, ErrSessionTerminated
	}
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	select {
	case p.writing <- struct{}{}:
		timer.Stop()
	case <-timer.C:
		return 0, ErrWriteTimeout
	}
	n, err := writeTimeout(w, b, time.Until(deadline), func() { <-p.writing })
	if err == nil {
		return n, nil
	}
	if errors.Is(err, ErrWriteTimeout) {
		p.log.Warn("shell write timed out", zap.Int("bytes", len(b)))
		return n, err
	}
	if !p.alive() {
		return n, ErrSessionTerminated
	}
	p.log.Warn("shell write failed, terminating session", zap.Error(err))
	onFail()
	return n, &IOError{Op: "write", Err: err}
}
