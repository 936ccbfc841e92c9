//go:build !windows

package backend

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ptyBackend runs the shell on the slave side of a pseudo-terminal. The
// line discipline provides echo, line editing and signal generation.
type ptyBackend struct {
	*proc
	ptm     *os.File // PTY master
	timeout time.Duration
}

func startPTY(opts Options) (Backend, error) {
	cmd := exec.Command(opts.Shell, opts.Args...)
	cmd.Dir = opts.Dir
	env := map[string]string{"TERM": "xterm-256color"}
	for k, v := range opts.Env {
		env[k] = v
	}
	cmd.Env = mergeEnv(os.Environ(), env)

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(opts.Rows),
		Cols: uint16(opts.Cols),
	})
	if err != nil {
		return nil, &SpawnError{Shell: opts.Shell, Err: err}
	}
	if nb, err := pollableMaster(ptm); err != nil {
		opts.Logger.Warn("pty master stays blocking", zap.Error(err))
	} else {
		ptm = nb
	}

	b := &ptyBackend{
		proc:    newProc(cmd, opts.Grace, opts.Logger),
		ptm:     ptm,
		timeout: opts.WriteTimeout,
	}
	b.proc.jobs = b.sessionJobs
	go b.reap()
	opts.Logger.Info("shell started", zap.Int("pid", b.pid()), zap.Stringer("backend", KindPTY))
	return b, nil
}

// pollableMaster reopens the master in non-blocking mode so the runtime
// poller owns it and Close wakes a pending Read. The returned file replaces
// ptm, which is closed.
func pollableMaster(ptm *os.File) (*os.File, error) {
	rc, err := ptm.SyscallConn()
	if err != nil {
		return nil, err
	}
	fd := -1
	var dupErr error
	syscall.ForkLock.RLock()
	err = rc.Control(func(raw uintptr) {
		fd, dupErr = unix.Dup(int(raw))
		if dupErr == nil {
			unix.CloseOnExec(fd)
		}
	})
	syscall.ForkLock.RUnlock()
	if err == nil {
		err = dupErr
	}
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	name := ptm.Name()
	ptm.Close()
	return os.NewFile(uintptr(fd), name), nil
}

// control runs fn on the master's descriptor without taking it out of
// non-blocking mode, which ptm.Fd() would do.
func (b *ptyBackend) control(fn func(fd int) error) error {
	rc, err := b.ptm.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return err
	}
	return opErr
}

// sessionJobs lists the process groups of the shell's jobs: the terminal's
// foreground group and every group in the shell's session. With job control
// each job leads its own group, out of reach of a signal to the shell's.
func (b *ptyBackend) sessionJobs() []int {
	var groups []int
	b.control(func(fd int) error {
		pg, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
		if err == nil {
			groups = append(groups, pg)
		}
		return err
	})
	return append(groups, sessionGroups(b.pid())...)
}

func (b *ptyBackend) Kind() Kind { return KindPTY }

func (b *ptyBackend) Pid() int { return b.pid() }

func (b *ptyBackend) Done() <-chan struct{} { return b.done }

func (b *ptyBackend) ExitCode() int { return int(b.exitCode.Load()) }

// Read reads terminal output. Linux reports EIO on the master once the
// slave side is closed; that and a closed master both map to io.EOF.
func (b *ptyBackend) Read(p []byte) (int, error) {
	n, err := b.ptm.Read(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EIO) || !b.alive() {
		return n, io.EOF
	}
	return n, &IOError{Op: "read", Err: err}
}

func (b *ptyBackend) Write(p []byte) (int, error) {
	return b.write(b.ptm, p, b.timeout, func() { go b.Terminate() })
}

func (b *ptyBackend) Resize(cols, rows int) error {
	if !b.alive() {
		return ErrSessionTerminated
	}
	return b.control(func(fd int) error {
		return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, &unix.Winsize{Row: uint16(rows), Col: uint16(cols)})
	})
}

// Interrupt writes ETX; the line discipline turns it into SIGINT for the
// foreground process group.
func (b *ptyBackend) Interrupt() error {
	_, err := b.Write([]byte{0x03})
	return err
}

func (b *ptyBackend) Terminate() error {
	return b.terminate(b.ptm)
}
