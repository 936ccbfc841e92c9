package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionTerminated is returned by Write and Interrupt once the shell
	// process has exited or Terminate has been called.
	ErrSessionTerminated = errors.New("shell session terminated")

	// ErrWriteTimeout is returned by Write when the shell does not drain its
	// input within the configured deadline. The child is most likely hung.
	// The timed-out write is not cancelled and may still be delivered later;
	// until it completes, further writes fail with ErrWriteTimeout rather
	// than queue behind it.
	ErrWriteTimeout = errors.New("shell write timed out")

	// ErrPTYUnsupported is returned when a PTY backend is requested on a
	// platform without pseudo-terminal support.
	ErrPTYUnsupported = errors.New("pty backend not supported on this platform")
)

// SpawnError reports that the shell executable could not be started
// (not found, permission denied, ...). It is fatal to session start.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn shell %q: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IOError reports a read or write failure on a session that was still
// alive. The backend degrades to the terminated state after returning one.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("shell %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
