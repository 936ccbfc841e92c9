//go:build windows

package backend

import (
	"os"
	"syscall"
)

func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Windows shells have no job groups to sweep.
func ownGroup() int { return -1 }

// Windows has no hangup signal, so the first step already kills.
func hangup(p *os.Process, _ []int) {
	p.Kill()
}

func kill(p *os.Process, _ []int) {
	p.Kill()
}

// interruptProcess is not available for pipe shells on Windows; the caller
// falls back to writing ETX.
func interruptProcess(p *os.Process) error {
	return syscall.EWINDOWS
}
