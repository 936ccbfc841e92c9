//go:build !windows

package backend

import (
	"os"
	"syscall"
)

// newSysProcAttr puts pipe-backed shells in their own process group so
// signals reach the shell and all of its children.
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals the whole process group led by p, falling back to the
// process itself if the group is gone.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		return p.Signal(sig)
	}
	return nil
}

// signalJobs signals each of the given process groups.
func signalJobs(groups []int, sig syscall.Signal) {
	for _, g := range groups {
		syscall.Kill(-g, sig)
	}
}

func ownGroup() int { return syscall.Getpgrp() }

func hangup(p *os.Process, jobs []int) {
	for _, sig := range []syscall.Signal{syscall.SIGHUP, syscall.SIGTERM} {
		signalGroup(p, sig)
		signalJobs(jobs, sig)
	}
}

func kill(p *os.Process, jobs []int) {
	signalGroup(p, syscall.SIGKILL)
	signalJobs(jobs, syscall.SIGKILL)
}

func interruptProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGINT)
}
