package backend

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// sessionGroups returns the process groups of every process in session sid.
// pty.Start makes the shell a session leader, so its pid is the sid.
func sessionGroups(sid int) []int {
	if sid <= 0 {
		return nil
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	var groups []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if s, err := unix.Getsid(pid); err != nil || s != sid {
			continue
		}
		if pg, err := unix.Getpgid(pid); err == nil {
			groups = append(groups, pg)
		}
	}
	return groups
}
