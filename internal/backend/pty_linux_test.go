package backend

import (
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gone reports whether pid no longer exists or is a zombie.
func gone(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return true
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	// The state follows the parenthesised command name.
	s := string(stat)
	i := strings.LastIndexByte(s, ')')
	return i >= 0 && i+2 < len(s) && s[i+2] == 'Z'
}

func TestPTY_TerminateKillsJobs(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	b, err := Start(Options{
		Kind:  KindPTY,
		Shell: bash,
		Args:  []string{"--norc", "--noprofile", "-i"},
		Env:   map[string]string{"PS1": "$ "},
		Grace: time.Second,
	})
	require.NoError(t, err)
	defer b.Terminate()

	// The echoed command line has no digits after "job=".
	jobRe := regexp.MustCompile(`job=(\d+)`)
	found := make(chan int, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		var out strings.Builder
		buf := make([]byte, 1024)
		sent := false
		for {
			n, err := b.Read(buf)
			out.Write(buf[:n])
			if m := jobRe.FindStringSubmatch(out.String()); m != nil && !sent {
				pid, _ := strconv.Atoi(m[1])
				found <- pid
				sent = true
			}
			if err != nil {
				return
			}
		}
	}()

	_, err = b.Write([]byte("(trap '' HUP TERM; echo job=$BASHPID; exec sleep 8888)\r"))
	require.NoError(t, err)

	var pid int
	select {
	case pid = <-found:
	case <-time.After(10 * time.Second):
		t.Fatal("job did not start")
	}
	require.Greater(t, pid, 0)

	terminated := make(chan error, 1)
	go func() { terminated <- b.Terminate() }()
	select {
	case <-terminated:
	case <-time.After(10 * time.Second):
		t.Fatal("Terminate did not return")
	}

	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("shell was not reaped")
	}
	select {
	case <-readerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after Terminate")
	}
	assert.Eventually(t, func() bool { return gone(pid) }, 5*time.Second, 20*time.Millisecond,
		"job %d survived Terminate", pid)
}
