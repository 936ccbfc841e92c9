package cmd

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"aiterm/internal/tracker"
)

// execEnv points aiterm at a throwaway dir and a plain bash on pipes.
func execEnv(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix shell tests")
	}
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	t.Setenv("AITERM_DIR", t.TempDir())
	t.Setenv("AITERM_SHELL", bash)
	t.Setenv("AITERM_SHELL_ARGS", "--norc --noprofile -i")
	t.Setenv("AITERM_BACKEND", "pipe")
}

func runRoot(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func execArgs(commands ...string) []string {
	args := []string{"exec",
		"--set", "shell.env.PS1=$ ",
		"--set", "shell.env.HISTFILE=/dev/null",
		"--set", "history.size=0",
	}
	return append(args, commands...)
}

func TestExecCmd_OutputAndFailure(t *testing.T) {
	execEnv(t)
	stdout, stderr, err := runRoot(t, "", execArgs("echo hi", "nonexistentcmd123", "echo after")...)
	if err == nil || ExitCode(err) != 1 {
		t.Fatalf("err = %v, want exit status 1", err)
	}
	if !IsExit(err) {
		t.Errorf("IsExit(%v) = false", err)
	}
	if !strings.Contains(stdout, "hi\n") {
		t.Errorf("stdout = %q, want the echo output", stdout)
	}
	if strings.Contains(stdout, "after") {
		t.Errorf("stdout = %q: ran past the failure", stdout)
	}

	line, _, _ := strings.Cut(stderr, "\n")
	var rec outcomeRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("stderr is not a JSON line: %q", stderr)
	}
	if rec.Event != "failure" || rec.Command != "nonexistentcmd123" || rec.Status != "failed" {
		t.Errorf("record = %+v", rec)
	}
	if !strings.Contains(rec.Reason, "command not found") {
		t.Errorf("Reason = %q", rec.Reason)
	}
}

func TestExecCmd_KeepGoing(t *testing.T) {
	execEnv(t)
	stdout, _, err := runRoot(t, "", execArgs("--keep-going", "nonexistentcmd123", "echo after")...)
	if ExitCode(err) != 1 {
		t.Fatalf("err = %v, want exit status 1", err)
	}
	if !strings.Contains(stdout, "after\n") {
		t.Errorf("stdout = %q, want output of the second command", stdout)
	}
}

func TestExecCmd_JSON(t *testing.T) {
	execEnv(t)
	stdout, _, err := runRoot(t, "", execArgs("--json", "echo hi")...)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	var rec outcomeRecord
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &rec); err != nil {
		t.Fatalf("stdout is not one JSON line: %q", stdout)
	}
	if rec.Event != "resolved" || rec.Command != "echo hi" || rec.Status != "succeeded" {
		t.Errorf("record = %+v", rec)
	}
}

func TestExecCmd_CommandsFromStdin(t *testing.T) {
	execEnv(t)
	stdout, _, err := runRoot(t, "# setup\necho one\n\necho two\n", execArgs()...)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !strings.Contains(stdout, "one\n") || !strings.Contains(stdout, "two\n") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestExecCmd_NoCommands(t *testing.T) {
	t.Setenv("AITERM_DIR", t.TempDir())
	if _, _, err := runRoot(t, "\n# nothing\n", "exec"); err == nil {
		t.Fatal("expected error with no commands")
	}
}

func TestReadCommands(t *testing.T) {
	got, err := readCommands(strings.NewReader("  ls -la \n#skip\n\npwd"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ls -la", "pwd"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("readCommands() = %q, want %q", got, want)
	}
}

func TestCommandOutput(t *testing.T) {
	p := tracker.DefaultPatterns()
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{"prompt at end", []string{"$ echo hi", "hi", "$ "}, []string{"hi"}},
		{"no prompt yet", []string{"$ make", "building"}, []string{"building"}},
		{"no output", []string{"$ true", "$ "}, []string{}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commandOutput(tt.lines, p)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("commandOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}
