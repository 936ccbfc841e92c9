package tracker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiterm/internal/normalizer"
)

// harness pairs a tracker with a normalizer the way a session does.
type harness struct {
	t    *testing.T
	norm *normalizer.Normalizer
	buf  *normalizer.Buffer
	tr   *Tracker
	outs []Outcome
}

func newHarness(t *testing.T) *harness {
	buf := normalizer.NewBuffer(0)
	return &harness{t: t, norm: normalizer.New(buf), buf: buf, tr: New(DefaultPatterns(), 0)}
}

func (h *harness) submit(cmd string) {
	h.tr.Submit(cmd, h.buf.Mark())
}

func (h *harness) output(s string) {
	if out, ok := h.tr.Observe(h.norm.Process([]byte(s))); ok {
		h.outs = append(h.outs, out)
	}
}

func TestEchoHiSucceeds(t *testing.T) {
	h := newHarness(t)
	h.submit("echo hi\n")
	assert.True(t, h.tr.Running())

	p, ok := h.tr.Pending()
	require.True(t, ok)
	assert.Equal(t, "echo hi", p.Text)
	assert.Equal(t, StatusRunning, p.Status)

	h.output("hi\n$ ")
	require.Len(t, h.outs, 1)
	out := h.outs[0]
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, "echo hi", out.Command)
	assert.Equal(t, []string{"hi"}, out.Output)
	assert.False(t, h.tr.Running())
	_, ok = h.tr.Pending()
	assert.False(t, ok)
}

func TestCommandNotFoundFailsOnce(t *testing.T) {
	h := newHarness(t)
	h.output("$ ")
	h.submit("nonexistentcmd123\n")
	h.output("nonexistentcmd123\r\n")
	h.output("bash: nonexistentcmd123: command not found\r\n")
	h.output("$ ")
	h.output("\r\n$ ")
	h.output("more output\n")

	require.Len(t, h.outs, 1)
	out := h.outs[0]
	assert.True(t, out.Failed())
	assert.Equal(t, "nonexistentcmd123", out.Command)
	assert.Equal(t, "bash: nonexistentcmd123: command not found", out.Reason)
	assert.Equal(t, []string{"bash: nonexistentcmd123: command not found"}, out.Output)
}

func TestEchoLineWithPromptIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.output("$ echo hi")
	h.submit("echo hi")
	h.output("\r\nhi\r\n$ ")

	require.Len(t, h.outs, 1)
	assert.Equal(t, []string{"hi"}, h.outs[0].Output)
}

func TestPromptSplitAcrossChunks(t *testing.T) {
	h := newHarness(t)
	h.submit("true")
	h.output("true\r\n$")
	assert.Empty(t, h.outs)
	h.output(" ")
	require.Len(t, h.outs, 1)
	assert.Equal(t, StatusSucceeded, h.outs[0].Status)
}

func TestPromptBeforeAnyLineDoesNotResolve(t *testing.T) {
	h := newHarness(t)
	h.output("$ ")
	h.submit("sleep 10")
	h.output("")
	assert.Empty(t, h.outs)
	assert.True(t, h.tr.Running())
}

func TestNoFalsePositives(t *testing.T) {
	tests := []struct {
		cmd    string
		output string
	}{
		{"make test", "ok  \tpkg\t0.01s\nBuild finished: 0 errors, 0 warnings\n"},
		{"./lint", "code is error-free\n"},
		{"go run .", "exit status 0\n"},
		{`echo "permission denied"`, "permission denied\n"},
		{"grep -c 'No such file or directory' log.txt", "no such file or directory: 3 hits\n"},
		{"cat notes.md", "The word error: appears here\n"},
		{"ls", "errors.go  error_test.go\n"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			h := newHarness(t)
			h.submit(tt.cmd)
			h.output(tt.cmd + "\n" + tt.output + "$ ")
			require.Len(t, h.outs, 1)
			assert.Equal(t, StatusSucceeded, h.outs[0].Status, "reason %q", h.outs[0].Reason)
		})
	}
}

func TestFailureHeuristics(t *testing.T) {
	tests := []struct {
		cmd    string
		output string
	}{
		{"foo", "zsh: command not found: foo"},
		{"foo", "sh: 1: foo: not found"},
		{"cat missing", "cat: missing: No such file or directory"},
		{"ls /x", "ls: cannot access '/x': No such file or directory"},
		{"./run.sh", "bash: ./run.sh: Permission denied"},
		{"python app.py", "Traceback (most recent call last):"},
		{"go run .", "panic: runtime error: index out of range"},
		{"go build", "exit status 2"},
		{"cargo build", "error[E0425]: cannot find value `x`"},
		{"gcc main.c", "main.c: error: expected ';'"},
		{"git pull", "fatal: not a git repository"},
		{"npm i", "npm ERR! code ENOENT"},
		{"make", "make: *** [Makefile:3: all] Error 1"},
		{"foo", "'foo' is not recognized as an internal or external command,"},
		{"./a.out", "Segmentation fault (core dumped)"},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			h := newHarness(t)
			h.submit(tt.cmd)
			h.output(tt.cmd + "\n" + tt.output + "\n$ ")
			require.Len(t, h.outs, 1)
			assert.True(t, h.outs[0].Failed())
			assert.Equal(t, tt.output, h.outs[0].Reason)
		})
	}
}

func TestExitCodeMarkIsAuthoritative(t *testing.T) {
	h := newHarness(t)
	h.submit("grep -q x file")
	h.output("grep -q x file\r\n\x1b]133;D;1\x07\x1b]133;A\x07$ ")
	require.Len(t, h.outs, 1)
	out := h.outs[0]
	assert.True(t, out.Failed())
	assert.True(t, out.HasExitCode)
	assert.Equal(t, 1, out.ExitCode)
	assert.Equal(t, "exit status 1", out.Reason)

	h.submit("cat x || true")
	h.output("cat x || true\r\ncat: x: No such file or directory\r\n\x1b]133;D;0\x07$ ")
	require.Len(t, h.outs, 2)
	assert.Equal(t, StatusSucceeded, h.outs[1].Status)
	assert.Empty(t, h.outs[1].Reason)
}

func TestMarkResolvesAtItsLine(t *testing.T) {
	h := newHarness(t)
	h.submit("ls")
	h.output("ls\r\nfile\r\n\x1b]133;D\x07\x1b]133;A\x07$ ls2\r\nignored: command not found\r\n")
	require.Len(t, h.outs, 1)
	assert.Equal(t, StatusSucceeded, h.outs[0].Status)
	assert.Equal(t, []string{"file"}, h.outs[0].Output)
}

func TestLongRunningStaysRunning(t *testing.T) {
	h := newHarness(t)
	h.submit("vim notes.txt")
	for i := 0; i < 100; i++ {
		h.output(fmt.Sprintf("\x1b[H\x1b[2Jline %d\n~\n~\n", i))
	}
	assert.Empty(t, h.outs)
	assert.True(t, h.tr.Running())
}

func TestProgressPercentStaysRunning(t *testing.T) {
	h := newHarness(t)
	h.submit("curl -O https://example.com/big.iso")
	h.output("downloading big.iso\n")
	for _, pct := range []int{5, 45, 99} {
		h.output(fmt.Sprintf("\r%d%% ", pct))
	}
	assert.Empty(t, h.outs)
	assert.True(t, h.tr.Running())

	h.output("\r100% \ndone\n$ ")
	require.Len(t, h.outs, 1)
	assert.Equal(t, StatusSucceeded, h.outs[0].Status)
}

func TestSupersede(t *testing.T) {
	h := newHarness(t)
	h.submit("python3")
	h.output("python3\nPython 3.12\n>>>")

	prev, ok := h.tr.Submit("print(1)", h.buf.Mark())
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, prev.Status)
	assert.Equal(t, "python3", prev.Command)

	p, _ := h.tr.Pending()
	assert.Equal(t, "print(1)", p.Text)
}

func TestBlankSubmitIgnored(t *testing.T) {
	tr := New(DefaultPatterns(), 0)
	_, ok := tr.Submit("  \n", 0)
	assert.False(t, ok)
	assert.False(t, tr.Running())
}

func TestCaptureKeepsLastLines(t *testing.T) {
	h := newHarness(t)
	h.tr = New(DefaultPatterns(), 3)
	h.submit("seq 10")
	h.output("seq 10\n1\n2\n3\n4\n5\n$ ")
	require.Len(t, h.outs, 1)
	assert.Equal(t, []string{"3", "4", "5"}, h.outs[0].Output)
	assert.Equal(t, "3\n4\n5", h.outs[0].OutputText())
}

func TestAbort(t *testing.T) {
	h := newHarness(t)
	_, ok := h.tr.Abort()
	assert.False(t, ok)

	h.submit("exit")
	out, ok := h.tr.Abort()
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, out.Status)

	h.submit("cat x")
	h.output("cat x\ncat: x: No such file or directory\n")
	out, ok = h.tr.Abort()
	require.True(t, ok)
	assert.True(t, out.Failed())
}

func TestCompilePatterns(t *testing.T) {
	_, err := CompilePatterns([]string{"("}, nil)
	assert.Error(t, err)

	p, err := CompilePatterns([]string{`^>> $`}, []string{`BOOM`})
	require.NoError(t, err)
	assert.True(t, p.IsPrompt(">> "))
	assert.False(t, p.IsPrompt("$ "))
	_, hit := p.MatchError("it went BOOM", "run")
	assert.True(t, hit)
}

func TestIsPrompt(t *testing.T) {
	p := DefaultPatterns()
	for _, s := range []string{"$ ", "user@host:~/src$ ", "root# ", "% ", "host% ", "❯ ", "PS C:\\Users\\me> ", `C:\Users\me>`} {
		assert.True(t, p.IsPrompt(s), "%q", s)
	}
	for _, s := range []string{"", "   ", "hi", "50%", "45% ", "Downloading 100% ", "costs $5", "<div>"} {
		assert.False(t, p.IsPrompt(s), "%q", s)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
}
