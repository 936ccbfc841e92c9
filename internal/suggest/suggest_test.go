package suggest

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		reply   string
		text    string
		command string
	}{
		{
			name:    "json object",
			kind:    KindTroubleshoot,
			reply:   `{"text":"missing package","command":"` + "`apt install jq`" + `"}`,
			text:    "missing package",
			command: "apt install jq",
		},
		{
			name:    "problem solution format",
			kind:    KindTroubleshoot,
			reply:   "Problem: jq is not installed.\nSolution: `sudo apt install jq`",
			text:    "Problem: jq is not installed.\nSolution: `sudo apt install jq`",
			command: "sudo apt install jq",
		},
		{
			name:  "solution is prose",
			kind:  KindTroubleshoot,
			reply: "Problem: typo.\nSolution: Check the spelling of the command and try again.",
			text:  "Problem: typo.\nSolution: Check the spelling of the command and try again.",
		},
		{
			name:    "command label",
			kind:    KindTroubleshoot,
			reply:   "The directory does not exist.\ncommand: $ mkdir -p out",
			text:    "The directory does not exist.\ncommand: $ mkdir -p out",
			command: "mkdir -p out",
		},
		{
			name:    "ask one liner",
			kind:    KindAsk,
			reply:   "  ls -la  \n",
			text:    "ls -la",
			command: "ls -la",
		},
		{
			name:  "ask multi line without label",
			kind:  KindAsk,
			reply: "You could try\nls -la",
			text:  "You could try\nls -la",
		},
		{
			name:  "troubleshoot one liner is not a command",
			kind:  KindTroubleshoot,
			reply: "ls -la",
			text:  "ls -la",
		},
		{
			name:  "empty",
			kind:  KindAsk,
			reply: "   ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSuggestion(tt.kind, []byte(tt.reply))
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.command, got.Command)
		})
	}
}

func TestNop(t *testing.T) {
	_, err := Nop{}.Suggest(context.Background(), Request{Kind: KindAsk})
	assert.ErrorIs(t, err, ErrDisabled)
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExec_ParsesStdout(t *testing.T) {
	requireSh(t)
	e, err := NewExec(`sh -c 'cat >/dev/null; echo "Problem: no such dir"; echo "Solution: mkdir out"'`, time.Second*5)
	require.NoError(t, err)

	sg, err := e.Suggest(context.Background(), Request{Kind: KindTroubleshoot, Command: "cd out"})
	require.NoError(t, err)
	assert.Equal(t, "mkdir out", sg.Command)
	assert.Contains(t, sg.Text, "Problem: no such dir")
}

func TestExec_ReceivesRequestJSON(t *testing.T) {
	requireSh(t)
	e, err := NewExec(`sh -c 'cat'`, time.Second*5)
	require.NoError(t, err)

	sg, err := e.Suggest(context.Background(), Request{Kind: KindAsk, Query: "list files", OS: "linux", Shell: "bash"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"ask","query":"list files","os":"linux","shell":"bash"}`, sg.Text)
}

func TestExec_Env(t *testing.T) {
	requireSh(t)
	e, err := NewExec(`sh -c 'cat >/dev/null; echo "$AITERM_TEST_MODEL"'`, time.Second*5)
	require.NoError(t, err)

	sg, err := e.WithEnv([]string{"AITERM_TEST_MODEL=tiny"}).Suggest(context.Background(), Request{Kind: KindTroubleshoot})
	require.NoError(t, err)
	assert.Equal(t, "tiny", sg.Text)
}

func TestExec_ExitError(t *testing.T) {
	requireSh(t)
	e, err := NewExec(`sh -c 'cat >/dev/null; echo "bad key" >&2; exit 3'`, time.Second*5)
	require.NoError(t, err)

	_, err = e.Suggest(context.Background(), Request{Kind: KindAsk})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit 3")
	assert.Contains(t, err.Error(), "bad key")
}

func TestExec_EmptyOutput(t *testing.T) {
	requireSh(t)
	e, err := NewExec(`sh -c 'cat >/dev/null'`, time.Second*5)
	require.NoError(t, err)

	_, err = e.Suggest(context.Background(), Request{Kind: KindAsk})
	assert.Error(t, err)
}

func TestExec_Timeout(t *testing.T) {
	requireSh(t)
	e, err := NewExec(`sh -c 'sleep 5'`, 100*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Suggest(context.Background(), Request{Kind: KindAsk})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNewExec_Invalid(t *testing.T) {
	_, err := NewExec("", 0)
	assert.Error(t, err)

	_, err = NewExec(`"unterminated`, 0)
	assert.Error(t, err)

	_, err = NewExec("aiterm-no-such-program-xyz", 0)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	long := make([]rune, maxStderrLen+10)
	for i := range long {
		long[i] = 'x'
	}
	got := truncate(string(long))
	assert.Equal(t, maxStderrLen+len("... (truncated)"), len(got))
	assert.Equal(t, "short", truncate("  short\n"))
}

func TestDispatcher_InOrder(t *testing.T) {
	s := Func(func(ctx context.Context, req Request) (Suggestion, error) {
		if req.Query == "fail" {
			return Suggestion{}, errors.New("boom")
		}
		return Suggestion{Text: "re: " + req.Query}, nil
	})
	d := NewDispatcher(s, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.True(t, d.Enqueue(Request{Kind: KindAsk, Query: "one"}))
	require.True(t, d.Enqueue(Request{Kind: KindAsk, Query: "fail"}))

	first := <-d.Results()
	assert.NoError(t, first.Err)
	assert.Equal(t, "re: one", first.Suggestion.Text)

	second := <-d.Results()
	assert.EqualError(t, second.Err, "boom")
	assert.Equal(t, "fail", second.Request.Query)
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(Nop{}, nil)
	for i := 0; i < dispatchQueueSize; i++ {
		require.True(t, d.Enqueue(Request{Kind: KindAsk}))
	}
	assert.False(t, d.Enqueue(Request{Kind: KindAsk}))
}

func TestDispatcher_ClosesResultsOnCancel(t *testing.T) {
	d := NewDispatcher(Nop{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, ok := <-d.Results()
	assert.False(t, ok)
}
