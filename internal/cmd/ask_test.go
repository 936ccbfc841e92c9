package cmd

import (
	"os/exec"
	"strings"
	"testing"

	"aiterm/internal/termstyle"
)

func TestAskCmd_PrintsCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	t.Setenv("AITERM_DIR", t.TempDir())
	prev := termstyle.Enabled()
	termstyle.SetEnabled(false)
	t.Cleanup(func() { termstyle.SetEnabled(prev) })

	stdout, _, err := runRoot(t, "", "ask",
		"--set", `suggest.command=sh -c 'cat >/dev/null; echo "ls -la"'`,
		"list", "everything")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got := strings.TrimSpace(stdout); got != "➜ ls -la" {
		t.Errorf("stdout = %q, want %q", got, "➜ ls -la")
	}
}

func TestAskCmd_NeedsAssistant(t *testing.T) {
	t.Setenv("AITERM_DIR", t.TempDir())
	_, _, err := runRoot(t, "", "ask", "anything")
	if err == nil || !strings.Contains(err.Error(), "no assistant configured") {
		t.Fatalf("err = %v, want no assistant configured", err)
	}
}
