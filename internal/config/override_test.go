package config

import (
	"strings"
	"testing"
	"time"
)

func TestApplyOverrides_SimpleString(t *testing.T) {
	cfg := Default()
	if err := ApplyOverrides(cfg, []string{"shell.dir=/workspace/project"}); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if cfg.Shell.Dir != "/workspace/project" {
		t.Errorf("Shell.Dir = %q, want %q", cfg.Shell.Dir, "/workspace/project")
	}
}

func TestApplyOverrides_TypedValues(t *testing.T) {
	cfg := Default()
	err := ApplyOverrides(cfg, []string{
		"terminal.max_lines=200",
		"log.development=true",
		"shell.write_timeout=750ms",
		"shell.args=-i -l",
		"tracker.prompt_patterns=^> $",
	})
	if err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if cfg.Terminal.MaxLines != 200 {
		t.Errorf("MaxLines = %d", cfg.Terminal.MaxLines)
	}
	if !cfg.Log.Development {
		t.Error("Log.Development should be true")
	}
	if cfg.Shell.WriteTimeout != 750*time.Millisecond {
		t.Errorf("WriteTimeout = %v", cfg.Shell.WriteTimeout)
	}
	if cfg.Shell.Args != "-i -l" {
		t.Errorf("Args = %q", cfg.Shell.Args)
	}
	if len(cfg.Tracker.PromptPatterns) != 1 || cfg.Tracker.PromptPatterns[0] != "^> $" {
		t.Errorf("PromptPatterns = %q", cfg.Tracker.PromptPatterns)
	}
}

func TestApplyOverrides_MapEntry(t *testing.T) {
	cfg := Default()
	if err := ApplyOverrides(cfg, []string{"shell.env.LANG=C", "shell.env.EMPTY="}); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if cfg.Shell.Env["LANG"] != "C" {
		t.Errorf("env = %v", cfg.Shell.Env)
	}
	if v, ok := cfg.Shell.Env["EMPTY"]; !ok || v != "" {
		t.Errorf("empty env value not set: %v", cfg.Shell.Env)
	}
}

func TestApplyOverrides_ValueWithEquals(t *testing.T) {
	cfg := Default()
	if err := ApplyOverrides(cfg, []string{"suggest.command=helper --opt=1"}); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if cfg.Suggest.Command != "helper --opt=1" {
		t.Errorf("Command = %q", cfg.Suggest.Command)
	}
}

func TestApplyOverrides_Errors(t *testing.T) {
	tests := []struct {
		override string
		wantErr  string
	}{
		{"noequals", "must be key=value"},
		{"nonexistent=value", "unknown field"},
		{"shell.nope=1", "unknown field"},
		{"terminal.cols=wide", "expected int"},
		{"log.activity=maybe", "expected bool"},
		{"shell.close_grace=soon", "expected duration"},
		{"shell.path.x=1", "not a struct"},
		{"shell.env=1", "exactly one map key"},
		{"shell.backend=serial", "unknown backend"},
	}
	for _, tt := range tests {
		t.Run(tt.override, func(t *testing.T) {
			err := ApplyOverrides(Default(), []string{tt.override})
			if err == nil {
				t.Fatalf("expected error for %q", tt.override)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
