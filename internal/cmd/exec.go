package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aiterm/internal/session"
	"aiterm/internal/suggest"
	"aiterm/internal/termstyle"
	"aiterm/internal/tracker"
)

// outcomeRecord is the JSON form of a resolved command.
type outcomeRecord struct {
	Event      string              `json:"event"`
	Command    string              `json:"command"`
	Status     string              `json:"status"`
	ExitCode   *int                `json:"exit_code,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Output     []string            `json:"output,omitempty"`
	DurationMs int64               `json:"duration_ms"`
	Suggestion *suggest.Suggestion `json:"suggestion,omitempty"`
	SuggestErr string              `json:"suggestion_error,omitempty"`
}

func newExecCmd(overrides *[]string) *cobra.Command {
	var timeout time.Duration
	var jsonOut bool
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "exec [flags] [command...]",
		Short: "Run commands in a headless shell",
		Long: `Run each argument as one command line in a fresh shell, waiting for
each to finish before submitting the next. With no arguments, command lines
are read from stdin.

Output goes to stdout. Each failed command is reported as a JSON line on
stderr, with the assistant's suggestion when one is configured.

  aiterm exec 'make test' 'git status'
  aiterm exec --json < commands.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			commands := args
			if len(commands) == 0 {
				var err error
				commands, err = readCommands(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			if len(commands) == 0 {
				return fmt.Errorf("no commands given")
			}

			e, err := setup(*overrides)
			if err != nil {
				return err
			}
			defer e.close()

			opts, err := e.sessionOptions()
			if err != nil {
				return err
			}
			x := &executor{
				sess:     session.New(opts),
				patterns: opts.Patterns,
				waitAI:   opts.AutoSuggest && e.cfg.Suggest.Command != "",
				aiWait:   e.cfg.Suggest.Timeout + time.Second,
				timeout:  timeout,
				stdout:   cmd.OutOrStdout(),
				stderr:   cmd.ErrOrStderr(),
				jsonOut:  jsonOut,
				log:      e.log,
			}

			ctx := cmd.Context()
			if err := x.sess.Start(ctx); err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 2*opts.CloseGrace)
				defer cancel()
				if err := x.sess.Close(closeCtx); err != nil {
					e.log.Warn("close session", zap.Error(err))
				}
			}()

			failed := 0
			for _, line := range commands {
				ok, err := x.run(ctx, line)
				if err != nil {
					return err
				}
				if !ok {
					failed++
					if !keepGoing {
						break
					}
				}
			}
			if failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time limit per command")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print every command as a JSON line on stdout instead of its output")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Continue after a failed command")

	return cmd
}

// readCommands reads one command per line, skipping blanks and # comments.
func readCommands(r io.Reader) ([]string, error) {
	var commands []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		commands = append(commands, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	return commands, nil
}

type executor struct {
	sess     *session.Session
	patterns tracker.Patterns
	waitAI   bool
	aiWait   time.Duration
	timeout  time.Duration
	stdout   io.Writer
	stderr   io.Writer
	jsonOut  bool
	log      *zap.Logger
}

// run executes one command line and reports it. ok is false when the
// command failed; err is set only when the session itself broke.
func (x *executor) run(ctx context.Context, line string) (ok bool, err error) {
	runCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if err := x.sess.WaitPrompt(runCtx); err != nil {
		return false, fmt.Errorf("wait for prompt: %w", err)
	}
	out, err := x.sess.Run(runCtx, line)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			x.sess.Interrupt()
			return false, fmt.Errorf("%s: timed out after %s", line, x.timeout)
		}
		return false, err
	}

	rec := outcomeRecord{
		Event:      "resolved",
		Command:    out.Command,
		Status:     out.Status.String(),
		Reason:     out.Reason,
		DurationMs: out.Duration().Milliseconds(),
	}
	if out.HasExitCode {
		code := out.ExitCode
		rec.ExitCode = &code
	}
	if out.Failed() {
		rec.Event = "failure"
		rec.Output = out.Output
		if x.waitAI {
			x.awaitSuggestion(ctx, &rec)
		}
	}
	x.drainEvents()

	if x.jsonOut {
		return !out.Failed(), writeJSON(x.stdout, rec)
	}
	for _, l := range commandOutput(x.sess.LinesSince(out.Marker), x.patterns) {
		fmt.Fprintln(x.stdout, l)
	}
	if out.Failed() {
		if err := writeJSON(x.stderr, rec); err != nil {
			return false, err
		}
		if rec.Suggestion != nil && rec.Suggestion.Command != "" {
			fmt.Fprintf(x.stderr, "%s suggested: %s\n", termstyle.CyanArrow(), termstyle.Bold(rec.Suggestion.Command))
		}
	}
	return !out.Failed(), nil
}

// awaitSuggestion waits for the assistant's answer to the failure just
// reported.
func (x *executor) awaitSuggestion(ctx context.Context, rec *outcomeRecord) {
	timer := time.NewTimer(x.aiWait)
	defer timer.Stop()
	for {
		select {
		case ev := <-x.sess.Events():
			switch ev.Kind {
			case session.EventSuggestion:
				s := ev.Suggestion
				rec.Suggestion = &s
				return
			case session.EventSuggestionError:
				rec.SuggestErr = ev.Err.Error()
				return
			}
		case <-timer.C:
			rec.SuggestErr = "no suggestion before timeout"
			return
		case <-ctx.Done():
			return
		}
	}
}

func (x *executor) drainEvents() {
	for {
		select {
		case ev := <-x.sess.Events():
			x.log.Debug("event", zap.Stringer("kind", ev.Kind), zap.String("command", ev.Outcome.Command))
		default:
			return
		}
	}
}

// commandOutput strips the submitted line and the next prompt from the
// lines a command produced.
func commandOutput(lines []string, p tracker.Patterns) []string {
	if len(lines) > 0 {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && p.IsPrompt(lines[n-1]) {
		lines = lines[:n-1]
	}
	return lines
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
