package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"aiterm/internal/backend"
	"aiterm/internal/suggest"
	"aiterm/internal/termstyle"
)

func newAskCmd(overrides *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant for a command",
		Long: `Ask the configured assistant for a shell command, without starting a
shell. The answer is printed and nothing is run.

  aiterm ask 'find files larger than 100MB'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*overrides)
			if err != nil {
				return err
			}
			defer e.close()

			sug, err := newSuggester(e.cfg)
			if err != nil {
				return err
			}
			if _, off := sug.(suggest.Nop); off {
				return errors.New("no assistant configured; set suggest.command")
			}

			shell := e.cfg.Shell.Path
			if shell == "" {
				shell = backend.DefaultShell()
			}
			dir := e.cfg.Shell.Dir
			if dir == "" {
				dir, _ = os.Getwd()
			}
			req := suggest.Request{
				Kind:  suggest.KindAsk,
				Query: strings.Join(args, " "),
				OS:    runtime.GOOS,
				Shell: filepath.Base(shell),
				Dir:   dir,
			}

			s, err := sug.Suggest(cmd.Context(), req)
			e.activity.Suggestion(string(req.Kind), "", s.Command, err)
			if err != nil {
				return err
			}
			if s.Text != "" && s.Text != s.Command {
				fmt.Fprintln(cmd.OutOrStdout(), s.Text)
			}
			if s.Command != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", termstyle.CyanArrow(), termstyle.Bold(s.Command))
			}
			return nil
		},
	}
}
