package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aiterm/internal/client"
	"aiterm/internal/session"
	"aiterm/internal/termstyle"
)

func newRunCmd(overrides *[]string) *cobra.Command {
	var shell string
	var backendName string
	var screen bool
	var noSuggest bool

	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Start an interactive shell",
		Long: `Start an interactive shell in this terminal.

Failed commands and assistant suggestions appear below the shell output.

  Ctrl-G   run the last suggested command
  Ctrl-Q   ask the assistant a question
  Ctrl-]   leave aiterm (the shell is stopped)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sets []string
			if cmd.Flags().Changed("shell") {
				sets = append(sets, "shell.path="+shell)
			}
			if cmd.Flags().Changed("backend") {
				sets = append(sets, "shell.backend="+backendName)
			}
			if noSuggest {
				sets = append(sets, "suggest.command=")
			}

			e, err := setup(append(*overrides, sets...))
			if err != nil {
				return err
			}
			defer e.close()

			opts, err := e.sessionOptions()
			if err != nil {
				return err
			}
			opts.Screen = screen

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			sess := session.New(opts)
			if err := sess.Start(ctx); err != nil {
				return err
			}

			c := client.New(sess, client.Options{
				In:     os.Stdin,
				Out:    os.Stdout,
				Rows:   e.cfg.Terminal.Rows,
				Cols:   e.cfg.Terminal.Cols,
				Screen: screen,
				Logger: e.log,
			})
			runErr := c.Run(ctx)

			exited := false
			select {
			case <-sess.Done():
				exited = true
			default:
			}
			closeCtx, cancel := context.WithTimeout(context.Background(), 2*opts.CloseGrace)
			defer cancel()
			if err := sess.Close(closeCtx); err != nil {
				e.log.Warn("close session", zap.Error(err))
			}

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			commands, failures := sess.Stats()
			summary := termstyle.Dim(fmt.Sprintf("after %d commands, %d failed", commands, failures))
			if !exited {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s left aiterm %s\n", termstyle.GrayDot(), summary)
				return nil
			}
			code := sess.ExitCode()
			mark := termstyle.GreenCheck()
			if code != 0 {
				mark = termstyle.RedX()
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s shell exited (%d) %s\n", mark, code, summary)
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&shell, "shell", "", "Shell to run (default $SHELL, or cmd.exe on Windows)")
	cmd.Flags().StringVar(&backendName, "backend", "", "Backend: auto, pty or pipe")
	cmd.Flags().BoolVar(&screen, "screen", false, "Draw from a VT screen emulation (for full-screen programs)")
	cmd.Flags().BoolVar(&noSuggest, "no-suggest", false, "Disable the assistant")

	return cmd
}
