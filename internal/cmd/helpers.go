package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/user"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aiterm/internal/activitylog"
	"aiterm/internal/backend"
	"aiterm/internal/config"
	"aiterm/internal/logging"
	"aiterm/internal/router"
	"aiterm/internal/session"
	"aiterm/internal/suggest"
)

// env is everything a command needs to build a session.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	activity *activitylog.Logger
	id       string
}

// loadConfig reads the config file and environment, then applies --set
// overrides.
func loadConfig(overrides []string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if len(overrides) > 0 {
		if err := config.ApplyOverrides(cfg, overrides); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}
	return cfg, nil
}

// setup loads the config and opens the diagnostic and activity logs.
// Diagnostics go to a file so they never mix with the terminal output.
func setup(overrides []string) (*env, error) {
	cfg, err := loadConfig(overrides)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.FileConfig(cfg.Log.Level, cfg.Log.Development, cfg.LogPath()))
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	id := uuid.New().String()
	return &env{
		cfg:      cfg,
		log:      log,
		activity: activitylog.New(cfg.Log.Activity, cfg.ActivityLogPath(), resolveActor(), id),
		id:       id,
	}, nil
}

func (e *env) close() {
	e.activity.Close()
	e.log.Sync()
}

// resolveActor names who is running aiterm for the activity log.
// Resolution priority:
//  1. AITERM_ACTOR env var
//  2. the current OS user
//  3. $USER env var
//  4. "unknown"
func resolveActor() string {
	if actor := os.Getenv("AITERM_ACTOR"); actor != "" {
		return actor
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// newSuggester returns the configured assistant, or Nop when no command is
// set.
func newSuggester(cfg *config.Config) (suggest.Suggester, error) {
	if cfg.Suggest.Command == "" {
		return suggest.Nop{}, nil
	}
	s, err := suggest.NewExec(cfg.Suggest.Command, cfg.Suggest.Timeout)
	if err != nil {
		return nil, fmt.Errorf("suggest.command: %w", err)
	}
	if cfg.Suggest.Format == config.SuggestFormatText {
		s = s.WithPrompts(cfg.Prompts())
	}
	return s, nil
}

// sessionOptions maps the config onto session options.
func (e *env) sessionOptions() (session.Options, error) {
	cfg := e.cfg
	kind, err := cfg.BackendKind()
	if err != nil {
		return session.Options{}, err
	}
	args, err := cfg.ShellArgs()
	if err != nil {
		return session.Options{}, err
	}
	patterns, err := cfg.Patterns()
	if err != nil {
		return session.Options{}, err
	}
	sug, err := newSuggester(cfg)
	if err != nil {
		return session.Options{}, err
	}

	opts := session.Options{
		ID: e.id,
		Backend: backend.Options{
			Kind:         kind,
			Shell:        cfg.Shell.Path,
			Args:         args,
			Dir:          cfg.Shell.Dir,
			Env:          cfg.Shell.Env,
			Cols:         cfg.Terminal.Cols,
			Rows:         cfg.Terminal.Rows,
			WriteTimeout: cfg.Shell.WriteTimeout,
			Grace:        cfg.Shell.CloseGrace,
		},
		Patterns:     patterns,
		CaptureLines: cfg.Tracker.CaptureLines,
		MaxLines:     cfg.Terminal.MaxLines,
		History:      router.NewHistory(cfg.History.Size),
		Suggester:    sug,
		AutoSuggest:  cfg.Suggest.Auto,
		CloseGrace:   cfg.Shell.CloseGrace,
		Logger:       e.log,
		Activity:     e.activity,
	}
	if cfg.History.Size > 0 {
		opts.HistoryPath = cfg.HistoryPath()
	}
	return opts, nil
}

// exitError carries a process exit code out of a command's RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// ExitCode returns the code the process should exit with for err.
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// IsExit reports whether err only carries an exit code and needs no message.
func IsExit(err error) bool {
	var ee *exitError
	return errors.As(err, &ee)
}
