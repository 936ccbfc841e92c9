package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/shlex"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"aiterm/internal/backend"
	"aiterm/internal/suggest"
	"aiterm/internal/tracker"
)

const configFile = "config.yaml"

// Suggest input formats.
const (
	SuggestFormatJSON = "json"
	SuggestFormatText = "text"
)

// Config is the contents of config.yaml, after defaults and environment
// overrides are applied.
type Config struct {
	Shell    ShellConfig    `yaml:"shell"`
	Terminal TerminalConfig `yaml:"terminal"`
	History  HistoryConfig  `yaml:"history"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Suggest  SuggestConfig  `yaml:"suggest"`
	Log      LogConfig      `yaml:"log"`
}

// ShellConfig selects the shell, its backend and how it is started.
type ShellConfig struct {
	Path         string            `yaml:"path,omitempty"`
	Args         string            `yaml:"args,omitempty"`
	Backend      string            `yaml:"backend"`
	Dir          string            `yaml:"dir,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	WriteTimeout time.Duration     `yaml:"write_timeout"`
	CloseGrace   time.Duration     `yaml:"close_grace"`
}

// TerminalConfig sizes the PTY and bounds the normalized buffer.
type TerminalConfig struct {
	Cols     int `yaml:"cols"`
	Rows     int `yaml:"rows"`
	MaxLines int `yaml:"max_lines"`
}

// HistoryConfig controls the persisted command history.
type HistoryConfig struct {
	Size int    `yaml:"size"`
	File string `yaml:"file,omitempty"`
}

// TrackerConfig overrides the prompt and error patterns used to judge
// commands.
type TrackerConfig struct {
	PromptPatterns []string `yaml:"prompt_patterns,omitempty"`
	ErrorPatterns  []string `yaml:"error_patterns,omitempty"`
	CaptureLines   int      `yaml:"capture_lines"`
}

// SuggestConfig configures the external assistant command.
type SuggestConfig struct {
	Command string        `yaml:"command,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
	Auto    bool          `yaml:"auto"`

	// Format is what the command reads on stdin: "json" (the request) or
	// "text" (a prompt rendered from the templates below).
	Format             string `yaml:"format"`
	AskPrompt          string `yaml:"ask_prompt,omitempty"`
	TroubleshootPrompt string `yaml:"troubleshoot_prompt,omitempty"`
}

// LogConfig controls the zap logger and the activity log.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file,omitempty"`
	Activity    bool   `yaml:"activity"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			Backend:      "auto",
			WriteTimeout: backend.DefaultWriteTimeout,
			CloseGrace:   backend.DefaultGrace,
		},
		Terminal: TerminalConfig{Cols: 80, Rows: 24, MaxLines: 5000},
		History:  HistoryConfig{Size: 500},
		Tracker:  TrackerConfig{CaptureLines: tracker.DefaultCaptureLines},
		Suggest:  SuggestConfig{Timeout: 60 * time.Second, Auto: true, Format: SuggestFormatJSON},
		Log:      LogConfig{Level: "info", Activity: true},
	}
}

// envOverrides lists the settings that can be changed from the environment.
// Unset variables leave the pointer nil. Tags carry the full variable name
// so envconfig never falls back to the bare one ($SHELL).
type envOverrides struct {
	Shell          *string        `envconfig:"AITERM_SHELL"`
	ShellArgs      *string        `envconfig:"AITERM_SHELL_ARGS"`
	Backend        *string        `envconfig:"AITERM_BACKEND"`
	WorkDir        *string        `envconfig:"AITERM_WORKDIR"`
	LogLevel       *string        `envconfig:"AITERM_LOG_LEVEL"`
	LogDev         *bool          `envconfig:"AITERM_LOG_DEV"`
	HistorySize    *int           `envconfig:"AITERM_HISTORY_SIZE"`
	HistoryFile    *string        `envconfig:"AITERM_HISTORY_FILE"`
	SuggestCommand *string        `envconfig:"AITERM_SUGGEST_COMMAND"`
	SuggestTimeout *time.Duration `envconfig:"AITERM_SUGGEST_TIMEOUT"`
	SuggestFormat  *string        `envconfig:"AITERM_SUGGEST_FORMAT"`
	MaxLines       *int           `envconfig:"AITERM_MAX_LINES"`
}

// ResolveDir returns the aiterm directory: $AITERM_DIR, else ~/.aiterm.
func ResolveDir() string {
	if dir := os.Getenv("AITERM_DIR"); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".aiterm")
	}
	return filepath.Join(home, ".aiterm")
}

// Path returns the location of the config file.
func Path() string {
	return filepath.Join(ResolveDir(), configFile)
}

// Load reads <aiterm-dir>/config.yaml and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadFrom(Path())
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads the config from the given path on top of the defaults.
// If the file does not exist, it returns Default() with no error.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays AITERM_* environment variables.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	setString(&c.Shell.Path, env.Shell)
	setString(&c.Shell.Args, env.ShellArgs)
	setString(&c.Shell.Backend, env.Backend)
	setString(&c.Shell.Dir, env.WorkDir)
	setString(&c.Log.Level, env.LogLevel)
	setString(&c.History.File, env.HistoryFile)
	setString(&c.Suggest.Command, env.SuggestCommand)
	setString(&c.Suggest.Format, env.SuggestFormat)
	if env.LogDev != nil {
		c.Log.Development = *env.LogDev
	}
	if env.HistorySize != nil {
		c.History.Size = *env.HistorySize
	}
	if env.SuggestTimeout != nil {
		c.Suggest.Timeout = *env.SuggestTimeout
	}
	if env.MaxLines != nil {
		c.Terminal.MaxLines = *env.MaxLines
	}
	return c.Validate()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks values that would otherwise fail late, at session start.
func (c *Config) Validate() error {
	if _, err := c.BackendKind(); err != nil {
		return err
	}
	if _, err := c.ShellArgs(); err != nil {
		return err
	}
	if _, err := c.Patterns(); err != nil {
		return err
	}
	if c.Shell.WriteTimeout < 0 || c.Shell.CloseGrace < 0 || c.Suggest.Timeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Terminal.Cols < 0 || c.Terminal.Rows < 0 || c.Terminal.MaxLines < 0 {
		return fmt.Errorf("terminal: cols, rows and max_lines must not be negative")
	}
	if c.History.Size < 0 || c.Tracker.CaptureLines < 0 {
		return fmt.Errorf("history.size and tracker.capture_lines must not be negative")
	}
	if c.Suggest.Command != "" {
		if _, err := shlex.Split(c.Suggest.Command); err != nil {
			return fmt.Errorf("suggest.command: %w", err)
		}
	}
	switch c.Suggest.Format {
	case SuggestFormatJSON, "":
	case SuggestFormatText:
		if err := c.Prompts().Validate(); err != nil {
			return fmt.Errorf("suggest: %w", err)
		}
	default:
		return fmt.Errorf("suggest.format: unknown format %q (want json or text)", c.Suggest.Format)
	}
	return nil
}

// Prompts returns the text prompt templates for the suggest command.
func (c *Config) Prompts() suggest.Prompts {
	return suggest.Prompts{Ask: c.Suggest.AskPrompt, Troubleshoot: c.Suggest.TroubleshootPrompt}
}

// BackendKind parses shell.backend.
func (c *Config) BackendKind() (backend.Kind, error) {
	k, err := backend.ParseKind(c.Shell.Backend)
	if err != nil {
		return 0, fmt.Errorf("shell.backend: %w", err)
	}
	return k, nil
}

// ShellArgs splits shell.args with shell quoting rules. Nil means the
// backend's defaults for the shell.
func (c *Config) ShellArgs() ([]string, error) {
	if c.Shell.Args == "" {
		return nil, nil
	}
	args, err := shlex.Split(c.Shell.Args)
	if err != nil {
		return nil, fmt.Errorf("shell.args: %w", err)
	}
	return args, nil
}

// Patterns compiles the tracker patterns. Empty lists use the defaults.
func (c *Config) Patterns() (tracker.Patterns, error) {
	p, err := tracker.CompilePatterns(c.Tracker.PromptPatterns, c.Tracker.ErrorPatterns)
	if err != nil {
		return tracker.Patterns{}, fmt.Errorf("tracker: %w", err)
	}
	return p, nil
}

// HistoryPath returns the history file, defaulting into the aiterm dir.
func (c *Config) HistoryPath() string {
	if c.History.File != "" {
		return c.History.File
	}
	return filepath.Join(ResolveDir(), "history.jsonl")
}

// LogPath returns the diagnostic log file.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(ResolveDir(), "logs", "aiterm.log")
}

// ActivityLogPath returns the session activity log file.
func (c *Config) ActivityLogPath() string {
	return filepath.Join(ResolveDir(), "logs", "activity.jsonl")
}

// YAML renders the configuration as it would be written to config.yaml.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
