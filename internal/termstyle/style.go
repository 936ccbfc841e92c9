// Package termstyle renders the short status strings aiterm prints around
// the shell's own output: command verdicts, failure notices and assistant
// suggestions.
package termstyle

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// profile is termenv.ANSI when styling is active and termenv.Ascii
// otherwise. Defaults to ANSI if stdout is a TTY and NO_COLOR is unset.
var profile = detect()

func detect() termenv.Profile {
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return termenv.Ascii
	}
	if termenv.EnvNoColor() {
		return termenv.Ascii
	}
	return termenv.ANSI
}

// SetEnabled overrides the auto-detected TTY check.
func SetEnabled(on bool) {
	if on {
		profile = termenv.ANSI
	} else {
		profile = termenv.Ascii
	}
}

// Enabled returns whether styling is currently active.
func Enabled() bool {
	return profile != termenv.Ascii
}

func color(code, s string) string {
	if s == "" {
		return s
	}
	return profile.String(s).Foreground(profile.Color(code)).String()
}

// Bold renders text in bold.
func Bold(s string) string {
	if s == "" {
		return s
	}
	return profile.String(s).Bold().String()
}

// Dim renders text in dim/faint.
func Dim(s string) string {
	if s == "" {
		return s
	}
	return profile.String(s).Faint().String()
}

// Inverse renders text in reverse video.
func Inverse(s string) string {
	if s == "" {
		return s
	}
	return profile.String(s).Reverse().String()
}

// Red renders text in red.
func Red(s string) string { return color("1", s) }

// Green renders text in green.
func Green(s string) string { return color("2", s) }

// Yellow renders text in yellow.
func Yellow(s string) string { return color("3", s) }

// Magenta renders text in magenta.
func Magenta(s string) string { return color("5", s) }

// Cyan renders text in cyan.
func Cyan(s string) string { return color("6", s) }

// Gray renders text in gray/white.
func Gray(s string) string { return color("7", s) }

// Symbols for command and session status.
func GreenCheck() string { return Green("✓") }
func YellowDot() string  { return Yellow("●") }
func GrayDot() string    { return Gray("○") }
func RedX() string       { return Red("✗") }
func CyanArrow() string  { return Cyan("➜") }
