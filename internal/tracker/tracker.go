// Package tracker follows each submitted command from submission to a
// success or failure verdict, using the normalized output of the shell.
//
// A command is resolved when the shell shows its prompt again (or reports an
// exit status through OSC 133 marks). Commands that never return to the
// prompt, such as editors or REPLs, stay running indefinitely.
package tracker

import (
	"fmt"
	"strings"
	"time"

	"aiterm/internal/normalizer"
)

// DefaultCaptureLines is how many trailing output lines a verdict carries.
const DefaultCaptureLines = 20

// Status is the lifecycle state of a command.
type Status int

const (
	StatusUnknown Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingCommand is the command currently running.
type PendingCommand struct {
	Text        string
	Marker      int // absolute buffer line at submission
	Status      Status
	SubmittedAt time.Time
}

// Outcome is the verdict on a command.
type Outcome struct {
	Command     string
	Marker      int
	Status      Status
	Output      []string // last captured output lines, echo excluded
	ExitCode    int
	HasExitCode bool
	Reason      string // first line that looked like an error
	SubmittedAt time.Time
	ResolvedAt  time.Time
}

// Failed reports whether the command was judged a failure.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// OutputText joins the captured output with newlines.
func (o Outcome) OutputText() string {
	return strings.Join(o.Output, "\n")
}

// Duration returns how long the command ran.
func (o Outcome) Duration() time.Duration {
	return o.ResolvedAt.Sub(o.SubmittedAt)
}

type pending struct {
	PendingCommand
	sawLine bool
	reason  string
	output  []string
}

// Tracker holds at most one running command. It is not safe for concurrent
// use; the session calls it from the reader under its lock.
type Tracker struct {
	patterns Patterns
	capture  int
	cur      *pending
	now      func() time.Time
}

// New returns an idle tracker. capture <= 0 selects DefaultCaptureLines.
func New(patterns Patterns, capture int) *Tracker {
	if capture <= 0 {
		capture = DefaultCaptureLines
	}
	return &Tracker{patterns: patterns, capture: capture, now: time.Now}
}

// Patterns returns the patterns the tracker matches with.
func (t *Tracker) Patterns() Patterns { return t.patterns }

// Running reports whether a command is pending.
func (t *Tracker) Running() bool { return t.cur != nil }

// Pending returns the running command, if any.
func (t *Tracker) Pending() (PendingCommand, bool) {
	if t.cur == nil {
		return PendingCommand{}, false
	}
	return t.cur.PendingCommand, true
}

// Submit starts tracking text. Blank input is ignored. If a command was
// still running it is superseded and returned with StatusUnknown: typing
// into a program that never showed a prompt says nothing about its result.
func (t *Tracker) Submit(text string, marker int) (Outcome, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}, false
	}
	var prev Outcome
	var superseded bool
	if t.cur != nil {
		prev = t.finish(StatusUnknown)
		superseded = true
	}
	t.cur = &pending{PendingCommand: PendingCommand{
		Text:        text,
		Marker:      marker,
		Status:      StatusRunning,
		SubmittedAt: t.now(),
	}}
	return prev, superseded
}

// Observe feeds the result of one normalizer pass. It returns the verdict
// when this output completes the running command. Each command yields at
// most one verdict.
func (t *Tracker) Observe(res normalizer.Result) (Outcome, bool) {
	if t.cur == nil {
		return Outcome{}, false
	}
	mi := 0
	for i := 0; ; i++ {
		for mi < len(res.Marks) && res.Marks[mi].Line <= i {
			if out, ok := t.mark(res.Marks[mi]); ok {
				return out, true
			}
			mi++
		}
		if i >= len(res.Lines) {
			break
		}
		t.line(res.Lines[i])
	}
	if t.cur.sawLine && t.patterns.IsPrompt(res.Tail) {
		return t.finish(t.verdict()), true
	}
	return Outcome{}, false
}

// Abort resolves the running command because the session ended.
func (t *Tracker) Abort() (Outcome, bool) {
	if t.cur == nil {
		return Outcome{}, false
	}
	if t.cur.reason != "" {
		return t.finish(StatusFailed), true
	}
	return t.finish(StatusUnknown), true
}

func (t *Tracker) line(s string) {
	p := t.cur
	if !p.sawLine {
		p.sawLine = true
		if isEcho(s, p.Text) {
			return
		}
	}
	s = strings.TrimRight(s, " ")
	p.output = append(p.output, s)
	if len(p.output) > t.capture {
		p.output = p.output[len(p.output)-t.capture:]
	}
	if p.reason == "" {
		if r, ok := t.patterns.MatchError(s, p.Text); ok {
			p.reason = r
		}
	}
}

func (t *Tracker) mark(m normalizer.Mark) (Outcome, bool) {
	switch m.Kind {
	case normalizer.MarkCommandEnd:
		if !m.HasExitCode {
			return t.finish(t.verdict()), true
		}
		status := StatusSucceeded
		if m.ExitCode != 0 {
			status = StatusFailed
			if t.cur.reason == "" {
				t.cur.reason = fmt.Sprintf("exit status %d", m.ExitCode)
			}
		}
		out := t.finish(status)
		out.ExitCode = m.ExitCode
		out.HasExitCode = true
		return out, true
	case normalizer.MarkPromptStart:
		return t.finish(t.verdict()), true
	}
	return Outcome{}, false
}

func (t *Tracker) verdict() Status {
	if t.cur.reason != "" {
		return StatusFailed
	}
	return StatusSucceeded
}

func (t *Tracker) finish(status Status) Outcome {
	p := t.cur
	t.cur = nil
	out := Outcome{
		Command:     p.Text,
		Marker:      p.Marker,
		Status:      status,
		Output:      p.output,
		SubmittedAt: p.SubmittedAt,
		ResolvedAt:  t.now(),
	}
	if status == StatusFailed {
		out.Reason = p.reason
	}
	return out
}

// isEcho reports whether line is the terminal's echo of the command, with or
// without the prompt in front of it.
func isEcho(line, command string) bool {
	return strings.HasSuffix(strings.TrimRight(line, " "), command)
}
