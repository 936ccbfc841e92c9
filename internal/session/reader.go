package session

import (
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"aiterm/internal/backend"
	"aiterm/internal/tracker"
)

// readLoop reads shell output into the normalizer and the tracker until
// the backend reports end of stream, then processes the exit.
func (s *Session) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.be.Read(buf)
		if n > 0 {
			s.feed(buf[:n], true)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("shell read ended", zap.Error(err))
			}
			s.handleExit()
			return
		}
	}
}

// echo writes the router's local echo into the buffer on backends without
// a line discipline.
func (s *Session) echo(p []byte) {
	s.feed(p, false)
}

// feed runs p through the normalizer and the tracker. fromShell is false
// for local echo, which does not count as shell activity.
func (s *Session) feed(p []byte, fromShell bool) {
	s.mu.Lock()
	if s.screen != nil && fromShell {
		s.screen.Write(p)
	}
	res := s.norm.Process(p)
	out, resolved := s.tracker.Observe(res)
	if !s.tracker.Running() {
		s.rememberPrompt(res.Tail)
	}
	if resolved {
		s.record(out)
	}
	s.broadcast()
	s.mu.Unlock()

	if fromShell {
		s.noteOutput()
	}
	s.notifyUpdate()
	if resolved {
		s.resolved(out)
	}
}

// rememberPrompt keeps the prompt text so the command typed after it can be
// read back from the screen. Called with s.mu held.
func (s *Session) rememberPrompt(tail string) {
	if s.tracker.Patterns().IsPrompt(tail) {
		s.promptLine = tail
	}
}

// onSubmit starts tracking a command. It runs under the router's lock,
// before the command is written to the shell.
func (s *Session) onSubmit(text string) {
	s.mu.Lock()
	buf := s.norm.Buffer()
	if s.be.Kind() == backend.KindPTY {
		text = s.typedCommand(text, buf.CurrentLine())
	}
	prev, superseded := s.tracker.Submit(text, buf.Mark())
	_, running := s.tracker.Pending()
	s.broadcast()
	s.mu.Unlock()

	if superseded {
		s.activity.CommandResolved(prev.Command, prev.Status.String(), exitCodePtr(prev), prev.Duration())
	}
	if running {
		s.commands.Add(1)
		s.activity.CommandSubmitted(strings.TrimSpace(text))
		s.log.Debug("command submitted", zap.String("command", strings.TrimSpace(text)))
	}
}

// typedCommand picks the command text on a PTY. The router only shadows
// what was typed; the shell's line editor may have completed or rewritten
// it. When the screen shows the prompt followed by at least as much text
// as the shadow, that text wins. Called with s.mu held.
func (s *Session) typedCommand(shadow, screenLine string) string {
	if s.promptLine == "" || !strings.HasPrefix(screenLine, s.promptLine) {
		return shadow
	}
	onScreen := strings.TrimSpace(screenLine[len(s.promptLine):])
	if onScreen == "" || len(onScreen) < len(strings.TrimSpace(shadow)) {
		return shadow
	}
	return onScreen
}

// record stores a resolved outcome for Run waiters. Superseded commands
// are not recorded. Called with s.mu held.
func (s *Session) record(out tracker.Outcome) {
	s.lastOut = out
	s.outcomes++
}

// broadcast wakes everything blocked on s.changed. Called with s.mu held.
func (s *Session) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) notifyUpdate() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// resolved reports a finished command. Failures go to the assistant when
// auto-suggest is on.
func (s *Session) resolved(out tracker.Outcome) {
	s.activity.CommandResolved(out.Command, out.Status.String(), exitCodePtr(out), out.Duration())
	if !out.Failed() {
		s.emit(Event{Kind: EventResolved, Outcome: out})
		return
	}

	s.failures.Add(1)
	s.activity.ErrorDetected(out.Command, out.Reason, len(out.Output))
	s.log.Info("command failed",
		zap.String("command", out.Command),
		zap.String("reason", out.Reason),
		zap.Bool("has_exit_code", out.HasExitCode),
		zap.Int("exit_code", out.ExitCode))
	s.emit(Event{Kind: EventFailure, Outcome: out})

	if s.opts.AutoSuggest {
		s.Troubleshoot(out)
	}
}

// handleExit resolves the running command, if any, and reports the exit.
func (s *Session) handleExit() {
	<-s.be.Done()
	code := s.be.ExitCode()

	s.mu.Lock()
	out, aborted := s.tracker.Abort()
	if aborted {
		s.record(out)
	}
	s.exitCode = code
	s.broadcast()
	s.mu.Unlock()

	if aborted {
		s.resolved(out)
	}
	s.setState(StateExited)
	commands, failures := s.Stats()
	s.activity.SessionExit(code, commands, failures)
	s.log.Info("shell exited", zap.Int("exit_code", code))
	s.emit(Event{Kind: EventExited, ExitCode: code})
	s.notifyUpdate()
	close(s.done)
}

func exitCodePtr(out tracker.Outcome) *int {
	if !out.HasExitCode {
		return nil
	}
	code := out.ExitCode
	return &code
}
