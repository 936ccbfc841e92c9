// Package session ties one shell process to the pieces that interpret it.
//
// A Session owns the backend, the input router, and the reader goroutine
// that feeds shell output through the normalizer into the line buffer and
// the command tracker. Renderers read Snapshot copies and are woken through
// Updates; everything that happens to a command is reported on Events.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"go.uber.org/zap"

	"aiterm/internal/activitylog"
	"aiterm/internal/backend"
	"aiterm/internal/normalizer"
	"aiterm/internal/router"
	"aiterm/internal/suggest"
	"aiterm/internal/tracker"
	"aiterm/internal/virtualterminal"
)

const (
	readBufferSize   = 4096
	eventBufferSize  = 64
	defaultMaxLines  = 5000
	defaultCloseWait = 2 * time.Second
	defaultCols      = 80
	defaultRows      = 24
	historySaveWait  = 2 * time.Second
)

// ErrNoSuggestion is returned by RunSuggested when there is nothing to run.
var ErrNoSuggestion = errors.New("no suggested command")

// ErrNotStarted is returned by operations that need a running shell.
var ErrNotStarted = errors.New("session not started")

// Options configures a Session.
type Options struct {
	ID           string // generated when empty
	Backend      backend.Options
	Patterns     tracker.Patterns // zero value selects the defaults
	CaptureLines int
	MaxLines     int

	History     *router.History
	HistoryPath string // loaded at Start, saved at Close; empty disables

	Suggester   suggest.Suggester
	AutoSuggest bool // troubleshoot failed commands without being asked

	// Screen also mirrors output on an emulated VT screen, which answers
	// terminal queries from full-screen programs.
	Screen bool

	CloseGrace    time.Duration
	IdleThreshold time.Duration

	Logger   *zap.Logger
	Activity *activitylog.Logger
}

// Session is one running shell. Create it with New, then Start it.
type Session struct {
	ID string

	opts      Options
	log       *zap.Logger
	activity  *activitylog.Logger
	suggester suggest.Suggester

	be     backend.Backend
	router *router.Router

	// mu serializes every mutation of the buffer and the tracker.
	mu         sync.Mutex
	norm       *normalizer.Normalizer
	tracker    *tracker.Tracker
	screen     *virtualterminal.Screen
	promptLine string // last prompt seen while no command was running
	suggestion suggest.Suggestion
	lastOut    tracker.Outcome
	outcomes   int
	changed    chan struct{} // closed and replaced on every change under mu

	stateMu        sync.Mutex
	state          State
	stateChangedAt time.Time
	stateCh        chan struct{}
	idleThreshold  time.Duration

	outputNotify chan struct{} // buffered(1), signaled on shell output
	updates      chan struct{} // buffered(1), for renderers
	events       chan Event

	dispatcher *suggest.Dispatcher
	cancel     context.CancelFunc
	done       chan struct{} // closed once the exit has been processed
	exitCode   int

	commands  atomic.Int64
	failures  atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

// New prepares a session. Nothing is spawned until Start.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Activity == nil {
		opts.Activity = activitylog.Nop()
	}
	if opts.Suggester == nil {
		opts.Suggester = suggest.Nop{}
	}
	if opts.History == nil {
		opts.History = router.NewHistory(0)
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = defaultMaxLines
	}
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = defaultCloseWait
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = defaultIdleThreshold
	}
	if opts.Patterns.Prompt == nil && opts.Patterns.Errors == nil {
		opts.Patterns = tracker.DefaultPatterns()
	}
	if opts.Backend.Shell == "" {
		opts.Backend.Shell = backend.DefaultShell()
	}
	if opts.Backend.Cols <= 0 {
		opts.Backend.Cols = defaultCols
	}
	if opts.Backend.Rows <= 0 {
		opts.Backend.Rows = defaultRows
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	log := opts.Logger.With(zap.String("session", id))
	opts.Backend.Logger = log

	return &Session{
		ID:             id,
		opts:           opts,
		log:            log,
		activity:       opts.Activity,
		suggester:      opts.Suggester,
		norm:           normalizer.New(normalizer.NewBuffer(opts.MaxLines)),
		tracker:        tracker.New(opts.Patterns, opts.CaptureLines),
		changed:        make(chan struct{}),
		state:          StateActive,
		stateChangedAt: time.Now(),
		stateCh:        make(chan struct{}),
		idleThreshold:  opts.IdleThreshold,
		outputNotify:   make(chan struct{}, 1),
		updates:        make(chan struct{}, 1),
		events:         make(chan Event, eventBufferSize),
		dispatcher:     suggest.NewDispatcher(opts.Suggester, log),
		done:           make(chan struct{}),
	}
}

// Start spawns the shell and the goroutines that serve it. History is
// loaded first when a history path is set; a corrupt file is not fatal.
func (s *Session) Start(ctx context.Context) error {
	if s.be != nil {
		return errors.New("session already started")
	}
	if s.opts.HistoryPath != "" {
		if err := s.opts.History.Load(ctx, s.opts.HistoryPath); err != nil {
			s.log.Warn("load history", zap.String("path", s.opts.HistoryPath), zap.Error(err))
		}
	}

	be, err := backend.Start(s.opts.Backend)
	if err != nil {
		return err
	}
	s.be = be

	s.router = router.New(be, router.PolicyFor(be.Kind()), s.opts.History, s.log)
	s.router.OnSubmit = s.onSubmit
	if s.router.Policy().LocalEcho() {
		s.router.Echo = s.echo
	}
	if s.opts.Screen {
		s.screen = virtualterminal.NewScreen(s.opts.Backend.Rows, s.opts.Backend.Cols, be)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.watchState(runCtx)
	go s.dispatcher.Run(runCtx)
	go s.forwardSuggestions()
	go s.readLoop()

	s.activity.SessionStart(s.opts.Backend.Shell, be.Kind().String(), s.opts.Backend.Dir, be.Pid())
	s.log.Info("session started",
		zap.String("shell", s.opts.Backend.Shell),
		zap.Stringer("backend", be.Kind()),
		zap.Int("pid", be.Pid()))
	return nil
}

// Kind returns the backend variant in use.
func (s *Session) Kind() backend.Kind {
	if s.be == nil {
		return s.opts.Backend.Kind
	}
	return s.be.Kind()
}

// Pid returns the shell's process ID.
func (s *Session) Pid() int {
	if s.be == nil {
		return 0
	}
	return s.be.Pid()
}

// Router returns the input router. Nil before Start.
func (s *Session) Router() *router.Router { return s.router }

// HandleKey routes one key event to the shell.
func (s *Session) HandleKey(ev router.KeyEvent) error {
	if err := s.checkLive("route key"); err != nil {
		return err
	}
	return s.router.Handle(ev)
}

// HandleKeys routes events in order, stopping at the first error.
func (s *Session) HandleKeys(events []router.KeyEvent) error {
	if err := s.checkLive("route keys"); err != nil {
		return err
	}
	return s.router.HandleAll(events)
}

// SubmitLine enters text as a command, as if it had been typed.
func (s *Session) SubmitLine(text string) error {
	if err := s.checkLive("submit"); err != nil {
		return err
	}
	return s.router.Submit(text)
}

// checkLive fails once the shell is gone. A pipe backend edits lines
// locally, so keys alone would not surface the dead process.
func (s *Session) checkLive(op string) error {
	if s.router == nil {
		return ErrNotStarted
	}
	select {
	case <-s.done:
		return fmt.Errorf("%s: %w", op, backend.ErrSessionTerminated)
	default:
		return nil
	}
}

// Interrupt sends an interrupt to the shell's foreground job.
func (s *Session) Interrupt() error {
	return s.HandleKey(router.Press(router.KeyInterrupt))
}

// Suggestion returns the last runnable suggestion, if any.
func (s *Session) Suggestion() (suggest.Suggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestion, s.suggestion.Command != ""
}

// RunSuggested submits the last suggested command. The suggestion is
// consumed whether or not the write succeeds.
func (s *Session) RunSuggested() error {
	s.mu.Lock()
	cmd := s.suggestion.Command
	s.suggestion = suggest.Suggestion{}
	s.mu.Unlock()
	if cmd == "" {
		return ErrNoSuggestion
	}
	s.log.Info("running suggested command", zap.String("command", cmd))
	return s.SubmitLine(cmd)
}

// Ask queues a natural-language question for the assistant. It returns
// false when suggestions are disabled or the queue is full.
func (s *Session) Ask(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" || !s.suggestionsEnabled() {
		return false
	}
	req := s.baseRequest(suggest.KindAsk)
	req.Query = query
	return s.dispatcher.Enqueue(req)
}

// Troubleshoot queues a failed command for the assistant.
func (s *Session) Troubleshoot(out tracker.Outcome) bool {
	if !s.suggestionsEnabled() {
		return false
	}
	return s.dispatcher.Enqueue(s.troubleshootRequest(out))
}

func (s *Session) suggestionsEnabled() bool {
	_, off := s.suggester.(suggest.Nop)
	return !off
}

func (s *Session) baseRequest(kind suggest.Kind) suggest.Request {
	return suggest.Request{
		Kind:  kind,
		OS:    runtime.GOOS,
		Shell: filepath.Base(s.opts.Backend.Shell),
		Dir:   s.opts.Backend.Dir,
	}
}

func (s *Session) troubleshootRequest(out tracker.Outcome) suggest.Request {
	req := s.baseRequest(suggest.KindTroubleshoot)
	req.Command = out.Command
	req.Output = out.OutputText()
	if out.HasExitCode {
		code := out.ExitCode
		req.ExitCode = &code
	}
	return req
}

// Snapshot returns a copy of the line buffer.
func (s *Session) Snapshot() normalizer.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.norm.Buffer().Snapshot()
}

// LinesSince returns the buffer lines from absolute index mark on, such as
// the output of a command since its Outcome.Marker.
func (s *Session) LinesSince(mark int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.norm.Buffer().LinesSince(mark)
}

// ScreenLines returns the VT screen rows, or nil when the mirror is off.
func (s *Session) ScreenLines() []string {
	if s.screen == nil {
		return nil
	}
	return s.screen.Lines()
}

// ScreenCursor returns the VT screen cursor, zero-based.
func (s *Session) ScreenCursor() (row, col int) {
	if s.screen == nil {
		return 0, 0
	}
	return s.screen.Cursor()
}

// SetScreenColors sets the colors the screen mirror reports to OSC 10/11
// queries. It has no effect when the mirror is off.
func (s *Session) SetScreenColors(fg, bg termenv.Color) {
	if s.screen != nil {
		s.screen.SetColors(fg, bg)
	}
}

// Updates is signaled after output changes the buffer. It holds at most one
// pending signal; renderers take a fresh Snapshot on each receive.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// Events delivers command outcomes, assistant answers and the exit.
func (s *Session) Events() <-chan Event { return s.events }

// Pending returns the running command, if any.
func (s *Session) Pending() (tracker.PendingCommand, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Pending()
}

// Done is closed once the shell has exited and the exit has been reported.
func (s *Session) Done() <-chan struct{} { return s.done }

// ExitCode returns the shell's exit status. Valid after Done.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Stats returns how many commands were tracked and how many failed.
func (s *Session) Stats() (commands, failures int64) {
	return s.commands.Load(), s.failures.Load()
}

// Resize changes the terminal size seen by the shell.
func (s *Session) Resize(cols, rows int) error {
	if s.be == nil {
		return ErrNotStarted
	}
	if s.screen != nil {
		s.screen.Resize(rows, cols)
	}
	return s.be.Resize(cols, rows)
}

// WaitPrompt blocks until no command is running and the shell shows a
// prompt.
func (s *Session) WaitPrompt(ctx context.Context) error {
	for {
		s.mu.Lock()
		ready := !s.tracker.Running() && s.tracker.Patterns().IsPrompt(s.norm.Buffer().CurrentLine())
		ch := s.changed
		s.mu.Unlock()
		if ready {
			return nil
		}
		select {
		case <-ch:
		case <-s.done:
			return fmt.Errorf("wait for prompt: %w", backend.ErrSessionTerminated)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run submits command and waits for its outcome.
func (s *Session) Run(ctx context.Context, command string) (tracker.Outcome, error) {
	if strings.TrimSpace(command) == "" {
		return tracker.Outcome{}, errors.New("empty command")
	}
	s.mu.Lock()
	seen := s.outcomes
	s.mu.Unlock()

	if err := s.SubmitLine(command); err != nil {
		return tracker.Outcome{}, err
	}
	for {
		s.mu.Lock()
		out, n, ch := s.lastOut, s.outcomes, s.changed
		s.mu.Unlock()
		if n > seen {
			return out, nil
		}
		select {
		case <-ch:
		case <-s.done:
			s.mu.Lock()
			out, n = s.lastOut, s.outcomes
			s.mu.Unlock()
			if n > seen {
				return out, nil
			}
			return tracker.Outcome{}, fmt.Errorf("run %q: %w", command, backend.ErrSessionTerminated)
		case <-ctx.Done():
			return tracker.Outcome{}, ctx.Err()
		}
	}
}

// Close terminates the shell, waits up to the close grace period for the
// reader to finish, stops the session goroutines and saves the history.
// Calling Close more than once returns the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.be == nil {
			return
		}
		var errs []error
		if err := s.be.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate shell: %w", err))
		}

		timer := time.NewTimer(s.opts.CloseGrace)
		select {
		case <-s.done:
		case <-timer.C:
			errs = append(errs, fmt.Errorf("reader still running after %s", s.opts.CloseGrace))
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
		timer.Stop()
		s.cancel()

		if s.opts.HistoryPath != "" {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historySaveWait)
			err := s.opts.History.Save(saveCtx, s.opts.HistoryPath)
			cancel()
			if err != nil {
				errs = append(errs, fmt.Errorf("save history: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
