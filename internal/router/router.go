// Package router maps abstract key events onto writes to the shell.
//
// How a key is delivered depends on the backend: a PTY has a line discipline
// and the shell's own line editor, so keys are forwarded as bytes and the
// shell echoes them. A pipe has neither, so the router edits the line
// locally, echoes it itself and sends whole lines. Each backend kind gets
// its own Policy.
package router

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aiterm/internal/backend"
)

// Output is where routed bytes go. A backend.Backend satisfies it.
type Output interface {
	Write(p []byte) (int, error)
	Interrupt() error
}

// Router owns the editable input line and the command history for one
// session. Methods are safe for concurrent use.
type Router struct {
	mu      sync.Mutex
	out     Output
	policy  Policy
	line    Line
	history *History
	log     *zap.Logger
	dead    bool

	// OnSubmit is called with each entered line before it is sent, so the
	// command is being tracked by the time its output arrives.
	OnSubmit func(text string)
	// Echo receives local echo on backends without a line discipline.
	Echo func(p []byte)
}

// New returns a router that writes to out using policy. A nil history gets
// a default-sized one.
func New(out Output, policy Policy, history *History, log *zap.Logger) *Router {
	if history == nil {
		history = NewHistory(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{out: out, policy: policy, history: history, log: log}
}

// Policy returns the routing policy in use.
func (r *Router) Policy() Policy { return r.policy }

// History returns the command history.
func (r *Router) History() *History { return r.history }

// Line returns the current editable line.
func (r *Router) Line() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.line.String()
}

// Handle routes one key event. Once the session has terminated every call
// returns an error wrapping backend.ErrSessionTerminated.
func (r *Router) Handle(ev KeyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return fmt.Errorf("route %s: %w", ev, backend.ErrSessionTerminated)
	}
	if err := r.policy.handle(r, ev); err != nil {
		return r.fail(ev.String(), err)
	}
	return nil
}

// HandleAll routes events in order, stopping at the first error.
func (r *Router) HandleAll(events []KeyEvent) error {
	for _, ev := range events {
		if err := r.Handle(ev); err != nil {
			return err
		}
	}
	return nil
}

// Submit replaces the editable line with text and enters it, as if the user
// had typed it.
func (r *Router) Submit(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return fmt.Errorf("submit: %w", backend.ErrSessionTerminated)
	}
	r.history.ResetBrowse()
	if err := r.policy.replace(r, text); err != nil {
		return r.fail("submit", err)
	}
	if err := r.policy.handle(r, Press(KeyEnter)); err != nil {
		return r.fail("submit", err)
	}
	return nil
}

func (r *Router) fail(op string, err error) error {
	if errors.Is(err, backend.ErrSessionTerminated) {
		r.dead = true
	} else {
		var ioErr *backend.IOError
		if errors.As(err, &ioErr) {
			r.dead = true
		}
	}
	r.log.Debug("route failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("route %s: %w", op, err)
}

// enter takes the line, records it and reports it to OnSubmit.
func (r *Router) enter() string {
	text := r.line.String()
	r.line.Reset()
	r.history.Add(text)
	if r.OnSubmit != nil {
		r.OnSubmit(text)
	}
	return text
}

func (r *Router) echo(p []byte) {
	if r.Echo != nil && len(p) > 0 {
		r.Echo(p)
	}
}

func (r *Router) write(p []byte) error {
	_, err := r.out.Write(p)
	return err
}
