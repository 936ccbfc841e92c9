// Package client drives a session from the user's terminal: it forwards key
// presses to the shell, redraws the shell output with a status bar, and
// shows failures and assistant suggestions as they arrive.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"aiterm/internal/router"
	"aiterm/internal/session"
	"aiterm/internal/termstyle"
	"aiterm/internal/tracker"
	"aiterm/internal/virtualterminal"
)

// Control bytes the client keeps for itself.
const (
	keyRunSuggestion = 0x07 // Ctrl-G
	keyAsk           = 0x11 // Ctrl-Q
	keyDetach        = 0x1d // Ctrl-]
)

const (
	inputBufferSize = 1024
	statusInterval  = time.Second
	maxNoticeLog    = 16
	defaultRows     = 24
	defaultCols     = 80
)

// ErrNotTerminal is returned by Run when stdin or stdout is not a terminal.
var ErrNotTerminal = errors.New("client: not a terminal")

// Options configures a Client.
type Options struct {
	In  io.Reader
	Out io.Writer

	Rows, Cols int

	// Screen draws from the session's VT screen mirror instead of the line
	// buffer. The session must have been started with a mirror.
	Screen bool

	Logger *zap.Logger
}

// Client renders one session on one terminal.
type Client struct {
	sess   *session.Session
	in     io.Reader
	out    io.Writer
	screen bool
	log    *zap.Logger

	debugKeys bool // log every decoded key (AITERM_DEBUG_KEYS)

	mu      sync.Mutex
	rows    int
	cols    int
	notices []Notice
	asking  bool
	ask     router.Line
	dec     router.Decoder

	inputErr chan error
	quit     chan struct{}
	quitOnce sync.Once
}

// New returns a client for sess.
func New(sess *session.Session, opts Options) *Client {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Rows <= 0 {
		opts.Rows = defaultRows
	}
	if opts.Cols <= 0 {
		opts.Cols = defaultCols
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		sess:     sess,
		in:       opts.In,
		out:      opts.Out,
		screen:   opts.Screen,
		log:      opts.Logger,
		rows:     opts.Rows,
		cols:     opts.Cols,
		inputErr: make(chan error, 1),
		quit:     make(chan struct{}),

		debugKeys: virtualterminal.IsTruthyEnv("AITERM_DEBUG_KEYS"),
	}
}

// Run takes over the local terminal: raw mode, resize tracking, and the
// full-screen view. The terminal is restored on return.
func (c *Client) Run(ctx context.Context) error {
	in, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return ErrNotTerminal
	}
	out, ok := c.out.(*os.File)
	if !ok || !term.IsTerminal(int(out.Fd())) {
		return ErrNotTerminal
	}
	fd := int(in.Fd())

	if cols, rows, err := term.GetSize(int(out.Fd())); err == nil {
		c.SetSize(rows, cols)
	}

	// Detect the real terminal's colors before entering raw mode.
	output := termenv.NewOutput(out)
	c.sess.SetScreenColors(output.ForegroundColor(), output.BackgroundColor())

	restore, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer func() {
		term.Restore(fd, restore)
		c.out.Write([]byte("\033[?25h\033[0m\r\n"))
	}()

	stop := watchResize(func() {
		cols, rows, err := term.GetSize(int(out.Fd()))
		if err != nil || rows < ReservedRows+1 {
			return
		}
		c.SetSize(rows, cols)
		c.render()
	})
	defer stop()

	c.out.Write([]byte("\033[2J\033[H"))
	return c.Serve(ctx)
}

// SetSize records the terminal size and resizes the shell to the body.
func (c *Client) SetSize(rows, cols int) {
	c.mu.Lock()
	c.rows, c.cols = rows, cols
	c.mu.Unlock()
	if err := c.sess.Resize(cols, BodyRows(rows)); err != nil {
		c.log.Debug("resize failed", zap.Error(err))
	}
}

// Serve runs the render loop until the shell exits, the user detaches, or
// ctx ends. It does not touch terminal modes.
func (c *Client) Serve(ctx context.Context) error {
	go c.readInput()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	c.render()
	for {
		select {
		case <-c.sess.Updates():
			c.render()

		case ev := <-c.sess.Events():
			c.handleEvent(ev)
			c.render()

		case <-ticker.C:
			c.render()

		case <-c.sess.Done():
			c.drainEvents()
			c.render()
			return nil

		case err := <-c.inputErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)

		case <-c.quit:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Detach stops Serve without touching the shell.
func (c *Client) Detach() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *Client) readInput() {
	buf := make([]byte, inputBufferSize)
	for {
		n, err := c.in.Read(buf)
		if n > 0 && !c.handleInput(buf[:n]) {
			return
		}
		if err != nil {
			c.inputErr <- err
			return
		}
	}
}

// handleInput routes one read of raw input. It returns false once the
// user has detached.
func (c *Client) handleInput(p []byte) bool {
	start := 0
	for i, b := range p {
		switch b {
		case keyDetach, keyRunSuggestion, keyAsk:
		default:
			continue
		}
		c.forward(p[start:i])
		start = i + 1

		switch b {
		case keyDetach:
			c.Detach()
			return false
		case keyRunSuggestion:
			c.runSuggested()
		case keyAsk:
			c.toggleAsk()
		}
	}
	c.forward(p[start:])
	c.render()
	return true
}

// forward sends bytes to the shell, or to the ask line while it is open.
func (c *Client) forward(p []byte) {
	if len(p) == 0 {
		return
	}
	c.mu.Lock()
	events := c.dec.Decode(p)
	asking := c.asking
	c.mu.Unlock()

	if c.debugKeys {
		for _, ev := range events {
			c.log.Debug("key", zap.Stringer("event", ev), zap.Bool("asking", asking))
		}
	}
	if asking {
		for _, ev := range events {
			c.askKey(ev)
		}
		return
	}
	if err := c.sess.HandleKeys(events); err != nil {
		c.log.Debug("key dropped", zap.Error(err))
	}
}

func (c *Client) runSuggested() {
	err := c.sess.RunSuggested()
	switch {
	case errors.Is(err, session.ErrNoSuggestion):
		c.notice(termstyle.GrayDot(), "no suggestion to run")
	case err != nil:
		c.notice(termstyle.RedX(), err.Error())
	}
}

func (c *Client) toggleAsk() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asking = !c.asking
	c.ask.Reset()
}

// askKey edits the question line.
func (c *Client) askKey(ev router.KeyEvent) {
	c.mu.Lock()
	switch ev.Key {
	case router.KeyRune:
		c.ask.InsertRune(ev.Rune)
	case router.KeyBackspace:
		c.ask.DeleteBackward()
	case router.KeyDelete:
		c.ask.DeleteForward()
	case router.KeyLeft:
		c.ask.CursorLeft()
	case router.KeyRight:
		c.ask.CursorRight()
	case router.KeyHome:
		c.ask.CursorToStart()
	case router.KeyEnd:
		c.ask.CursorToEnd()
	case router.KeyInterrupt, router.KeyEOF:
		c.asking = false
		c.ask.Reset()
	case router.KeyEnter:
		query := c.ask.String()
		c.asking = false
		c.ask.Reset()
		c.mu.Unlock()
		if query == "" {
			return
		}
		if c.sess.Ask(query) {
			c.notice(termstyle.Magenta("?"), "asking: "+query)
		} else {
			c.notice(termstyle.RedX(), "assistant unavailable")
		}
		return
	}
	c.mu.Unlock()
}

// handleEvent turns session events into notices.
func (c *Client) handleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventFailure:
		c.notice(termstyle.RedX(), failureText(ev.Outcome))
	case session.EventSuggestion:
		text := ev.Suggestion.Text
		if ev.Suggestion.Command != "" {
			text = fmt.Sprintf("run: %s  (^G)", ev.Suggestion.Command)
		}
		c.notice(termstyle.CyanArrow(), text)
	case session.EventSuggestionError:
		c.notice(termstyle.YellowDot(), "assistant: "+ev.Err.Error())
	case session.EventExited:
		c.notice(termstyle.GrayDot(), fmt.Sprintf("shell exited (%d)", ev.ExitCode))
	}
}

func (c *Client) drainEvents() {
	for {
		select {
		case ev := <-c.sess.Events():
			c.handleEvent(ev)
		default:
			return
		}
	}
}

func failureText(out tracker.Outcome) string {
	switch {
	case out.HasExitCode && out.Reason != "":
		return fmt.Sprintf("%s: exit %d, %s", out.Command, out.ExitCode, out.Reason)
	case out.HasExitCode:
		return fmt.Sprintf("%s: exit %d", out.Command, out.ExitCode)
	default:
		return fmt.Sprintf("%s: %s", out.Command, out.Reason)
	}
}

func (c *Client) notice(mark, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, Notice{Mark: mark, Text: text})
	if len(c.notices) > maxNoticeLog {
		c.notices = c.notices[len(c.notices)-maxNoticeLog:]
	}
}

// Notices returns a copy of the notice log.
func (c *Client) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

// View builds the current frame.
func (c *Client) View() View {
	v := View{Status: c.status()}
	if c.screen {
		v.Lines = c.sess.ScreenLines()
		v.CursorRow, v.CursorCol = c.sess.ScreenCursor()
	} else {
		snap := c.sess.Snapshot()
		v.Lines = snap.Lines
		v.CursorRow = snap.Cursor.Row
		if snap.Cursor.Row < len(snap.Lines) {
			v.CursorCol = CellColumn(snap.Lines[snap.Cursor.Row], snap.Cursor.Col)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v.Rows, v.Cols = c.rows, c.cols
	v.Notices = append([]Notice(nil), c.notices...)
	v.Asking = c.asking
	v.Ask = c.ask.String()
	v.AskPos = c.ask.RunesBefore()
	return v
}

func (c *Client) status() string {
	s := fmt.Sprintf(" aiterm | %s | %s", c.sess.Kind(), c.sess.State())
	if c.sess.State() == session.StateIdle {
		s += " " + virtualterminal.FormatIdleDuration(c.sess.StateDuration())
	}
	if p, ok := c.sess.Pending(); ok {
		s += " | running: " + p.Text
	}
	commands, failures := c.sess.Stats()
	s += fmt.Sprintf(" | %d cmds, %d failed", commands, failures)
	if _, ok := c.sess.Suggestion(); ok {
		s += " | ^G run suggestion"
	}
	return s + " | ^Q ask | ^] detach"
}

func (c *Client) render() {
	var buf bytes.Buffer
	c.View().Render(&buf)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(buf.Bytes()); err != nil {
		c.log.Debug("render failed", zap.Error(err))
	}
}
