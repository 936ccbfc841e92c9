package router

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"aiterm/internal/backend"
)

// Policy decides how key events reach the shell. The two implementations
// correspond to the two backend kinds.
type Policy interface {
	Name() string
	// LocalEcho reports whether the router echoes typed text itself.
	LocalEcho() bool

	handle(r *Router, ev KeyEvent) error
	// replace swaps the editable line for text, on screen and in the shell.
	replace(r *Router, text string) error
}

// PolicyFor returns the policy for a backend kind.
func PolicyFor(kind backend.Kind) Policy {
	if kind == backend.KindPipe {
		return PipePolicy{}
	}
	return PTYPolicy{}
}

// PTYPolicy forwards keys as the bytes a terminal would send. The shell's
// line editor does the editing and the terminal driver echoes; the router
// only shadows the line so it knows what was entered.
type PTYPolicy struct{}

func (PTYPolicy) Name() string    { return "pty" }
func (PTYPolicy) LocalEcho() bool { return false }

var ptyKeyBytes = map[Key]string{
	KeyEOF:       "\x04",
	KeyLeft:      "\x1b[D",
	KeyRight:     "\x1b[C",
	KeyBackspace: "\x7f",
	KeyDelete:    "\x1b[3~",
	KeyHome:      "\x01",
	KeyEnd:       "\x05",
	KeyTab:       "\t",
	KeyWordLeft:  "\x1bb",
	KeyWordRight: "\x1bf",
}

func (p PTYPolicy) handle(r *Router, ev KeyEvent) error {
	switch ev.Key {
	case KeyRune:
		r.line.InsertRune(ev.Rune)
		return r.write([]byte(string(ev.Rune)))
	case KeyEnter:
		r.enter()
		return r.write([]byte{'\r'})
	case KeyInterrupt:
		r.line.Reset()
		r.history.ResetBrowse()
		return r.out.Interrupt()
	case KeyUp:
		if s, ok := r.history.Up(r.line.String()); ok {
			return p.replace(r, s)
		}
		return nil
	case KeyDown:
		if s, ok := r.history.Down(); ok {
			return p.replace(r, s)
		}
		return nil
	}

	seq, ok := ptyKeyBytes[ev.Key]
	if !ok {
		return fmt.Errorf("unsupported key %s", ev)
	}
	switch ev.Key {
	case KeyLeft:
		r.line.CursorLeft()
	case KeyRight:
		r.line.CursorRight()
	case KeyBackspace:
		r.line.DeleteBackward()
	case KeyDelete:
		r.line.DeleteForward()
	case KeyHome:
		r.line.CursorToStart()
	case KeyEnd:
		r.line.CursorToEnd()
	case KeyWordLeft:
		r.line.CursorBackwardWord()
	case KeyWordRight:
		r.line.CursorForwardWord()
	}
	return r.write([]byte(seq))
}

// replace moves to the end of the shell's line, kills it with ^U and types
// the new text.
func (PTYPolicy) replace(r *Router, text string) error {
	r.line.Set(text)
	return r.write([]byte("\x05\x15" + text))
}

// PipePolicy edits the line locally and sends it on Enter. Every change is
// echoed as text plus the few cursor sequences the normalizer understands.
type PipePolicy struct{}

func (PipePolicy) Name() string    { return "pipe" }
func (PipePolicy) LocalEcho() bool { return true }

const pipeTabWidth = 4

func (p PipePolicy) handle(r *Router, ev KeyEvent) error {
	switch ev.Key {
	case KeyRune:
		p.insert(r, string(ev.Rune))
	case KeyTab:
		n := pipeTabWidth - r.line.RunesBefore()%pipeTabWidth
		p.insert(r, strings.Repeat(" ", n))
	case KeyEnter:
		text := r.enter()
		r.echo([]byte("\r\n"))
		return r.write([]byte(text + "\n"))
	case KeyInterrupt:
		r.line.Reset()
		r.history.ResetBrowse()
		r.echo([]byte("^C\r\n"))
		return r.out.Interrupt()
	case KeyEOF:
		if len(r.line.Input) > 0 {
			if r.line.DeleteForward() {
				r.echo([]byte("\x1b[P"))
			}
			return nil
		}
		if c, ok := r.out.(backend.InputCloser); ok {
			return c.CloseInput()
		}
		return r.write([]byte{0x04})
	case KeyUp:
		if s, ok := r.history.Up(r.line.String()); ok {
			return p.replace(r, s)
		}
	case KeyDown:
		if s, ok := r.history.Down(); ok {
			return p.replace(r, s)
		}
	case KeyLeft:
		if r.line.CursorLeft() {
			r.echo([]byte("\x1b[D"))
		}
	case KeyRight:
		if r.line.CursorRight() {
			r.echo([]byte("\x1b[C"))
		}
	case KeyBackspace:
		if r.line.DeleteBackward() {
			r.echo([]byte("\b"))
		}
	case KeyDelete:
		if r.line.DeleteForward() {
			r.echo([]byte("\x1b[P"))
		}
	case KeyHome, KeyWordLeft:
		before := r.line.RunesBefore()
		if ev.Key == KeyHome {
			r.line.CursorToStart()
		} else {
			r.line.CursorBackwardWord()
		}
		r.echo(cursorBack(before - r.line.RunesBefore()))
	case KeyEnd, KeyWordRight:
		before := r.line.RunesBefore()
		if ev.Key == KeyEnd {
			r.line.CursorToEnd()
		} else {
			r.line.CursorForwardWord()
		}
		r.echo(cursorForward(r.line.RunesBefore() - before))
	default:
		return fmt.Errorf("unsupported key %s", ev)
	}
	return nil
}

// insert adds s at the cursor. Mid-line inserts open a gap first so the
// text after the cursor shifts right on screen too.
func (PipePolicy) insert(r *Router, s string) {
	atEnd := r.line.AtEnd()
	for _, c := range s {
		r.line.InsertRune(c)
	}
	if atEnd {
		r.echo([]byte(s))
		return
	}
	r.echo([]byte(fmt.Sprintf("\x1b[%d@%s", utf8.RuneCountInString(s), s)))
}

// replace erases the displayed line and shows text in its place.
func (PipePolicy) replace(r *Router, text string) error {
	var b strings.Builder
	b.Write(cursorBack(r.line.RunesBefore()))
	b.WriteString("\x1b[K")
	b.WriteString(text)
	r.line.Set(text)
	r.echo([]byte(b.String()))
	return nil
}

func cursorBack(n int) []byte {
	if n <= 0 {
		return nil
	}
	return []byte(fmt.Sprintf("\x1b[%dD", n))
}

func cursorForward(n int) []byte {
	if n <= 0 {
		return nil
	}
	return []byte(fmt.Sprintf("\x1b[%dC", n))
}
