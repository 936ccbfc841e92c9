// Package virtualterminal mirrors shell output on an emulated VT screen.
//
// The normalized line buffer is the record the rest of aiterm works from;
// the screen mirror complements it with a faithful grid for full-screen
// programs and answers the terminal queries (cursor position, colors) that
// interactive programs send and would otherwise wait on.
package virtualterminal

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"github.com/vito/midterm"
)

// Screen is a midterm terminal fed with the raw shell output.
type Screen struct {
	mu      sync.Mutex
	vt      *midterm.Terminal
	respond io.Writer // where answers to terminal queries are written
	rows    int
	cols    int
	oscFg   string // cached OSC 10 response (foreground color)
	oscBg   string // cached OSC 11 response (background color)
	lastOut time.Time
}

// NewScreen returns a rows x cols screen. Query responses go to respond,
// normally the shell's input; nil discards them.
func NewScreen(rows, cols int, respond io.Writer) *Screen {
	vt := midterm.NewTerminal(rows, cols)
	if respond != nil {
		vt.ForwardResponses = respond
	}
	return &Screen{vt: vt, respond: respond, rows: rows, cols: cols}
}

// SetColors sets the colors reported to OSC 10/11 queries.
func (s *Screen) SetColors(fg, bg termenv.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oscFg = ColorToX11(fg)
	s.oscBg = ColorToX11(bg)
}

// Write feeds shell output to the screen.
func (s *Screen) Write(p []byte) (int, error) {
	s.RespondOSCColors(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOut = time.Now()
	return s.vt.Write(p)
}

// RespondOSCColors responds to OSC 10/11 color queries from the shell.
func (s *Screen) RespondOSCColors(data []byte) {
	s.mu.Lock()
	fg, bg, w := s.oscFg, s.oscBg, s.respond
	s.mu.Unlock()
	if w == nil {
		return
	}
	if fg != "" && bytes.Contains(data, []byte("\033]10;?")) {
		fmt.Fprintf(w, "\033]10;%s\033\\", fg)
	}
	if bg != "" && bytes.Contains(data, []byte("\033]11;?")) {
		fmt.Fprintf(w, "\033]11;%s\033\\", bg)
	}
}

// Resize changes the screen dimensions.
func (s *Screen) Resize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.cols = cols
	s.vt.Resize(rows, cols)
}

// Size returns the screen dimensions.
func (s *Screen) Size() (rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.cols
}

// Lines returns the visible rows as text with trailing blanks removed.
func (s *Screen) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, len(s.vt.Content))
	for _, row := range s.vt.Content {
		lines = append(lines, strings.TrimRight(string(row), " \x00"))
	}
	return lines
}

// Cursor returns the cursor position, zero-based.
func (s *Screen) Cursor() (row, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vt.Cursor.Y, s.vt.Cursor.X
}

// LastOutput returns when output last reached the screen.
func (s *Screen) LastOutput() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOut
}

// IsIdle reports whether output has been quiet for at least threshold.
func (s *Screen) IsIdle(threshold time.Duration) bool {
	last := s.LastOutput()
	return !last.IsZero() && time.Since(last) > threshold
}
