package client

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"aiterm/internal/termstyle"
)

// noticeRows is how many rows sit between the shell output and the status
// bar. The ask line, when open, takes the lowest of them.
const noticeRows = 2

// ReservedRows is the number of rows the client keeps for itself. The shell
// is sized to the rest.
const ReservedRows = noticeRows + 1

const askPrompt = "ask> "

// Notice is one line of client chatter shown above the status bar. Mark is
// a styled one-cell symbol; Text is plain so it can be truncated.
type Notice struct {
	Mark string
	Text string
}

// View is everything one frame shows. Render is a pure function of it.
type View struct {
	Lines     []string
	CursorRow int // index into Lines
	CursorCol int // display cells from the start of the line

	Status  string
	Notices []Notice

	Asking bool
	Ask    string
	AskPos int // runes before the ask cursor

	Rows, Cols int
}

// BodyRows returns the rows available for shell output.
func (v View) BodyRows() int {
	return BodyRows(v.Rows)
}

// BodyRows returns the shell's share of a terminal with rows rows.
func BodyRows(rows int) int {
	if n := rows - ReservedRows; n > 0 {
		return n
	}
	return 1
}

func (v View) visibleNotices() []Notice {
	max := noticeRows
	if v.Asking {
		max--
	}
	if len(v.Notices) > max {
		return v.Notices[len(v.Notices)-max:]
	}
	return v.Notices
}

// startRow is the first line shown. The window is anchored to the cursor,
// not to the end of Lines.
func (v View) startRow() int {
	start := v.CursorRow - v.BodyRows() + 1
	if start < 0 {
		start = 0
	}
	return start
}

// Render draws the whole frame into buf.
func (v View) Render(buf *bytes.Buffer) {
	buf.WriteString("\033[?25l")

	body := v.BodyRows()
	start := v.startRow()
	for i := 0; i < body; i++ {
		fmt.Fprintf(buf, "\033[%d;1H\033[2K", i+1)
		if row := start + i; row < len(v.Lines) {
			buf.WriteString(v.fit(v.Lines[row], v.cols()))
		}
	}

	notices := v.visibleNotices()
	for i := 0; i < noticeRows; i++ {
		fmt.Fprintf(buf, "\033[%d;1H\033[2K", body+1+i)
		switch {
		case i < len(notices):
			n := notices[i]
			if n.Mark != "" {
				buf.WriteString(n.Mark + " ")
				buf.WriteString(v.fit(n.Text, v.cols()-2))
			} else {
				buf.WriteString(v.fit(n.Text, v.cols()))
			}
		case v.Asking && i == noticeRows-1:
			buf.WriteString(termstyle.Cyan(askPrompt))
			buf.WriteString(v.fit(v.Ask, v.cols()-len(askPrompt)))
		}
	}

	fmt.Fprintf(buf, "\033[%d;1H\033[2K", body+noticeRows+1)
	buf.WriteString(termstyle.Inverse(v.pad(v.Status)))

	v.placeCursor(buf)
	buf.WriteString("\033[?25h")
}

func (v View) placeCursor(buf *bytes.Buffer) {
	if v.Asking {
		runes := []rune(v.Ask)
		before := string(runes[:clamp(v.AskPos, 0, len(runes))])
		col := runewidth.StringWidth(askPrompt+before) + 1
		fmt.Fprintf(buf, "\033[%d;%dH", v.BodyRows()+noticeRows, clamp(col, 1, v.cols()))
		return
	}
	row := v.CursorRow - v.startRow() + 1
	fmt.Fprintf(buf, "\033[%d;%dH", clamp(row, 1, v.BodyRows()), clamp(v.CursorCol+1, 1, v.cols()))
}

func (v View) cols() int {
	if v.Cols < 1 {
		return 1
	}
	return v.Cols
}

// fit truncates s to width display cells.
func (v View) fit(s string, width int) string {
	if width < 0 {
		width = 0
	}
	return runewidth.Truncate(s, width, "")
}

// pad fits s to exactly the terminal width.
func (v View) pad(s string) string {
	s = v.fit(s, v.cols())
	if w := runewidth.StringWidth(s); w < v.cols() {
		s += strings.Repeat(" ", v.cols()-w)
	}
	return s
}

// CellColumn converts a rune column on line to display cells. Columns past
// the end of the line count one cell each.
func CellColumn(line string, col int) int {
	r := []rune(line)
	if col > len(r) {
		return runewidth.StringWidth(line) + col - len(r)
	}
	return runewidth.StringWidth(string(r[:col]))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
