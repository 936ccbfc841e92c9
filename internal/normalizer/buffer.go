package normalizer

import "strings"

// maxPadColumn bounds how far cursor-motion sequences may pad a line with
// blanks, so a hostile "ESC[99999C" cannot allocate unbounded memory.
const maxPadColumn = 4096

// maxLineLen bounds the length of a single line. Printable runes past it are
// dropped, as are blanks that ICH would shift beyond it.
const maxLineLen = 16384

// Cursor is a position in the buffer. Row is relative to the first retained
// line; Col counts runes from the start of the line.
type Cursor struct {
	Row int
	Col int
}

// Buffer is the normalized display: an ordered list of lines and a cursor
// on the last line. The cursor column never exceeds the line length.
//
// A Buffer is not safe for concurrent use; the session serializes access.
type Buffer struct {
	lines    [][]rune
	row, col int
	maxLines int  // 0 means unbounded
	trimmed  int  // lines dropped from the top since creation
	homed    bool // cursor was sent home and nothing has been printed since
	title    string
}

// NewBuffer returns an empty buffer that retains at most maxLines lines
// (0 for no limit).
func NewBuffer(maxLines int) *Buffer {
	return &Buffer{lines: [][]rune{{}}, maxLines: maxLines}
}

// Put writes r at the cursor, overwriting what is there, and advances. At
// maxLineLen the rune is dropped and the cursor stays put.
func (b *Buffer) Put(r rune) {
	b.homed = false
	if b.col >= maxLineLen {
		return
	}
	ln := b.lines[b.row]
	if b.col < len(ln) {
		ln[b.col] = r
	} else {
		ln = append(ln, r)
	}
	b.lines[b.row] = ln
	b.col++
}

// Backspace moves the cursor one column left and removes the rune there.
// It never crosses into the previous line.
func (b *Buffer) Backspace() {
	if b.col == 0 {
		return
	}
	b.col--
	ln := b.lines[b.row]
	b.lines[b.row] = append(ln[:b.col], ln[b.col+1:]...)
}

// CarriageReturn moves the cursor to column 0 of the current line.
func (b *Buffer) CarriageReturn() {
	b.col = 0
}

// LineFeed starts a new line and moves the cursor to its first column.
func (b *Buffer) LineFeed() {
	b.homed = false
	if b.row < len(b.lines)-1 {
		b.row++
	} else {
		b.lines = append(b.lines, []rune{})
		b.row++
		b.trim()
	}
	b.col = 0
}

// Tab advances to the next multiple of 8, padding past the end of the line.
func (b *Buffer) Tab() {
	b.moveTo((b.col/8 + 1) * 8)
}

// CursorForward moves right n columns.
func (b *Buffer) CursorForward(n int) {
	b.moveTo(b.col + n)
}

// CursorBack moves left n columns, stopping at column 0.
func (b *Buffer) CursorBack(n int) {
	b.col -= n
	if b.col < 0 {
		b.col = 0
	}
}

// CursorColumn moves to the 1-based column n.
func (b *Buffer) CursorColumn(n int) {
	if n < 1 {
		n = 1
	}
	b.moveTo(n - 1)
}

// CursorPosition handles an absolute cursor move. Rows are not addressable in
// a line log, so only the column is honored; a move to the top-left corner
// is remembered so a following erase-below clears the whole display.
func (b *Buffer) CursorPosition(row, col int) {
	if row <= 1 && col <= 1 {
		b.homed = true
	}
	b.CursorColumn(col)
}

// moveTo places the cursor at col, padding the line with blanks if needed.
// Padding stops at maxPadColumn; motion within a longer line is allowed.
func (b *Buffer) moveTo(col int) {
	ln := b.lines[b.row]
	if limit := max(maxPadColumn, len(ln)); col > limit {
		col = limit
	}
	if col < 0 {
		col = 0
	}
	for len(ln) < col {
		ln = append(ln, ' ')
	}
	b.lines[b.row] = ln
	b.col = col
}

// EraseLine implements EL: 0 clears to the end of the line, 1 blanks from
// the start to the cursor, 2 blanks the whole line.
func (b *Buffer) EraseLine(mode int) {
	ln := b.lines[b.row]
	switch mode {
	case 0:
		b.lines[b.row] = ln[:b.col]
	case 1:
		for i := 0; i < b.col && i < len(ln); i++ {
			ln[i] = ' '
		}
	case 2:
		b.lines[b.row] = []rune(strings.Repeat(" ", b.col))
	}
}

// EraseDisplay implements ED and reports whether the whole display was
// cleared. Modes 2 and 3 clear everything, as does mode 0 right after the
// cursor was sent home (the "ESC[H ESC[J" idiom).
func (b *Buffer) EraseDisplay(mode int) bool {
	switch mode {
	case 0:
		if b.homed {
			b.Clear()
			return true
		}
		b.lines[b.row] = b.lines[b.row][:b.col]
	case 1:
		ln := b.lines[b.row]
		for i := 0; i < b.col && i < len(ln); i++ {
			ln[i] = ' '
		}
		b.trimmed += b.row
		b.lines = b.lines[b.row:]
		b.row = 0
	case 2, 3:
		b.Clear()
		return true
	}
	return false
}

// DeleteChars removes n runes at the cursor, shifting the rest left (DCH).
func (b *Buffer) DeleteChars(n int) {
	ln := b.lines[b.row]
	if b.col >= len(ln) || n <= 0 {
		return
	}
	end := b.col + n
	if end > len(ln) {
		end = len(ln)
	}
	b.lines[b.row] = append(ln[:b.col], ln[end:]...)
}

// InsertBlanks inserts n blanks at the cursor, shifting the rest right (ICH).
// The line never grows past maxLineLen; runes shifted beyond it are lost.
// The shift happens in place.
func (b *Buffer) InsertBlanks(n int) {
	ln := b.lines[b.row]
	if b.col >= len(ln) || n <= 0 {
		return
	}
	n = min(n, maxLineLen-b.col)
	size := min(len(ln)+n, maxLineLen)
	for len(ln) < size {
		ln = append(ln, ' ')
	}
	copy(ln[b.col+n:], ln[b.col:size-n])
	for i := b.col; i < b.col+n; i++ {
		ln[i] = ' '
	}
	b.lines[b.row] = ln
}

// EraseChars blanks n runes starting at the cursor without moving it (ECH).
func (b *Buffer) EraseChars(n int) {
	ln := b.lines[b.row]
	for i := b.col; i < b.col+n && i < len(ln); i++ {
		ln[i] = ' '
	}
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.trimmed += len(b.lines)
	b.lines = [][]rune{{}}
	b.row, b.col = 0, 0
	b.homed = false
}

func (b *Buffer) trim() {
	if b.maxLines <= 0 || len(b.lines) <= b.maxLines {
		return
	}
	drop := len(b.lines) - b.maxLines
	b.lines = b.lines[drop:]
	b.row -= drop
	b.trimmed += drop
}

// SetTitle records the window title announced by the program.
func (b *Buffer) SetTitle(title string) {
	b.title = title
}

// Cursor returns the current cursor position.
func (b *Buffer) Cursor() Cursor {
	return Cursor{Row: b.row, Col: b.col}
}

// Mark returns the absolute index of the cursor line. Absolute indices keep
// growing as lines are trimmed or the display is cleared.
func (b *Buffer) Mark() int {
	return b.trimmed + b.row
}

// CurrentLine returns the text of the cursor line.
func (b *Buffer) CurrentLine() string {
	return string(b.lines[b.row])
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	return len(b.lines)
}

// LinesSince returns the retained lines whose absolute index is >= mark.
func (b *Buffer) LinesSince(mark int) []string {
	start := mark - b.trimmed
	if start < 0 {
		start = 0
	}
	if start >= len(b.lines) {
		return nil
	}
	out := make([]string, 0, len(b.lines)-start)
	for _, ln := range b.lines[start:] {
		out = append(out, string(ln))
	}
	return out
}

// Snapshot is a read-only copy of the buffer for renderers.
type Snapshot struct {
	Lines  []string
	Cursor Cursor
	Title  string
	Base   int // absolute index of Lines[0]
}

// Snapshot copies the buffer state.
func (b *Buffer) Snapshot() Snapshot {
	lines := make([]string, len(b.lines))
	for i, ln := range b.lines {
		lines[i] = string(ln)
	}
	return Snapshot{Lines: lines, Cursor: b.Cursor(), Title: b.title, Base: b.trimmed}
}

// Text joins the snapshot lines with newlines, dropping trailing blanks.
func (s Snapshot) Text() string {
	trimmed := make([]string, len(s.Lines))
	for i, ln := range s.Lines {
		trimmed[i] = strings.TrimRight(ln, " ")
	}
	return strings.Join(trimmed, "\n")
}
