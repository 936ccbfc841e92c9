package router

import (
	"unicode"
	"unicode/utf8"
)

// Line is the editable input line: UTF-8 text and a byte offset cursor that
// always sits on a rune boundary.
type Line struct {
	Input     []byte
	CursorPos int
}

// String returns the line text.
func (l *Line) String() string { return string(l.Input) }

// Set replaces the text and moves the cursor to the end.
func (l *Line) Set(s string) {
	l.Input = []byte(s)
	l.CursorPos = len(l.Input)
}

// Reset empties the line.
func (l *Line) Reset() {
	l.Input = l.Input[:0]
	l.CursorPos = 0
}

// RunesBefore returns the number of runes left of the cursor.
func (l *Line) RunesBefore() int { return utf8.RuneCount(l.Input[:l.CursorPos]) }

// RunesAfter returns the number of runes right of the cursor.
func (l *Line) RunesAfter() int { return utf8.RuneCount(l.Input[l.CursorPos:]) }

// AtEnd reports whether the cursor is after the last rune.
func (l *Line) AtEnd() bool { return l.CursorPos == len(l.Input) }

// CursorLeft moves the cursor left by one rune. Returns false at the start.
func (l *Line) CursorLeft() bool {
	if l.CursorPos == 0 {
		return false
	}
	_, size := utf8.DecodeLastRune(l.Input[:l.CursorPos])
	l.CursorPos -= size
	return true
}

// CursorRight moves the cursor right by one rune. Returns false at the end.
func (l *Line) CursorRight() bool {
	if l.CursorPos >= len(l.Input) {
		return false
	}
	_, size := utf8.DecodeRune(l.Input[l.CursorPos:])
	l.CursorPos += size
	return true
}

// CursorToStart moves the cursor to the beginning of the line.
func (l *Line) CursorToStart() {
	l.CursorPos = 0
}

// CursorToEnd moves the cursor to the end of the line.
func (l *Line) CursorToEnd() {
	l.CursorPos = len(l.Input)
}

// CursorForwardWord moves the cursor forward to the end of the next word.
func (l *Line) CursorForwardWord() {
	i := l.CursorPos
	for i < len(l.Input) {
		r, size := utf8.DecodeRune(l.Input[i:])
		if isWordChar(r) {
			break
		}
		i += size
	}
	for i < len(l.Input) {
		r, size := utf8.DecodeRune(l.Input[i:])
		if !isWordChar(r) {
			break
		}
		i += size
	}
	l.CursorPos = i
}

// CursorBackwardWord moves the cursor back to the start of the previous word.
func (l *Line) CursorBackwardWord() {
	i := l.CursorPos
	for i > 0 {
		r, size := utf8.DecodeLastRune(l.Input[:i])
		if isWordChar(r) {
			break
		}
		i -= size
	}
	for i > 0 {
		r, size := utf8.DecodeLastRune(l.Input[:i])
		if !isWordChar(r) {
			break
		}
		i -= size
	}
	l.CursorPos = i
}

// DeleteBackward removes the rune before the cursor. Returns true if a
// character was deleted.
func (l *Line) DeleteBackward() bool {
	if l.CursorPos <= 0 {
		return false
	}
	_, size := utf8.DecodeLastRune(l.Input[:l.CursorPos])
	copy(l.Input[l.CursorPos-size:], l.Input[l.CursorPos:])
	l.Input = l.Input[:len(l.Input)-size]
	l.CursorPos -= size
	return true
}

// DeleteForward removes the rune under the cursor. Returns true if a
// character was deleted.
func (l *Line) DeleteForward() bool {
	if l.CursorPos >= len(l.Input) {
		return false
	}
	_, size := utf8.DecodeRune(l.Input[l.CursorPos:])
	copy(l.Input[l.CursorPos:], l.Input[l.CursorPos+size:])
	l.Input = l.Input[:len(l.Input)-size]
	return true
}

// InsertRune inserts r at the cursor and advances past it.
func (l *Line) InsertRune(r rune) {
	var enc [utf8.UTFMax]byte
	n := utf8.EncodeRune(enc[:], r)
	l.Input = append(l.Input, enc[:n]...)
	copy(l.Input[l.CursorPos+n:], l.Input[l.CursorPos:len(l.Input)-n])
	copy(l.Input[l.CursorPos:], enc[:n])
	l.CursorPos += n
}

// isWordChar returns true for characters considered part of a word
// (letters, digits, underscore).
func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
