package router

import (
	"fmt"
	"unicode/utf8"

	"aiterm/internal/virtualterminal"
)

// Key identifies a key event. KeyRune carries a printable character in
// KeyEvent.Rune; every other key stands alone.
type Key int

const (
	KeyRune Key = iota

	// Control keys.
	KeyInterrupt
	KeyEOF

	// Arrows.
	KeyUp
	KeyDown
	KeyLeft
	KeyRight

	// Edit keys.
	KeyBackspace
	KeyDelete
	KeyHome
	KeyEnd
	KeyTab
	KeyWordLeft
	KeyWordRight

	KeyEnter
)

var keyNames = map[Key]string{
	KeyRune:      "rune",
	KeyInterrupt: "interrupt",
	KeyEOF:       "eof",
	KeyUp:        "up",
	KeyDown:      "down",
	KeyLeft:      "left",
	KeyRight:     "right",
	KeyBackspace: "backspace",
	KeyDelete:    "delete",
	KeyHome:      "home",
	KeyEnd:       "end",
	KeyTab:       "tab",
	KeyWordLeft:  "word-left",
	KeyWordRight: "word-right",
	KeyEnter:     "enter",
}

func (k Key) String() string {
	if s, ok := keyNames[k]; ok {
		return s
	}
	return fmt.Sprintf("key(%d)", int(k))
}

// Class groups keys the way routing treats them.
type Class int

const (
	ClassPrintable Class = iota
	ClassControl
	ClassArrow
	ClassEdit
	ClassEnter
)

// KeyEvent is one abstract key press.
type KeyEvent struct {
	Key  Key
	Rune rune
}

// Printable returns the event for typing r.
func Printable(r rune) KeyEvent { return KeyEvent{Key: KeyRune, Rune: r} }

// Press returns the event for a non-printable key.
func Press(k Key) KeyEvent { return KeyEvent{Key: k} }

// Class returns the event's routing class.
func (e KeyEvent) Class() Class {
	switch e.Key {
	case KeyRune:
		return ClassPrintable
	case KeyInterrupt, KeyEOF:
		return ClassControl
	case KeyUp, KeyDown, KeyLeft, KeyRight:
		return ClassArrow
	case KeyEnter:
		return ClassEnter
	default:
		return ClassEdit
	}
}

func (e KeyEvent) String() string {
	if e.Key == KeyRune {
		return fmt.Sprintf("%q", e.Rune)
	}
	return e.Key.String()
}

// Decoder turns raw terminal input bytes into key events. Escape sequences
// and UTF-8 characters split across reads are held until complete.
type Decoder struct {
	pending []byte
	lastCR  bool
}

// Decode returns the events contained in p plus any bytes held from the
// previous call. Unknown sequences and unbound control bytes are dropped.
func (d *Decoder) Decode(p []byte) []KeyEvent {
	buf := append(d.pending, p...)
	d.pending = nil
	var events []KeyEvent
	i := 0
	for i < len(buf) {
		b := buf[i]
		if b != '\n' {
			d.lastCR = false
		}
		switch {
		case b == 0x1b:
			n, ev, ok := decodeEscape(buf[i:])
			if n == 0 {
				d.pending = append([]byte(nil), buf[i:]...)
				return events
			}
			if ok {
				events = append(events, ev)
			}
			i += n
			continue
		case b == '\r':
			events = append(events, Press(KeyEnter))
			d.lastCR = true
		case b == '\n':
			// CRLF from a pasted line counts once.
			if !d.lastCR {
				events = append(events, Press(KeyEnter))
			}
			d.lastCR = false
		case b < 0x20 || b == 0x7f:
			if k, ok := controlKeys[b]; ok {
				events = append(events, Press(k))
			}
		case b < 0x80:
			events = append(events, Printable(rune(b)))
		default:
			if !utf8.FullRune(buf[i:]) {
				d.pending = append([]byte(nil), buf[i:]...)
				return events
			}
			r, size := utf8.DecodeRune(buf[i:])
			if r != utf8.RuneError || size > 1 {
				events = append(events, Printable(r))
			}
			i += size
			continue
		}
		i++
	}
	return events
}

// Pending reports whether bytes are held for the next call.
func (d *Decoder) Pending() bool { return len(d.pending) > 0 }

// DecodeKeys decodes a complete buffer. Trailing partial sequences are
// dropped; use a Decoder for streamed input.
func DecodeKeys(p []byte) []KeyEvent {
	var d Decoder
	return d.Decode(p)
}

var controlKeys = map[byte]Key{
	0x03: KeyInterrupt,
	0x04: KeyEOF,
	0x7f: KeyBackspace,
	0x08: KeyBackspace,
	0x09: KeyTab,
	0x01: KeyHome,
	0x05: KeyEnd,
	0x02: KeyLeft,
	0x06: KeyRight,
	0x10: KeyUp,
	0x0e: KeyDown,
}

var csiKeys = map[string]Key{
	"A":     KeyUp,
	"B":     KeyDown,
	"C":     KeyRight,
	"D":     KeyLeft,
	"H":     KeyHome,
	"F":     KeyEnd,
	"1~":    KeyHome,
	"7~":    KeyHome,
	"4~":    KeyEnd,
	"8~":    KeyEnd,
	"3~":    KeyDelete,
	"1;5C":  KeyWordRight,
	"1;5D":  KeyWordLeft,
	"1;3C":  KeyWordRight,
	"1;3D":  KeyWordLeft,
	"1;2C":  KeyRight,
	"1;2D":  KeyLeft,
	"1;5H":  KeyHome,
	"1;5F":  KeyEnd,
	"13;2u": KeyEnter,
}

var ss3Keys = map[byte]Key{
	'A': KeyUp,
	'B': KeyDown,
	'C': KeyRight,
	'D': KeyLeft,
	'H': KeyHome,
	'F': KeyEnd,
}

// decodeEscape decodes the escape sequence at the start of seq. It returns
// n == 0 when more bytes are needed, and ok == false when the sequence was
// consumed but maps to no key.
func decodeEscape(seq []byte) (n int, ev KeyEvent, ok bool) {
	if len(seq) < 2 {
		return 0, KeyEvent{}, false
	}
	switch seq[1] {
	case '[':
		end := 2
		for end < len(seq) && !virtualterminal.IsEscSequenceComplete(seq[:end]) {
			end++
		}
		if !virtualterminal.IsEscSequenceComplete(seq[:end]) {
			if end-2 > 32 {
				return end, KeyEvent{}, false // runaway sequence
			}
			return 0, KeyEvent{}, false
		}
		k, found := csiKeys[string(seq[2:end])]
		return end, Press(k), found
	case 'O':
		if len(seq) < 3 {
			return 0, KeyEvent{}, false
		}
		k, found := ss3Keys[seq[2]]
		return 3, Press(k), found
	case 'b':
		return 2, Press(KeyWordLeft), true
	case 'f':
		return 2, Press(KeyWordRight), true
	case 0x7f:
		return 2, KeyEvent{}, false
	case 0x1b:
		return 1, KeyEvent{}, false
	default:
		// Alt+key: the key without its meta prefix.
		return 1, KeyEvent{}, false
	}
}
