// Package normalizer turns the raw byte stream of a shell into a clean line
// buffer. It interprets the control characters and ANSI escape sequences that
// have a meaningful effect on a line log (backspace, carriage return, erase,
// clear screen) and discards the rest, so escape bytes never reach the
// display.
//
// The parser is a byte-at-a-time state machine: escape sequences and UTF-8
// characters split across reads are carried over to the next call, so the
// resulting buffer does not depend on how the stream was chunked.
package normalizer

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxCSILen    = 64
	maxOSCLen    = 4096
	maxStringLen = 1 << 16
)

type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCharset   // ESC ( and friends: one designator byte follows
	stateCSI       // ESC [ params
	stateCSIIgnore // overlong CSI: swallow until the final byte
	stateOSC       // ESC ] payload
	stateOSCEsc    // ESC seen inside an OSC payload
	stateString    // DCS, SOS, PM, APC payload
	stateStringEsc // ESC seen inside a string payload
)

// MarkKind is the command letter of an OSC 133 shell-integration mark.
type MarkKind byte

const (
	MarkPromptStart  MarkKind = 'A'
	MarkCommandStart MarkKind = 'B'
	MarkOutputStart  MarkKind = 'C'
	MarkCommandEnd   MarkKind = 'D'
)

// Mark is an OSC 133 mark seen in the stream. Line is the number of lines in
// Result.Lines completed before the mark arrived.
type Mark struct {
	Kind        MarkKind
	ExitCode    int
	HasExitCode bool
	Line        int
}

// Result describes what one call to Process did to the buffer.
type Result struct {
	Lines   []string // lines completed by a line feed, in order
	Tail    string   // the current, unfinished line after the call
	Marks   []Mark
	Cleared bool // the display was cleared at least once
	Dropped int  // malformed or overlong sequences discarded
}

// Normalizer feeds a byte stream into a Buffer.
type Normalizer struct {
	buf   *Buffer
	state parserState
	seq   []byte // CSI parameters or OSC payload
	strN  int    // bytes swallowed in the current string payload
	utf   []byte // pending bytes of a multi-byte UTF-8 character
	res   Result
}

// New returns a Normalizer writing into buf.
func New(buf *Buffer) *Normalizer {
	return &Normalizer{
		buf: buf,
		seq: make([]byte, 0, 32),
		utf: make([]byte, 0, utf8.UTFMax),
	}
}

// Buffer returns the buffer being written.
func (n *Normalizer) Buffer() *Buffer {
	return n.buf
}

// Write implements io.Writer. It never fails.
func (n *Normalizer) Write(p []byte) (int, error) {
	n.Process(p)
	return len(p), nil
}

// Process consumes p and reports the lines it completed. Any input is
// accepted; malformed sequences are dropped.
func (n *Normalizer) Process(p []byte) Result {
	n.res = Result{}
	for _, b := range p {
		n.step(b)
	}
	n.res.Tail = n.buf.CurrentLine()
	res := n.res
	n.res = Result{}
	return res
}

func (n *Normalizer) step(b byte) {
	switch n.state {
	case stateGround:
		n.ground(b)
	case stateEscape:
		n.escape(b)
	case stateCharset:
		// The designator's final byte may be preceded by controls, which
		// still take effect.
		switch {
		case b == 0x1b:
			n.res.Dropped++
			n.state = stateEscape
		case b == 0x18 || b == 0x1a:
			n.res.Dropped++
			n.state = stateGround
		case b < 0x20:
			n.execute(b)
		default:
			n.state = stateGround
		}
	case stateCSI:
		n.csi(b)
	case stateCSIIgnore:
		switch {
		case b >= 0x40 && b <= 0x7e:
			n.state = stateGround
		case b == 0x1b:
			n.state = stateEscape
		case b < 0x20:
			n.execute(b)
		}
	case stateOSC:
		n.osc(b)
	case stateOSCEsc:
		n.dispatchOSC()
		if b == '\\' {
			n.state = stateGround
			return
		}
		n.state = stateEscape
		n.escape(b)
	case stateString:
		switch b {
		case 0x07:
			n.state = stateGround
		case 0x1b:
			n.state = stateStringEsc
		default:
			n.strN++
			if n.strN > maxStringLen {
				n.res.Dropped++
				n.state = stateGround
			}
		}
	case stateStringEsc:
		if b == '\\' {
			n.state = stateGround
			return
		}
		n.state = stateEscape
		n.escape(b)
	}
}

func (n *Normalizer) ground(b byte) {
	if len(n.utf) > 0 {
		if b&0xC0 == 0x80 {
			n.utf = append(n.utf, b)
			if utf8.FullRune(n.utf) {
				r, _ := utf8.DecodeRune(n.utf)
				n.buf.Put(r)
				n.utf = n.utf[:0]
			}
			return
		}
		// Truncated character: show a replacement and handle b normally.
		n.buf.Put(utf8.RuneError)
		n.utf = n.utf[:0]
	}

	switch {
	case b == 0x1b:
		n.state = stateEscape
	case b < 0x20 || b == 0x7f:
		n.execute(b)
	case b < 0x80:
		n.buf.Put(rune(b))
	case b >= 0xC2 && b <= 0xF4:
		n.utf = append(n.utf, b)
	default:
		n.buf.Put(utf8.RuneError)
	}
}

// execute runs a C0 control character.
func (n *Normalizer) execute(b byte) {
	switch b {
	case '\n', 0x0b, 0x0c:
		n.lineFeed()
	case '\r':
		n.buf.CarriageReturn()
	case '\b':
		n.buf.Backspace()
	case '\t':
		n.buf.Tab()
	}
	// BEL, NUL, SO/SI, DEL and the rest have no effect on a line log.
}

func (n *Normalizer) lineFeed() {
	n.res.Lines = append(n.res.Lines, n.buf.CurrentLine())
	n.buf.LineFeed()
}

func (n *Normalizer) escape(b byte) {
	switch {
	case b == '[':
		n.seq = n.seq[:0]
		n.state = stateCSI
	case b == ']':
		n.seq = n.seq[:0]
		n.state = stateOSC
	case b == 'P' || b == 'X' || b == '^' || b == '_':
		n.strN = 0
		n.state = stateString
	case strings.IndexByte("()*+-./#% ", b) >= 0:
		n.state = stateCharset
	case b == 'c': // RIS, full reset
		n.clear()
		n.state = stateGround
	case b == 0x1b:
		n.res.Dropped++
	case b == 0x18 || b == 0x1a: // CAN, SUB abort the sequence
		n.res.Dropped++
		n.state = stateGround
	case b < 0x20 || b == 0x7f:
		// A control inside an escape aborts it and is executed as usual.
		n.res.Dropped++
		n.state = stateGround
		n.execute(b)
	case b >= 0x80:
		n.res.Dropped++
		n.state = stateGround
		n.ground(b)
	default:
		// Two-byte sequences (ESC 7, ESC =, ESC M, ...) have no buffer effect.
		n.state = stateGround
	}
}

func (n *Normalizer) csi(b byte) {
	switch {
	case b >= 0x40 && b <= 0x7e:
		n.dispatchCSI(b)
		n.state = stateGround
	case b >= 0x20 && b <= 0x3f:
		if len(n.seq) >= maxCSILen {
			n.res.Dropped++
			n.state = stateCSIIgnore
			return
		}
		n.seq = append(n.seq, b)
	case b == 0x1b:
		n.res.Dropped++
		n.state = stateEscape
	case b == 0x18 || b == 0x1a:
		n.res.Dropped++
		n.state = stateGround
	case b < 0x20:
		n.execute(b)
	default:
		n.res.Dropped++
		n.state = stateGround
		if b != 0x7f {
			n.ground(b)
		}
	}
}

func (n *Normalizer) dispatchCSI(final byte) {
	params := string(n.seq)
	if params != "" && strings.IndexByte("?<=>", params[0]) >= 0 {
		return // private modes (bracketed paste, cursor visibility, ...)
	}
	if strings.IndexFunc(params, func(r rune) bool { return r >= 0x20 && r <= 0x2f }) >= 0 {
		return // intermediates select variants we do not model
	}
	switch final {
	case 'C', 'a':
		n.buf.CursorForward(param(params, 0, 1))
	case 'D':
		n.buf.CursorBack(param(params, 0, 1))
	case 'G', '`':
		n.buf.CursorColumn(param(params, 0, 1))
	case 'H', 'f':
		n.buf.CursorPosition(param(params, 0, 1), param(params, 1, 1))
	case 'K':
		n.buf.EraseLine(param(params, 0, 0))
	case 'J':
		if n.buf.EraseDisplay(param(params, 0, 0)) {
			n.res.Cleared = true
		}
	case 'P':
		n.buf.DeleteChars(param(params, 0, 1))
	case '@':
		n.buf.InsertBlanks(param(params, 0, 1))
	case 'X':
		n.buf.EraseChars(param(params, 0, 1))
	}
	// SGR (m), vertical motion, scrolling regions and modes are discarded.
}

func (n *Normalizer) osc(b byte) {
	switch {
	case b == 0x07:
		n.dispatchOSC()
		n.state = stateGround
	case b == 0x1b:
		n.state = stateOSCEsc
	case b == 0x18 || b == 0x1a:
		n.res.Dropped++
		n.state = stateGround
	default:
		if len(n.seq) < maxOSCLen {
			n.seq = append(n.seq, b)
		} else if len(n.seq) == maxOSCLen {
			n.seq = append(n.seq, 0) // sentinel: payload overflowed
			n.res.Dropped++
		}
	}
}

func (n *Normalizer) dispatchOSC() {
	if len(n.seq) > maxOSCLen {
		return
	}
	payload := string(n.seq)
	code, rest, _ := strings.Cut(payload, ";")
	switch code {
	case "0", "2":
		n.buf.SetTitle(rest)
	case "133":
		if m, ok := parseMark(rest); ok {
			m.Line = len(n.res.Lines)
			n.res.Marks = append(n.res.Marks, m)
		}
	}
}

func (n *Normalizer) clear() {
	n.buf.Clear()
	n.res.Cleared = true
}

// parseMark parses the part of an OSC 133 payload after "133;", for example
// "A", "D;1" or "A;cl=m".
func parseMark(s string) (Mark, bool) {
	if s == "" {
		return Mark{}, false
	}
	kind := MarkKind(s[0])
	switch kind {
	case MarkPromptStart, MarkCommandStart, MarkOutputStart, MarkCommandEnd:
	default:
		return Mark{}, false
	}
	m := Mark{Kind: kind}
	if kind == MarkCommandEnd {
		fields := strings.Split(s, ";")
		if len(fields) > 1 {
			if code, err := strconv.Atoi(fields[1]); err == nil {
				m.ExitCode = code
				m.HasExitCode = true
			}
		}
	}
	return m, true
}

// param returns the i-th numeric CSI parameter, or def if it is missing,
// empty, zero or unparsable.
func param(params string, i, def int) int {
	fields := strings.Split(params, ";")
	if i >= len(fields) {
		return def
	}
	f := fields[i]
	if idx := strings.IndexByte(f, ':'); idx >= 0 {
		f = f[:idx]
	}
	v, err := strconv.Atoi(f)
	if err != nil || v <= 0 {
		if def == 0 && err == nil {
			return 0
		}
		return def
	}
	if v > maxPadColumn {
		v = maxPadColumn
	}
	return v
}
