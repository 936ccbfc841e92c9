package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferLineCap(t *testing.T) {
	buf := NewBuffer(3)
	n := New(buf)
	n.Process([]byte("1\n2\n3\n4\n5"))

	snap := buf.Snapshot()
	assert.Equal(t, []string{"3", "4", "5"}, snap.Lines)
	assert.Equal(t, Cursor{Row: 2, Col: 1}, snap.Cursor)
	assert.Equal(t, 2, snap.Base)
	assert.Equal(t, 4, buf.Mark())
}

func TestBufferLinesSince(t *testing.T) {
	buf := NewBuffer(0)
	n := New(buf)
	n.Process([]byte("$ ls\n"))
	mark := buf.Mark()
	n.Process([]byte("a\nb\n$ "))

	assert.Equal(t, []string{"a", "b", "$ "}, buf.LinesSince(mark))
	assert.Nil(t, buf.LinesSince(mark+10))

	n.Process([]byte("\x1b[2J"))
	assert.Equal(t, []string{""}, buf.LinesSince(0), "lines before a clear are gone")
	assert.Equal(t, []string{""}, buf.LinesSince(mark))
}

func TestBufferEraseAbove(t *testing.T) {
	buf := NewBuffer(0)
	n := New(buf)
	res := n.Process([]byte("one\ntwo\nabc\x1b[1J"))
	assert.False(t, res.Cleared)
	assert.Equal(t, []string{"   "}, buf.Snapshot().Lines)
	assert.Equal(t, 2, buf.Mark())
}

func TestBufferBackspaceNeverNegative(t *testing.T) {
	buf := NewBuffer(0)
	for i := 0; i < 5; i++ {
		buf.Backspace()
	}
	assert.Equal(t, Cursor{}, buf.Cursor())
	buf.CursorBack(10)
	assert.Equal(t, 0, buf.Cursor().Col)
}

func TestSnapshotIsACopy(t *testing.T) {
	buf := NewBuffer(0)
	buf.Put('a')
	snap := buf.Snapshot()
	buf.CarriageReturn()
	buf.Put('b')
	assert.Equal(t, "a", snap.Lines[0])
	assert.Equal(t, "b", buf.CurrentLine())
}

func TestSnapshotText(t *testing.T) {
	s := Snapshot{Lines: []string{"a   ", "  b", ""}}
	assert.Equal(t, "a\n  b\n", s.Text())
}
