package client

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"aiterm/internal/termstyle"
)

func render(v View) string {
	termstyle.SetEnabled(false)
	var buf bytes.Buffer
	v.Render(&buf)
	return buf.String()
}

// row returns what Render wrote for the 1-based row.
func row(frame string, n int) string {
	marker := fmt.Sprintf("\033[%d;1H\033[2K", n)
	i := strings.Index(frame, marker)
	if i < 0 {
		return ""
	}
	rest := frame[i+len(marker):]
	if j := strings.Index(rest, "\033["); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func TestBodyRows(t *testing.T) {
	assert.Equal(t, 21, BodyRows(24))
	assert.Equal(t, 1, BodyRows(3))
	assert.Equal(t, 1, BodyRows(0))
}

func TestRender_AnchorsToCursor(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	v := View{Lines: lines, CursorRow: 9, CursorCol: 6, Rows: 6, Cols: 20}
	frame := render(v)

	// 6 rows - 3 reserved leaves lines 7..9.
	assert.Equal(t, "line 7", row(frame, 1))
	assert.Equal(t, "line 9", row(frame, 3))
	assert.True(t, strings.HasPrefix(frame, "\033[?25l"))
	assert.True(t, strings.HasSuffix(frame, "\033[3;7H\033[?25h"))
}

func TestRender_ShortBuffer(t *testing.T) {
	v := View{Lines: []string{"$ "}, CursorRow: 0, CursorCol: 2, Rows: 6, Cols: 20}
	frame := render(v)
	assert.Equal(t, "$ ", row(frame, 1))
	assert.Equal(t, "", row(frame, 2))
	assert.True(t, strings.HasSuffix(frame, "\033[1;3H\033[?25h"))
}

func TestRender_TruncatesWideLines(t *testing.T) {
	v := View{Lines: []string{"日本語のテキスト"}, Rows: 4, Cols: 5}
	assert.Equal(t, "日本", row(render(v), 1))
}

func TestRender_StatusBarPadded(t *testing.T) {
	v := View{Status: "aiterm", Rows: 4, Cols: 10}
	assert.Equal(t, "aiterm    ", row(render(v), 4))
}

func TestRender_NoticesKeepNewest(t *testing.T) {
	v := View{
		Notices: []Notice{{Text: "one"}, {Text: "two"}, {Mark: "x", Text: "three"}},
		Rows:    6,
		Cols:    20,
	}
	frame := render(v)
	assert.Equal(t, "two", row(frame, 4))
	assert.Equal(t, "x three", row(frame, 5))
}

func TestRender_AskLine(t *testing.T) {
	v := View{
		Notices: []Notice{{Text: "one"}, {Text: "two"}},
		Asking:  true,
		Ask:     "list files",
		AskPos:  4,
		Rows:    6,
		Cols:    40,
	}
	frame := render(v)
	assert.Equal(t, "two", row(frame, 4))
	assert.Equal(t, "ask> list files", row(frame, 5))
	// Cursor after "ask> list".
	assert.True(t, strings.HasSuffix(frame, "\033[5;10H\033[?25h"))
}

func TestCellColumn(t *testing.T) {
	assert.Equal(t, 3, CellColumn("abc", 3))
	assert.Equal(t, 4, CellColumn("日本", 2))
	assert.Equal(t, 5, CellColumn("abc", 5))
	assert.Equal(t, 0, CellColumn("", 0))
}
