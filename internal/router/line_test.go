package router

import "testing"

// --- CursorLeft / CursorRight ---

func TestCursorLeft_MultibyteUTF8(t *testing.T) {
	// "aé" is 3 bytes: 'a'(1) + 'é'(2)
	l := &Line{Input: []byte("aé"), CursorPos: 3}
	if !l.CursorLeft() {
		t.Fatal("expected move")
	}
	if l.CursorPos != 1 {
		t.Fatalf("expected 1, got %d", l.CursorPos)
	}
}

func TestCursorLeft_AtStart(t *testing.T) {
	l := &Line{Input: []byte("abc")}
	if l.CursorLeft() {
		t.Fatal("expected no move at start")
	}
}

func TestCursorRight_MultibyteUTF8(t *testing.T) {
	l := &Line{Input: []byte("éb")}
	l.CursorRight()
	if l.CursorPos != 2 {
		t.Fatalf("expected 2, got %d", l.CursorPos)
	}
	if l.RunesBefore() != 1 || l.RunesAfter() != 1 {
		t.Fatalf("runes before/after = %d/%d", l.RunesBefore(), l.RunesAfter())
	}
}

// --- Word motion ---

func TestCursorForwardWord(t *testing.T) {
	l := &Line{Input: []byte("git  commit -m")}
	l.CursorForwardWord()
	if l.CursorPos != 3 {
		t.Fatalf("expected 3, got %d", l.CursorPos)
	}
	l.CursorForwardWord()
	if l.CursorPos != 11 {
		t.Fatalf("expected 11, got %d", l.CursorPos)
	}
}

func TestCursorBackwardWord(t *testing.T) {
	l := &Line{Input: []byte("git commit -m"), CursorPos: 13}
	l.CursorBackwardWord()
	if l.CursorPos != 12 {
		t.Fatalf("expected 12, got %d", l.CursorPos)
	}
	l.CursorBackwardWord()
	if l.CursorPos != 4 {
		t.Fatalf("expected 4, got %d", l.CursorPos)
	}
}

// --- Editing ---

func TestInsertRune_Middle(t *testing.T) {
	l := &Line{Input: []byte("ac"), CursorPos: 1}
	l.InsertRune('é')
	if l.String() != "aéc" || l.CursorPos != 3 {
		t.Fatalf("got %q cursor %d", l.String(), l.CursorPos)
	}
}

func TestDeleteBackward(t *testing.T) {
	l := &Line{Input: []byte("héllo"), CursorPos: 3}
	if !l.DeleteBackward() {
		t.Fatal("expected delete")
	}
	if l.String() != "hllo" || l.CursorPos != 1 {
		t.Fatalf("got %q cursor %d", l.String(), l.CursorPos)
	}
	l.CursorPos = 0
	if l.DeleteBackward() {
		t.Fatal("expected no delete at start")
	}
}

func TestDeleteForward(t *testing.T) {
	l := &Line{Input: []byte("aéb"), CursorPos: 1}
	if !l.DeleteForward() {
		t.Fatal("expected delete")
	}
	if l.String() != "ab" || l.CursorPos != 1 {
		t.Fatalf("got %q cursor %d", l.String(), l.CursorPos)
	}
	l.CursorToEnd()
	if l.DeleteForward() {
		t.Fatal("expected no delete at end")
	}
}

func TestSetAndReset(t *testing.T) {
	var l Line
	l.Set("make test")
	if !l.AtEnd() || l.RunesBefore() != 9 {
		t.Fatalf("cursor %d after Set", l.CursorPos)
	}
	l.Reset()
	if l.String() != "" || l.CursorPos != 0 {
		t.Fatalf("got %q cursor %d after Reset", l.String(), l.CursorPos)
	}
}
