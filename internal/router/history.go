package router

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// DefaultHistorySize caps the number of remembered commands.
const DefaultHistorySize = 500

const historyLockRetry = 50 * time.Millisecond

// History is the list of submitted commands, most recent last, with a
// browsing position for arrow-key navigation.
type History struct {
	entries []string
	max     int
	idx     int    // -1 when not browsing
	saved   string // line being edited before browsing started
	unsaved int    // newest entries added since the last Load or Save
}

// NewHistory returns an empty history holding at most max entries
// (DefaultHistorySize if max <= 0).
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max, idx: -1}
}

// Add appends a command. Blank commands and repeats of the latest entry are
// skipped. Browsing state is reset.
func (h *History) Add(cmd string) {
	h.idx = -1
	h.saved = ""
	if h.add(cmd) {
		h.unsaved = min(h.unsaved+1, len(h.entries))
	}
}

func (h *History) add(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return false
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == cmd {
		return false
	}
	h.entries = append(h.entries, cmd)
	if len(h.entries) > h.max {
		h.entries = append([]string(nil), h.entries[len(h.entries)-h.max:]...)
	}
	return true
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Up moves to the previous entry. current is the line being edited, restored
// when browsing walks back past the newest entry.
func (h *History) Up(current string) (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.idx == -1 {
		h.saved = current
		h.idx = len(h.entries) - 1
	} else if h.idx > 0 {
		h.idx--
	} else {
		return "", false
	}
	return h.entries[h.idx], true
}

// Down moves to the next entry, or back to the saved line after the newest.
func (h *History) Down() (string, bool) {
	if h.idx == -1 {
		return "", false
	}
	if h.idx < len(h.entries)-1 {
		h.idx++
		return h.entries[h.idx], true
	}
	h.idx = -1
	s := h.saved
	h.saved = ""
	return s, true
}

// ResetBrowse leaves browsing mode without changing the entries.
func (h *History) ResetBrowse() {
	h.idx = -1
	h.saved = ""
}

type historyRecord struct {
	Cmd string `json:"cmd"`
}

// Load appends the commands stored in path (one JSON object per line). A
// missing file is not an error.
func (h *History) Load(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryRLockContext(ctx, historyLockRetry)
	if err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock history: %s is busy", path)
	}
	defer lock.Unlock()

	cmds, err := readHistory(path)
	if err != nil {
		return err
	}
	for _, cmd := range cmds {
		h.add(cmd)
	}
	h.unsaved = 0
	return nil
}

// readHistory returns the commands stored in path, skipping corrupt lines.
// The caller holds the lock.
func readHistory(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var cmds []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec historyRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip corrupt lines
		}
		cmds = append(cmds, rec.Cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return cmds, nil
}

// Save merges the commands added since the last Load or Save into path.
// Whatever other sessions saved in the meantime is kept, older than ours,
// and the result is capped. The history then mirrors the file.
func (h *History) Save(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, historyLockRetry)
	if err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock history: %s is busy", path)
	}
	defer lock.Unlock()

	stored, err := readHistory(path)
	if err != nil {
		return err
	}
	merged := &History{max: h.max, idx: -1}
	for _, cmd := range stored {
		merged.add(cmd)
	}
	for _, cmd := range h.entries[len(h.entries)-h.unsaved:] {
		merged.add(cmd)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, cmd := range merged.entries {
		if err := enc.Encode(historyRecord{Cmd: cmd}); err != nil {
			f.Close()
			return fmt.Errorf("write history: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	h.entries = merged.entries
	h.unsaved = 0
	h.ResetBrowse()
	return nil
}
