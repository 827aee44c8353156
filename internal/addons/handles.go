package addons

import (
	"log/slog"
	"sync"
)

// handleTable owns every mapped addon library. Each entry is reference
// counted: the host holds one reference per loaded addon, every live proxy
// holds one, and every in-flight addon call holds one. The library is closed
// when the count drops to zero.
type handleTable struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*handleEntry
	logger  *slog.Logger
}

type handleEntry struct {
	lib  Library
	path string
	refs int
}

func newHandleTable(logger *slog.Logger) *handleTable {
	return &handleTable{entries: make(map[uint64]*handleEntry), logger: logger}
}

// add registers lib with a single reference owned by the caller.
func (t *handleTable) add(path string, lib Library) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.entries[t.next] = &handleEntry{lib: lib, path: path, refs: 1}
	return t.next
}

// retain adds a reference. It fails once the entry has been closed.
func (t *handleTable) retain(h uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if !ok {
		return false
	}
	e.refs++
	return true
}

func (t *handleTable) release(h uint64) {
	t.mu.Lock()
	e, ok := t.entries[h]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		t.mu.Unlock()
		return
	}
	delete(t.entries, h)
	t.mu.Unlock()

	if err := e.lib.Close(); err != nil {
		t.logger.Warn("failed to close addon library", "path", e.path, "error", err)
	}
}

func (t *handleTable) refs(h uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[h]; ok {
		return e.refs
	}
	return 0
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
