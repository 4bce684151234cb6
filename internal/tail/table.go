package tail

import (
	"os"
	"sync"
)

// Entry is one tracked file within a FileWatcher's target set: its current
// read offset and, while open, its descriptor and file handle.
type Entry struct {
	Path       string
	Descriptor int32 // -1 when no watch descriptor is installed
	Handle     *os.File
	Offset     int64
}

// fileTable is the dual-indexed table spec.md §4.2 describes: entries are
// reachable by path (directory events name a file) and by watch descriptor
// (file-level events carry only a descriptor). It is owned exclusively by
// one FileWatcher — the mutex guards against the watcher's own goroutine
// racing with tests or diagnostics reading it concurrently, not against
// genuine multi-writer use.
type fileTable struct {
	mu           sync.Mutex
	byPath       map[string]*Entry
	byDescriptor map[int32]*Entry
}

func newFileTable() *fileTable {
	return &fileTable{
		byPath:       make(map[string]*Entry),
		byDescriptor: make(map[int32]*Entry),
	}
}

// upsert inserts or replaces the entry for path in full, reindexing its
// descriptor. A descriptor of -1 means "no descriptor installed" and is
// not indexed.
func (t *fileTable) upsert(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.byPath[e.Path]; ok && old.Descriptor >= 0 {
		delete(t.byDescriptor, old.Descriptor)
	}
	t.byPath[e.Path] = e
	if e.Descriptor >= 0 {
		t.byDescriptor[e.Descriptor] = e
	}
}

// setOffset updates just the recorded read offset for path, if tracked.
func (t *fileTable) setOffset(path string, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byPath[path]; ok {
		e.Offset = offset
	}
}

func (t *fileTable) get(path string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byPath[path]
	return e, ok
}

func (t *fileTable) getByDescriptor(wd int32) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byDescriptor[wd]
	return e, ok
}

// remove drops the entry for path from both indexes, returning it if found
// so the caller can close its handle / release its descriptor.
func (t *fileTable) remove(path string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byPath[path]
	if !ok {
		return nil, false
	}
	delete(t.byPath, path)
	if e.Descriptor >= 0 {
		delete(t.byDescriptor, e.Descriptor)
	}
	return e, true
}

func (t *fileTable) paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byPath))
	for p := range t.byPath {
		out = append(out, p)
	}
	return out
}

func (t *fileTable) descriptors() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int32, 0, len(t.byDescriptor))
	for wd := range t.byDescriptor {
		out = append(out, wd)
	}
	return out
}
