// Package tail implements the engine's core: one FileWatcher per
// configured target path, tracking the set of files currently matching
// that path and forwarding every appended line to a callback exactly once
// and in file order (spec.md §4.1–§4.3).
package tail

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Watcher observes one target path — a concrete file or a glob pattern
// restricted to wildcards in the basename — and invokes onLine once per
// complete line read from any currently matching file.
//
// A Watcher owns one notifier (one inotify instance on Linux) and runs one
// background goroutine; this is the Go-idiomatic redesign of spec.md's
// single shared cooperative event loop — see DESIGN.md.
type Watcher struct {
	targetDir string
	pattern   string
	onLine    func(line string)
	log       *slog.Logger

	table       *fileTable
	buffers     map[string]*lineBuffer
	moveCookies map[uint32]struct{}

	notifier notifier
	dirWD    int32

	mu        sync.Mutex
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// New constructs a Watcher for targetPath. targetPath's directory
// component must not itself contain glob metacharacters — only the
// basename may (config.ValidateFilePaths enforces this before a Watcher
// is ever built).
func New(targetPath string, onLine func(line string), log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Dir(targetPath)
	pattern := filepath.Base(targetPath)
	return &Watcher{
		targetDir:   dir,
		pattern:     pattern,
		onLine:      onLine,
		log:         log,
		table:       newFileTable(),
		buffers:     make(map[string]*lineBuffer),
		moveCookies: make(map[uint32]struct{}),
		stopCh:      make(chan struct{}),
	}
}

// TargetDir returns the parent directory this watcher installed its
// directory-level watch on.
func (w *Watcher) TargetDir() string { return w.targetDir }

// Watch begins asynchronous observation: installs the parent-directory
// watch, drains every currently matching file from its start, then starts
// the background event loop. Non-blocking. A second call, whether before
// or after Stop, is a no-op (spec.md §4.1 "idempotent after a prior
// stop()").
func (w *Watcher) Watch() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	n, err := newNotifier()
	if err != nil {
		return fmt.Errorf("tail: %s: %w", w.targetDir, err)
	}

	wd, err := n.addDirWatch(w.targetDir)
	if err != nil {
		n.close()
		return fmt.Errorf("tail: %s: watch attach failed: %w", w.targetDir, err)
	}
	w.notifier = n
	w.dirWD = wd

	w.bootstrap()

	w.doneCh = make(chan struct{})
	go w.loop()
	return nil
}

// Stop cancels the watch, closes every open file handle, releases every
// watch descriptor, then returns. Safe to call before Watch (no-op) and
// any number of times after (no-op after the first).
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.doneCh != nil {
			<-w.doneCh
		}
		if w.notifier != nil {
			w.notifier.close()
		}
		for _, path := range w.table.paths() {
			if e, ok := w.table.remove(path); ok && e.Handle != nil {
				e.Handle.Close()
			}
		}
	})
	return nil
}

// bootstrap expands the glob against the parent directory and opens every
// currently matching file from the start (spec.md §4.1 step 2).
func (w *Watcher) bootstrap() {
	entries, err := os.ReadDir(w.targetDir)
	if err != nil {
		w.log.Warn("tail: cannot list target directory", "path", w.targetDir, "error", err)
		return
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if ok, _ := doublestar.Match(w.pattern, de.Name()); !ok {
			continue
		}
		w.openFromStart(de.Name())
	}
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case err, ok := <-w.notifier.errs():
			if !ok {
				return
			}
			w.log.Error("tail: notification channel lost", "path", w.targetDir, "error", err)
			return
		case ev, ok := <-w.notifier.events():
			if !ok {
				return
			}
			if ev.Descriptor == w.dirWD {
				w.handleDirEvent(ev)
			} else {
				w.handleFileEvent(ev)
			}
		}
	}
}

// handleDirEvent implements the state-machine transitions keyed by
// filename within the watched directory (spec.md §4.1 state table).
func (w *Watcher) handleDirEvent(ev event) {
	if ev.IsDir || ev.Name == "" {
		return
	}
	if ok, _ := doublestar.Match(w.pattern, ev.Name); !ok {
		return
	}

	switch ev.Kind {
	case eventCreate:
		w.closeAndForget(ev.Name)
		w.openFromStart(ev.Name)

	case eventMovedTo:
		if _, sawMoveFrom := w.moveCookies[ev.Cookie]; sawMoveFrom && ev.Cookie != 0 {
			delete(w.moveCookies, ev.Cookie)
			w.openAtEnd(ev.Name)
		} else {
			w.openFromStart(ev.Name)
		}

	case eventMovedFrom:
		w.closeAndForget(ev.Name)
		if ev.Cookie != 0 {
			w.moveCookies[ev.Cookie] = struct{}{}
		}

	case eventDelete:
		w.closeAndForget(ev.Name)
	}
}

// handleFileEvent handles a modify notification keyed by watch descriptor
// (spec.md §4.1 step 3, "file event").
func (w *Watcher) handleFileEvent(ev event) {
	entry, ok := w.table.getByDescriptor(ev.Descriptor)
	if !ok {
		return // descriptor already released; stale notification
	}
	w.readAppended(entry)
}

func (w *Watcher) path(name string) string {
	return filepath.Join(w.targetDir, name)
}

// closeAndForget releases the watch descriptor and closes the handle for
// name, if tracked. No-op if name is not currently tracked.
func (w *Watcher) closeAndForget(name string) {
	path := w.path(name)
	entry, ok := w.table.remove(path)
	if !ok {
		return
	}
	if entry.Descriptor >= 0 {
		if err := w.notifier.removeWatch(entry.Descriptor); err != nil {
			w.log.Warn("tail: failed to release watch descriptor", "path", path, "error", err)
		}
	}
	if entry.Handle != nil {
		entry.Handle.Close()
	}
	delete(w.buffers, path)
}

// openFromStart opens name at offset 0, installs a file-level watch and
// records the entry, then drains all current content through its
// lineBuffer.
func (w *Watcher) openFromStart(name string) {
	path := w.path(name)
	f, err := os.Open(path)
	if err != nil {
		w.log.Warn("tail: cannot open newly matched file", "path", path, "error", err)
		return
	}

	w.buffers[path] = newLineBuffer(path, w.log)

	wd, err := w.notifier.addFileWatch(path)
	if err != nil {
		w.log.Warn("tail: watch attach failed for file", "path", path, "error", err)
		f.Close()
		delete(w.buffers, path)
		return
	}

	entry := &Entry{Path: path, Descriptor: wd, Handle: f, Offset: 0}
	w.table.upsert(entry)
	w.readAppended(entry)
}

// openAtEnd opens name, seeks (logically, via the recorded offset) to its
// current end, installs a file-level watch, and records the entry without
// draining any content — used when a move-cookie correlation shows this
// file's bytes were already ingested under its old name.
func (w *Watcher) openAtEnd(name string) {
	path := w.path(name)
	f, err := os.Open(path)
	if err != nil {
		w.log.Warn("tail: cannot open moved-in file", "path", path, "error", err)
		return
	}
	info, err := f.Stat()
	if err != nil {
		w.log.Warn("tail: cannot stat moved-in file", "path", path, "error", err)
		f.Close()
		return
	}

	w.buffers[path] = newLineBuffer(path, w.log)

	wd, err := w.notifier.addFileWatch(path)
	if err != nil {
		w.log.Warn("tail: watch attach failed for file", "path", path, "error", err)
		f.Close()
		delete(w.buffers, path)
		return
	}

	w.table.upsert(&Entry{Path: path, Descriptor: wd, Handle: f, Offset: info.Size()})
}

// readAppended reads bytes newly available in entry since its recorded
// offset, handling truncation-in-place by resetting to offset 0 and
// re-draining (spec.md §4.1 "Rotation & truncation").
func (w *Watcher) readAppended(entry *Entry) {
	info, err := entry.Handle.Stat()
	if err != nil {
		w.log.Warn("tail: stat failed", "path", entry.Path, "error", err)
		return
	}

	size := info.Size()
	if size < entry.Offset {
		w.log.Warn("tail: file shrank below its recorded offset; treating as truncation", "path", entry.Path)
		entry.Offset = 0
	}
	if size == entry.Offset {
		return
	}

	buf := make([]byte, size-entry.Offset)
	n, err := entry.Handle.ReadAt(buf, entry.Offset)
	if err != nil && err != io.EOF {
		w.log.Warn("tail: read failed", "path", entry.Path, "error", err)
		return
	}
	entry.Offset += int64(n)
	w.table.setOffset(entry.Path, entry.Offset)

	lb := w.buffers[entry.Path]
	if lb == nil {
		lb = newLineBuffer(entry.Path, w.log)
		w.buffers[entry.Path] = lb
	}
	lb.feed(buf[:n], w.onLine)
}
