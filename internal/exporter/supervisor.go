// Package exporter wires configuration, metrics, rules, and file watchers
// together and supervises their lifecycle (spec.md §4.6).
package exporter

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/lmetrics/exporter/internal/tail"
)

// Supervisor starts and stops every configured Watcher, aggregating
// failures without letting one watcher's trouble take down the others
// (spec.md §4.6: "failures in individual stops are logged but do not
// abort the others").
type Supervisor struct {
	log      *slog.Logger
	watchers []*tail.Watcher
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithWatchers registers one or more Watchers with the Supervisor.
func WithWatchers(ws ...*tail.Watcher) Option {
	return func(s *Supervisor) { s.watchers = append(s.watchers, ws...) }
}

// New creates a Supervisor. Use WithWatchers to register the Watchers it
// should manage.
func New(log *slog.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAll calls Watch on every registered watcher. If any watcher fails
// to start, StartAll stops the watchers that already started and returns
// the first error — a watch-attach failure for the top-level target path
// is a startup-time configuration problem, distinct from the
// WatchAttachFailed disposition for individual files matched later by a
// glob (spec.md §7), which each Watcher already logs-and-drops internally.
func (s *Supervisor) StartAll() error {
	for i, w := range s.watchers {
		if err := w.Watch(); err != nil {
			for _, started := range s.watchers[:i] {
				started.Stop()
			}
			return fmt.Errorf("exporter: watcher for %s: %w", w.TargetDir(), err)
		}
	}
	s.log.Info("all watchers started", "count", len(s.watchers))
	return nil
}

// StopAll stops every registered watcher concurrently, logging (but not
// returning) any individual failure.
func (s *Supervisor) StopAll() {
	var wg sync.WaitGroup
	for _, w := range s.watchers {
		wg.Add(1)
		go func(w *tail.Watcher) {
			defer wg.Done()
			if err := w.Stop(); err != nil {
				s.log.Warn("watcher stop failed", "path", w.TargetDir(), "error", err)
			}
		}(w)
	}
	wg.Wait()
	s.log.Info("all watchers stopped")
}
