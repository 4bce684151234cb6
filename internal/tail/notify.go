package tail

// eventKind classifies one notification delivered by a notifier.
type eventKind int

const (
	eventCreate eventKind = iota
	eventDelete
	eventMovedFrom
	eventMovedTo
	eventModify
)

// event is a platform-independent filesystem notification. Directory-level
// events (install watch on the parent directory) carry Name; file-level
// events (install watch on a single open file) carry a zero Name and are
// matched to an Entry purely by Descriptor.
type event struct {
	Descriptor int32
	Name       string
	Kind       eventKind
	Cookie     uint32
	IsDir      bool
}

// notifier is the minimal filesystem-notification backend a FileWatcher
// needs. The Linux implementation (watch_linux.go) wraps raw inotify
// syscalls; non-Linux platforms (watch_other.go) report the feature as
// unsupported rather than silently degrading to polling, since spec.md
// treats "loss of the notification channel" as fatal to the watcher that
// depends on it, not a cue to fall back to another strategy.
type notifier interface {
	// addDirWatch installs a directory-level watch for create, delete,
	// moved-from, and moved-to events.
	addDirWatch(path string) (int32, error)
	// addFileWatch installs a file-level watch for modify events.
	addFileWatch(path string) (int32, error)
	// removeWatch releases a previously installed watch descriptor. It is
	// not an error to remove a descriptor that the kernel already dropped
	// (e.g. because the underlying file was deleted).
	removeWatch(wd int32) error
	// events returns the channel notifications arrive on. Closed by
	// close(); after a fatal read error it stays open until then.
	events() <-chan event
	// errs returns the channel fatal backend errors (e.g. a failed read
	// from the notification fd) are reported on, exactly once, before
	// events() is closed.
	errs() <-chan error
	// close releases the notifier's own resources (the inotify fd, any
	// self-pipe). Safe to call multiple times.
	close() error
}
