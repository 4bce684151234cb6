//go:build linux

package tail

import (
	"bytes"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var inotifyEventHeaderSize = int(unsafe.Sizeof(unix.InotifyEvent{}))

const (
	dirWatchMask  uint32 = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO
	fileWatchMask uint32 = unix.IN_MODIFY | unix.IN_CLOSE_WRITE
)

// inotifyNotifier is the Linux notifier backend: one inotify instance read
// by one background goroutine via a 100ms-timeout poll(2) loop, so the
// done channel is checked frequently without either busy-waiting or
// blocking Stop indefinitely.
type inotifyNotifier struct {
	fd int

	done     chan struct{}
	doneOnce sync.Once

	eventCh chan event
	errCh   chan error
	wg      sync.WaitGroup
}

func newNotifier() (notifier, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("tail: inotify init: %w", err)
	}

	n := &inotifyNotifier{
		fd:      fd,
		done:    make(chan struct{}),
		eventCh: make(chan event, 64),
		errCh:   make(chan error, 1),
	}
	n.wg.Add(1)
	go n.run()
	return n, nil
}

func (n *inotifyNotifier) addDirWatch(path string) (int32, error) {
	return n.addWatch(path, dirWatchMask)
}

func (n *inotifyNotifier) addFileWatch(path string) (int32, error) {
	return n.addWatch(path, fileWatchMask)
}

func (n *inotifyNotifier) addWatch(path string, mask uint32) (int32, error) {
	wd, err := unix.InotifyAddWatch(n.fd, path, mask)
	if err != nil {
		return 0, fmt.Errorf("inotify add watch %q: %w", path, err)
	}
	return int32(wd), nil
}

func (n *inotifyNotifier) removeWatch(wd int32) error {
	if _, err := unix.InotifyRmWatch(n.fd, wd); err != nil {
		if err == unix.EINVAL {
			// The kernel already dropped this watch (e.g. its file was
			// deleted); nothing left to release.
			return nil
		}
		return fmt.Errorf("inotify rm watch: %w", err)
	}
	return nil
}

func (n *inotifyNotifier) events() <-chan event { return n.eventCh }
func (n *inotifyNotifier) errs() <-chan error   { return n.errCh }

func (n *inotifyNotifier) close() error {
	n.doneOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
		unix.Close(n.fd)
		close(n.eventCh)
	})
	return nil
}

func (n *inotifyNotifier) run() {
	defer n.wg.Done()

	buf := make([]byte, 4096*(inotifyEventHeaderSize+256))
	pfd := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-n.done:
			return
		default:
		}

		_, err := unix.Poll(pfd, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			select {
			case <-n.done:
				return
			default:
			}
			n.errCh <- fmt.Errorf("inotify poll: %w", err)
			return
		}
		if pfd[0].Revents&unix.POLLIN == 0 {
			continue
		}

		nr, err := unix.Read(n.fd, buf)
		if err != nil {
			select {
			case <-n.done:
				return
			default:
			}
			if err == unix.EAGAIN {
				continue
			}
			n.errCh <- fmt.Errorf("inotify read: %w", err)
			return
		}
		if nr == 0 {
			continue
		}

		n.parse(buf[:nr])
	}
}

// parse decodes a buffer of one or more consecutive raw inotify_event
// structures. Layout: a fixed-size header (wd, mask, cookie, len) followed
// by a NUL-terminated, NUL-padded name field of length Len.
func (n *inotifyNotifier) parse(buf []byte) {
	for offset := 0; offset+inotifyEventHeaderSize <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += inotifyEventHeaderSize

		var name string
		if raw.Len > 0 {
			end := offset + int(raw.Len)
			if end > len(buf) {
				break
			}
			nameBytes := buf[offset:end]
			if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
				nameBytes = nameBytes[:i]
			}
			name = string(nameBytes)
			offset = end
		}

		mask := raw.Mask
		if mask&unix.IN_Q_OVERFLOW != 0 {
			// Carries wd == -1; there is nothing to correlate it to.
			continue
		}

		ev := event{
			Descriptor: raw.Wd,
			Name:       name,
			Cookie:     raw.Cookie,
			IsDir:      mask&unix.IN_ISDIR != 0,
		}

		switch {
		case mask&unix.IN_CREATE != 0:
			ev.Kind = eventCreate
		case mask&unix.IN_MOVED_TO != 0:
			ev.Kind = eventMovedTo
		case mask&unix.IN_MOVED_FROM != 0:
			ev.Kind = eventMovedFrom
		case mask&unix.IN_DELETE != 0:
			ev.Kind = eventDelete
		case mask&unix.IN_MODIFY != 0, mask&unix.IN_CLOSE_WRITE != 0:
			ev.Kind = eventModify
		default:
			continue
		}

		select {
		case n.eventCh <- ev:
		case <-n.done:
			return
		}
	}
}
