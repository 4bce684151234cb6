//go:build !linux

package tail

import "fmt"

// newNotifier always fails on non-Linux platforms. The engine's
// notification-channel contract (spec.md §4.1) assumes kernel-level
// filesystem events; without an equivalent backend wired in here, a
// Watcher cannot be started at all on this platform rather than silently
// degrading to a slower polling strategy.
func newNotifier() (notifier, error) {
	return nil, fmt.Errorf("tail: filesystem notifications are only supported on linux in this build")
}
