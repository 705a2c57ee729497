//go:build unix

package storage

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive checks pid with signal 0. Only ESRCH counts as dead; EPERM
// means the process exists under another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return !errors.Is(err, unix.ESRCH)
}
