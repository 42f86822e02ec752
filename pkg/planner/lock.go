package planner

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLockBusy means another process (or another attempt in this process)
// already holds the advisory lock.
var ErrLockBusy = errors.New("planner: lock file busy")

// fileLock wraps a non-blocking exclusive flock(2) on a well-known path.
// It is the sole cross-process serializer for mutation per spec.md §5.
type fileLock struct {
	f *os.File
}

// acquireLock opens path (creating it if needed) and takes a non-blocking
// exclusive lock. It returns ErrLockBusy if the lock is already held.
func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLockBusy
		}
		return nil, err
	}

	return &fileLock{f: f}, nil
}

// release unlocks and closes the underlying file descriptor. Safe to call
// on every return path, including ones reached via recover().
func (l *fileLock) release() {
	if l == nil || l.f == nil {
		return
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
}
