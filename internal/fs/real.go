package fs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// Real implements [FS] on the operating system. Reads and mkdir pass
// straight through to [os]; writes go through natefinch/atomic and locks use
// flock(2).
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

// ReadFile calls [os.ReadFile].
func (r *Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFileAtomic replaces path with data via temp file and rename, then
// applies perm. The atomic package already fsyncs the temp file.
func (r *Real) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	err := atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return err
	}

	return os.Chmod(path, perm)
}

// MkdirAll calls [os.MkdirAll].
func (r *Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// --- Locking ---

const (
	lockTimeout = 2 * time.Second
	lockPoll    = 10 * time.Millisecond
	lockPerms   = 0o644
	dirPerms    = 0o755
)

// realLock holds an exclusive file lock.
type realLock struct {
	path string
	file *os.File
}

func (l *realLock) Close() error {
	if l.file == nil {
		return nil
	}

	_ = os.Remove(l.path)
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil

	return err
}

// Lock takes an exclusive flock on a sibling file in a .locks directory so
// the lock never touches the protected file itself. It polls with LOCK_NB
// until [lockTimeout] and returns [os.ErrDeadlineExceeded] on contention.
func (r *Real) Lock(path string) (Locker, error) {
	locksDir := filepath.Join(filepath.Dir(path), ".locks")
	lockPath := filepath.Join(locksDir, filepath.Base(path)+".lock")

	deadline := time.Now().Add(lockTimeout)

	for {
		if err := os.MkdirAll(locksDir, dirPerms); err != nil {
			return nil, err
		}

		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockPerms)
		if err != nil {
			return nil, err
		}

		var openStat unix.Stat_t
		if err := unix.Fstat(int(file.Fd()), &openStat); err != nil {
			_ = file.Close()

			return nil, err
		}

		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			// The previous holder removes the lock file on release; if the path
			// now points at a different inode we locked a stale file.
			var pathStat unix.Stat_t
			if statErr := unix.Stat(lockPath, &pathStat); statErr != nil || pathStat.Ino != openStat.Ino {
				_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
				_ = file.Close()

				continue
			}

			return &realLock{path: lockPath, file: file}, nil
		}

		_ = file.Close()

		if !errors.Is(err, unix.EWOULDBLOCK) {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, os.ErrDeadlineExceeded
		}

		time.Sleep(lockPoll)
	}
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
