// Package fs is the filesystem seam under the file-backed key-value store.
//
// [Real] talks to the operating system. [Chaos] wraps any [FS] and injects
// OS-shaped faults so storage tests can exercise full disks, read-only
// mounts and lock timeouts without root.
package fs

import (
	"io"
	"os"
)

// Locker is a held lock; Close releases it.
type Locker interface {
	io.Closer
}

// FS is the set of operations the file-backed store performs.
// Implementations must be safe for concurrent use.
type FS interface {
	// ReadFile reads the whole file. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces path with data so readers see either the old
	// or the new content, never a mix.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// MkdirAll creates path and any missing parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Lock takes an exclusive lock tied to path that other processes
	// honour. It gives up with [os.ErrDeadlineExceeded] under contention.
	Lock(path string) (Locker, error)
}
