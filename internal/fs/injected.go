package fs

import (
	"errors"
	iofs "io/fs"
	"sync"
)

// faultError wraps a non-errno failure produced by [Chaos]. Errors.Is and
// errors.As see through it.
type faultError struct {
	err error
}

func (e *faultError) Error() string { return e.err.Error() }

func (e *faultError) Unwrap() error { return e.err }

// IsInjected reports whether err, or anything it wraps, came from [Chaos]
// rather than the operating system.
//
// Errno faults are returned as plain *fs.PathError values so os.IsNotExist
// and friends keep working; those are remembered by pointer.
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var fault *faultError
	if errors.As(err, &fault) {
		return true
	}

	var pathErr *iofs.PathError
	if errors.As(err, &pathErr) {
		_, ok := chaosPathErrors.Load(pathErr)

		return ok
	}

	return false
}

var chaosPathErrors sync.Map // *fs.PathError -> struct{}

func markInjectedPathError(err *iofs.PathError) {
	chaosPathErrors.Store(err, struct{}{})
}

func inject(err error) error {
	if IsInjected(err) {
		return err
	}

	return &faultError{err: err}
}
