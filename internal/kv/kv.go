// Package kv is the durable key-value port the stores persist through.
//
// A [Store] holds opaque byte values under string keys. Backends:
//   - [Memory]: in-process map, used by tests and the "memory" backend
//   - [File]: one file per key in a directory, replaced atomically
//   - [SQLite]: a single table in an embedded SQLite database
package kv

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound reports that no value is stored under the key.
	ErrNotFound = errors.New("key not found")

	// ErrStorageUnavailable wraps every backend read or write failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidKey reports a key the backends refuse to store.
	ErrInvalidKey = errors.New("invalid key")
)

// Store is the durable key-value port.
type Store interface {
	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
}

// Closer is implemented by backends that hold resources.
type Closer interface {
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// ValidateKey rejects keys that can't be used as a file name.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStorageUnavailable, op, key, err)
}
