package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Backend names accepted by [Open].
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// SQLiteFileName is the database file created inside the data dir.
const SQLiteFileName = "nexus.sqlite"

// ErrUnknownBackend reports a backend name [Open] doesn't know.
var ErrUnknownBackend = errors.New("unknown storage backend")

// IsBackend reports whether name is a supported backend.
func IsBackend(name string) bool {
	switch name {
	case BackendFile, BackendSQLite, BackendMemory:
		return true
	}

	return false
}

// Open returns the backend named backend rooted at dataDir. The caller must
// Close the result if it implements [Closer].
func Open(ctx context.Context, backend, dataDir string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendFile:
		return NewFile(dataDir, WithFileLogger(logger))
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(dataDir, SQLiteFileName))
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Close closes s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}

	return nil
}
