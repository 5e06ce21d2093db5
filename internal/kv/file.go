package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/calvinalkan/nexus-studio/internal/fs"
)

const (
	fileExt   = ".json"
	filePerms = 0o644
	dirPerms  = 0o755
)

// File stores each key as <dir>/<key>.json.
//
// Writes go through [fs.FS.WriteFileAtomic] under an exclusive [fs.FS.Lock],
// so concurrent nexus processes sharing a data dir never see torn files.
type File struct {
	dir    string
	fs     fs.FS
	logger *slog.Logger
}

// FileOption configures a [File].
type FileOption func(*File)

// WithFS swaps the filesystem, e.g. for [fs.Chaos] in tests.
func WithFS(fsys fs.FS) FileOption {
	return func(f *File) { f.fs = fsys }
}

// WithFileLogger sets the logger used by [File.Watch].
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(f *File) { f.logger = logger }
}

// NewFile returns a file-backed store rooted at dir. The directory is created
// lazily on the first Set.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	if dir == "" {
		return nil, errors.New("new file store: directory is empty")
	}

	f := &File{
		dir:    filepath.Clean(dir),
		fs:     fs.NewReal(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Dir returns the directory holding the key files.
func (f *File) Dir() string {
	return f.dir
}

// Path returns the file backing key.
func (f *File) Path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

// Get implements [Store].
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", key, err)
	}

	data, err := f.fs.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, unavailable("get", key, err)
	}

	return data, nil
}

// Set implements [Store].
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return unavailable("set", key, err)
	}

	if err := f.fs.MkdirAll(f.dir, dirPerms); err != nil {
		return unavailable("set", key, fmt.Errorf("create data dir: %w", err))
	}

	path := f.Path(key)

	lock, err := f.fs.Lock(path)
	if err != nil {
		return unavailable("set", key, fmt.Errorf("lock: %w", err))
	}

	writeErr := f.fs.WriteFileAtomic(path, value, filePerms)
	closeErr := lock.Close()

	if writeErr != nil {
		return unavailable("set", key, writeErr)
	}

	if closeErr != nil {
		f.logger.Warn("release lock failed", "path", path, "error", closeErr)
	}

	return nil
}

// Watch calls onChange whenever the file backing key is created or replaced
// by any process, until ctx is cancelled. The directory must exist or be
// creatable. Watch blocks; run it in its own goroutine.
func (f *File) Watch(ctx context.Context, key string, onChange func()) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := f.fs.MkdirAll(f.dir, dirPerms); err != nil {
		return fmt.Errorf("watch %s: create data dir: %w", key, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", key, err)
	}
	defer watcher.Close()

	// Atomic replaces rename a temp file over the target, so watch the
	// directory rather than the file itself.
	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", key, err)
	}

	target := f.Path(key)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != target {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				f.logger.Debug("kv file changed", "key", key, "op", event.Op.String())
				onChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			f.logger.Warn("kv watcher error", "key", key, "error", err)
		}
	}
}

var _ Store = (*File)(nil)
