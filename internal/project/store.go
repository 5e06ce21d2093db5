package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/calvinalkan/nexus-studio/internal/kv"
)

// Store is the bounded project list. The zero value is not usable; call
// [Open].
//
// Persistence failures never surface from the mutating methods. They are
// logged, and the last one is available from [Store.Degraded]; the in-memory
// list stays authoritative until the next successful write.
type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	projects []Project // most recent first
	limit    int
	lastID   int64
	degraded error
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a [Store].
type Option func(*Store)

// WithLimit overrides [DefaultLimit]. Values below 1 are ignored.
func WithLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithClock sets the time source for IDs and CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for storage warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open loads the project list from store. Missing or unreadable data yields
// an empty list; Open never fails.
func Open(ctx context.Context, store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		limit:  DefaultLimit,
		now:    time.Now,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	s.load(ctx)
	s.mu.Unlock()

	return s
}

// Reload re-reads the list from storage, e.g. after another process wrote
// it. IDs issued afterwards stay above every ID seen so far.
func (s *Store) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load(ctx)
}

// load replaces the in-memory list. Caller holds mu.
func (s *Store) load(ctx context.Context) {
	s.projects = nil

	data, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug("no saved projects", "key", StorageKey)

			return
		}

		s.logger.Warn("load projects failed", "key", StorageKey, "error", err)

		return
	}

	var loaded []Project

	err = json.Unmarshal(data, &loaded)
	if err != nil {
		s.logger.Warn("saved projects are corrupt, starting empty", "key", StorageKey, "error", err)

		return
	}

	if len(loaded) > s.limit {
		loaded = loaded[:s.limit]
	}

	for _, p := range loaded {
		s.lastID = max(s.lastID, p.ID)
	}

	s.projects = loaded
}

// AddProject inserts a new project at the head of the list, evicts the
// oldest beyond the limit and persists the result.
func (s *Store) AddProject(ctx context.Context, name, sourceRef string) Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}

	s.lastID = id

	p := Project{
		ID:        id,
		Name:      name,
		SourceRef: sourceRef,
		CreatedAt: now.Format(DateLayout),
	}

	s.projects = slices.Insert(s.projects, 0, p)
	if len(s.projects) > s.limit {
		evicted := s.projects[s.limit:]
		s.projects = s.projects[:s.limit:s.limit]

		for _, e := range evicted {
			s.logger.Debug("project evicted", "id", e.ID, "name", e.Name)
		}
	}

	s.persist(ctx)

	return p
}

// persist writes the full list. Caller holds mu.
func (s *Store) persist(ctx context.Context) {
	data, err := json.Marshal(s.listLocked())
	if err != nil {
		s.degraded = fmt.Errorf("%w: encode projects: %w", kv.ErrStorageUnavailable, err)
		s.logger.Error("encode projects failed", "error", err)

		return
	}

	err = s.kv.Set(ctx, StorageKey, data)
	if err != nil {
		s.degraded = err
		s.logger.Warn("save projects failed, keeping in memory", "key", StorageKey, "error", err)

		return
	}

	s.degraded = nil
}

// FindByID returns the project with id or [ErrNotFound].
func (s *Store) FindByID(id int64) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.projects {
		if p.ID == id {
			return p, nil
		}
	}

	return Project{}, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// List returns all projects, most recent first.
func (s *Store) List() []Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listLocked()
}

func (s *Store) listLocked() []Project {
	out := make([]Project, len(s.projects))
	copy(out, s.projects)

	return out
}

// Recent returns at most n projects, most recent first.
func (s *Store) Recent(n int) []Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	n = min(max(n, 0), len(s.projects))
	out := make([]Project, n)
	copy(out, s.projects[:n])

	return out
}

// Len returns the number of projects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.projects)
}

// Limit returns the configured capacity.
func (s *Store) Limit() int {
	return s.limit
}

// Degraded returns the last persistence failure, or nil if the last write
// succeeded.
func (s *Store) Degraded() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.degraded
}
