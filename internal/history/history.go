// Package history keeps the bounded undo log of edits applied to the loaded media.
//
// Each [Record] captures the filter values in effect when the edit happened.
// [Store.Undo] drops the newest record and hands back the filters the caller
// should re-apply: the previous record's snapshot, or [DefaultSnapshot] once
// the log is empty.
package history

import (
	"errors"
	"maps"
	"sync"
	"time"
)

// DefaultLimit is the number of records kept before the oldest is evicted.
const DefaultLimit = 50

// TimestampLayout formats [Record.Timestamp].
const TimestampLayout = "15:04:05"

// Filter parameter names used by the neutral snapshot.
const (
	Brightness = "brightness"
	Contrast   = "contrast"
	Saturation = "saturation"
)

// neutralValue is the slider value that leaves the media unchanged.
const neutralValue = 100

// ErrEmptyHistory is returned by [Store.Undo] when there is nothing to undo.
// It is informational: the store is left untouched.
var ErrEmptyHistory = errors.New("nothing to undo")

// Snapshot maps a filter parameter name to its value.
type Snapshot map[string]float64

// DefaultSnapshot returns the neutral filter values.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Brightness: neutralValue,
		Contrast:   neutralValue,
		Saturation: neutralValue,
	}
}

// Clone returns an independent copy. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}

	return maps.Clone(s)
}

// Record is one entry of the undo log. Values handed out by [Store] are copies,
// so a Record never changes after creation.
type Record struct {
	Name      string   `json:"name"`
	Timestamp string   `json:"timestamp"`
	Snapshot  Snapshot `json:"snapshot"`
}

func (r Record) clone() Record {
	r.Snapshot = r.Snapshot.Clone()

	return r
}

// Option configures a [Store].
type Option func(*Store)

// WithLimit overrides [DefaultLimit]. Values below 1 are ignored.
func WithLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithClock sets the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the undo log. The zero value is not usable; call [New].
//
// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries []Record
	cursor  int
	limit   int
	now     func() time.Time
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		cursor: -1,
		limit:  DefaultLimit,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Record appends an edit named name with a copy of snapshot and makes it current.
// When the log grows past its limit the oldest record is dropped.
func (s *Store) Record(name string, snapshot Snapshot) Record {
	rec := Record{
		Name:      name,
		Timestamp: s.now().Format(TimestampLayout),
		Snapshot:  snapshot.Clone(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, rec)
	s.cursor = len(s.entries) - 1

	if len(s.entries) > s.limit {
		// Shift instead of reslicing so the backing array doesn't grow forever.
		copy(s.entries, s.entries[1:])
		s.entries[len(s.entries)-1] = Record{}
		s.entries = s.entries[:len(s.entries)-1]
		s.cursor--
	}

	return rec.clone()
}

// Undo removes the newest record and returns the snapshot to re-apply.
// If records remain, that is the new newest record's snapshot; otherwise it is
// [DefaultSnapshot]. On an empty store Undo returns [ErrEmptyHistory].
func (s *Store) Undo() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor < 0 {
		return nil, ErrEmptyHistory
	}

	s.entries[len(s.entries)-1] = Record{}
	s.entries = s.entries[:len(s.entries)-1]
	s.cursor--

	if len(s.entries) == 0 {
		return DefaultSnapshot(), nil
	}

	return s.entries[len(s.entries)-1].Snapshot.Clone(), nil
}

// Reset drops every record.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.entries)
	s.entries = s.entries[:0]
	s.cursor = -1
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Cursor returns the index of the current record, or -1 when empty.
func (s *Store) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor
}

// Empty reports whether there is nothing to undo.
func (s *Store) Empty() bool {
	return s.Cursor() < 0
}

// Limit returns the configured capacity.
func (s *Store) Limit() int {
	return s.limit
}

// Current returns the newest record.
func (s *Store) Current() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor < 0 {
		return Record{}, false
	}

	return s.entries[s.cursor].clone(), true
}

// Entries returns a copy of all records, oldest first.
func (s *Store) Entries() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.entries))
	for i, rec := range s.entries {
		out[i] = rec.clone()
	}

	return out
}
