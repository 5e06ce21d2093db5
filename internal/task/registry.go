package task

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrNotFound is returned by [Registry.Get] for an unknown ID.
var ErrNotFound = errors.New("task not found")

// DefaultKeep is how many finished tasks a [Registry] remembers.
const DefaultKeep = 100

// Registry indexes tasks by ID. Finished tasks beyond keep are forgotten,
// oldest first; running tasks are never dropped.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string
	keep  int
}

// NewRegistry returns an empty registry remembering up to keep finished
// tasks. keep < 1 means [DefaultKeep].
func NewRegistry(keep int) *Registry {
	if keep < 1 {
		keep = DefaultKeep
	}

	return &Registry{tasks: make(map[string]*Task), keep: keep}
}

// Add registers t.
func (r *Registry) Add(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID()]; ok {
		return
	}

	r.tasks[t.ID()] = t
	r.order = append(r.order, t.ID())
	r.pruneLocked()
}

func (r *Registry) pruneLocked() {
	finished := 0
	for _, id := range r.order {
		if r.tasks[id].State().Terminal() {
			finished++
		}
	}

	drop := finished - r.keep
	if drop <= 0 {
		return
	}

	r.order = slices.DeleteFunc(r.order, func(id string) bool {
		if drop > 0 && r.tasks[id].State().Terminal() {
			delete(r.tasks, id)
			drop--

			return true
		}

		return false
	})
}

// Get returns the task with id.
func (r *Registry) Get(id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return t, nil
}

// List returns all tasks in start order.
func (r *Registry) List() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}

	return out
}

// CancelAll cancels every running task.
func (r *Registry) CancelAll() {
	for _, t := range r.List() {
		t.Cancel()
	}
}
