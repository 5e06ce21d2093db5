// Package task runs cancellable background work with progress reporting.
//
// A [Task] owns one goroutine. Completion callbacks run on that goroutine
// before [Task.Done] is closed, so anything they change is visible once
// [Task.Wait] returns.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of a task.
type State uint8

const (
	Running State = iota
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Running, Succeeded, Failed, Cancelled} {
		if st.String() == string(text) {
			*s = st

			return nil
		}
	}

	return fmt.Errorf("unknown task state %q", text)
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s != Running
}

// ErrCancelled is the task error after [Task.Cancel] or parent cancellation.
var ErrCancelled = errors.New("task cancelled")

// Work is the body of a task. It should return promptly once ctx is done and
// may call report with a fraction in [0, 1].
type Work func(ctx context.Context, report func(float64)) error

// Task is a unit of background work.
type Task struct {
	id     string
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	progress float64
	stages   []string
	result   string
	err      error
	started  time.Time
	finished time.Time
}

// Option configures [Start].
type Option func(*config)

type config struct {
	onDone []func(*Task)
	now    func() time.Time
	stages []string
}

// OnDone registers fn to run on the task goroutine after work returns and
// before Done is closed.
func OnDone(fn func(*Task)) Option {
	return func(c *config) {
		if fn != nil {
			c.onDone = append(c.onDone, fn)
		}
	}
}

// WithClock sets the time source for start and finish times.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStages names the phases of the work. The current stage is picked by
// progress, each stage covering an equal share of it.
func WithStages(stages ...string) Option {
	return func(c *config) {
		c.stages = append(c.stages, stages...)
	}
}

// Start launches work on a new goroutine. Cancelling ctx cancels the task.
func Start(ctx context.Context, name string, work Work, opts ...Option) *Task {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	taskCtx, cancel := context.WithCancel(ctx)

	t := &Task{
		id:      newID(),
		name:    name,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   Running,
		stages:  cfg.stages,
		started: cfg.now(),
	}

	go t.run(taskCtx, work, cfg)

	return t
}

func (t *Task) run(ctx context.Context, work Work, cfg config) {
	defer close(t.done)
	defer t.cancel()

	err := work(ctx, t.report)

	t.mu.Lock()

	switch {
	case err == nil:
		t.state = Succeeded
		t.progress = 1
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		t.state = Cancelled
		t.err = fmt.Errorf("%w: %s", ErrCancelled, t.name)
	default:
		t.state = Failed
		t.err = err
	}

	t.finished = cfg.now()
	t.mu.Unlock()

	for _, fn := range cfg.onDone {
		fn(t)
	}
}

func (t *Task) report(fraction float64) {
	fraction = min(max(fraction, 0), 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Running && fraction > t.progress {
		t.progress = fraction
	}
}

// ID returns the task's unique, time-ordered ID.
func (t *Task) ID() string { return t.id }

// Name returns the name given to [Start].
func (t *Task) Name() string { return t.name }

// Cancel asks the work to stop. It does not wait.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task reached a terminal state and its callbacks ran.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done. It returns the task
// error, or ctx's error if ctx ended first.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Progress returns the last reported fraction, 1 after success.
func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.progress
}

// Stage returns the name of the current stage, or "" when the task has none.
func (t *Task) Stage() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stageLocked()
}

func (t *Task) stageLocked() string {
	if len(t.stages) == 0 {
		return ""
	}

	i := min(int(t.progress*float64(len(t.stages))), len(t.stages)-1)

	return t.stages[i]
}

// SetResult attaches a short outcome, such as a link, to a finished task.
// Completion callbacks use it.
func (t *Task) SetResult(result string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.result = result
}

// Result returns the outcome set with [Task.SetResult].
func (t *Task) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.result
}

// Err returns the terminal error, nil while running or after success.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}

// Snapshot is a point-in-time view of a task, suitable for JSON output.
type Snapshot struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	State    State     `json:"state"`
	Progress float64   `json:"progress"`
	Stage    string    `json:"stage,omitempty"`
	Result   string    `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitzero"`
}

// Snapshot returns the current view of t.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ID:       t.id,
		Name:     t.name,
		State:    t.state,
		Progress: t.progress,
		Stage:    t.stageLocked(),
		Result:   t.result,
		Started:  t.started,
		Finished: t.finished,
	}

	if t.err != nil {
		s.Error = t.err.Error()
	}

	return s
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// Simulate returns work that takes d, split into steps progress reports.
// It stands in for processing that has no real backend.
func Simulate(d time.Duration, steps int) Work {
	steps = max(steps, 1)

	return func(ctx context.Context, report func(float64)) error {
		tick := d / time.Duration(steps)

		timer := time.NewTimer(tick)
		defer timer.Stop()

		for i := 1; i <= steps; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}

			report(float64(i) / float64(steps))
			timer.Reset(tick)
		}

		return nil
	}
}
