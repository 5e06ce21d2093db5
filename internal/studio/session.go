// Package studio wires the undo log, the project list and the simulated
// processing tools into one editing session.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/nexus-studio/internal/history"
	"github.com/calvinalkan/nexus-studio/internal/project"
	"github.com/calvinalkan/nexus-studio/internal/task"
)

var (
	ErrNoMedia       = errors.New("no media loaded")
	ErrNameRequired  = errors.New("name required")
	ErrUnknownFilter = errors.New("unknown filter")
	ErrFilterRange   = errors.New("filter value out of range")
)

// Filter slider bounds.
const (
	FilterMin = 0
	FilterMax = 200
)

// Session is one user's editing state. All methods are safe for concurrent
// use.
type Session struct {
	id       string
	history  *history.Store
	projects *project.Store
	notifier Notifier
	renderer Renderer
	tasks    *task.Registry
	work     func(Tool) task.Work
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	media   *Media
	filters history.Snapshot
}

// Option configures a [Session].
type Option func(*Session)

// WithNotifier sets where user messages go. Default logs them.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRenderer sets the collaborator that displays filter changes.
func WithRenderer(r Renderer) Option {
	return func(s *Session) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source for default project names and share links.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWork replaces the simulated processing, e.g. to shorten it in tests.
func WithWork(work func(Tool) task.Work) Option {
	return func(s *Session) {
		if work != nil {
			s.work = work
		}
	}
}

// WithTaskRegistry shares a registry between sessions.
func WithTaskRegistry(reg *task.Registry) Option {
	return func(s *Session) {
		if reg != nil {
			s.tasks = reg
		}
	}
}

// SimulatedWork runs each tool for its catalog duration.
func SimulatedWork(t Tool) task.Work {
	return task.Simulate(t.Duration, 10)
}

// New returns a session over the given stores.
func New(h *history.Store, projects *project.Store, opts ...Option) *Session {
	s := &Session{
		id:       newSessionID(),
		history:  h,
		projects: projects,
		renderer: nopRenderer{},
		tasks:    task.NewRegistry(0),
		work:     SimulatedWork,
		now:      time.Now,
		logger:   slog.Default(),
		filters:  history.DefaultSnapshot(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.notifier == nil {
		s.notifier = LogNotifier(s.logger)
	}

	s.logger = s.logger.With("session", s.id)

	return s
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// ID returns the session's unique ID.
func (s *Session) ID() string { return s.id }

// History returns the undo log.
func (s *Session) History() *history.Store { return s.history }

// Projects returns the project list.
func (s *Session) Projects() *project.Store { return s.projects }

// Tasks returns the registry of tools started by this session.
func (s *Session) Tasks() *task.Registry { return s.tasks }

// Media returns the loaded media.
func (s *Session) Media() (Media, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.media == nil {
		return Media{}, false
	}

	return *s.media, true
}

// ImportMedia validates m, makes it the current media and adds it to the
// project list.
func (s *Session) ImportMedia(ctx context.Context, m Media) (project.Project, error) {
	err := m.Validate()
	if err != nil {
		switch {
		case errors.Is(err, ErrNotVideo):
			s.notifier.Notify(SeverityError, "Please upload a video file (MP4, MOV, AVI, etc.)")
		case errors.Is(err, ErrMediaTooLarge):
			s.notifier.Notify(SeverityError, "File too large. Please use videos under 500MB.")
		}

		return project.Project{}, err
	}

	s.mu.Lock()
	s.media = &m
	s.mu.Unlock()

	s.logger.Info("media imported", "name", m.Name, "size", m.Size, "mime", m.MIMEType)
	s.notifier.Notify(SeveritySuccess, "Video uploaded successfully!")

	return s.projects.AddProject(ctx, m.Name, m.SourceRef), nil
}

// Filters returns the current filter values.
func (s *Session) Filters() history.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filters.Clone()
}

// SetFilter changes one filter and re-renders. It does not record history.
func (s *Session) SetFilter(name string, value float64) error {
	name = strings.ToLower(strings.TrimSpace(name))

	if _, ok := history.DefaultSnapshot()[name]; !ok {
		return fmt.Errorf("%w: %q (want %s, %s or %s)", ErrUnknownFilter, name,
			history.Brightness, history.Contrast, history.Saturation)
	}

	if value < FilterMin || value > FilterMax {
		return fmt.Errorf("%w: %s=%v (want %d-%d)", ErrFilterRange, name, value, FilterMin, FilterMax)
	}

	s.mu.Lock()
	s.filters[name] = value
	snap := s.filters.Clone()
	s.mu.Unlock()

	s.renderer.Apply(snap)

	return nil
}

// Record adds an edit capturing the current filters.
func (s *Session) Record(name string) (history.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return history.Record{}, fmt.Errorf("%w: edit", ErrNameRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.Record(name, s.filters), nil
}

// Undo drops the newest edit and restores the filters it was recorded over.
// With nothing to undo it notifies and returns [history.ErrEmptyHistory].
func (s *Session) Undo() (history.Snapshot, error) {
	s.mu.Lock()

	snap, err := s.history.Undo()
	if err != nil {
		s.mu.Unlock()

		if errors.Is(err, history.ErrEmptyHistory) {
			s.notifier.Notify(SeverityInfo, "Nothing to undo")
		}

		return nil, err
	}

	s.filters = snap.Clone()
	s.mu.Unlock()

	s.renderer.Apply(snap.Clone())
	s.notifier.Notify(SeverityInfo, "Undo last edit")

	return snap, nil
}

// Reset clears the undo log and returns the filters to neutral.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history.Reset()
	s.filters = history.DefaultSnapshot()
	s.mu.Unlock()

	s.renderer.Apply(history.DefaultSnapshot())
	s.notifier.Notify(SeveritySuccess, "Editor reset successfully")
}

// RunTool starts the named tool with arg (empty for the default) and returns
// its task. On success the task records a history entry labelled after the
// tool, unless the tool skips history. ctx bounds the task, not just the call.
func (s *Session) RunTool(ctx context.Context, name, arg string) (*task.Task, error) {
	tool, err := LookupTool(name)
	if err != nil {
		s.notifier.Notify(SeverityError, "Unknown tool: "+name)

		return nil, err
	}

	if tool.NeedsMedia {
		if _, ok := s.Media(); !ok {
			s.notifier.Notify(SeverityError, "Please upload a video first")

			return nil, fmt.Errorf("%w: %s", ErrNoMedia, tool.Name)
		}
	}

	arg, err = tool.resolveArg(arg)
	if err != nil {
		msg := "Invalid " + tool.Name + " option"
		if errors.Is(err, ErrArgRequired) && tool.Arg.missing != "" {
			msg = tool.Arg.missing
		}

		s.notifier.Notify(SeverityError, msg)

		return nil, err
	}

	s.notifier.Notify(SeverityInfo, tool.started(arg))

	work := s.work(tool)
	if tool.Duration == 0 {
		work = func(context.Context, func(float64)) error { return nil }
	}

	label := tool.Label(arg)

	t := task.Start(ctx, tool.Name, work,
		task.WithStages(tool.Stages(arg)...),
		task.OnDone(func(t *task.Task) {
			s.finishTool(t, tool, arg, label)
		}))
	s.tasks.Add(t)

	s.logger.Debug("tool started", "tool", tool.Name, "arg", arg, "task", t.ID())

	return t, nil
}

func (s *Session) finishTool(t *task.Task, tool Tool, arg, label string) {
	switch t.State() {
	case task.Succeeded:
		var result string
		if tool.result != nil {
			result = tool.result(s.now())
			t.SetResult(result)
		}

		if !tool.SkipHistory {
			s.mu.Lock()
			s.history.Record(label, s.filters)
			s.mu.Unlock()
		}

		if tool.done != nil {
			s.notifier.Notify(SeveritySuccess, tool.done(arg, result))
		}
	case task.Cancelled:
		s.notifier.Notify(SeverityWarning, label+" cancelled")
	default:
		s.logger.Error("tool failed", "tool", tool.Name, "task", t.ID(), "error", t.Err())
		s.notifier.Notify(SeverityError, label+" failed")
	}
}

// SaveProject adds the current media to the project list under name, or a
// dated default name when name is empty.
func (s *Session) SaveProject(ctx context.Context, name string) (project.Project, error) {
	m, ok := s.Media()
	if !ok {
		s.notifier.Notify(SeverityError, "No video to save")

		return project.Project{}, fmt.Errorf("%w: save project", ErrNoMedia)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultProjectName(s.now())
	}

	p := s.projects.AddProject(ctx, name, m.SourceRef)
	s.notifier.Notify(SeveritySuccess, "Project saved successfully!")

	return p, nil
}

// DefaultProjectName is the name offered when saving without one.
func DefaultProjectName(t time.Time) string {
	return "Project_" + t.Format("1-2-2006")
}

// OpenProject makes the project's source the current media.
func (s *Session) OpenProject(id int64) (project.Project, error) {
	p, err := s.projects.FindByID(id)
	if err != nil {
		s.notifier.Notify(SeverityWarning, "Project not found")

		return project.Project{}, err
	}

	s.mu.Lock()
	s.media = &Media{Name: p.Name, SourceRef: p.SourceRef}
	s.mu.Unlock()

	s.notifier.Notify(SeverityInfo, "Opening project: "+p.Name)

	return p, nil
}

// RecentProjects returns the projects shown in the recent panel.
func (s *Session) RecentProjects() []project.Project {
	return s.projects.Recent(project.RecentCount)
}

// Close cancels running tools.
func (s *Session) Close() {
	s.tasks.CancelAll()
}
