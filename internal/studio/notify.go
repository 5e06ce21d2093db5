package studio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/calvinalkan/nexus-studio/internal/history"
)

// Severity classifies a user-facing notification.
type Severity uint8

const (
	SeveritySuccess Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(sev Severity, msg string)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Severity, string)

// Notify implements [Notifier].
func (f NotifierFunc) Notify(sev Severity, msg string) { f(sev, msg) }

// Renderer applies filter values to whatever displays the media.
type Renderer interface {
	Apply(snap history.Snapshot)
}

// RendererFunc adapts a function to [Renderer].
type RendererFunc func(history.Snapshot)

// Apply implements [Renderer].
func (f RendererFunc) Apply(snap history.Snapshot) { f(snap) }

type nopRenderer struct{}

func (nopRenderer) Apply(history.Snapshot) {}

// LogNotifier writes notifications to logger, errors at error level and
// warnings at warn level.
func LogNotifier(logger *slog.Logger) Notifier {
	return NotifierFunc(func(sev Severity, msg string) {
		switch sev {
		case SeverityError:
			logger.Error(msg, "severity", sev.String())
		case SeverityWarning:
			logger.Warn(msg, "severity", sev.String())
		default:
			logger.Info(msg, "severity", sev.String())
		}
	})
}

// Notification is one delivered message.
type Notification struct {
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Recorder keeps the most recent notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	limit int
	now   func() time.Time
}

// NewRecorder returns a recorder keeping up to limit notifications.
// limit < 1 keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit, now: time.Now}
}

// Notify implements [Notifier].
func (r *Recorder) Notify(sev Severity, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, Notification{Severity: sev, Message: msg, Time: r.now()})
	if r.limit > 0 && len(r.items) > r.limit {
		r.items = append(r.items[:0:0], r.items[len(r.items)-r.limit:]...)
	}
}

// All returns recorded notifications, oldest first.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notification, len(r.items))
	copy(out, r.items)

	return out
}

// Last returns the newest notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return Notification{}, false
	}

	return r.items[len(r.items)-1], true
}

// Fanout delivers each notification to every notifier in order.
func Fanout(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(sev Severity, msg string) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(sev, msg)
			}
		}
	})
}
