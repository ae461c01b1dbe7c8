// Package notify delivers short user-facing messages ("toasts").
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Neutral Kind = "neutral"
)

// Notifier is a fire-and-forget toast sink.
type Notifier interface {
	Notify(kind Kind, message string)
}

// Toast is a single message shown to the user.
type Toast struct {
	ID        string
	Kind      Kind
	Message   string
	CreatedAt time.Time
}

// DefaultTimeout is how long a toast stays in a Tray.
const DefaultTimeout = 6 * time.Second

// Tray keeps the currently visible toasts. Each toast expires after the
// tray's timeout or when dismissed.
type Tray struct {
	mu      sync.Mutex
	timeout time.Duration
	toasts  []Toast
	timers  map[string]*time.Timer
}

func NewTray(timeout time.Duration) *Tray {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tray{timeout: timeout, timers: make(map[string]*time.Timer)}
}

func (t *Tray) Notify(kind Kind, message string) {
	t.Add(kind, message)
}

// Add shows a toast and returns its ID.
func (t *Tray) Add(kind Kind, message string) string {
	toast := Toast{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.toasts = append(t.toasts, toast)
	t.timers[toast.ID] = time.AfterFunc(t.timeout, func() { t.Dismiss(toast.ID) })
	return toast.ID
}

// Dismiss removes a toast. Unknown IDs are ignored.
func (t *Tray) Dismiss(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
	for i, toast := range t.toasts {
		if toast.ID == id {
			t.toasts = append(t.toasts[:i], t.toasts[i+1:]...)
			return
		}
	}
}

// Toasts returns the visible toasts, oldest first.
func (t *Tray) Toasts() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Toast(nil), t.toasts...)
}

// LogNotifier writes toasts to a logger.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: logger.WithField("component", "notify")}
}

func (n *LogNotifier) Notify(kind Kind, message string) {
	entry := n.log.WithField("kind", kind)
	if kind == Error {
		entry.Warn(message)
		return
	}
	entry.Info(message)
}

// Multi fans a toast out to several sinks.
type Multi []Notifier

func (m Multi) Notify(kind Kind, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(kind, message)
		}
	}
}
