package threadedit

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"threadlink/internal/domain"
	"threadlink/internal/draft"
	"threadlink/internal/notify"
	"threadlink/internal/preview"
)

// Editor owns a State and runs the preview fetches its transitions ask for.
// It is safe for concurrent use.
type Editor struct {
	mu    sync.Mutex
	state State

	fetcher  preview.Fetcher
	notifier notify.Notifier
	log      logrus.FieldLogger

	inflight sync.WaitGroup
}

// NewEditor creates an editor. notifier may be nil.
func NewEditor(initial State, fetcher preview.Fetcher, notifier notify.Notifier, logger logrus.FieldLogger) *Editor {
	return &Editor{
		state:    initial,
		fetcher:  fetcher,
		notifier: notifier,
		log:      logger.WithFields(logrus.Fields{"component": "thread_editor", "thread_id": initial.ThreadID}),
	}
}

// State returns the current state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Apply runs a transition and returns the resulting state.
func (e *Editor) Apply(fn func(State) State) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = fn(e.state)
	return e.state
}

// Reset replaces the state, e.g. when the viewed thread changes. Fetches
// issued for the previous state are dropped.
func (e *Editor) Reset(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s.PreviewSeq = e.state.PreviewSeq + 1
	e.state = s
}

// ChangeTitle applies a title edit and reports whether focus should move to
// the body.
func (e *Editor) ChangeTitle(title string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	var focusBody bool
	e.state, focusBody = ChangeTitle(e.state, title)
	return focusBody
}

// ChangeBody applies a document edit and starts a preview fetch when one is
// due. The fetch completes in the background; see Wait.
func (e *Editor) ChangeBody(ctx context.Context, doc draft.State) {
	e.mu.Lock()
	var req *FetchRequest
	e.state, req = ChangeBody(e.state, doc)
	e.mu.Unlock()

	if req == nil {
		return
	}

	e.log.WithFields(logrus.Fields{"url": req.URL, "seq": req.Seq}).Debug("Fetching link preview")
	e.inflight.Add(1)
	go func(req FetchRequest) {
		defer e.inflight.Done()
		e.fetch(ctx, req)
	}(*req)
}

func (e *Editor) fetch(ctx context.Context, req FetchRequest) {
	log := e.log.WithFields(logrus.Fields{"url": req.URL, "seq": req.Seq})

	p, err := e.fetcher.Fetch(ctx, req.URL)

	e.mu.Lock()
	stale := req.Seq != e.state.PreviewSeq
	if err != nil {
		e.state = PreviewFailed(e.state, req)
	} else {
		e.state = PreviewFetched(e.state, req, p)
	}
	e.mu.Unlock()

	switch {
	case stale:
		log.Debug("Dropping stale link preview result")
	case err != nil:
		log.WithError(err).Warn("Link preview fetch failed")
		if e.notifier != nil {
			e.notifier.Notify(notify.Neutral, PreviewErrorMessage)
		}
	default:
		log.WithField("title", p.Title).Info("Link preview attached")
	}
}

// Wait blocks until all started fetches have been applied.
func (e *Editor) Wait() {
	e.inflight.Wait()
}

// BeginSave validates the current state and marks it as saving.
func (e *Editor) BeginSave() (domain.EditThreadInput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var (
		input domain.EditThreadInput
		err   error
	)
	e.state, input, err = BeginSave(e.state)
	return input, err
}
