// Package threadedit holds the editable state of a thread and the pure
// transitions applied to it: typing, link preview fetching, and saving.
package threadedit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"threadlink/internal/domain"
	"threadlink/internal/draft"
	"threadlink/internal/scanner"
)

const (
	// PreviewErrorMessage is shown when a link preview could not be fetched.
	PreviewErrorMessage = "Oops, that URL didn't seem to want to work. You can still publish your story anyways 👍"

	// TitleRequiredMessage is shown when saving without a title.
	TitleRequiredMessage = "Be sure to save a title for your thread!"
)

var (
	ErrTitleRequired  = errors.New("thread title is required")
	ErrSaveInProgress = errors.New("a save is already in progress")
)

var validate = validator.New()

// State is the edit state of one thread. Transitions return a new value and
// never mutate the receiver's referenced data.
type State struct {
	ThreadID string
	Editing  bool
	Saving   bool

	Title string
	Body  draft.State

	LinkPreview         *domain.LinkPreview
	LinkPreviewTrueURL  string
	LinkPreviewURLCount int
	FetchingPreview     bool

	// PreviewSeq identifies the most recently issued fetch. Results for any
	// other sequence number are dropped.
	PreviewSeq uint64

	// Error is a dismissable, non-fatal message about the link preview.
	Error string

	snapshot *snapshot
}

type snapshot struct {
	title       string
	body        draft.State
	linkPreview *domain.LinkPreview
	trueURL     string
}

// FetchRequest asks the caller to fetch a preview for URL.
type FetchRequest struct {
	Seq uint64
	URL string
	// URLCount is how many URLs the document held when the request was issued.
	URLCount int
}

// Load builds the initial state for a thread.
func Load(thread domain.Thread) (State, error) {
	raw, err := draft.Parse(thread.Content.Body)
	if err != nil {
		return State{}, fmt.Errorf("failed to load thread %s: %w", thread.ID, err)
	}

	s := State{
		ThreadID: thread.ID,
		Title:    thread.Content.Title,
		Body:     draft.NewState(raw, ""),
	}
	if p := domain.FirstLinkPreview(thread.Attachments); p != nil {
		s.LinkPreview = p
		s.LinkPreviewTrueURL = p.TrueURL
	}
	if len(thread.Attachments) > 0 {
		s.LinkPreviewURLCount = 1
	}
	return s, nil
}

// ToggleEdit enters or leaves edit mode. Entering remembers the current
// title, body and preview so the edit can be cancelled.
func ToggleEdit(s State) State {
	if s.Editing {
		s.Editing = false
		s.snapshot = nil
		return s
	}
	s.Editing = true
	s.snapshot = &snapshot{
		title:       s.Title,
		body:        s.Body,
		linkPreview: s.LinkPreview,
		trueURL:     s.LinkPreviewTrueURL,
	}
	return s
}

// CancelEdit leaves edit mode and restores what was there before it.
// In-flight preview fetches are abandoned.
func CancelEdit(s State) State {
	if !s.Editing {
		return s
	}
	if s.snapshot != nil {
		s.Title = s.snapshot.title
		s.Body = s.snapshot.body
		s.LinkPreview = s.snapshot.linkPreview
		s.LinkPreviewTrueURL = s.snapshot.trueURL
	}
	s.Editing = false
	s.snapshot = nil
	s.PreviewSeq++
	s.FetchingPreview = false
	s.Error = ""
	return s
}

// ChangeTitle updates the title. A title ending in a newline is not applied;
// the second return value asks the caller to move focus to the body instead.
func ChangeTitle(s State, title string) (State, bool) {
	if strings.HasSuffix(title, "\n") {
		return s, true
	}
	s.Title = title
	return s, false
}

// ChangeBody stores the new document and, when the user just finished typing
// a new URL, returns a request to fetch its preview.
func ChangeBody(s State, doc draft.State) (State, *FetchRequest) {
	if !s.Editing {
		return s, nil
	}

	result := scanner.Scan(doc, s.LinkPreview, s.LinkPreviewURLCount)
	s.Body = doc
	if !result.ShouldFetch() {
		return s, nil
	}

	s.PreviewSeq++
	s.FetchingPreview = true
	return s, &FetchRequest{
		Seq:      s.PreviewSeq,
		URL:      result.URL,
		URLCount: len(scanner.Matches(doc.PlainText())),
	}
}

// PreviewFetched attaches the fetched preview. Every URL present when the
// request was issued counts as checked, including those whose own fetches
// were superseded by this one.
func PreviewFetched(s State, req FetchRequest, p domain.LinkPreview) State {
	if req.Seq != s.PreviewSeq {
		return s
	}
	p.TrueURL = req.URL
	s.LinkPreview = &p
	s.LinkPreviewTrueURL = req.URL
	s.LinkPreviewURLCount = max(s.LinkPreviewURLCount+1, req.URLCount)
	s.FetchingPreview = false
	s.Error = ""
	return s
}

// PreviewFailed records a failed fetch. The preview stays unset so a later
// qualifying edit can try again.
func PreviewFailed(s State, req FetchRequest) State {
	if req.Seq != s.PreviewSeq {
		return s
	}
	s.FetchingPreview = false
	s.Error = PreviewErrorMessage
	return s
}

func DismissError(s State) State {
	s.Error = ""
	return s
}

// RemovePreview detaches the preview, re-enabling scanning. The URL count is
// kept so already-checked URLs are not fetched again.
func RemovePreview(s State) State {
	s.LinkPreview = nil
	s.LinkPreviewTrueURL = ""
	return s
}

// BeginSave validates the state and builds the update request. On error the
// state is returned unchanged.
func BeginSave(s State) (State, domain.EditThreadInput, error) {
	if s.Saving {
		return s, domain.EditThreadInput{}, ErrSaveInProgress
	}

	content := domain.Content{Title: s.Title}
	if err := validate.Struct(content); err != nil {
		return s, domain.EditThreadInput{}, ErrTitleRequired
	}

	body, err := draft.Serialize(s.Body.Raw)
	if err != nil {
		return s, domain.EditThreadInput{}, err
	}
	content.Body = body

	attachments := []domain.Attachment{}
	if s.LinkPreview != nil {
		p := *s.LinkPreview
		p.TrueURL = s.LinkPreviewTrueURL
		a, err := domain.NewLinkPreviewAttachment(p)
		if err != nil {
			return s, domain.EditThreadInput{}, err
		}
		attachments = append(attachments, a)
	}

	input := domain.EditThreadInput{
		ThreadID:      s.ThreadID,
		Content:       content,
		Attachments:   attachments,
		FilesToUpload: draft.StagedUploads(s.Body.Raw),
	}

	s.Saving = true
	return s, input, nil
}

// SaveSucceeded leaves edit mode.
func SaveSucceeded(s State) State {
	s.Saving = false
	s.Editing = false
	s.snapshot = nil
	return s
}

// SaveFailed keeps edit mode active so the user can retry.
func SaveFailed(s State) State {
	s.Saving = false
	return s
}
