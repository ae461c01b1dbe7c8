// Package thread drives the thread detail view: moderation actions, the
// notification toggle, and editing with link previews.
package thread

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"threadlink/internal/domain"
	"threadlink/internal/draft"
	"threadlink/internal/notify"
	"threadlink/internal/preview"
	"threadlink/internal/threadedit"
)

// Mutations are the server-side operations on a thread.
type Mutations interface {
	SetThreadLock(ctx context.Context, threadID string, value bool) (domain.Thread, error)
	ToggleThreadNotifications(ctx context.Context, threadID string) (domain.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	EditThread(ctx context.Context, input domain.EditThreadInput) (*domain.Thread, error)
	PinThread(ctx context.Context, threadID, communityID, value string) (domain.Community, error)
}

// DeleteConfirmation is the dialog kind used before deleting.
const DeleteConfirmation = "DELETE_DOUBLE_CHECK_MODAL"

type ConfirmRequest struct {
	ID      string
	Entity  string
	Message string
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	RequestConfirmation(kind string, req ConfirmRequest)
}

var (
	ErrNotPermitted   = errors.New("not permitted")
	ErrPrivateChannel = errors.New("threads in private channels cannot be pinned")
	ErrNotSaved       = errors.New("thread was not saved")
)

const (
	msgLocked          = "Thread locked."
	msgUnlocked        = "Thread unlocked!"
	msgNotifyOn        = "Notifications activated!"
	msgNotifyOff       = "Notifications turned off"
	msgSaved           = "Thread saved!"
	msgNotSaved        = "We weren't able to save these changes. Try again?"
	msgPrivatePin      = "Only threads in public channels can be pinned."
	msgDeleted         = "Thread deleted."
	msgNotPermittedFmt = "You don't have permission to %s this thread."
)

// Detail is the controller behind one thread's detail view.
type Detail struct {
	mu                   sync.Mutex
	thread               domain.Thread
	viewer               *domain.User
	receiveNotifications bool

	editor    *threadedit.Editor
	mutations Mutations
	confirmer Confirmer
	notifier  notify.Notifier
	log       logrus.FieldLogger
}

// NewDetail creates the controller for thread as seen by viewer (nil when
// signed out).
func NewDetail(
	thread domain.Thread,
	viewer *domain.User,
	mutations Mutations,
	confirmer Confirmer,
	fetcher preview.Fetcher,
	notifier notify.Notifier,
	logger logrus.FieldLogger,
) (*Detail, error) {
	state, err := threadedit.Load(thread)
	if err != nil {
		return nil, err
	}
	log := logger.WithField("component", "thread_detail")
	return &Detail{
		thread:               thread,
		viewer:               viewer,
		receiveNotifications: thread.ReceiveNotifications,
		editor:               threadedit.NewEditor(state, fetcher, notifier, logger),
		mutations:            mutations,
		confirmer:            confirmer,
		notifier:             notifier,
		log:                  log,
	}, nil
}

// Thread returns the thread as last known to the view.
func (d *Detail) Thread() domain.Thread {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thread
}

// Permissions returns the viewer's permissions on the current thread.
func (d *Detail) Permissions() Permissions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return PermissionsFor(d.thread, d.viewer)
}

// ReceiveNotifications is the locally displayed subscription state.
func (d *Detail) ReceiveNotifications() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.receiveNotifications
}

// EditState returns the current edit state.
func (d *Detail) EditState() threadedit.State {
	return d.editor.State()
}

// Editor exposes the underlying editor, e.g. to wait for preview fetches.
func (d *Detail) Editor() *threadedit.Editor {
	return d.editor
}

// SetThread replaces the thread. Switching to a different thread resets the
// edit state.
func (d *Detail) SetThread(thread domain.Thread) error {
	d.mu.Lock()
	changed := d.thread.ID != thread.ID
	d.thread = thread
	if changed {
		d.receiveNotifications = thread.ReceiveNotifications
	}
	d.mu.Unlock()

	if !changed {
		return nil
	}
	state, err := threadedit.Load(thread)
	if err != nil {
		return err
	}
	d.editor.Reset(state)
	return nil
}

func (d *Detail) track(action string) {
	d.log.WithFields(logrus.Fields{
		"event_category": "thread",
		"event_action":   action,
		"thread_id":      d.Thread().ID,
	}).Info("Tracked event")
}

func (d *Detail) notify(kind notify.Kind, message string) {
	if d.notifier != nil {
		d.notifier.Notify(kind, message)
	}
}

func (d *Detail) denied(action string) error {
	d.notify(notify.Error, fmt.Sprintf(msgNotPermittedFmt, action))
	return fmt.Errorf("%s thread: %w", action, ErrNotPermitted)
}

// ToggleLock freezes or unfreezes the thread's chat.
func (d *Detail) ToggleLock(ctx context.Context) error {
	if !d.Permissions().CanLock() {
		return d.denied("lock")
	}
	th := d.Thread()
	value := !th.IsLocked
	log := d.log.WithFields(logrus.Fields{"thread_id": th.ID, "locked": value})

	res, err := d.mutations.SetThreadLock(ctx, th.ID, value)
	if err != nil {
		log.WithError(err).Warn("Failed to set thread lock")
		d.notify(notify.Error, err.Error())
		return err
	}

	d.mu.Lock()
	d.thread.IsLocked = res.IsLocked
	d.mu.Unlock()

	if res.IsLocked {
		d.track("locked")
		d.notify(notify.Neutral, msgLocked)
	} else {
		d.track("unlocked")
		d.notify(notify.Success, msgUnlocked)
	}
	return nil
}

// RequestDelete opens the delete confirmation dialog. The deletion itself
// happens in Delete once confirmed.
func (d *Detail) RequestDelete() error {
	perms := d.Permissions()
	if !perms.CanDelete() {
		return d.denied("delete")
	}
	d.track("delete inited")

	th := d.Thread()
	d.confirmer.RequestConfirmation(DeleteConfirmation, ConfirmRequest{
		ID:      th.ID,
		Entity:  "thread",
		Message: DeleteMessage(th, perms),
	})
	return nil
}

// Delete removes the thread after the user confirmed.
func (d *Detail) Delete(ctx context.Context) error {
	if !d.Permissions().CanDelete() {
		return d.denied("delete")
	}
	th := d.Thread()
	if err := d.mutations.DeleteThread(ctx, th.ID); err != nil {
		d.log.WithError(err).WithField("thread_id", th.ID).Warn("Failed to delete thread")
		d.notify(notify.Error, err.Error())
		return err
	}
	d.track("deleted")
	d.notify(notify.Neutral, msgDeleted)
	return nil
}

// ToggleNotifications flips the subscription. The local state flips
// immediately and is not rolled back if the request fails.
func (d *Detail) ToggleNotifications(ctx context.Context) error {
	if !d.Permissions().CanToggleNotifications(d.editor.State().Editing) {
		return d.denied("follow")
	}
	d.mu.Lock()
	d.receiveNotifications = !d.receiveNotifications
	threadID := d.thread.ID
	d.mu.Unlock()

	res, err := d.mutations.ToggleThreadNotifications(ctx, threadID)
	if err != nil {
		d.log.WithError(err).WithField("thread_id", threadID).Warn("Failed to toggle notifications")
		d.notify(notify.Error, err.Error())
		return err
	}

	d.mu.Lock()
	d.thread.ReceiveNotifications = res.ReceiveNotifications
	d.mu.Unlock()

	if res.ReceiveNotifications {
		d.track("notifications turned on")
		d.notify(notify.Success, msgNotifyOn)
	} else {
		d.track("notifications turned off")
		d.notify(notify.Neutral, msgNotifyOff)
	}
	return nil
}

// TogglePin pins the thread in its community, or unpins it.
func (d *Detail) TogglePin(ctx context.Context) error {
	th := d.Thread()
	if th.Channel.IsPrivate {
		d.notify(notify.Error, msgPrivatePin)
		return ErrPrivateChannel
	}
	if !d.Permissions().CanPin() {
		return d.denied("pin")
	}

	value := th.ID
	if th.IsPinned() {
		value = ""
	}

	community, err := d.mutations.PinThread(ctx, th.ID, th.Community.ID, value)
	if err != nil {
		d.log.WithError(err).WithField("thread_id", th.ID).Warn("Failed to pin thread")
		d.notify(notify.Error, err.Error())
		return err
	}

	d.mu.Lock()
	d.thread.Community.PinnedThreadID = community.PinnedThreadID
	d.mu.Unlock()
	return nil
}

// ToggleEdit enters or leaves edit mode.
func (d *Detail) ToggleEdit() error {
	if !d.Permissions().CanEdit() {
		return d.denied("edit")
	}
	d.editor.Apply(threadedit.ToggleEdit)
	return nil
}

// CancelEdit discards unsaved changes.
func (d *Detail) CancelEdit() {
	d.editor.Apply(threadedit.CancelEdit)
}

// ChangeTitle reports whether focus should move to the body.
func (d *Detail) ChangeTitle(title string) bool {
	return d.editor.ChangeTitle(title)
}

func (d *Detail) ChangeBody(ctx context.Context, doc draft.State) {
	d.editor.ChangeBody(ctx, doc)
}

func (d *Detail) RemovePreview() {
	d.editor.Apply(threadedit.RemovePreview)
}

func (d *Detail) DismissPreviewError() {
	d.editor.Apply(threadedit.DismissError)
}

// Save validates and submits the edit as a single update. Validation
// failures never reach the network.
func (d *Detail) Save(ctx context.Context) error {
	input, err := d.editor.BeginSave()
	switch {
	case errors.Is(err, threadedit.ErrTitleRequired):
		d.notify(notify.Error, threadedit.TitleRequiredMessage)
		return err
	case err != nil:
		d.notify(notify.Error, err.Error())
		return err
	}

	log := d.log.WithFields(logrus.Fields{
		"thread_id":   input.ThreadID,
		"attachments": len(input.Attachments),
		"uploads":     len(input.FilesToUpload),
	})

	res, err := d.mutations.EditThread(ctx, input)
	if err != nil {
		d.editor.Apply(threadedit.SaveFailed)
		log.WithError(err).Warn("Failed to save thread")
		d.notify(notify.Error, err.Error())
		return err
	}
	if res == nil {
		d.editor.Apply(threadedit.SaveFailed)
		log.Warn("Edit returned no thread")
		d.notify(notify.Error, msgNotSaved)
		return ErrNotSaved
	}

	d.editor.Apply(threadedit.SaveSucceeded)
	d.mu.Lock()
	d.thread.Content = res.Content
	d.thread.Attachments = res.Attachments
	d.thread.ModifiedAt = res.ModifiedAt
	d.mu.Unlock()

	log.Info("Thread saved")
	d.notify(notify.Success, msgSaved)
	return nil
}
