package api

import (
	"sync"
	"time"

	"threadlink/internal/domain"
	"threadlink/internal/thread"
)

// view is everything the detail page renders for one viewer.
type view struct {
	Thread               domain.Thread     `json:"thread"`
	Permissions          permissionsView   `json:"permissions"`
	ReceiveNotifications bool              `json:"receiveNotifications"`
	Edit                 editView          `json:"edit"`
	Toasts               []toastView       `json:"toasts"`
	Confirmation         *confirmationView `json:"confirmation,omitempty"`
	FocusBody            bool              `json:"focusBody,omitempty"`
}

type permissionsView struct {
	ShowModeration         bool `json:"showModeration"`
	CanPin                 bool `json:"canPin"`
	CanLock                bool `json:"canLock"`
	CanDelete              bool `json:"canDelete"`
	CanEdit                bool `json:"canEdit"`
	CanToggleNotifications bool `json:"canToggleNotifications"`
	ShowAdminBadge         bool `json:"showAdminBadge"`
	IsPinned               bool `json:"isPinned"`
}

type editView struct {
	Editing         bool                `json:"editing"`
	Saving          bool                `json:"saving"`
	Title           string              `json:"title"`
	Body            string              `json:"body"`
	LinkPreview     *domain.LinkPreview `json:"linkPreview,omitempty"`
	FetchingPreview bool                `json:"fetchingPreview"`
	Error           string              `json:"error,omitempty"`
}

type toastView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type confirmationView struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Entity  string `json:"entity"`
	Message string `json:"message"`
}

func newView(sess *session) *view {
	d := sess.detail
	edit := d.EditState()
	perms := d.Permissions()

	v := &view{
		Thread: d.Thread(),
		Permissions: permissionsView{
			ShowModeration:         perms.ShowModeration(edit.Editing),
			CanPin:                 perms.CanPin(),
			CanLock:                perms.CanLock(),
			CanDelete:              perms.CanDelete(),
			CanEdit:                perms.CanEdit(),
			CanToggleNotifications: perms.CanToggleNotifications(edit.Editing),
			ShowAdminBadge:         perms.ShowAdminBadge(),
			IsPinned:               perms.Pinned,
		},
		ReceiveNotifications: d.ReceiveNotifications(),
		Edit: editView{
			Editing:         edit.Editing,
			Saving:          edit.Saving,
			Title:           edit.Title,
			Body:            edit.Body.PlainText(),
			LinkPreview:     edit.LinkPreview,
			FetchingPreview: edit.FetchingPreview,
			Error:           edit.Error,
		},
		Toasts: []toastView{},
	}
	for _, t := range sess.tray.Toasts() {
		v.Toasts = append(v.Toasts, toastView{ID: t.ID, Kind: string(t.Kind), Message: t.Message, CreatedAt: t.CreatedAt})
	}
	if kind, req, ok := sess.confirm.pending(); ok {
		v.Confirmation = &confirmationView{Kind: kind, ID: req.ID, Entity: req.Entity, Message: req.Message}
	}
	return v
}

// confirmations holds the dialog a viewer was last asked to confirm.
type confirmations struct {
	mu   sync.Mutex
	kind string
	req  *thread.ConfirmRequest
}

func (c *confirmations) RequestConfirmation(kind string, req thread.ConfirmRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = kind
	c.req = &req
}

func (c *confirmations) pending() (string, thread.ConfirmRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req == nil {
		return "", thread.ConfirmRequest{}, false
	}
	return c.kind, *c.req, true
}

// take consumes the pending confirmation if it matches kind and id.
func (c *confirmations) take(kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req == nil || c.kind != kind || c.req.ID != id {
		return false
	}
	c.req = nil
	return true
}
