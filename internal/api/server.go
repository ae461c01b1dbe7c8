// Package api serves the thread detail view over HTTP. Each viewer gets its
// own controller per thread, so edit state and toasts are never shared.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"threadlink/internal/domain"
	"threadlink/internal/draft"
	"threadlink/internal/notify"
	"threadlink/internal/preview"
	"threadlink/internal/storage"
	"threadlink/internal/thread"
	"threadlink/internal/threadedit"
)

// ViewerHeader carries the viewer's user ID. Requests without it are
// treated as signed out.
const ViewerHeader = "X-User-ID"

const maxUploadSize = 10 << 20

// Repository is the storage the API needs.
type Repository interface {
	thread.Mutations
	SaveThread(ctx context.Context, th domain.Thread) error
	GetThread(ctx context.Context, threadID string) (domain.Thread, error)
	GetUploads(ctx context.Context, threadID string) ([]domain.FileUpload, error)
}

// Server routes thread requests to per-viewer controllers.
type Server struct {
	router   *mux.Router
	repo     Repository
	fetcher  preview.Fetcher
	notifier notify.Notifier
	log      logrus.FieldLogger

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

type sessionKey struct {
	threadID string
	viewerID string
}

type session struct {
	detail  *thread.Detail
	tray    *notify.Tray
	confirm *confirmations
}

// NewServer creates the thread API. notifier receives every toast in
// addition to the viewer's own tray and may be nil.
func NewServer(repo Repository, fetcher preview.Fetcher, notifier notify.Notifier, logger logrus.FieldLogger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		repo:     repo,
		fetcher:  fetcher,
		notifier: notifier,
		log:      logger.WithField("component", "thread_api"),
		sessions: make(map[sessionKey]*session),
	}

	r := s.router
	r.HandleFunc("/threads", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/threads/{id}/uploads", s.handleUploads).Methods(http.MethodGet)

	r.HandleFunc("/threads/{id}/lock", s.action(func(ctx context.Context, d *thread.Detail) error {
		return d.ToggleLock(ctx)
	})).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/notifications", s.action(func(ctx context.Context, d *thread.Detail) error {
		return d.ToggleNotifications(ctx)
	})).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/pin", s.action(func(ctx context.Context, d *thread.Detail) error {
		return d.TogglePin(ctx)
	})).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/delete", s.action(func(_ context.Context, d *thread.Detail) error {
		return d.RequestDelete()
	})).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/delete/confirm", s.handleConfirmDelete).Methods(http.MethodPost)

	r.HandleFunc("/threads/{id}/edit", s.action(func(_ context.Context, d *thread.Detail) error {
		return d.ToggleEdit()
	})).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/edit/cancel", s.action(func(_ context.Context, d *thread.Detail) error {
		d.CancelEdit()
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/title", s.handleTitle).Methods(http.MethodPut)
	r.HandleFunc("/threads/{id}/body", s.handleBody).Methods(http.MethodPut)
	r.HandleFunc("/threads/{id}/images", s.handleImage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/preview", s.action(func(_ context.Context, d *thread.Detail) error {
		d.RemovePreview()
		return nil
	})).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{id}/preview/error", s.action(func(_ context.Context, d *thread.Detail) error {
		d.DismissPreviewError()
		return nil
	})).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{id}/save", s.action(func(ctx context.Context, d *thread.Detail) error {
		return d.Save(ctx)
	})).Methods(http.MethodPost)
	r.HandleFunc("/threads/{id}/toasts/{toast}", s.handleDismissToast).Methods(http.MethodDelete)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func viewerFrom(r *http.Request) *domain.User {
	id := r.Header.Get(ViewerHeader)
	if id == "" {
		return nil
	}
	return &domain.User{ID: id}
}

// session returns the viewer's controller for the thread, creating it from
// storage on first use. With refresh set, an existing controller is updated
// with the stored thread.
func (s *Server) session(ctx context.Context, r *http.Request, refresh bool) (*session, error) {
	threadID := mux.Vars(r)["id"]
	viewer := viewerFrom(r)
	key := sessionKey{threadID: threadID}
	if viewer != nil {
		key.viewerID = viewer.ID
	}

	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if ok && !refresh {
		return sess, nil
	}

	th, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if ok {
		return sess, sess.detail.SetThread(th)
	}

	tray := notify.NewTray(0)
	confirm := &confirmations{}
	detail, err := thread.NewDetail(th, viewer, s.repo, confirm, s.fetcher, notify.Multi{tray, s.notifier}, s.log)
	if err != nil {
		return nil, err
	}
	sess = &session{detail: detail, tray: tray, confirm: confirm}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok {
		return existing, nil
	}
	s.sessions[key] = sess
	return sess, nil
}

func (s *Server) dropSessions(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.sessions {
		if key.threadID == threadID {
			delete(s.sessions, key)
		}
	}
}

// action wraps a controller call and replies with the resulting view.
func (s *Server) action(fn func(ctx context.Context, d *thread.Detail) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(r.Context(), r, false)
		if err != nil {
			s.writeError(w, err, nil)
			return
		}
		if err := fn(r.Context(), sess.detail); err != nil {
			s.writeError(w, err, sess)
			return
		}
		writeJSON(w, http.StatusOK, newView(sess))
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var th domain.Thread
	if err := json.NewDecoder(r.Body).Decode(&th); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid thread payload"})
		return
	}
	if th.ID == "" {
		th.ID = uuid.NewString()
	}
	if _, err := draft.Parse(th.Content.Body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.repo.SaveThread(r.Context(), th); err != nil {
		s.writeError(w, err, nil)
		return
	}

	stored, err := s.repo.GetThread(r.Context(), th.ID)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	s.log.WithField("thread_id", th.ID).Info("Thread created")
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r, true)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newView(sess))
}

type uploadView struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.repo.GetUploads(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	out := make([]uploadView, len(uploads))
	for i, u := range uploads {
		out[i] = uploadView{Name: u.Name, ContentType: u.ContentType, Size: len(u.Body)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r, false)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	threadID := mux.Vars(r)["id"]
	if !sess.confirm.take(thread.DeleteConfirmation, threadID) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "no pending delete confirmation", View: newView(sess)})
		return
	}
	if err := sess.detail.Delete(r.Context()); err != nil {
		s.writeError(w, err, sess)
		return
	}
	s.dropSessions(threadID)
	w.WriteHeader(http.StatusNoContent)
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid title payload"})
		return
	}
	sess, err := s.session(r.Context(), r, false)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	focusBody := sess.detail.ChangeTitle(req.Title)
	v := newView(sess)
	v.FocusBody = focusBody
	writeJSON(w, http.StatusOK, v)
}

// bodyRequest carries either a full document or plain text, plus the kind
// of edit that produced it.
type bodyRequest struct {
	Raw    *draft.Raw       `json:"raw,omitempty"`
	Text   *string          `json:"text,omitempty"`
	Change draft.ChangeType `json:"change"`
}

func (s *Server) handleBody(w http.ResponseWriter, r *http.Request) {
	var req bodyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body payload"})
		return
	}
	var raw draft.Raw
	switch {
	case req.Raw != nil:
		raw = *req.Raw
	case req.Text != nil:
		raw = draft.FromText(*req.Text)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "raw or text is required"})
		return
	}
	if req.Change == "" {
		req.Change = draft.InsertCharacters
	}

	sess, err := s.session(r.Context(), r, false)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	// The preview fetch outlives this request.
	sess.detail.ChangeBody(context.WithoutCancel(r.Context()), draft.NewState(raw, req.Change))
	writeJSON(w, http.StatusOK, newView(sess))
}

// handleImage stages an uploaded image in the document. It is stored with
// the thread on the next save.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		s.writeError(w, fmt.Errorf("failed to read upload: %w", err), nil)
		return
	}

	sess, err := s.session(r.Context(), r, false)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	state := sess.detail.EditState()
	if !state.Editing {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "thread is not being edited", View: newView(sess)})
		return
	}

	upload := &domain.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        body,
	}
	raw := state.Body.Raw.AddImage("blob:"+uuid.NewString(), upload)
	sess.detail.ChangeBody(context.WithoutCancel(r.Context()), draft.NewState(raw, draft.ApplyEntity))
	writeJSON(w, http.StatusOK, newView(sess))
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r, false)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	sess.tray.Dismiss(mux.Vars(r)["toast"])
	writeJSON(w, http.StatusOK, newView(sess))
}

type errorResponse struct {
	Error string `json:"error"`
	View  *view  `json:"view,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, thread.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, thread.ErrPrivateChannel), errors.Is(err, threadedit.ErrSaveInProgress):
		return http.StatusConflict
	case errors.Is(err, threadedit.ErrTitleRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, thread.ErrNotSaved):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, sess *session) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Thread request failed")
	}
	resp := errorResponse{Error: err.Error()}
	if sess != nil {
		resp.View = newView(sess)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
