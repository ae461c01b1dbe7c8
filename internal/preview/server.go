package preview

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"threadlink/internal/scanner"
)

// Server exposes a Fetcher as the metadata service consumed by Client.
type Server struct {
	router  *mux.Router
	fetcher Fetcher
	log     logrus.FieldLogger
}

// NewServer creates the HTTP handler for the metadata service.
func NewServer(fetcher Fetcher, logger logrus.FieldLogger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		fetcher: fetcher,
		log:     logger.WithField("component", "preview_server"),
	}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handlePreview).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, serviceResponse{Error: "missing url parameter"})
		return
	}
	target = scanner.Normalize(target)
	if !scanner.IsValidURL(target) {
		writeJSON(w, http.StatusBadRequest, serviceResponse{Error: "invalid url"})
		return
	}

	log := s.log.WithField("url", target)
	p, err := s.fetcher.Fetch(r.Context(), target)
	if err != nil {
		log.WithError(err).Warn("Preview fetch failed")
		msg := DefaultErrorMessage
		var pe *Error
		if errors.As(err, &pe) && pe.Message != "" {
			msg = pe.Message
		}
		writeJSON(w, http.StatusBadGateway, serviceResponse{Error: msg})
		return
	}

	log.Debug("Preview served")
	writeJSON(w, http.StatusOK, serviceResponse{
		URL:         p.URL,
		Title:       p.Title,
		Description: p.Description,
		Image:       p.Image,
		Domain:      p.Domain,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
