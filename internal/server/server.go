// Package server exposes the semantic editing core over HTTP. It is thin
// presentation glue: every route delegates to the semantic.Service and
// maps typed pipeline errors to their HTTP-equivalent statuses.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"usdmcore/internal/semantic"
)

// Server routes the semantic editing API.
type Server struct {
	svc     *semantic.Service
	watcher *semantic.DocumentWatcher
	router  *mux.Router
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithWatcher attaches a live-document watcher; the draft endpoints use it
// to flag out-of-band document edits early.
func WithWatcher(w *semantic.DocumentWatcher) Option {
	return func(s *Server) { s.watcher = w }
}

// New builds the server and its routes.
func New(svc *semantic.Service, opts ...Option) *Server {
	s := &Server{svc: svc, router: mux.NewRouter()}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/protocols/{protocolId}").Subrouter()
	api.HandleFunc("/document", s.handleGetDocument).Methods(http.MethodGet)
	api.HandleFunc("/draft", s.handleGetDraft).Methods(http.MethodGet)
	api.HandleFunc("/draft", s.handleSaveDraft).Methods(http.MethodPut)
	api.HandleFunc("/draft/diff", s.handleDraftDiff).Methods(http.MethodGet)
	api.HandleFunc("/publish", s.handlePublish).Methods(http.MethodPost)
	api.HandleFunc("/changelog", s.handleChangeLog).Methods(http.MethodGet)
	api.HandleFunc("/changelog/verify", s.handleVerifyChain).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}
