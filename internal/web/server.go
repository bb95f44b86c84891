// Package web serves the flashstudy JSON API.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/conorfennell/flashstudy/internal/auth"
	"github.com/conorfennell/flashstudy/internal/metrics"
	"github.com/conorfennell/flashstudy/internal/storage"
	"github.com/conorfennell/flashstudy/internal/study"
	"github.com/conorfennell/flashstudy/internal/sync"
)

// maxUploadBytes bounds PDF uploads.
const maxUploadBytes = 32 << 20

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	study    *study.Service
	auth     *auth.Client
	syncer   *sync.Syncer
	metrics  *metrics.Metrics
	validate *validator.Validate
	router   *mux.Router
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, svc *study.Service, authClient *auth.Client, syncer *sync.Syncer, m *metrics.Metrics) *Server {
	s := &Server{
		db:       db,
		study:    svc,
		auth:     authClient,
		syncer:   syncer,
		metrics:  m,
		validate: validator.New(),
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(corsMiddleware)
	s.router.Use(s.metrics.Middleware)

	s.router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodOptions)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.NewRoute().Subrouter()
	api.Use(jsonMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/home", s.handleHome).Methods(http.MethodGet)

	// Topics
	api.HandleFunc("/topics", s.handleListTopics).Methods(http.MethodGet)
	api.HandleFunc("/topics/search", s.handleSearchTopics).Methods(http.MethodGet)
	api.HandleFunc("/topics/{id}", s.handleGetTopic).Methods(http.MethodGet)
	api.HandleFunc("/topics/{id}", s.handleRenameTopic).Methods(http.MethodPatch)
	api.HandleFunc("/topics/{id}", s.handleDeleteTopic).Methods(http.MethodDelete)
	api.HandleFunc("/topics/{id}/cards", s.handleGetDeck).Methods(http.MethodGet)
	api.HandleFunc("/cards", s.handleListCards).Methods(http.MethodGet)

	// Exams
	api.HandleFunc("/topics/{id}/questions", s.handleGetExam).Methods(http.MethodGet)
	api.HandleFunc("/topics/{id}/questions", s.handleDeleteExam).Methods(http.MethodDelete)
	api.HandleFunc("/topics/{id}/exam", s.handleSubmitExam).Methods(http.MethodPost)
	api.HandleFunc("/topics/{id}/score", s.handleGetScore).Methods(http.MethodGet)
	api.HandleFunc("/questions/{id:[0-9]+}", s.handleGetQuestion).Methods(http.MethodGet)
	api.HandleFunc("/questions/{id:[0-9]+}", s.handleUpdateQuestion).Methods(http.MethodPut)
	api.HandleFunc("/questions/{id:[0-9]+}", s.handleDeleteQuestion).Methods(http.MethodDelete)

	// Generation and deck import
	api.HandleFunc("/generate/topic", s.handleGenerateTopic).Methods(http.MethodPost)
	api.HandleFunc("/generate/pdf", s.handleGeneratePDF).Methods(http.MethodPost)
	api.HandleFunc("/generate/state", s.handleUploadState).Methods(http.MethodGet)
	api.HandleFunc("/generate/state", s.handleResetUpload).Methods(http.MethodDelete)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/sources", s.handleListSources).Methods(http.MethodGet)
	api.HandleFunc("/sources/{id:[0-9]+}", s.handleDeleteSource).Methods(http.MethodDelete)

	// Auth
	api.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin/idtoken", s.handleSignInIDToken).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset", s.handlePasswordReset).Methods(http.MethodPost)
	api.HandleFunc("/auth/password", s.handleUpdatePassword).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/auth/nonce", s.handleNonce).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return err
	}
	return nil
}

// writeError logs err and answers with the status it maps to.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeErrorResponse(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, study.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, study.ErrGenerationInProgress), errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

func pathInt(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", study.ErrInvalid, name)
	}
	return id, nil
}
