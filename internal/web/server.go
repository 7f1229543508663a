// Package web exposes the card engine over an HTTP JSON API. Requests
// are scoped to the user named by the X-User-ID header, falling back
// to a configured default for single-user setups.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/engine"
	"github.com/recallbox/recallbox/internal/storage"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	engine      *engine.Engine
	log         *slog.Logger
	validate    *validator.Validate
	router      chi.Router
	defaultUser string
}

// NewServer creates and configures a new server.
func NewServer(eng *engine.Engine, log *slog.Logger, defaultUser string) *Server {
	s := &Server{
		engine:      eng,
		log:         log,
		validate:    validator.New(),
		router:      chi.NewRouter(),
		defaultUser: defaultUser,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.withScope)

		r.Route("/editor", func(r chi.Router) {
			r.Post("/", s.handleEditorQuery)
			r.Post("/getOne", s.handleEditorGetOne)
			r.Put("/", s.handleEditorUpsert)
			r.Delete("/", s.handleEditorDelete)
			r.Put("/editTags", s.handleAddTags)
			r.Delete("/editTags", s.handleRemoveTags)
		})

		r.Route("/quiz", func(r chi.Router) {
			r.Post("/", s.handleQuizBuild)
			r.Post("/treeview", s.handleTreeview)
			r.Post("/render", s.handleRender)
			r.Put("/right", s.handleMarkRight)
			r.Put("/wrong", s.handleMarkWrong)
		})

		r.Get("/media/{h}", s.handleMedia)
	})
}

type ctxKey int

const scopeKey ctxKey = iota

// withScope resolves the acting user from the X-User-ID header and
// stashes the scope on the request context.
func (s *Server) withScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-User-ID")
		if user == "" {
			user = s.defaultUser
		}
		ctx := context.WithValue(r.Context(), scopeKey, domain.Scope{UserID: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func scopeFrom(r *http.Request) domain.Scope {
	scope, _ := r.Context().Value(scopeKey).(domain.Scope)
	return scope
}

// decode unmarshals and validates a JSON request body.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return s.validate.Struct(v)
}

func (s *Server) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrDuplicate):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}
