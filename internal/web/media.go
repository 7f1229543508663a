package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleMedia serves a stored media blob by its content hash.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	h := chi.URLParam(r, "h")
	if h == "" {
		http.Error(w, "missing media hash", http.StatusBadRequest)
		return
	}

	m, err := s.engine.MediaByHash(r.Context(), scopeFrom(r), h)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(m.Data))
	w.Write(m.Data)
}
