package web

import (
	"bytes"
	"context"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/engine"
)

func (s *Server) handleQuizBuild(w http.ResponseWriter, r *http.Request) {
	var req engine.QuizFilter
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	ids, err := s.engine.BuildQuiz(r.Context(), scopeFrom(r), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, map[string]any{"ids": ids})
}

type treeviewRequest struct {
	Q string `json:"q"`
}

func (s *Server) handleTreeview(w http.ResponseWriter, r *http.Request) {
	var req treeviewRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	tree, err := s.engine.Treeview(r.Context(), scopeFrom(r), req.Q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if tree == nil {
		tree = []*engine.TreeViewItem{}
	}
	s.respond(w, tree)
}

type renderRequest struct {
	ID string `json:"id" validate:"required"`
	// Markdown asks for the card text converted to HTML server-side.
	Markdown bool `json:"markdown"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	card, err := s.engine.Render(r.Context(), scopeFrom(r), req.ID)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	if req.Markdown {
		for _, k := range []string{"front", "back", "mnemonic"} {
			if text, ok := card[k].(string); ok && text != "" {
				var buf bytes.Buffer
				if err := goldmark.Convert([]byte(text), &buf); err == nil {
					card[k] = buf.String()
				}
			}
		}
	}

	s.respond(w, card)
}

type reviewRequest struct {
	ID   string             `json:"id"`
	Data *engine.CardInsert `json:"data"`
}

func (s *Server) handleMarkRight(w http.ResponseWriter, r *http.Request) {
	s.handleReview(w, r, s.engine.MarkRight)
}

func (s *Server) handleMarkWrong(w http.ResponseWriter, r *http.Request) {
	s.handleReview(w, r, s.engine.MarkWrong)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request,
	mark func(ctx context.Context, scope domain.Scope, id string, card *engine.CardInsert) (string, error)) {
	var req reviewRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	id, err := mark(r.Context(), scopeFrom(r), req.ID, req.Data)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, map[string]any{"id": id})
}
