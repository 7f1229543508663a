package web

import (
	"net/http"

	"github.com/recallbox/recallbox/internal/engine"
)

// editorFields is the default projection of the card browser.
var editorFields = []string{
	"deck", "front", "back", "mnemonic", "tag", "srsLevel", "nextReview",
	"created", "modified", "data", "tFront", "tBack", "css", "js",
	"source", "template",
}

const defaultEditorLimit = 10

type editorQueryRequest struct {
	Q      string   `json:"q"`
	Offset int      `json:"offset" validate:"min=0"`
	Limit  int      `json:"limit" validate:"min=0"`
	SortBy string   `json:"sortBy"`
	Desc   bool     `json:"desc"`
	Fields []string `json:"fields"`
}

func (s *Server) handleEditorQuery(w http.ResponseWriter, r *http.Request) {
	var req editorQueryRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	if req.Limit == 0 {
		req.Limit = defaultEditorLimit
	}
	if len(req.Fields) == 0 {
		req.Fields = editorFields
	}

	page, err := s.engine.Query(r.Context(), scopeFrom(r), req.Q, engine.Options{
		Offset: req.Offset,
		Limit:  req.Limit,
		SortBy: req.SortBy,
		Desc:   req.Desc,
		Fields: req.Fields,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, page)
}

type idRequest struct {
	ID string `json:"id" validate:"required"`
}

func (s *Server) handleEditorGetOne(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	page, err := s.engine.Query(r.Context(), scopeFrom(r), "id="+req.ID, engine.Options{
		Limit:  1,
		Fields: editorFields,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if len(page.Data) == 0 {
		http.NotFound(w, r)
		return
	}
	s.respond(w, page.Data[0])
}

type editorUpsertRequest struct {
	ID     string               `json:"id"`
	IDs    []string             `json:"ids"`
	Create []*engine.CardInsert `json:"create"`
	Update map[string]any       `json:"update"`
}

func (s *Server) handleEditorUpsert(w http.ResponseWriter, r *http.Request) {
	var req editorUpsertRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	scope := scopeFrom(r)

	switch {
	case len(req.Create) > 0:
		ids, err := s.engine.InsertMany(r.Context(), scope, req.Create)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		if len(ids) == 1 {
			s.respond(w, map[string]any{"id": ids[0]})
			return
		}
		s.respond(w, map[string]any{"ids": ids})
	case len(req.IDs) > 0:
		if err := s.engine.UpdateCards(r.Context(), scope, req.IDs, req.Update); err != nil {
			s.respondErr(w, err)
			return
		}
		s.respond(w, map[string]any{"ids": req.IDs})
	case req.ID != "":
		if err := s.engine.UpdateCards(r.Context(), scope, []string{req.ID}, req.Update); err != nil {
			s.respondErr(w, err)
			return
		}
		s.respond(w, map[string]any{"id": req.ID})
	default:
		http.Error(w, "nothing to create or update", http.StatusBadRequest)
	}
}

type editorDeleteRequest struct {
	ID  string   `json:"id"`
	IDs []string `json:"ids"`
}

func (s *Server) handleEditorDelete(w http.ResponseWriter, r *http.Request) {
	var req editorDeleteRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	ids := req.IDs
	if len(ids) == 0 && req.ID != "" {
		ids = []string{req.ID}
	}
	if len(ids) == 0 {
		http.Error(w, "nothing to delete", http.StatusBadRequest)
		return
	}

	if err := s.engine.DeleteCards(r.Context(), scopeFrom(r), ids); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, map[string]any{"ids": ids})
}

type editTagsRequest struct {
	IDs  []string `json:"ids" validate:"required,min=1"`
	Tags []string `json:"tags" validate:"required,min=1"`
}

func (s *Server) handleAddTags(w http.ResponseWriter, r *http.Request) {
	var req editTagsRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	if err := s.engine.AddTags(r.Context(), scopeFrom(r), req.IDs, req.Tags); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, map[string]any{"ids": req.IDs})
}

func (s *Server) handleRemoveTags(w http.ResponseWriter, r *http.Request) {
	var req editTagsRequest
	if err := s.decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}

	if err := s.engine.RemoveTags(r.Context(), scopeFrom(r), req.IDs, req.Tags); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respond(w, map[string]any{"ids": req.IDs})
}
