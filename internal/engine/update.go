package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/mustache"
	"github.com/recallbox/recallbox/internal/search"
	"github.com/recallbox/recallbox/internal/storage"
)

// UpdateCards applies the same wire-shaped patch to every given card.
// Keys address the flattened record: card attributes update the card
// itself, "deck" re-points the card at a (possibly new) deck,
// "tFront"/"tBack"/"css"/"js" flow through to the card's template, and
// "data" or "data.<key>" patches merge into the card's note, creating
// an ad-hoc note when the card has none.
func (e *Engine) UpdateCards(ctx context.Context, scope domain.Scope, ids []string, patch map[string]any) error {
	for _, id := range ids {
		if err := e.updateCard(ctx, scope, id, patch); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) updateCard(ctx context.Context, scope domain.Scope, id string, patch map[string]any) error {
	c, err := e.store.CardByID(ctx, scope, id)
	if err != nil {
		return err
	}

	u := storage.CardUpdate{Modified: e.now()}
	var tpatch storage.TemplatePatch
	var dataPatch []domain.NoteData

	for k, v := range patch {
		switch k {
		case "deck":
			name, ok := v.(string)
			if !ok {
				continue
			}
			deckID, err := e.store.GetOrCreateDeck(ctx, scope, name)
			if err != nil {
				return err
			}
			u.DeckID = &deckID
		case "front":
			if s, ok := v.(string); ok {
				front, tFront, err := e.transformFront(ctx, scope, c, s)
				if err != nil {
					return err
				}
				u.Front = &front
				if tFront != "" {
					tpatch.Front = &tFront
				}
			}
		case "back":
			if s, ok := v.(string); ok {
				back, tBack, err := e.transformBack(ctx, scope, c, s)
				if err != nil {
					return err
				}
				u.Back = &back
				if tBack != "" {
					tpatch.Back = &tBack
				}
			}
		case "mnemonic":
			if s, ok := v.(string); ok {
				u.Mnemonic = &s
			}
		case "srsLevel":
			if n, ok := asInt(v); ok {
				u.SrsLevel = &n
			}
		case "nextReview":
			if t, ok := asPatchTime(v); ok {
				u.NextReview = &t
			}
		case "tag":
			if tags, ok := asStrings(v); ok {
				u.Tag = &tags
			}
		case "tFront":
			if s, ok := v.(string); ok {
				tpatch.Front = &s
			}
		case "tBack":
			if s, ok := v.(string); ok {
				tpatch.Back = &s
			}
		case "css":
			if s, ok := v.(string); ok {
				tpatch.CSS = &s
			}
		case "js":
			if s, ok := v.(string); ok {
				tpatch.JS = &s
			}
		case "data":
			if m, ok := v.(map[string]any); ok {
				for k0, v0 := range m {
					dataPatch = append(dataPatch, domain.NoteData{Key: k0, Value: v0})
				}
			}
		default:
			if strings.HasPrefix(k, "data.") {
				dataPatch = append(dataPatch, domain.NoteData{
					Key:   strings.TrimPrefix(k, "data."),
					Value: v,
				})
			}
		}
	}

	if len(dataPatch) > 0 {
		if c.NoteID != "" {
			if err := e.store.UpdateNoteData(ctx, scope, c.NoteID, dataPatch); err != nil {
				return err
			}
		} else {
			// Editing data on a card that never had a note promotes it
			// to an ad-hoc note with a random key.
			note := &domain.Note{
				ID:     uuid.NewString(),
				UserID: scope.UserID,
				Key:    uuid.NewString(),
				Data:   dataPatch,
			}
			if err := e.store.InsertNote(ctx, scope, note); err != nil {
				return err
			}
			u.NoteID = &note.ID
		}
	}

	if err := e.store.UpdateCard(ctx, scope, id, u); err != nil {
		return err
	}

	if tpatch != (storage.TemplatePatch{}) && c.TemplateID != "" {
		if err := e.store.UpdateTemplate(ctx, scope, c.TemplateID, tpatch); err != nil {
			return err
		}
	}
	return nil
}

// transformFront rewrites an "@template\n" front into its "@md5\n"
// content hash, rendered against the card's note data. The extracted
// template pattern is returned so it can be written back to the card's
// template.
func (e *Engine) transformFront(ctx context.Context, scope domain.Scope, c *domain.Card, front string) (string, string, error) {
	if !strings.HasPrefix(front, domain.FrontTemplatePrefix) {
		return front, "", nil
	}

	data, err := e.noteData(ctx, scope, c)
	if err != nil {
		return "", "", err
	}

	tFront := strings.TrimPrefix(front, domain.FrontTemplatePrefix)
	rendered := mustache.Render(tFront, data, "")
	return domain.FrontMD5Prefix + md5Hex(rendered), tFront, nil
}

func (e *Engine) transformBack(ctx context.Context, scope domain.Scope, c *domain.Card, back string) (string, string, error) {
	if !strings.HasPrefix(back, domain.FrontTemplatePrefix) {
		return back, "", nil
	}

	data, err := e.noteData(ctx, scope, c)
	if err != nil {
		return "", "", err
	}

	front, err := e.renderedFront(ctx, scope, c, data)
	if err != nil {
		return "", "", err
	}

	tBack := strings.TrimPrefix(back, domain.FrontTemplatePrefix)
	rendered := mustache.Render(tBack, data, front)
	return domain.FrontMD5Prefix + md5Hex(rendered), tBack, nil
}

func (e *Engine) noteData(ctx context.Context, scope domain.Scope, c *domain.Card) ([]domain.NoteData, error) {
	if c.NoteID == "" {
		return nil, nil
	}
	n, err := e.store.NoteByID(ctx, scope, c.NoteID)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n.Data, nil
}

// renderedFront resolves the displayable front of a card, re-rendering
// hashed fronts from their template.
func (e *Engine) renderedFront(ctx context.Context, scope domain.Scope, c *domain.Card, data []domain.NoteData) (string, error) {
	if !strings.HasPrefix(c.Front, domain.FrontMD5Prefix) || c.TemplateID == "" {
		return c.Front, nil
	}

	t, err := e.store.TemplateByID(ctx, scope, c.TemplateID)
	if err == storage.ErrNotFound {
		return c.Front, nil
	}
	if err != nil {
		return "", err
	}
	return mustache.Render(t.Front, data, ""), nil
}

// Render returns the card with hashed fronts and backs replaced by
// their rendering, alongside the styling the template carries.
func (e *Engine) Render(ctx context.Context, scope domain.Scope, id string) (map[string]any, error) {
	res := &search.Result{
		Cond:   search.Cmp{Key: "id", Op: search.OpEq, Value: id},
		Is:     map[string]bool{},
		Fields: map[string]bool{"id": true},
	}
	fields := []string{"front", "back", "mnemonic", "tFront", "tBack", "data", "css", "js"}

	recs, err := e.findMatching(ctx, scope, res, fields)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}

	r := recs[0]
	out := r.Project(fields)

	front := r.Front
	if strings.HasPrefix(front, domain.FrontMD5Prefix) {
		front = mustache.Render(r.TFront, r.Data, "")
		out["front"] = front
	}
	if strings.HasPrefix(r.Back, domain.FrontMD5Prefix) {
		out["back"] = mustache.Render(r.TBack, r.Data, front)
	}

	return out, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asPatchTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func asStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, el := range s {
			str, ok := el.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}
