package engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/mustache"
	"github.com/recallbox/recallbox/internal/storage"
)

// CardInsert is one incoming card in wire shape: related entities are
// referenced by their natural keys (deck path, template name and
// model, note key, source hash) and resolved or created during the
// batch insert.
type CardInsert struct {
	Front    string `json:"front" validate:"required"`
	Back     string `json:"back"`
	Mnemonic string `json:"mnemonic"`
	Deck     string `json:"deck" validate:"required"`

	Template string `json:"template"`
	Model    string `json:"model"`
	TFront   string `json:"tFront"`
	TBack    string `json:"tBack"`
	CSS      string `json:"css"`
	JS       string `json:"js"`

	Key  string            `json:"key"`
	Data []domain.NoteData `json:"data"`

	Source   string     `json:"source"`
	SH       string     `json:"sH"`
	SCreated *time.Time `json:"sCreated"`

	Tag        []string     `json:"tag"`
	SrsLevel   *int         `json:"srsLevel"`
	NextReview *time.Time   `json:"nextReview"`
	Stat       *domain.Stat `json:"stat"`
}

// InsertMany inserts a batch of cards, resolving shared sources,
// templates, notes and decks exactly once per batch. It returns the
// new card ids in input order.
func (e *Engine) InsertMany(ctx context.Context, scope domain.Scope, entries []*CardInsert) ([]string, error) {
	now := e.now()

	for _, c := range entries {
		transformTemplated(c, c.Data)
	}

	sourceIDs := map[string]string{}
	for _, c := range entries {
		if c.SH == "" || sourceIDs[c.SH] != "" {
			continue
		}
		id, err := e.resolveSource(ctx, scope, c, now)
		if err != nil {
			return nil, err
		}
		sourceIDs[c.SH] = id
	}

	templateIDs := map[string]string{}
	for _, c := range entries {
		if c.Template == "" || c.Model == "" {
			continue
		}
		key := c.Template + "\x1f" + c.Model
		if templateIDs[key] != "" {
			continue
		}
		id, err := e.resolveTemplate(ctx, scope, c, sourceIDs[c.SH])
		if err != nil {
			return nil, err
		}
		templateIDs[key] = id
	}

	noteIDs := map[string]string{}
	for _, c := range entries {
		if c.Key == "" || len(c.Data) == 0 || noteIDs[c.Key] != "" {
			continue
		}
		id, err := e.resolveNote(ctx, scope, c, sourceIDs[c.SH])
		if err != nil {
			return nil, err
		}
		noteIDs[c.Key] = id
	}

	deckIDs := map[string]string{}
	for _, c := range entries {
		if deckIDs[c.Deck] != "" {
			continue
		}
		id, err := e.store.GetOrCreateDeck(ctx, scope, c.Deck)
		if err != nil {
			return nil, err
		}
		deckIDs[c.Deck] = id
	}

	ids := make([]string, 0, len(entries))
	cards := make([]*domain.Card, 0, len(entries))
	for _, c := range entries {
		id := uuid.NewString()
		ids = append(ids, id)
		cards = append(cards, &domain.Card{
			ID:         id,
			UserID:     scope.UserID,
			DeckID:     deckIDs[c.Deck],
			TemplateID: templateIDs[c.Template+"\x1f"+c.Model],
			NoteID:     noteIDs[c.Key],
			Front:      c.Front,
			Back:       c.Back,
			Mnemonic:   c.Mnemonic,
			SrsLevel:   c.SrsLevel,
			NextReview: c.NextReview,
			Tag:        c.Tag,
			Created:    now,
			Stat:       c.Stat,
		})
	}

	if err := e.store.InsertCards(ctx, scope, cards); err != nil {
		return nil, err
	}

	e.log.Info("inserted cards", "user", scope.UserID, "count", len(cards))
	return ids, nil
}

// transformTemplated rewrites an inline "@template\n" front or back
// into its template pattern plus an "@md5\n" content hash of the
// rendered output, so equality on the stored value survives template
// edits that do not change the rendering.
func transformTemplated(c *CardInsert, data []domain.NoteData) {
	if len(c.Front) > len(domain.FrontTemplatePrefix) &&
		c.Front[:len(domain.FrontTemplatePrefix)] == domain.FrontTemplatePrefix {
		c.TFront = c.Front[len(domain.FrontTemplatePrefix):]
	}

	var front string
	if c.TFront != "" {
		front = mustache.Render(c.TFront, data, "")
		c.Front = domain.FrontMD5Prefix + md5Hex(front)
	}

	if len(c.Back) > len(domain.FrontTemplatePrefix) &&
		c.Back[:len(domain.FrontTemplatePrefix)] == domain.FrontTemplatePrefix {
		c.TBack = c.Back[len(domain.FrontTemplatePrefix):]
	}

	if c.TBack != "" {
		back := mustache.Render(c.TBack, data, front)
		c.Back = domain.FrontMD5Prefix + md5Hex(back)
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (e *Engine) resolveSource(ctx context.Context, scope domain.Scope, c *CardInsert, now time.Time) (string, error) {
	s, err := e.store.SourceByHash(ctx, scope, c.SH)
	if err == nil {
		return s.ID, nil
	}
	if err != storage.ErrNotFound {
		return "", err
	}

	created := now
	if c.SCreated != nil {
		created = *c.SCreated
	}
	src := &domain.Source{
		ID:      uuid.NewString(),
		UserID:  scope.UserID,
		Name:    c.Source,
		H:       c.SH,
		Created: created,
	}
	if err := e.store.InsertSource(ctx, scope, src); err != nil {
		return "", fmt.Errorf("failed to resolve source %s: %w", c.Source, err)
	}
	return src.ID, nil
}

func (e *Engine) resolveTemplate(ctx context.Context, scope domain.Scope, c *CardInsert, sourceID string) (string, error) {
	t, err := e.store.FindTemplate(ctx, scope, c.Template, c.Model)
	if err == nil {
		return t.ID, nil
	}
	if err != storage.ErrNotFound {
		return "", err
	}

	tpl := &domain.Template{
		ID:       uuid.NewString(),
		UserID:   scope.UserID,
		SourceID: sourceID,
		Name:     c.Template,
		Model:    c.Model,
		Front:    c.TFront,
		Back:     c.TBack,
		CSS:      c.CSS,
		JS:       c.JS,
	}
	if err := e.store.InsertTemplate(ctx, scope, tpl); err != nil {
		return "", fmt.Errorf("failed to resolve template %s: %w", c.Template, err)
	}
	return tpl.ID, nil
}

func (e *Engine) resolveNote(ctx context.Context, scope domain.Scope, c *CardInsert, sourceID string) (string, error) {
	n, err := e.store.NoteByKey(ctx, scope, c.Key)
	if err == nil {
		return n.ID, nil
	}
	if err != storage.ErrNotFound {
		return "", err
	}

	note := &domain.Note{
		ID:       uuid.NewString(),
		UserID:   scope.UserID,
		SourceID: sourceID,
		Key:      c.Key,
		Data:     c.Data,
	}
	if err := e.store.InsertNote(ctx, scope, note); err != nil {
		return "", fmt.Errorf("failed to resolve note %s: %w", c.Key, err)
	}
	return note.ID, nil
}
