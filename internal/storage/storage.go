// Package storage defines the capability interface the query executor
// and review scheduler are written against. Two implementations exist:
// an embedded relational store (sqlite) doing manual joins and a
// document store (mongo) joining through server-side aggregation.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/recallbox/recallbox/internal/domain"
)

var (
	// ErrNotFound is returned when an id does not resolve to a record
	// owned by the scope's user.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned by UpdateCard when the modified-guard
	// does not match the stored row; the caller re-reads and retries.
	ErrConflict = errors.New("storage: conflicting update")
	// ErrDuplicate is returned on unique-hash collisions (sources,
	// media). It signals a recoverable duplicate, not a failure.
	ErrDuplicate = errors.New("storage: duplicate resource")
)

// JoinSet says which related entities FindJoined must hoist onto the
// flattened record. Joins not in the set are elided.
type JoinSet struct {
	Note     bool
	Deck     bool
	Source   bool
	Template bool
}

// DeriveJoins computes the joins required to resolve the given wire
// fields. Source fields imply the note join because sourceId is
// carried on the note.
func DeriveJoins(fields map[string]bool) JoinSet {
	var j JoinSet
	for f := range fields {
		switch {
		case f == "data" || f == "key" || f == "data.value" ||
			strings.HasPrefix(f, "@") || strings.HasPrefix(f, "data."):
			j.Note = true
		case f == "deck":
			j.Deck = true
		case f == "source" || f == "sH" || f == "sCreated":
			j.Source = true
			j.Note = true
		case f == "template" || f == "model" || f == "tFront" ||
			f == "tBack" || f == "css" || f == "js":
			j.Template = true
		}
	}
	return j
}

// ModifiedGuard makes UpdateCard conditional: the update applies only
// if the stored modified timestamp still equals Modified (nil meaning
// never modified). This is the compare-and-swap that keeps concurrent
// reviews of the same card from losing writes.
type ModifiedGuard struct {
	Modified *time.Time
}

// CardUpdate is a partial card mutation. Nil pointers leave the
// corresponding column untouched. Modified is always written.
type CardUpdate struct {
	Front      *string
	Back       *string
	Mnemonic   *string
	DeckID     *string
	NoteID     *string
	SrsLevel   *int
	NextReview *time.Time
	Tag        *[]string
	Stat       *domain.Stat
	Modified   time.Time

	// Guard, when non-nil, turns the update into a CAS.
	Guard *ModifiedGuard
}

// TemplatePatch is a partial template mutation; nil pointers leave the
// corresponding pattern untouched.
type TemplatePatch struct {
	Front *string
	Back  *string
	CSS   *string
	JS    *string
}

// Store is the storage backend capability set.
type Store interface {
	// FindJoined streams every card of the user flattened with the
	// requested joins hoisted to top level.
	FindJoined(ctx context.Context, scope domain.Scope, joins JoinSet) ([]*domain.Record, error)
	CountCards(ctx context.Context, scope domain.Scope) (int, error)

	CardByID(ctx context.Context, scope domain.Scope, id string) (*domain.Card, error)
	InsertCards(ctx context.Context, scope domain.Scope, cards []*domain.Card) error
	UpdateCard(ctx context.Context, scope domain.Scope, id string, u CardUpdate) error
	DeleteCards(ctx context.Context, scope domain.Scope, ids []string) error
	AddTags(ctx context.Context, scope domain.Scope, ids, tags []string) error
	RemoveTags(ctx context.Context, scope domain.Scope, ids, tags []string) error

	// GetOrCreateDeck resolves a deck path to its id, creating the
	// deck on first reference.
	GetOrCreateDeck(ctx context.Context, scope domain.Scope, name string) (string, error)

	SourceByHash(ctx context.Context, scope domain.Scope, h string) (*domain.Source, error)
	InsertSource(ctx context.Context, scope domain.Scope, s *domain.Source) error

	FindTemplate(ctx context.Context, scope domain.Scope, name, model string) (*domain.Template, error)
	TemplateByID(ctx context.Context, scope domain.Scope, id string) (*domain.Template, error)
	InsertTemplate(ctx context.Context, scope domain.Scope, t *domain.Template) error
	UpdateTemplate(ctx context.Context, scope domain.Scope, id string, patch TemplatePatch) error

	NoteByKey(ctx context.Context, scope domain.Scope, key string) (*domain.Note, error)
	NoteByID(ctx context.Context, scope domain.Scope, id string) (*domain.Note, error)
	InsertNote(ctx context.Context, scope domain.Scope, n *domain.Note) error
	// UpdateNoteData merges the given pairs into the note's data,
	// appending new keys at the end of the display order.
	UpdateNoteData(ctx context.Context, scope domain.Scope, id string, data []domain.NoteData) error

	InsertMedia(ctx context.Context, scope domain.Scope, m *domain.Media) error
	MediaByHash(ctx context.Context, scope domain.Scope, h string) (*domain.Media, error)

	Close() error
}
