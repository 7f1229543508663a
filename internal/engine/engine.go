// Package engine ties the query language, the scheduler and the
// storage backend together. It compiles queries once, derives the
// joins the referenced fields need, and runs filtering, result modes,
// ordering and pagination uniformly over whichever backend is
// configured.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/search"
	"github.com/recallbox/recallbox/internal/storage"
)

// Engine executes card operations against a storage backend.
type Engine struct {
	store storage.Store
	log   *slog.Logger
	now   func() time.Time
}

func New(store storage.Store, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log, now: time.Now}
}

// Options selects what a query execution returns: the projected
// fields, the window and the requested ordering. A sortBy inside the
// query string overrides SortBy here.
type Options struct {
	Offset int
	Limit  int
	SortBy string
	Desc   bool
	Fields []string
}

// Page is one window of query results. Count is the total number of
// matches before Offset and Limit were applied.
type Page struct {
	Data  []map[string]any `json:"data"`
	Count int              `json:"count"`
}

// Query compiles q and executes it.
func (e *Engine) Query(ctx context.Context, scope domain.Scope, q string, opt Options) (*Page, error) {
	res := search.New(e.now()).Parse(q)
	return e.Execute(ctx, scope, res, opt)
}

// Execute runs a compiled query. With no requested fields there is
// nothing to return and nothing is fetched.
func (e *Engine) Execute(ctx context.Context, scope domain.Scope, res *search.Result, opt Options) (*Page, error) {
	if len(opt.Fields) == 0 {
		return &Page{Data: []map[string]any{}}, nil
	}

	recs, err := e.findMatching(ctx, scope, res, opt.Fields)
	if err != nil {
		return nil, err
	}

	sortBy, desc := opt.SortBy, opt.Desc
	if res.SortBy != "" {
		sortBy, desc = res.SortBy, res.Desc
	}
	random := res.Is["random"] || sortBy == "random"

	// Modes stack: duplicate grouping runs over the distinct survivors.
	if res.Is["distinct"] {
		recs = distinctByNote(recs)
	}
	if res.Is["duplicate"] {
		recs = duplicatesByFront(recs)
	}

	count := len(recs)

	if random {
		search.Shuffle(recs)
	} else if sortBy != "" {
		search.Sort(recs, sortBy, desc)
	}

	recs = window(recs, opt.Offset, opt.Limit)

	data := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		data = append(data, r.Project(opt.Fields))
	}

	return &Page{Data: data, Count: count}, nil
}

// findMatching fetches the user's cards with exactly the joins the
// query and the projection need, then filters them in-process.
func (e *Engine) findMatching(ctx context.Context, scope domain.Scope, res *search.Result, fields []string) ([]*domain.Record, error) {
	all := map[string]bool{}
	for _, f := range fields {
		all[f] = true
	}
	for f := range res.Fields {
		all[f] = true
	}
	if res.SortBy != "" {
		all[res.SortBy] = true
	}

	recs, err := e.store.FindJoined(ctx, scope, storage.DeriveJoins(all))
	if err != nil {
		return nil, err
	}

	matched := recs[:0]
	for _, r := range recs {
		if search.Match(res.Cond, r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// distinctByNote keeps one card per note key. Cards without a note key
// have nothing to collapse on and all survive. Which card of a group
// survives is random.
func distinctByNote(recs []*domain.Record) []*domain.Record {
	search.Shuffle(recs)

	seen := map[string]bool{}
	out := recs[:0]
	for _, r := range recs {
		if r.Key == "" {
			out = append(out, r)
			continue
		}
		if !seen[r.Key] {
			seen[r.Key] = true
			out = append(out, r)
		}
	}
	return out
}

// duplicatesByFront keeps only cards whose front occurs more than once.
func duplicatesByFront(recs []*domain.Record) []*domain.Record {
	byFront := map[string]int{}
	for _, r := range recs {
		byFront[r.Front]++
	}

	out := recs[:0]
	for _, r := range recs {
		if byFront[r.Front] > 1 {
			out = append(out, r)
		}
	}
	return out
}

func window(recs []*domain.Record, offset, limit int) []*domain.Record {
	if offset >= len(recs) {
		return nil
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

// HasSource reports whether an import batch with the given content
// hash already exists for the user.
func (e *Engine) HasSource(ctx context.Context, scope domain.Scope, h string) (bool, error) {
	_, err := e.store.SourceByHash(ctx, scope, h)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MediaByHash fetches a stored media blob by its content hash.
func (e *Engine) MediaByHash(ctx context.Context, scope domain.Scope, h string) (*domain.Media, error) {
	return e.store.MediaByHash(ctx, scope, h)
}

// CountCards reports the user's total card count, joins and filters
// aside.
func (e *Engine) CountCards(ctx context.Context, scope domain.Scope) (int, error) {
	return e.store.CountCards(ctx, scope)
}

// DeleteCards removes the given cards.
func (e *Engine) DeleteCards(ctx context.Context, scope domain.Scope, ids []string) error {
	return e.store.DeleteCards(ctx, scope, ids)
}

// AddTags attaches tags to every given card, touching modified.
func (e *Engine) AddTags(ctx context.Context, scope domain.Scope, ids, tags []string) error {
	return e.store.AddTags(ctx, scope, ids, tags)
}

// RemoveTags detaches tags from every given card, touching modified.
func (e *Engine) RemoveTags(ctx context.Context, scope domain.Scope, ids, tags []string) error {
	return e.store.RemoveTags(ctx, scope, ids, tags)
}
