package engine

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/search"
)

// QuizFilter narrows a quiz build beyond the query string: an optional
// deck subtree, a review type and an optional due horizon such as
// "1h" or "-30min".
type QuizFilter struct {
	Q    string `json:"q"`
	Deck string `json:"deck"`
	Type string `json:"type"`
	Due  string `json:"due"`
}

// BuildQuiz resolves the filter to the ids of the cards to review.
func (e *Engine) BuildQuiz(ctx context.Context, scope domain.Scope, f QuizFilter) ([]string, error) {
	now := e.now()

	res := search.New(now).Parse(f.Q)
	conds := []search.Cond{res.Cond}

	fit := func(c search.Cmp) search.Cond {
		res.Fields[c.Key] = true
		return c
	}

	if f.Deck != "" {
		conds = append(conds, fit(search.Cmp{
			Key:   "deck",
			Op:    search.OpRegex,
			Value: "^" + regexp.QuoteMeta(f.Deck) + "(/.+)?$",
		}))
	}

	dueOrNew := search.Or{
		fit(search.Cmp{Key: "nextReview", Op: search.OpExists, Value: false}),
		fit(search.Cmp{Key: "nextReview", Op: search.OpLte, Value: now}),
	}

	switch f.Type {
	case "all":
	case "due":
		conds = append(conds, fit(search.Cmp{Key: "nextReview", Op: search.OpLte, Value: now}))
	case "leech":
		conds = append(conds, fit(search.Cmp{Key: "srsLevel", Op: search.OpEq, Value: float64(0)}))
	case "new":
		conds = append(conds, fit(search.Cmp{Key: "nextReview", Op: search.OpExists, Value: false}))
	default:
		conds = append(conds, dueOrNew)
	}

	if f.Due != "" {
		if horizon, ok := search.ParseOffset(now, f.Due); ok {
			conds = append(conds, fit(search.Cmp{Key: "nextReview", Op: search.OpLte, Value: horizon}))
		} else {
			conds = append(conds, dueOrNew)
		}
	}

	res.Cond = search.And(conds)

	recs, err := e.findMatching(ctx, scope, res, []string{"id"})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// TreeViewStat summarizes the review state of a deck subtree.
type TreeViewStat struct {
	New   int `json:"new"`
	Leech int `json:"leech"`
	Due   int `json:"due"`
}

// TreeViewItem is one deck in the hierarchical deck view. Stats cover
// the deck and all of its subdecks.
type TreeViewItem struct {
	Name     string          `json:"name"`
	FullName string          `json:"fullName"`
	IsOpen   bool            `json:"isOpen"`
	Children []*TreeViewItem `json:"children,omitempty"`
	Stat     TreeViewStat    `json:"stat"`
}

// Treeview builds the deck hierarchy for the cards matching q.
// Intermediate deck levels that have no cards of their own still
// appear, carrying the aggregated stats of their subtrees.
func (e *Engine) Treeview(ctx context.Context, scope domain.Scope, q string) ([]*TreeViewItem, error) {
	now := e.now()

	res := search.New(now).Parse(q)
	res.Fields["deck"] = true

	recs, err := e.findMatching(ctx, scope, res,
		[]string{"id", "srsLevel", "nextReview", "deck"})
	if err != nil {
		return nil, err
	}

	paths := map[string]bool{}
	for _, r := range recs {
		if r.Deck == "" {
			continue
		}
		segs := strings.Split(r.Deck, "/")
		for i := range segs {
			paths[strings.Join(segs[:i+1], "/")] = true
		}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var roots []*TreeViewItem
	nodes := map[string]*TreeViewItem{}
	for _, p := range sorted {
		segs := strings.Split(p, "/")
		item := &TreeViewItem{
			Name:     segs[len(segs)-1],
			FullName: p,
			IsOpen:   len(segs) <= 2,
			Stat:     subtreeStat(recs, p, now),
		}
		nodes[p] = item

		if len(segs) == 1 {
			roots = append(roots, item)
			continue
		}
		parent := nodes[strings.Join(segs[:len(segs)-1], "/")]
		parent.Children = append(parent.Children, item)
	}

	return roots, nil
}

func subtreeStat(recs []*domain.Record, deck string, now time.Time) TreeViewStat {
	var stat TreeViewStat
	for _, r := range recs {
		if r.Deck != deck && !strings.HasPrefix(r.Deck, deck+"/") {
			continue
		}
		if r.NextReview == nil {
			stat.New++
		} else if !r.NextReview.After(now) {
			stat.Due++
		}
		if r.SrsLevel != nil && *r.SrsLevel == 0 {
			stat.Leech++
		}
	}
	return stat
}
