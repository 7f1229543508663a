package search

import (
	"testing"
	"time"

	"github.com/recallbox/recallbox/internal/domain"
)

func intPtr(n int) *int              { return &n }
func timePtr(t time.Time) *time.Time { return &t }

func TestMatch(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &domain.Record{
		ID:         "c1",
		Front:      "What is a dog?",
		Mnemonic:   "Think of Rex",
		SrsLevel:   intPtr(2),
		NextReview: timePtr(now.Add(-time.Hour)),
		Tag:        []string{"animal", "vocab"},
		Deck:       "Japanese/N5",
		Key:        "dog",
		Data: []domain.NoteData{
			{Key: "word", Value: "犬"},
			{Key: "reading", Value: "いぬ"},
		},
	}

	testCases := []struct {
		name     string
		cond     Cond
		expected bool
	}{
		{
			name:     "substring matches case-insensitively",
			cond:     Cmp{Key: "front", Op: OpRegex, Value: "WHAT IS"},
			expected: true,
		},
		{
			name:     "substring misses",
			cond:     Cmp{Key: "front", Op: OpRegex, Value: "cat"},
			expected: false,
		},
		{
			name:     "tag list matches any element",
			cond:     Cmp{Key: "tag", Op: OpEq, Value: "vocab"},
			expected: true,
		},
		{
			name:     "tag regex matches any element",
			cond:     Cmp{Key: "tag", Op: OpRegex, Value: "anim"},
			expected: true,
		},
		{
			name:     "numeric comparison",
			cond:     Cmp{Key: "srsLevel", Op: OpGte, Value: float64(2)},
			expected: true,
		},
		{
			name:     "numeric comparison fails",
			cond:     Cmp{Key: "srsLevel", Op: OpGt, Value: float64(2)},
			expected: false,
		},
		{
			name:     "date comparison",
			cond:     Cmp{Key: "nextReview", Op: OpLte, Value: now},
			expected: true,
		},
		{
			name:     "missing field exists false",
			cond:     Cmp{Key: "back", Op: OpExists, Value: false},
			expected: true,
		},
		{
			name:     "present field exists false",
			cond:     Cmp{Key: "front", Op: OpExists, Value: false},
			expected: false,
		},
		{
			name:     "data key lookup",
			cond:     Cmp{Key: "@reading", Op: OpRegex, Value: "いぬ"},
			expected: true,
		},
		{
			name:     "data key lookup is case-insensitive on the key",
			cond:     Cmp{Key: "@Reading", Op: OpEq, Value: "いぬ"},
			expected: true,
		},
		{
			name:     "any data value",
			cond:     Cmp{Key: "data.value", Op: OpRegex, Value: "犬"},
			expected: true,
		},
		{
			name: "and combines",
			cond: And{
				Cmp{Key: "deck", Op: OpRegex, Value: "Japanese"},
				Cmp{Key: "srsLevel", Op: OpEq, Value: float64(2)},
			},
			expected: true,
		},
		{
			name: "or needs one",
			cond: Or{
				Cmp{Key: "front", Op: OpRegex, Value: "cat"},
				Cmp{Key: "front", Op: OpRegex, Value: "dog"},
			},
			expected: true,
		},
		{
			name:     "not inverts",
			cond:     Not{C: Cmp{Key: "front", Op: OpRegex, Value: "cat"}},
			expected: true,
		},
		{
			name:     "empty and matches anything",
			cond:     And{},
			expected: true,
		},
		{
			name: "incomparable values fail closed",
			cond: Cmp{Key: "created", Op: OpGt, Value: "3xyz"},
			// created is nil here and the value is a raw string, so the
			// clause cannot hold.
			expected: false,
		},
		{
			name:     "bad regex fails closed",
			cond:     Cmp{Key: "front", Op: OpRegex, Value: "("},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Match(tc.cond, rec); got != tc.expected {
				t.Errorf("Match(%#v) = %v, want %v", tc.cond, got, tc.expected)
			}
		})
	}
}

func TestSort(t *testing.T) {
	recs := []*domain.Record{
		{ID: "b", Front: "banana", SrsLevel: intPtr(3)},
		{ID: "a", Front: "apple", SrsLevel: intPtr(1)},
		{ID: "c", Front: "cherry"},
	}

	t.Run("ascending by string", func(t *testing.T) {
		Sort(recs, "front", false)
		if recs[0].ID != "a" || recs[1].ID != "b" || recs[2].ID != "c" {
			t.Errorf("unexpected order: %s %s %s", recs[0].ID, recs[1].ID, recs[2].ID)
		}
	})

	t.Run("descending by string", func(t *testing.T) {
		Sort(recs, "front", true)
		if recs[0].ID != "c" || recs[2].ID != "a" {
			t.Errorf("unexpected order: %s %s %s", recs[0].ID, recs[1].ID, recs[2].ID)
		}
	})

	t.Run("missing values sort last", func(t *testing.T) {
		Sort(recs, "srsLevel", false)
		if recs[2].ID != "c" {
			t.Errorf("expected record without srsLevel last, got %s", recs[2].ID)
		}
		if recs[0].ID != "a" {
			t.Errorf("expected lowest srsLevel first, got %s", recs[0].ID)
		}

		Sort(recs, "srsLevel", true)
		if recs[2].ID != "c" {
			t.Errorf("expected record without srsLevel last either direction, got %s", recs[2].ID)
		}
	})
}
