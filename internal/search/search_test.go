package search

import (
	"reflect"
	"testing"
	"time"
)

var parseNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func parse(t *testing.T, q string) *Result {
	t.Helper()
	return New(parseNow).Parse(q)
}

func TestParseFullExpr(t *testing.T) {
	testCases := []struct {
		name     string
		q        string
		expected Cond
	}{
		{
			name:     "substring search",
			q:        "front:dog",
			expected: Cmp{Key: "front", Op: OpRegex, Value: "dog"},
		},
		{
			name:     "exact match",
			q:        "deck=Japanese",
			expected: Cmp{Key: "deck", Op: OpEq, Value: "Japanese"},
		},
		{
			name:     "regex match",
			q:        "front~a.c",
			expected: Cmp{Key: "front", Op: OpRegex, Value: "a.c"},
		},
		{
			name:     "numeric comparison",
			q:        "srsLevel>=2",
			expected: Cmp{Key: "srsLevel", Op: OpGte, Value: float64(2)},
		},
		{
			name:     "quoted value keeps spaces",
			q:        `front:"hot dog"`,
			expected: Cmp{Key: "front", Op: OpRegex, Value: `hot dog`},
		},
		{
			name:     "deck path value with slash",
			q:        "deck:Japanese/N5",
			expected: Cmp{Key: "deck", Op: OpRegex, Value: "Japanese/N5"},
		},
		{
			name:     "null matches missing fields",
			q:        "nextReview=NULL",
			expected: Cmp{Key: "nextReview", Op: OpExists, Value: false},
		},
		{
			name:     "data key expression",
			q:        "@reading:inu",
			expected: Cmp{Key: "@reading", Op: OpRegex, Value: "inu"},
		},
		{
			name:     "date colon becomes at-most",
			q:        "nextReview:NOW",
			expected: Cmp{Key: "nextReview", Op: OpLte, Value: parseNow},
		},
		{
			name:     "due alias",
			q:        "due:NOW",
			expected: Cmp{Key: "nextReview", Op: OpLte, Value: parseNow},
		},
		{
			name:     "relative offset",
			q:        "created>-1d",
			expected: Cmp{Key: "created", Op: OpGt, Value: parseNow.AddDate(0, 0, -1)},
		},
		{
			name:     "week offset",
			q:        "nextReview<1w",
			expected: Cmp{Key: "nextReview", Op: OpLt, Value: parseNow.AddDate(0, 0, 7)},
		},
		{
			name: "malformed offset passes through",
			q:    "created>3xyz",
			// An unknown unit keeps the raw string; the comparison then
			// fails closed at evaluation time.
			expected: Cmp{Key: "created", Op: OpGt, Value: "3xyz"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := parse(t, tc.q)
			if !reflect.DeepEqual(res.Cond, tc.expected) {
				t.Errorf("Parse(%q).Cond = %#v, want %#v", tc.q, res.Cond, tc.expected)
			}
		})
	}
}

func TestParseCombinators(t *testing.T) {
	t.Run("space means and", func(t *testing.T) {
		res := parse(t, "front:dog deck=Animals")
		and, ok := res.Cond.(And)
		if !ok || len(and) != 2 {
			t.Fatalf("expected And with two children, got %#v", res.Cond)
		}
	})

	t.Run("deck path and due rewrite combine", func(t *testing.T) {
		res := parse(t, "deck:Japanese/N5 is:due")
		want := And{
			Cmp{Key: "deck", Op: OpRegex, Value: "Japanese/N5"},
			Cmp{Key: "nextReview", Op: OpLte, Value: parseNow},
		}
		if !reflect.DeepEqual(res.Cond, want) {
			t.Errorf("got %#v, want %#v", res.Cond, want)
		}
	})

	t.Run("or splits first", func(t *testing.T) {
		res := parse(t, "front:dog OR back:cat")
		or, ok := res.Cond.(Or)
		if !ok || len(or) != 2 {
			t.Fatalf("expected Or with two children, got %#v", res.Cond)
		}
	})

	t.Run("brackets group", func(t *testing.T) {
		res := parse(t, "(front:dog OR back:cat) deck=Animals")
		and, ok := res.Cond.(And)
		if !ok || len(and) != 2 {
			t.Fatalf("expected And with two children, got %#v", res.Cond)
		}
		if _, ok := and[0].(Or); !ok {
			t.Errorf("expected first child to be Or, got %#v", and[0])
		}
	})

	t.Run("negation", func(t *testing.T) {
		res := parse(t, "-front:dog")
		not, ok := res.Cond.(Not)
		if !ok {
			t.Fatalf("expected Not, got %#v", res.Cond)
		}
		if !reflect.DeepEqual(not.C, Cmp{Key: "front", Op: OpRegex, Value: "dog"}) {
			t.Errorf("unexpected negated child %#v", not.C)
		}
	})
}

func TestParseIsRewrites(t *testing.T) {
	t.Run("is due", func(t *testing.T) {
		res := parse(t, "is:due")
		want := Cmp{Key: "nextReview", Op: OpLte, Value: parseNow}
		if !reflect.DeepEqual(res.Cond, want) {
			t.Errorf("got %#v, want %#v", res.Cond, want)
		}
	})

	t.Run("is leech", func(t *testing.T) {
		res := parse(t, "is:leech")
		want := Cmp{Key: "srsLevel", Op: OpEq, Value: float64(0)}
		if !reflect.DeepEqual(res.Cond, want) {
			t.Errorf("got %#v, want %#v", res.Cond, want)
		}
	})

	t.Run("is new", func(t *testing.T) {
		res := parse(t, "is:new")
		want := Cmp{Key: "nextReview", Op: OpExists, Value: false}
		if !reflect.DeepEqual(res.Cond, want) {
			t.Errorf("got %#v, want %#v", res.Cond, want)
		}
	})

	t.Run("mode flags", func(t *testing.T) {
		res := parse(t, "is:random is:distinct")
		if !res.Is["random"] || !res.Is["distinct"] {
			t.Errorf("expected random and distinct flags, got %v", res.Is)
		}
	})
}

func TestParseSortBy(t *testing.T) {
	t.Run("ascending", func(t *testing.T) {
		res := parse(t, "sortBy:front deck=A")
		if res.SortBy != "front" || res.Desc {
			t.Errorf("expected ascending sort on front, got %q desc=%v", res.SortBy, res.Desc)
		}
	})

	t.Run("descending", func(t *testing.T) {
		res := parse(t, "-sortBy:nextReview")
		if res.SortBy != "nextReview" || !res.Desc {
			t.Errorf("expected descending sort on nextReview, got %q desc=%v", res.SortBy, res.Desc)
		}
	})
}

func TestParsePartialExpr(t *testing.T) {
	res := parse(t, "dog")
	or, ok := res.Cond.(Or)
	if !ok {
		t.Fatalf("expected Or over the default fields, got %#v", res.Cond)
	}
	if len(or) != len(anyOf)+1 {
		t.Fatalf("expected %d children, got %d", len(anyOf)+1, len(or))
	}
	last, ok := or[len(or)-1].(Cmp)
	if !ok || last.Key != "data.value" {
		t.Errorf("expected final child to search note data, got %#v", or[len(or)-1])
	}
}

func TestParseRecordsFields(t *testing.T) {
	res := parse(t, "deck=A @reading:x sortBy:front")
	for _, f := range []string{"deck", "@reading"} {
		if !res.Fields[f] {
			t.Errorf("expected field %q to be recorded, got %v", f, res.Fields)
		}
	}
}

func TestParseFailsOpen(t *testing.T) {
	// A colon without a parseable expression matches no rule; the
	// query degrades to an unconstrained condition instead of erroring.
	res := parse(t, ":::")
	and, ok := res.Cond.(And)
	if !ok || len(and) != 0 {
		t.Errorf("expected empty And for unparseable input, got %#v", res.Cond)
	}
}

func TestParseOffset(t *testing.T) {
	if got, ok := ParseOffset(parseNow, "-30min"); !ok || !got.Equal(parseNow.Add(-30*time.Minute)) {
		t.Errorf("ParseOffset(-30min) = %v, %v", got, ok)
	}
	if got, ok := ParseOffset(parseNow, "2h"); !ok || !got.Equal(parseNow.Add(2*time.Hour)) {
		t.Errorf("ParseOffset(2h) = %v, %v", got, ok)
	}
	if _, ok := ParseOffset(parseNow, "soon"); ok {
		t.Error("expected ParseOffset to reject a non-offset")
	}
}
