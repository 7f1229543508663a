package search

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/recallbox/recallbox/internal/domain"
)

// Match reports whether the flattened record satisfies the condition.
// Comparisons that cannot be made (missing fields, incomparable types,
// bad regexes) fail closed for that leaf.
func Match(c Cond, r *domain.Record) bool {
	switch c := c.(type) {
	case And:
		for _, child := range c {
			if !Match(child, r) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range c {
			if Match(child, r) {
				return true
			}
		}
		return false
	case Not:
		return !Match(c.C, r)
	case Cmp:
		return matchCmp(c, r)
	}
	return false
}

func matchCmp(c Cmp, r *domain.Record) bool {
	item := r.Get(c.Key)

	switch c.Op {
	case OpExists:
		want, _ := c.Value.(bool)
		return exists(item) == want
	case OpRegex:
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false
		}
		for _, s := range stringForms(item) {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	case OpEq:
		return equals(item, c.Value)
	default:
		cmp, ok := compare(item, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		}
	}

	return false
}

// exists treats nil, empty strings and empty lists as absent, matching
// the "NULL" semantics of the query language.
func exists(item any) bool {
	switch v := item.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case []domain.NoteData:
		return len(v) > 0
	}
	return true
}

// stringForms flattens item into the strings a regex can be tested
// against. Scalars yield one form; lists yield one per element.
func stringForms(item any) []string {
	switch v := item.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			out = append(out, stringForms(el)...)
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

func equals(item, value any) bool {
	switch v := item.(type) {
	case nil:
		return false
	case []string:
		for _, el := range v {
			if equals(el, value) {
				return true
			}
		}
		return false
	case []any:
		for _, el := range v {
			if equals(el, value) {
				return true
			}
		}
		return false
	default:
		if cmp, ok := compare(item, value); ok {
			return cmp == 0
		}
		return item == value
	}
}

// compare orders two values when they are comparable: two timestamps,
// or two values that both read as numbers. Anything else is not
// comparable and the caller fails the clause.
func compare(item, value any) (int, bool) {
	if it, ok := asTime(item); ok {
		if vt, ok := asTime(value); ok {
			switch {
			case it.Before(vt):
				return -1, true
			case it.After(vt):
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}

	ifl, ok1 := asFloat(item)
	vfl, ok2 := asFloat(value)
	if ok1 && ok2 {
		switch {
		case ifl < vfl:
			return -1, true
		case ifl > vfl:
			return 1, true
		}
		return 0, true
	}

	return 0, false
}

func asTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Sort orders records by the given field, "@key" sorting by the first
// matching note-data value. Records missing the field sort last either
// direction. The sort is stable.
func Sort(recs []*domain.Record, key string, desc bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		a := sortValue(recs[i], key)
		b := sortValue(recs[j], key)

		if a == nil {
			return false
		}
		if b == nil {
			return true
		}

		if cmp, ok := compare(a, b); ok {
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}

		as, bs := fmt.Sprint(a), fmt.Sprint(b)
		if desc {
			return as > bs
		}
		return as < bs
	})
}

func sortValue(r *domain.Record, key string) any {
	v := r.Get(key)
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

// Shuffle permutes records uniformly in place.
func Shuffle(recs []*domain.Record) {
	rand.Shuffle(len(recs), func(i, j int) {
		recs[i], recs[j] = recs[j], recs[i]
	})
}
