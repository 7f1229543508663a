// Package search compiles free-form query strings into a structured
// condition tree, and evaluates that tree against flattened card
// records. A query that cannot be parsed yields an empty condition:
// search fails open, never with an error.
package search

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Op is a comparison operator inside a Cmp leaf.
type Op int

const (
	OpEq Op = iota
	// OpRegex matches case-insensitively. Substring searches are
	// expressed as OpRegex with a quoted pattern.
	OpRegex
	OpGt
	OpGte
	OpLt
	OpLte
	// OpExists with Value false matches fields that are missing, null
	// or empty (the "NULL" query literal).
	OpExists
)

// Cond is a node of the compiled condition tree.
type Cond interface{ cond() }

// And matches when every child matches. An empty And matches anything.
type And []Cond

// Or matches when at least one child matches.
type Or []Cond

// Not inverts its child.
type Not struct{ C Cond }

// Cmp compares one record field against a value. A Key starting with
// "@" addresses a note-data key instead of a card attribute.
type Cmp struct {
	Key   string
	Op    Op
	Value any
}

func (And) cond() {}
func (Or) cond()  {}
func (Not) cond() {}
func (Cmp) cond() {}

// Result is the outcome of parsing one query string.
type Result struct {
	Cond Cond
	// Is holds mode flags such as "distinct", "duplicate" or "random"
	// (any is:<x> value that is not a recognized filter rewrite).
	Is     map[string]bool
	SortBy string
	Desc   bool
	// Fields is every field the condition references, used by the
	// executor to decide which joins are necessary.
	Fields map[string]bool
}

// anyOf is the default field set free-text terms are matched against,
// in addition to note-data values.
var anyOf = []string{"template", "front", "mnemonic", "deck", "tag"}

// dateFields are compared as timestamps and accept NOW and relative
// offsets as values.
var dateFields = map[string]bool{"created": true, "modified": true, "nextReview": true}

var (
	// The value class admits / so deck paths work unquoted.
	fullExprRe = regexp.MustCompile(`^(@?[\w-]+)(>=|<=|>|<|:|~|=)([\w\-./]+|"[^"]+")$`)
	numberRe   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	offsetRe   = regexp.MustCompile(`^([+-]?\d+)(\S+)$`)
	bracketRe  = regexp.MustCompile(`\([^)]+\)`)
)

var errNoMatch = errors.New("search: rule does not apply")

// Parser compiles query text. The zero value is not usable; a Parser
// is single-use per query, create one with New.
type Parser struct {
	now    time.Time
	result *Result
}

// New returns a Parser that resolves NOW and relative offsets against
// the given time.
func New(now time.Time) *Parser {
	return &Parser{now: now}
}

// Parse compiles q. It never fails: unparseable input produces an
// empty condition with no constraints.
func (p *Parser) Parse(q string) *Result {
	p.result = &Result{
		Is:     map[string]bool{},
		Fields: map[string]bool{},
	}

	cond, err := p.parse(strings.TrimSpace(q))
	if err != nil {
		cond = And{}
	}
	p.result.Cond = cond

	return p.result
}

// parse tries each grammar rule in fixed priority order so that
// binding is deterministic.
func (p *Parser) parse(q string) (Cond, error) {
	for _, rule := range []func(string) (Cond, error){
		p.removeBrackets,
		p.parseSep(" OR "),
		p.parseSep(" "),
		p.parseNeg,
		p.parseFullExpr,
		p.parsePartialExpr,
	} {
		if c, err := rule(q); err == nil {
			return c, nil
		}
	}

	return nil, errNoMatch
}

func (p *Parser) removeBrackets(q string) (Cond, error) {
	if len(q) >= 2 && q[0] == '(' && q[len(q)-1] == ')' {
		return p.parse(q[1 : len(q)-1])
	}
	return nil, errNoMatch
}

// parseSep splits on sep outside of brackets. Bracketed groups are
// masked with placeholder ids before the split and restored after.
func (p *Parser) parseSep(sep string) func(string) (Cond, error) {
	return func(q string) (Cond, error) {
		masked := map[string]string{}
		q = bracketRe.ReplaceAllStringFunc(q, func(group string) string {
			id := uuid.NewString()
			masked[id] = group
			return id
		})

		tokens := strings.Split(q, sep)
		if len(tokens) < 2 {
			return nil, errNoMatch
		}

		for i, t := range tokens {
			for id, group := range masked {
				t = strings.ReplaceAll(t, id, group)
			}
			tokens[i] = t
		}

		children := make([]Cond, 0, len(tokens))
		for _, t := range tokens {
			c, err := p.parse(t)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}

		if sep == " OR " {
			return Or(children), nil
		}
		return And(children), nil
	}
}

func (p *Parser) parseNeg(q string) (Cond, error) {
	if !strings.HasPrefix(q, "-") {
		return nil, errNoMatch
	}

	const sb = "-sortBy:"
	if strings.HasPrefix(q, sb) && q != sb {
		p.result.SortBy = q[len(sb):]
		p.result.Desc = true
		return And{}, nil
	}

	c, err := p.parse(q[1:])
	if err != nil {
		return nil, err
	}
	return Not{C: c}, nil
}

func (p *Parser) parseFullExpr(q string) (Cond, error) {
	m := fullExprRe.FindStringSubmatch(q)
	if m == nil {
		return nil, errNoMatch
	}

	k, op := m[1], m[2]
	var v any

	raw := m[3]
	if len(raw) > 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		v = raw[1 : len(raw)-1]
	} else if numberRe.MatchString(raw) {
		f, _ := strconv.ParseFloat(raw, 64)
		v = f
	} else {
		v = raw
	}

	if k == "is" {
		switch v {
		case "due":
			k, op, v = "nextReview", "<=", p.now
		case "leech":
			k, op, v = "srsLevel", "=", float64(0)
		case "new":
			k, op, v = "nextReview", "=", "NULL"
		default:
			if s, ok := v.(string); ok {
				p.result.Is[s] = true
				return And{}, nil
			}
			return nil, errNoMatch
		}
	} else if k == "sortBy" {
		if s, ok := v.(string); ok {
			p.result.SortBy = s
			return And{}, nil
		}
		return nil, errNoMatch
	}

	if op == ":" {
		if k == "due" || k == "nextReview" {
			k, op = "nextReview", "<="
		} else if k == "created" || k == "modified" {
			op = "<="
		}
	}

	if v == "NULL" {
		return p.fit(k, OpExists, false), nil
	}

	if dateFields[k] {
		if s, ok := v.(string); ok {
			if s == "NOW" {
				v = p.now
			} else if m1 := offsetRe.FindStringSubmatch(s); m1 != nil {
				n, _ := strconv.Atoi(m1[1])
				if t, ok := addOffset(p.now, n, m1[2]); ok {
					v = t
				}
				// A malformed offset passes through unmodified; the
				// comparison then fails closed for this clause.
			}
		}
	}

	switch op {
	case ":":
		if s, ok := v.(string); ok {
			return p.fit(k, OpRegex, regexp.QuoteMeta(s)), nil
		}
		return p.fit(k, OpEq, v), nil
	case "~":
		if s, ok := v.(string); ok {
			return p.fit(k, OpRegex, s), nil
		}
		return p.fit(k, OpRegex, raw), nil
	case ">=":
		return p.fit(k, OpGte, v), nil
	case ">":
		return p.fit(k, OpGt, v), nil
	case "<=":
		return p.fit(k, OpLte, v), nil
	case "<":
		return p.fit(k, OpLt, v), nil
	default:
		return p.fit(k, OpEq, v), nil
	}
}

func (p *Parser) parsePartialExpr(q string) (Cond, error) {
	if q == "" || strings.Contains(q, ":") {
		return nil, errNoMatch
	}

	or := make(Or, 0, len(anyOf)+1)
	for _, a := range anyOf {
		or = append(or, p.fit(a, OpRegex, regexp.QuoteMeta(q)))
	}
	or = append(or, p.fit("data.value", OpRegex, regexp.QuoteMeta(q)))

	return or, nil
}

// fit records the referenced field and builds the comparison leaf.
func (p *Parser) fit(k string, op Op, v any) Cond {
	p.result.Fields[k] = true
	return Cmp{Key: k, Op: op, Value: v}
}

// ParseOffset resolves a bare relative offset such as "-1d" or "3h"
// against now. It reports false when s is not an offset the query
// language understands.
func ParseOffset(now time.Time, s string) (time.Time, bool) {
	m := offsetRe.FindStringSubmatch(s)
	if m == nil {
		return now, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return now, false
	}
	return addOffset(now, n, m[2])
}

// addOffset applies a relative offset such as "-1d" or "3h" to now.
// The second return is false for units the query language does not
// know, in which case the caller keeps the raw value.
func addOffset(now time.Time, n int, unit string) (time.Time, bool) {
	switch unit {
	case "m", "min":
		return now.Add(time.Duration(n) * time.Minute), true
	case "h":
		return now.Add(time.Duration(n) * time.Hour), true
	case "d":
		return now.AddDate(0, 0, n), true
	case "w":
		return now.AddDate(0, 0, 7*n), true
	case "mo", "M":
		return now.AddDate(0, n, 0), true
	case "y":
		return now.AddDate(n, 0, 0), true
	}
	return now, false
}
