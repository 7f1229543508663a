// Package mustache renders card templates with the Anki-flavored
// subset of mustache the note data uses: plain substitution with an
// ignored modifier prefix, presence-based conditional sections, and
// silent stripping of anything left unresolved.
package mustache

import (
	"regexp"
	"strings"

	"github.com/recallbox/recallbox/internal/domain"
)

// markerRe matches the "@<marker>\n" escape prefix that tells callers
// how a stored value is encoded (e.g. "@md5\n", "@html\n"). The marker
// must never leak into rendered output.
var markerRe = regexp.MustCompile(`^@[^\n]+\n`)

var tokenRe = regexp.MustCompile(`\{\{[^}]+\}\}`)

// StripMarker removes a leading "@<marker>\n" escape prefix from s.
func StripMarker(s string) string {
	return markerRe.ReplaceAllString(s, "")
}

// Render substitutes note data into pattern. front is the already
// rendered front side, substituted for {{FrontSide}}. A nil data slice
// renders like an empty one. Render is pure and idempotent once its
// output contains no further placeholders.
func Render(pattern string, data []domain.NoteData, front string) string {
	s := strings.ReplaceAll(pattern, "{{FrontSide}}", StripMarker(front))

	keys := make(map[string]bool, len(data))
	for _, d := range data {
		keys[d.Key] = true

		v, ok := d.Value.(string)
		if !ok {
			// Non-string values stay unresolved and fall through to
			// the final token strip.
			continue
		}

		re := regexp.MustCompile(`\{\{(\S+:)?` + regexp.QuoteMeta(d.Key) + `\}\}`)
		s = re.ReplaceAllString(s, StripMarker(v))
	}

	s = resolveSections(s, keys)

	return tokenRe.ReplaceAllString(s, "")
}

// resolveSections handles {{#key}}...{{/key}} blocks: the body is kept
// when key exists in the note data and dropped otherwise. Matching is
// to the nearest close tag of the same key. Open tags without a close
// are left in place for the final strip.
func resolveSections(s string, keys map[string]bool) string {
	from := 0
	for {
		i := strings.Index(s[from:], "{{#")
		if i < 0 {
			return s
		}
		i += from

		end := strings.Index(s[i:], "}}")
		if end < 0 {
			return s
		}

		key := s[i+len("{{#") : i+end]
		bodyStart := i + end + len("}}")

		closeTag := "{{/" + key + "}}"
		j := strings.Index(s[bodyStart:], closeTag)
		if j < 0 {
			from = bodyStart
			continue
		}

		body := ""
		if keys[key] {
			body = s[bodyStart : bodyStart+j]
		}
		s = s[:i] + body + s[bodyStart+j+len(closeTag):]
		from = i
	}
}
