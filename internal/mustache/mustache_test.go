package mustache

import (
	"testing"

	"github.com/recallbox/recallbox/internal/domain"
)

func TestRender(t *testing.T) {
	data := []domain.NoteData{
		{Key: "word", Value: "犬"},
		{Key: "reading", Value: "いぬ"},
		{Key: "audio", Value: 42},
	}

	testCases := []struct {
		name     string
		pattern  string
		data     []domain.NoteData
		front    string
		expected string
	}{
		{
			name:     "plain substitution",
			pattern:  "What is {{word}}?",
			data:     data,
			expected: "What is 犬?",
		},
		{
			name:     "modifier prefix is ignored",
			pattern:  "{{text:word}} ({{furigana:reading}})",
			data:     data,
			expected: "犬 (いぬ)",
		},
		{
			name:     "unknown keys are stripped",
			pattern:  "{{word}} {{missing}}",
			data:     data,
			expected: "犬 ",
		},
		{
			name:     "front side substitution",
			pattern:  "{{FrontSide}} -> back",
			data:     data,
			front:    "front text",
			expected: "front text -> back",
		},
		{
			name:     "front side marker is stripped",
			pattern:  "{{FrontSide}}",
			data:     data,
			front:    "@html\n<b>front</b>",
			expected: "<b>front</b>",
		},
		{
			name:     "section kept when key present",
			pattern:  "{{#reading}}reading: {{reading}}{{/reading}}",
			data:     data,
			expected: "reading: いぬ",
		},
		{
			name:     "section dropped when key absent",
			pattern:  "always{{#missing}} never{{/missing}}",
			data:     data,
			expected: "always",
		},
		{
			name:     "section kept for non-string value",
			pattern:  "{{#audio}}has audio{{/audio}}",
			data:     data,
			expected: "has audio",
		},
		{
			name:     "unclosed section is stripped",
			pattern:  "{{#word}}body",
			data:     data,
			expected: "body",
		},
		{
			name:     "nil data strips everything",
			pattern:  "{{word}}{{#word}}x{{/word}}",
			expected: "",
		},
		{
			name:     "value markers are stripped",
			pattern:  "{{word}}",
			data:     []domain.NoteData{{Key: "word", Value: "@html\n<i>dog</i>"}},
			expected: "<i>dog</i>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Render(tc.pattern, tc.data, tc.front)
			if got != tc.expected {
				t.Errorf("Render(%q) = %q, want %q", tc.pattern, got, tc.expected)
			}
		})
	}
}

func TestRenderIdempotent(t *testing.T) {
	data := []domain.NoteData{{Key: "word", Value: "dog"}}
	once := Render("{{word}} and {{missing}}", data, "")
	twice := Render(once, data, "")
	if once != twice {
		t.Errorf("second render changed output: %q -> %q", once, twice)
	}
}

func TestStripMarker(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"@md5\nabcdef", "abcdef"},
		{"@html\n<b>hi</b>", "<b>hi</b>"},
		{"no marker here", "no marker here"},
		{"@md5 without newline", "@md5 without newline"},
	}

	for _, tc := range testCases {
		if got := StripMarker(tc.input); got != tc.expected {
			t.Errorf("StripMarker(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
