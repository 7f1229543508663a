package domain

import (
	"strings"
	"time"
)

// Record is one card flattened by the storage joins: deck, template,
// note and source fields hoisted to the top level next to the card's
// own attributes. Field access goes through Get using the wire names
// the query language and the HTTP contract share.
type Record struct {
	ID         string
	Front      string
	Back       string
	Mnemonic   string
	SrsLevel   *int
	NextReview *time.Time
	Tag        []string
	Created    *time.Time
	Modified   *time.Time
	Stat       *Stat

	// Joined from Deck.
	Deck string

	// Joined from Template.
	Template string
	Model    string
	TFront   string
	TBack    string
	CSS      string
	JS       string

	// Joined from Note.
	Key  string
	Data []NoteData

	// Joined from Source (through Note).
	Source   string
	SH       string
	SCreated *time.Time
}

// Get resolves a wire field name to its value. "@key" addresses note
// data by key and yields the list of matching values; "data.value"
// yields every note-data value. Unknown fields resolve to nil.
func (r *Record) Get(field string) any {
	if strings.HasPrefix(field, "@") {
		return r.DataValues(strings.TrimPrefix(field, "@"))
	}

	switch field {
	case "id":
		return r.ID
	case "front":
		return r.Front
	case "back":
		return r.Back
	case "mnemonic":
		return r.Mnemonic
	case "srsLevel":
		if r.SrsLevel == nil {
			return nil
		}
		return *r.SrsLevel
	case "nextReview":
		if r.NextReview == nil {
			return nil
		}
		return *r.NextReview
	case "tag":
		return r.Tag
	case "created":
		if r.Created == nil {
			return nil
		}
		return *r.Created
	case "modified":
		if r.Modified == nil {
			return nil
		}
		return *r.Modified
	case "stat":
		return r.Stat
	case "deck":
		return r.Deck
	case "template":
		return r.Template
	case "model":
		return r.Model
	case "tFront":
		return r.TFront
	case "tBack":
		return r.TBack
	case "css":
		return r.CSS
	case "js":
		return r.JS
	case "key":
		return r.Key
	case "data":
		return r.Data
	case "source":
		return r.Source
	case "sH":
		return r.SH
	case "sCreated":
		if r.SCreated == nil {
			return nil
		}
		return *r.SCreated
	case "data.value":
		return r.DataValues("*")
	}

	return nil
}

// DataValues returns the note-data values stored under key, or every
// value when key is "*". Key matching is case-insensitive so that
// query keys like @Reading and @reading address the same column.
func (r *Record) DataValues(key string) []any {
	if len(r.Data) == 0 {
		return nil
	}

	var out []any
	for _, d := range r.Data {
		if key == "*" || strings.EqualFold(d.Key, key) {
			out = append(out, d.Value)
		}
	}
	return out
}

// Project returns the record reduced to the requested fields plus its
// id, keyed by wire name, ready for JSON encoding. Fields the record
// does not carry are omitted rather than emitted as nulls.
func (r *Record) Project(fields []string) map[string]any {
	out := map[string]any{"id": r.ID}

	for _, f := range fields {
		if f == "id" {
			continue
		}
		if v := r.Get(f); !absent(v) {
			out[f] = v
		}
	}

	return out
}

// absent mirrors the NULL semantics of the query language: nil, empty
// strings and empty lists are not carried by a record.
func absent(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return vv == ""
	case []string:
		return len(vv) == 0
	case []any:
		return len(vv) == 0
	case []NoteData:
		return len(vv) == 0
	}
	return false
}
