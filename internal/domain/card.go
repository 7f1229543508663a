package domain

import "time"

// Scope identifies the user every core call operates on behalf of.
// It is passed explicitly into engine and storage calls; there is no
// ambient "current user" state anywhere in the core.
type Scope struct {
	UserID string
}

// Deck is a named hierarchical grouping of cards. Name is a
// "/"-delimited path such as "Japanese/N5" and is unique per user.
// Decks are created on first reference and never auto-deleted.
type Deck struct {
	ID     string
	UserID string
	Name   string
}

// Source records an import batch. H is a content hash unique per user,
// which is what prevents the same batch from being imported twice.
type Source struct {
	ID      string
	UserID  string
	Name    string
	H       string
	Created time.Time
}

// Template holds the mustache-like front/back patterns shared across
// notes of the same model. (Name, Model) is unique per source per user.
type Template struct {
	ID       string
	UserID   string
	SourceID string
	Name     string
	Model    string
	Front    string
	Back     string
	CSS      string
	JS       string
}

// NoteData is a single key/value pair of note data. Order of the
// containing slice is the display order and is preserved in storage.
// Value is normally a string; non-string values survive round trips but
// are not substituted by the template renderer.
type NoteData struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Note is the structured field set behind templated cards. Key is used
// for dedup across imports.
type Note struct {
	ID       string
	UserID   string
	SourceID string
	Key      string
	Data     []NoteData
}

// Media is a binary blob keyed by its content hash, unique per user.
type Media struct {
	ID       string
	UserID   string
	SourceID string
	Name     string
	Data     []byte
	H        string
}

// Streak counts review outcomes. Wrong is a running penalty counter and
// is decremented, not incremented, on a wrong answer.
type Streak struct {
	Right int `json:"right"`
	Wrong int `json:"wrong"`
}

// Stat holds per-card review statistics.
type Stat struct {
	Streak Streak `json:"streak"`
}

// FrontMD5Prefix marks a card front that stores the MD5 of the rendered
// template output instead of literal text. Such cards are re-rendered
// from their Template and Note at read time.
const FrontMD5Prefix = "@md5\n"

// FrontTemplatePrefix marks an incoming front/back value that is a
// template pattern rather than literal text.
const FrontTemplatePrefix = "@template\n"

// Card is the reviewable unit. The displayed deck name is always
// resolved through DeckID; it is never duplicated onto the card.
type Card struct {
	ID         string
	UserID     string
	DeckID     string
	TemplateID string
	NoteID     string
	Front      string
	Back       string
	Mnemonic   string
	SrsLevel   *int
	NextReview *time.Time
	Tag        []string
	Created    time.Time
	Modified   *time.Time
	Stat       *Stat
}
