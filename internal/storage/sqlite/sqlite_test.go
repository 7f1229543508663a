package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/storage"
)

var testScope = domain.Scope{UserID: "u1"}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(n int) *int { return &n }

func TestCardRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.GetOrCreateDeck(ctx, testScope, "Japanese/N5")
	if err != nil {
		t.Fatalf("GetOrCreateDeck failed: %v", err)
	}

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	next := created.Add(4 * time.Hour)
	card := &domain.Card{
		ID:         "c1",
		DeckID:     deckID,
		Front:      "What is 犬?",
		Back:       "dog",
		SrsLevel:   intPtr(2),
		NextReview: &next,
		Tag:        []string{"vocab"},
		Created:    created,
		Stat:       &domain.Stat{Streak: domain.Streak{Right: 3, Wrong: -1}},
	}

	if err := db.InsertCards(ctx, testScope, []*domain.Card{card}); err != nil {
		t.Fatalf("InsertCards failed: %v", err)
	}

	got, err := db.CardByID(ctx, testScope, "c1")
	if err != nil {
		t.Fatalf("CardByID failed: %v", err)
	}
	if got.Front != card.Front || got.Back != card.Back {
		t.Errorf("unexpected card content %q / %q", got.Front, got.Back)
	}
	if got.SrsLevel == nil || *got.SrsLevel != 2 {
		t.Errorf("expected srsLevel 2, got %v", got.SrsLevel)
	}
	if got.NextReview == nil || !got.NextReview.Equal(next) {
		t.Errorf("expected nextReview %v, got %v", next, got.NextReview)
	}
	if got.Stat == nil || got.Stat.Streak.Right != 3 || got.Stat.Streak.Wrong != -1 {
		t.Errorf("unexpected stat %+v", got.Stat)
	}
	if len(got.Tag) != 1 || got.Tag[0] != "vocab" {
		t.Errorf("expected tag vocab, got %v", got.Tag)
	}
	if got.Modified != nil {
		t.Errorf("expected modified to start unset, got %v", got.Modified)
	}

	t.Run("other users cannot see the card", func(t *testing.T) {
		if _, err := db.CardByID(ctx, domain.Scope{UserID: "u2"}, "c1"); err != storage.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFindJoined(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.GetOrCreateDeck(ctx, testScope, "Animals")
	if err != nil {
		t.Fatalf("GetOrCreateDeck failed: %v", err)
	}

	src := &domain.Source{ID: "s1", Name: "deck.md", H: "hash1", Created: time.Now().UTC()}
	if err := db.InsertSource(ctx, testScope, src); err != nil {
		t.Fatalf("InsertSource failed: %v", err)
	}

	tpl := &domain.Template{
		ID: "t1", SourceID: "s1", Name: "vocab", Model: "basic",
		Front: "{{word}}?", Back: "{{word}}", CSS: ".card{}",
	}
	if err := db.InsertTemplate(ctx, testScope, tpl); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}

	note := &domain.Note{
		ID: "n1", SourceID: "s1", Key: "dog",
		Data: []domain.NoteData{{Key: "word", Value: "犬"}},
	}
	if err := db.InsertNote(ctx, testScope, note); err != nil {
		t.Fatalf("InsertNote failed: %v", err)
	}

	card := &domain.Card{
		ID: "c1", DeckID: deckID, TemplateID: "t1", NoteID: "n1",
		Front: "@md5\nabc", Created: time.Now().UTC(),
	}
	if err := db.InsertCards(ctx, testScope, []*domain.Card{card}); err != nil {
		t.Fatalf("InsertCards failed: %v", err)
	}

	recs, err := db.FindJoined(ctx, testScope, storage.JoinSet{
		Note: true, Deck: true, Source: true, Template: true,
	})
	if err != nil {
		t.Fatalf("FindJoined failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}

	r := recs[0]
	if r.Deck != "Animals" {
		t.Errorf("expected deck name, got %q", r.Deck)
	}
	if r.Template != "vocab" || r.TFront != "{{word}}?" || r.CSS != ".card{}" {
		t.Errorf("expected template fields, got %+v", r)
	}
	if r.Key != "dog" || len(r.Data) != 1 || r.Data[0].Key != "word" {
		t.Errorf("expected note fields, got key=%q data=%+v", r.Key, r.Data)
	}
	if r.Source != "deck.md" || r.SH != "hash1" {
		t.Errorf("expected source fields, got %+v", r)
	}

	t.Run("joins are elided when not requested", func(t *testing.T) {
		recs, err := db.FindJoined(ctx, testScope, storage.JoinSet{})
		if err != nil {
			t.Fatalf("FindJoined failed: %v", err)
		}
		if recs[0].Deck != "" || recs[0].Key != "" {
			t.Errorf("expected no joined fields, got %+v", recs[0])
		}
		if recs[0].Front != "@md5\nabc" {
			t.Errorf("expected card fields, got %q", recs[0].Front)
		}
	})
}

func TestUpdateCardGuard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.GetOrCreateDeck(ctx, testScope, "A")
	if err != nil {
		t.Fatalf("GetOrCreateDeck failed: %v", err)
	}
	card := &domain.Card{ID: "c1", DeckID: deckID, Front: "f", Created: time.Now().UTC()}
	if err := db.InsertCards(ctx, testScope, []*domain.Card{card}); err != nil {
		t.Fatalf("InsertCards failed: %v", err)
	}

	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err = db.UpdateCard(ctx, testScope, "c1", storage.CardUpdate{
		SrsLevel: intPtr(1),
		Modified: first,
		Guard:    &storage.ModifiedGuard{Modified: nil},
	})
	if err != nil {
		t.Fatalf("guarded update against unmodified card failed: %v", err)
	}

	t.Run("stale guard conflicts", func(t *testing.T) {
		err := db.UpdateCard(ctx, testScope, "c1", storage.CardUpdate{
			SrsLevel: intPtr(2),
			Modified: first.Add(time.Minute),
			Guard:    &storage.ModifiedGuard{Modified: nil},
		})
		if err != storage.ErrConflict {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("fresh guard applies", func(t *testing.T) {
		err := db.UpdateCard(ctx, testScope, "c1", storage.CardUpdate{
			SrsLevel: intPtr(2),
			Modified: first.Add(time.Minute),
			Guard:    &storage.ModifiedGuard{Modified: &first},
		})
		if err != nil {
			t.Fatalf("expected update to apply, got %v", err)
		}

		got, err := db.CardByID(ctx, testScope, "c1")
		if err != nil {
			t.Fatalf("CardByID failed: %v", err)
		}
		if got.SrsLevel == nil || *got.SrsLevel != 2 {
			t.Errorf("expected srsLevel 2, got %v", got.SrsLevel)
		}
	})

	t.Run("unknown card", func(t *testing.T) {
		err := db.UpdateCard(ctx, testScope, "missing", storage.CardUpdate{Modified: first})
		if err != storage.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestTags(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.GetOrCreateDeck(ctx, testScope, "A")
	if err != nil {
		t.Fatalf("GetOrCreateDeck failed: %v", err)
	}
	cards := []*domain.Card{
		{ID: "c1", DeckID: deckID, Front: "f1", Created: time.Now().UTC()},
		{ID: "c2", DeckID: deckID, Front: "f2", Created: time.Now().UTC()},
	}
	if err := db.InsertCards(ctx, testScope, cards); err != nil {
		t.Fatalf("InsertCards failed: %v", err)
	}

	if err := db.AddTags(ctx, testScope, []string{"c1", "c2"}, []string{"x", "y"}); err != nil {
		t.Fatalf("AddTags failed: %v", err)
	}
	got, err := db.CardByID(ctx, testScope, "c1")
	if err != nil {
		t.Fatalf("CardByID failed: %v", err)
	}
	if len(got.Tag) != 2 {
		t.Errorf("expected two tags, got %v", got.Tag)
	}

	if err := db.RemoveTags(ctx, testScope, []string{"c1"}, []string{"x"}); err != nil {
		t.Fatalf("RemoveTags failed: %v", err)
	}
	got, err = db.CardByID(ctx, testScope, "c1")
	if err != nil {
		t.Fatalf("CardByID failed: %v", err)
	}
	if len(got.Tag) != 1 || got.Tag[0] != "y" {
		t.Errorf("expected only tag y, got %v", got.Tag)
	}

	other, err := db.CardByID(ctx, testScope, "c2")
	if err != nil {
		t.Fatalf("CardByID failed: %v", err)
	}
	if len(other.Tag) != 2 {
		t.Errorf("expected untouched card to keep both tags, got %v", other.Tag)
	}
}

func TestDeleteCardsScoped(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.GetOrCreateDeck(ctx, testScope, "A")
	if err != nil {
		t.Fatalf("GetOrCreateDeck failed: %v", err)
	}
	card := &domain.Card{
		ID: "c1", DeckID: deckID, Front: "f",
		Tag: []string{"x", "y"}, Created: time.Now().UTC(),
	}
	if err := db.InsertCards(ctx, testScope, []*domain.Card{card}); err != nil {
		t.Fatalf("InsertCards failed: %v", err)
	}

	t.Run("another user's delete touches nothing", func(t *testing.T) {
		other := domain.Scope{UserID: "u2"}
		if err := db.DeleteCards(ctx, other, []string{"c1"}); err != nil {
			t.Fatalf("DeleteCards failed: %v", err)
		}

		got, err := db.CardByID(ctx, testScope, "c1")
		if err != nil {
			t.Fatalf("expected the card to survive, got %v", err)
		}
		if len(got.Tag) != 2 {
			t.Errorf("expected the tag links to survive, got %v", got.Tag)
		}
	})

	t.Run("the owner's delete removes card and links", func(t *testing.T) {
		if err := db.DeleteCards(ctx, testScope, []string{"c1"}); err != nil {
			t.Fatalf("DeleteCards failed: %v", err)
		}
		if _, err := db.CardByID(ctx, testScope, "c1"); err != storage.ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		var n int
		row := db.conn.QueryRow(`SELECT COUNT(*) FROM cardTag WHERE cardId = ?`, "c1")
		if err := row.Scan(&n); err != nil {
			t.Fatalf("failed to count tag links: %v", err)
		}
		if n != 0 {
			t.Errorf("expected cascaded tag links gone, got %d", n)
		}
	})
}

func TestSourceDuplicate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := &domain.Source{ID: "s1", Name: "deck.md", H: "hash1", Created: time.Now().UTC()}
	if err := db.InsertSource(ctx, testScope, src); err != nil {
		t.Fatalf("InsertSource failed: %v", err)
	}

	dup := &domain.Source{ID: "s2", Name: "other.md", H: "hash1", Created: time.Now().UTC()}
	if err := db.InsertSource(ctx, testScope, dup); err != storage.ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	t.Run("same hash for another user is fine", func(t *testing.T) {
		other := &domain.Source{ID: "s3", Name: "deck.md", H: "hash1", Created: time.Now().UTC()}
		if err := db.InsertSource(ctx, domain.Scope{UserID: "u2"}, other); err != nil {
			t.Errorf("expected insert for another user to pass, got %v", err)
		}
	})
}

func TestUpdateNoteData(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	note := &domain.Note{
		ID: "n1", Key: "dog",
		Data: []domain.NoteData{
			{Key: "word", Value: "犬"},
			{Key: "reading", Value: "いぬ"},
		},
	}
	if err := db.InsertNote(ctx, testScope, note); err != nil {
		t.Fatalf("InsertNote failed: %v", err)
	}

	err := db.UpdateNoteData(ctx, testScope, "n1", []domain.NoteData{
		{Key: "reading", Value: "イヌ"},
		{Key: "sentence", Value: "犬が好き"},
	})
	if err != nil {
		t.Fatalf("UpdateNoteData failed: %v", err)
	}

	got, err := db.NoteByID(ctx, testScope, "n1")
	if err != nil {
		t.Fatalf("NoteByID failed: %v", err)
	}
	if len(got.Data) != 3 {
		t.Fatalf("expected three pairs, got %+v", got.Data)
	}
	if got.Data[0].Key != "word" || got.Data[1].Key != "reading" || got.Data[2].Key != "sentence" {
		t.Errorf("expected display order preserved, got %+v", got.Data)
	}
	if got.Data[1].Value != "イヌ" {
		t.Errorf("expected reading overwritten in place, got %v", got.Data[1].Value)
	}
}
