package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/quiz"
	"github.com/recallbox/recallbox/internal/storage"
)

// reviewRetries bounds how often a review retries after losing a
// concurrent update race.
const reviewRetries = 3

// MarkRight records a correct answer. With an id the stored card is
// advanced; without one the given card is inserted already carrying
// the advanced state, which is how ad-hoc reviews of unsaved cards
// work. The reviewed card's id is returned.
func (e *Engine) MarkRight(ctx context.Context, scope domain.Scope, id string, card *CardInsert) (string, error) {
	return e.review(ctx, scope, id, card, true)
}

// MarkWrong records an incorrect answer.
func (e *Engine) MarkWrong(ctx context.Context, scope domain.Scope, id string, card *CardInsert) (string, error) {
	return e.review(ctx, scope, id, card, false)
}

func (e *Engine) review(ctx context.Context, scope domain.Scope, id string, card *CardInsert, right bool) (string, error) {
	now := e.now()

	if id == "" {
		if card == nil {
			return "", storage.ErrNotFound
		}

		state := advance(quizState(card.SrsLevel, card.Stat), now, right)
		card.SrsLevel = &state.SrsLevel
		card.NextReview = &state.NextReview
		card.Stat = statOf(state)

		ids, err := e.InsertMany(ctx, scope, []*CardInsert{card})
		if err != nil {
			return "", err
		}
		return ids[0], nil
	}

	// The read-modify-write races with concurrent reviews of the same
	// card, so the write is guarded on the modified timestamp we read
	// and retried from a fresh read on conflict.
	for i := 0; i < reviewRetries; i++ {
		c, err := e.store.CardByID(ctx, scope, id)
		if err != nil {
			return "", err
		}

		state := advance(quizState(c.SrsLevel, c.Stat), now, right)

		err = e.store.UpdateCard(ctx, scope, id, storage.CardUpdate{
			SrsLevel:   &state.SrsLevel,
			NextReview: &state.NextReview,
			Stat:       statOf(state),
			Modified:   now,
			Guard:      &storage.ModifiedGuard{Modified: c.Modified},
		})
		if err == storage.ErrConflict {
			continue
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}

	return "", fmt.Errorf("failed to review card %s: %w", id, storage.ErrConflict)
}

func quizState(srsLevel *int, stat *domain.Stat) quiz.State {
	var s quiz.State
	if srsLevel != nil {
		s.SrsLevel = *srsLevel
	}
	if stat != nil {
		s.Streak.Right = stat.Streak.Right
		s.Streak.Wrong = stat.Streak.Wrong
	}
	return s
}

func advance(s quiz.State, now time.Time, right bool) quiz.State {
	if right {
		return quiz.Right(now, s)
	}
	return quiz.Wrong(now, s)
}

func statOf(s quiz.State) *domain.Stat {
	return &domain.Stat{Streak: domain.Streak{
		Right: s.Streak.Right,
		Wrong: s.Streak.Wrong,
	}}
}
