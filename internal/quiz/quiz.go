// Package quiz holds the spaced-repetition state machine: a fixed table
// of review intervals indexed by srsLevel, and the level/streak
// transitions for right and wrong outcomes.
package quiz

import "time"

// SrsMap maps srsLevel to the interval until the next review. The
// level is an index into this table and is clamped to its bounds.
var SrsMap = []time.Duration{
	4 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
	3 * 24 * time.Hour,
	7 * 24 * time.Hour,
	2 * 7 * 24 * time.Hour,
	4 * 7 * 24 * time.Hour,
	16 * 7 * 24 * time.Hour,
}

// repeatInterval is the "repeat soon" delay applied after a wrong
// answer, independent of level.
const repeatInterval = 10 * time.Minute

// State is the scheduler-relevant slice of a card.
type State struct {
	SrsLevel   int
	NextReview time.Time
	Streak     struct {
		Right int
		Wrong int
	}
}

// NextReview returns the due time for a card that just reached
// srsLevel, as an offset from now.
func NextReview(now time.Time, srsLevel int) time.Time {
	if srsLevel < 0 {
		srsLevel = 0
	}
	if srsLevel >= len(SrsMap) {
		srsLevel = len(SrsMap) - 1
	}
	return now.Add(SrsMap[srsLevel])
}

// RepeatReview returns the due time after a wrong answer.
func RepeatReview(now time.Time) time.Time {
	return now.Add(repeatInterval)
}

// Right advances the state for a correct answer: the right streak grows
// by one, the level climbs one step capped at the top of SrsMap, and
// the next review is a pure function of the new level.
func Right(now time.Time, s State) State {
	s.Streak.Right++
	s.SrsLevel++
	if s.SrsLevel >= len(SrsMap) {
		s.SrsLevel = len(SrsMap) - 1
	}
	s.NextReview = NextReview(now, s.SrsLevel)
	return s
}

// Wrong backs the state off for an incorrect answer: the wrong streak
// is decremented (it is a running penalty counter, not a count), the
// level drops one step with a floor of zero, and the card comes back
// after the short repeat interval regardless of level.
func Wrong(now time.Time, s State) State {
	s.Streak.Wrong--
	s.SrsLevel--
	if s.SrsLevel < 0 {
		s.SrsLevel = 0
	}
	s.NextReview = RepeatReview(now)
	return s
}
