package quiz

import (
	"testing"
	"time"
)

func TestNextReview(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		srsLevel int
		expected time.Duration
	}{
		{"first level", 0, 4 * time.Hour},
		{"second level", 1, 8 * time.Hour},
		{"one week", 4, 7 * 24 * time.Hour},
		{"top level", 7, 16 * 7 * 24 * time.Hour},
		{"above top clamps", 99, 16 * 7 * 24 * time.Hour},
		{"below zero clamps", -3, 4 * time.Hour},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextReview(now, tc.srsLevel)
			if want := now.Add(tc.expected); !got.Equal(want) {
				t.Errorf("NextReview(%d) = %v, want %v", tc.srsLevel, got, want)
			}
		})
	}
}

func TestRight(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s := Right(now, State{SrsLevel: 2})
	if s.SrsLevel != 3 {
		t.Errorf("expected srsLevel 3, got %d", s.SrsLevel)
	}
	if s.Streak.Right != 1 {
		t.Errorf("expected right streak 1, got %d", s.Streak.Right)
	}
	if want := now.Add(3 * 24 * time.Hour); !s.NextReview.Equal(want) {
		t.Errorf("expected next review %v, got %v", want, s.NextReview)
	}

	t.Run("level caps at the top of the interval table", func(t *testing.T) {
		s := Right(now, State{SrsLevel: len(SrsMap) - 1})
		if s.SrsLevel != len(SrsMap)-1 {
			t.Errorf("expected srsLevel to stay at %d, got %d", len(SrsMap)-1, s.SrsLevel)
		}
	})
}

func TestWrong(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s := Wrong(now, State{SrsLevel: 2})
	if s.SrsLevel != 1 {
		t.Errorf("expected srsLevel 1, got %d", s.SrsLevel)
	}
	if s.Streak.Wrong != -1 {
		t.Errorf("expected wrong streak -1, got %d", s.Streak.Wrong)
	}
	if want := now.Add(10 * time.Minute); !s.NextReview.Equal(want) {
		t.Errorf("expected repeat review %v, got %v", want, s.NextReview)
	}

	t.Run("level floors at zero", func(t *testing.T) {
		st := State{SrsLevel: 0}
		st.Streak.Wrong = -2
		s := Wrong(now, st)
		if s.SrsLevel != 0 {
			t.Errorf("expected srsLevel to stay at 0, got %d", s.SrsLevel)
		}
		if s.Streak.Wrong != -3 {
			t.Errorf("expected wrong streak -3, got %d", s.Streak.Wrong)
		}
	})
}
