package quiz

import (
	"errors"
	"math/rand"

	"study-ai/internal/models"
)

// ErrUnanswered is returned by Grade while any question lacks a selection.
var ErrUnanswered = errors.New("quiz has unanswered questions")

// Session tracks one linear walk through a built quiz: selections, position,
// and the batch-graded score. Selections may change freely until Grade; once
// graded the session is locked until Restart or Regenerate.
//
// Session is not safe for concurrent use; callers that share one across
// goroutines must serialize access.
type Session struct {
	Questions []Question

	cards    []models.Flashcard
	count    int
	rng      *rand.Rand
	pos      int
	selected map[string]string
	graded   bool
	score    int
}

// NewSession builds a quiz from cards and starts a fresh walk through it.
func NewSession(cards []models.Flashcard, count int, rng *rand.Rand) *Session {
	s := &Session{
		cards: append([]models.Flashcard(nil), cards...),
		count: count,
		rng:   rng,
	}
	s.rebuild()
	return s
}

func (s *Session) rebuild() {
	s.Questions = Build(s.cards, s.count, s.rng)
	s.selected = make(map[string]string, len(s.Questions))
	s.pos = 0
	s.graded = false
	s.score = 0
}

// Choose records a selection, replacing any prior one for that question.
// It reports whether the selection was applied: after grading the session
// is locked and Choose is a no-op, as it is for unknown ids.
func (s *Session) Choose(questionID, optionID string) bool {
	if s.graded {
		return false
	}
	q := s.question(questionID)
	if q == nil {
		return false
	}
	for _, o := range q.Options {
		if o.ID == optionID {
			s.selected[questionID] = optionID
			return true
		}
	}
	return false
}

// Selected returns the chosen option id for a question, if any.
func (s *Session) Selected(questionID string) (string, bool) {
	id, ok := s.selected[questionID]
	return id, ok
}

// AllAnswered reports whether every question has a selection.
func (s *Session) AllAnswered() bool {
	for _, q := range s.Questions {
		if _, ok := s.selected[q.ID]; !ok {
			return false
		}
	}
	return true
}

// Grade computes the total score once every question is answered. Grading
// again recomputes to the same value; the selections are frozen at the first
// call, so Grade is idempotent. An empty quiz has nothing to grade and stays
// ungraded.
func (s *Session) Grade() (int, error) {
	if len(s.Questions) == 0 || !s.AllAnswered() {
		return 0, ErrUnanswered
	}
	if s.graded {
		return s.score, nil
	}
	score := 0
	for _, q := range s.Questions {
		chosen := s.selected[q.ID]
		for _, o := range q.Options {
			if o.ID == chosen && o.Correct {
				score++
			}
		}
	}
	s.graded = true
	s.score = score
	return score, nil
}

// Graded reports whether the session has been graded.
func (s *Session) Graded() bool { return s.graded }

// Score returns the graded score; ok is false before grading.
func (s *Session) Score() (score int, ok bool) {
	return s.score, s.graded
}

// Total returns the number of questions.
func (s *Session) Total() int { return len(s.Questions) }

// Position returns the current question index.
func (s *Session) Position() int { return s.pos }

// Next advances the position, stopping at the last question.
func (s *Session) Next() int {
	if s.pos < len(s.Questions)-1 {
		s.pos++
	}
	return s.pos
}

// Prev moves the position back, stopping at the first question.
func (s *Session) Prev() int {
	if s.pos > 0 {
		s.pos--
	}
	return s.pos
}

// Restart rebuilds the quiz wholesale from the same flashcards: fresh
// question order, fresh option shuffles, all state cleared. Reusing the old
// frozen options would leak previously seen answer positions.
func (s *Session) Restart() {
	s.rebuild()
}

// Regenerate discards the quiz entirely and rebuilds from new source
// flashcards, typically freshly fetched from the summarizer.
func (s *Session) Regenerate(cards []models.Flashcard) {
	s.cards = append([]models.Flashcard(nil), cards...)
	s.rebuild()
}

func (s *Session) question(id string) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}
