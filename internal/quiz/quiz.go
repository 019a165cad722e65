// Package quiz turns flashcard lists into graded multiple-choice quizzes.
// Building is a pure function of its inputs plus an injected random source;
// option order is frozen at construction and never reshuffled.
package quiz

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"study-ai/internal/models"
)

const maxDistractors = 3

// Option is one answer choice within a question. IDs are unique within the
// question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"isCorrect"`
}

// Question is a read-only view over a flashcard plus its frozen options.
// Exactly one option is correct.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// CorrectIndex returns the position of the correct option, or -1 for an
// empty question.
func (q Question) CorrectIndex() int {
	for i, o := range q.Options {
		if o.Correct {
			return i
		}
	}
	return -1
}

// Build converts flashcards into multiple-choice questions. At most count
// questions are produced (all of them when count <= 0 or exceeds the deck),
// sampled without replacement. Distractors are the other flashcards'
// answers, trimmed and deduplicated against each other and the correct
// answer; a question keeps however many unique options exist, down to one.
// An empty deck yields an empty quiz, not an error.
func Build(cards []models.Flashcard, count int, rng *rand.Rand) []Question {
	if count <= 0 || count > len(cards) {
		count = len(cards)
	}

	deck := make([]models.Flashcard, len(cards))
	copy(deck, cards)
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	questions := make([]Question, 0, count)
	for _, card := range deck {
		if len(questions) >= count {
			break
		}
		prompt := strings.TrimSpace(card.Question)
		answer := strings.TrimSpace(card.Answer)
		if prompt == "" || answer == "" {
			continue
		}

		pool := distractorPool(deck, answer)
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		if len(pool) > maxDistractors {
			pool = pool[:maxDistractors]
		}

		texts := append([]string{answer}, pool...)
		rng.Shuffle(len(texts), func(i, j int) { texts[i], texts[j] = texts[j], texts[i] })

		options := make([]Option, len(texts))
		for i, text := range texts {
			options[i] = Option{
				ID:      uuid.NewString(),
				Text:    text,
				Correct: text == answer,
			}
		}
		questions = append(questions, Question{
			ID:      uuid.NewString(),
			Prompt:  prompt,
			Options: options,
		})
	}
	return questions
}

// distractorPool collects every distinct trimmed answer other than the
// correct one. Empty answers are skipped.
func distractorPool(deck []models.Flashcard, correct string) []string {
	seen := map[string]struct{}{correct: {}}
	var pool []string
	for _, card := range deck {
		text := strings.TrimSpace(card.Answer)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		pool = append(pool, text)
	}
	return pool
}
