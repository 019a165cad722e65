package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

// Flashcard is a single question/answer pair produced by the summarization
// step. Immutable once generated.
type Flashcard struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

// StudyPack bundles everything generated for one source document.
type StudyPack struct {
	Summary    []string    `json:"summary"`
	Flashcards []Flashcard `json:"flashcards"`
	KeyTerms   []string    `json:"keyTerms"`
	Analogies  []string    `json:"analogies"`
	Pitfalls   []string    `json:"pitfalls"`
	Practice   []Flashcard `json:"practice"`
}

// MCQ is a multiple-choice question authored by the model, as opposed to one
// derived locally from flashcards by the quiz builder.
type MCQ struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

type SetType string

const (
	SetFlashcards SetType = "flashcards"
	SetQuiz       SetType = "quiz"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// StudySet is a named, typed collection saved by a user.
type StudySet struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Type          SetType   `json:"type"`
	Title         string    `json:"title"`
	CardCount     int       `json:"cardCount"`
	QuestionCount int       `json:"questionCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FlashcardItem is a saved flashcard together with its review scheduling
// state.
type FlashcardItem struct {
	ID            int64
	SetID         string
	Question      string
	Answer        string
	Position      int
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
}

// QuizItem is a saved quiz question. Options preserve the frozen order they
// were built with.
type QuizItem struct {
	ID           int64
	SetID        string
	Prompt       string
	Options      []string
	CorrectIndex int
	Position     int
}

type ReviewLog struct {
	ID            int64
	ItemID        int64
	Rating        int
	ScheduledDays int
	ElapsedDays   int
	State         int
	ReviewedAt    time.Time
}

func (c *FlashcardItem) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   uint64(max(c.ElapsedDays, 0)),
		ScheduledDays: uint64(max(c.ScheduledDays, 0)),
		Reps:          uint64(max(c.Reps, 0)),
		Lapses:        uint64(max(c.Lapses, 0)),
		State:         fsrs.State(max(c.State, 0)),
	}
	if c.Due.Valid {
		card.Due = c.Due.Time
	}
	if c.LastReview.Valid {
		card.LastReview = c.LastReview.Time
	}
	return card
}

func (c *FlashcardItem) ApplyFSRSCard(f fsrs.Card) {
	c.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	c.Stability = f.Stability
	c.Difficulty = f.Difficulty
	c.ElapsedDays = int(f.ElapsedDays)
	c.ScheduledDays = int(f.ScheduledDays)
	c.Reps = int(f.Reps)
	c.Lapses = int(f.Lapses)
	c.State = int(f.State)
	c.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}

func max[T ~int | ~int32 | ~int64](a, b T) T {
	if a > b {
		return a
	}
	return b
}
