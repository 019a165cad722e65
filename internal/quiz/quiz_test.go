package quiz_test

import (
	"math/rand"
	"testing"

	"study-ai/internal/models"
	"study-ai/internal/quiz"
)

func deck(pairs ...string) []models.Flashcard {
	if len(pairs)%2 != 0 {
		panic("deck needs question/answer pairs")
	}
	cards := make([]models.Flashcard, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		cards = append(cards, models.Flashcard{Question: pairs[i], Answer: pairs[i+1]})
	}
	return cards
}

func fourCards() []models.Flashcard {
	return deck(
		"What is the capital of France?", "Paris",
		"What is the capital of Italy?", "Rome",
		"What is the capital of Spain?", "Madrid",
		"What is the capital of Germany?", "Berlin",
	)
}

func TestBuildExactlyOneCorrectOption(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	questions := quiz.Build(fourCards(), 0, rng)
	if len(questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(questions))
	}

	for _, q := range questions {
		correct := 0
		for _, o := range q.Options {
			if o.Correct {
				correct++
			}
		}
		if correct != 1 {
			t.Errorf("question %q has %d correct options, want 1", q.Prompt, correct)
		}
	}
}

func TestBuildFourOptionsWithEnoughDistinctAnswers(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	questions := quiz.Build(fourCards(), 0, rng)

	for _, q := range questions {
		if len(q.Options) != 4 {
			t.Errorf("question %q has %d options, want 4", q.Prompt, len(q.Options))
		}
		seen := map[string]bool{}
		for _, o := range q.Options {
			if seen[o.Text] {
				t.Errorf("question %q repeats option %q", q.Prompt, o.Text)
			}
			seen[o.Text] = true
		}
	}
}

func TestBuildDistractorsDrawnFromOtherAnswers(t *testing.T) {
	cards := fourCards()
	answers := map[string]bool{}
	for _, c := range cards {
		answers[c.Answer] = true
	}

	rng := rand.New(rand.NewSource(3))
	for _, q := range quiz.Build(cards, 0, rng) {
		for _, o := range q.Options {
			if !answers[o.Text] {
				t.Errorf("option %q is not one of the deck's answers", o.Text)
			}
		}
	}
}

func TestBuildDegradesWithFewUniqueAnswers(t *testing.T) {
	// Three cards share one answer, so each question can muster at most
	// one distractor. The questions still come out, just smaller.
	cards := deck(
		"2+2?", "4",
		"8/2?", "4",
		"2*2?", "4",
		"3+4?", "7",
	)

	rng := rand.New(rand.NewSource(4))
	questions := quiz.Build(cards, 0, rng)
	if len(questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(questions))
	}

	for _, q := range questions {
		if len(q.Options) < 1 || len(q.Options) > 2 {
			t.Errorf("question %q has %d options, want 1 or 2", q.Prompt, len(q.Options))
		}
		if q.CorrectIndex() < 0 {
			t.Errorf("question %q lost its correct option", q.Prompt)
		}
	}
}

func TestBuildSingleCardYieldsOneOptionQuestion(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	questions := quiz.Build(deck("Only question?", "Only answer"), 0, rng)
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	if got := len(questions[0].Options); got != 1 {
		t.Fatalf("expected 1 option, got %d", got)
	}
	if !questions[0].Options[0].Correct {
		t.Fatal("the lone option must be the correct one")
	}
}

func TestBuildSkipsBlankCards(t *testing.T) {
	cards := deck(
		"  ", "ignored",
		"No answer?", "   ",
		"Kept?", "yes",
	)

	rng := rand.New(rand.NewSource(6))
	questions := quiz.Build(cards, 0, rng)
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	if questions[0].Prompt != "Kept?" {
		t.Fatalf("kept the wrong card: %q", questions[0].Prompt)
	}
}

func TestBuildEmptyDeck(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	if got := quiz.Build(nil, 0, rng); len(got) != 0 {
		t.Fatalf("expected empty quiz, got %d questions", len(got))
	}
}

func TestBuildCountCapsQuestions(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	questions := quiz.Build(fourCards(), 2, rng)
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
}

func TestBuildDeterministicWithSeededSource(t *testing.T) {
	a := quiz.Build(fourCards(), 0, rand.New(rand.NewSource(42)))
	b := quiz.Build(fourCards(), 0, rand.New(rand.NewSource(42)))

	if len(a) != len(b) {
		t.Fatalf("question counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Prompt != b[i].Prompt {
			t.Fatalf("question %d prompt differs: %q vs %q", i, a[i].Prompt, b[i].Prompt)
		}
		for j := range a[i].Options {
			if a[i].Options[j].Text != b[i].Options[j].Text {
				t.Fatalf("question %d option %d differs: %q vs %q",
					i, j, a[i].Options[j].Text, b[i].Options[j].Text)
			}
		}
	}
}

func TestSessionOptionOrderFrozen(t *testing.T) {
	s := quiz.NewSession(fourCards(), 0, rand.New(rand.NewSource(9)))

	before := make([][]string, len(s.Questions))
	for i, q := range s.Questions {
		for _, o := range q.Options {
			before[i] = append(before[i], o.ID)
		}
	}

	// Answer, revise an answer, navigate, grade. None of it may touch
	// the option order.
	for _, q := range s.Questions {
		s.Choose(q.ID, q.Options[0].ID)
	}
	s.Choose(s.Questions[0].ID, s.Questions[0].Options[len(s.Questions[0].Options)-1].ID)
	s.Next()
	s.Prev()
	if _, err := s.Grade(); err != nil {
		t.Fatalf("grade: %v", err)
	}

	for i, q := range s.Questions {
		for j, o := range q.Options {
			if before[i][j] != o.ID {
				t.Fatalf("question %d option order changed after interaction", i)
			}
		}
	}
}

func TestSessionGradeRequiresAllAnswers(t *testing.T) {
	s := quiz.NewSession(fourCards(), 0, rand.New(rand.NewSource(10)))

	s.Choose(s.Questions[0].ID, s.Questions[0].Options[0].ID)
	if _, err := s.Grade(); err != quiz.ErrUnanswered {
		t.Fatalf("expected ErrUnanswered, got %v", err)
	}
	if s.Graded() {
		t.Fatal("failed grade must not lock the session")
	}
}

func TestSessionScoreCountsCorrectSelections(t *testing.T) {
	s := quiz.NewSession(fourCards(), 0, rand.New(rand.NewSource(11)))

	// Answer the first question wrong on purpose, the rest right.
	wrongDone := false
	for _, q := range s.Questions {
		idx := q.CorrectIndex()
		if !wrongDone && len(q.Options) > 1 {
			idx = (idx + 1) % len(q.Options)
			wrongDone = true
		}
		if !s.Choose(q.ID, q.Options[idx].ID) {
			t.Fatalf("choose rejected a valid selection for %q", q.Prompt)
		}
	}

	score, err := s.Grade()
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if want := s.Total() - 1; score != want {
		t.Fatalf("score = %d, want %d", score, want)
	}
}

func TestSessionRevisionBeforeGradeCountsLastChoice(t *testing.T) {
	s := quiz.NewSession(fourCards(), 0, rand.New(rand.NewSource(12)))

	for _, q := range s.Questions {
		// First pick a wrong option, then revise to the correct one.
		wrong := (q.CorrectIndex() + 1) % len(q.Options)
		s.Choose(q.ID, q.Options[wrong].ID)
		s.Choose(q.ID, q.Options[q.CorrectIndex()].ID)
	}

	score, err := s.Grade()
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if score != s.Total() {
		t.Fatalf("score = %d, want %d", score, s.Total())
	}
}

func TestSessionGradeIdempotentAndLocking(t *testing.T) {
	s := quiz.NewSession(fourCards(), 0, rand.New(rand.NewSource(13)))

	for _, q := range s.Questions {
		s.Choose(q.ID, q.Options[q.CorrectIndex()].ID)
	}
	first, err := s.Grade()
	if err != nil {
		t.Fatalf("grade: %v", err)
	}

	// Post-grade selections are no-ops and must not move the score.
	q := s.Questions[0]
	if s.Choose(q.ID, q.Options[(q.CorrectIndex()+1)%len(q.Options)].ID) {
		t.Fatal("choose must be rejected after grading")
	}
	second, err := s.Grade()
	if err != nil {
		t.Fatalf("second grade: %v", err)
	}
	if first != second {
		t.Fatalf("grade changed on repeat: %d vs %d", first, second)
	}
}

func TestSessionRestartClearsStateAndReshuffles(t *testing.T) {
	s := quiz.NewSession(fourCards(), 0, rand.New(rand.NewSource(14)))

	for _, q := range s.Questions {
		s.Choose(q.ID, q.Options[0].ID)
	}
	if _, err := s.Grade(); err != nil {
		t.Fatalf("grade: %v", err)
	}
	oldIDs := map[string]bool{}
	for _, q := range s.Questions {
		oldIDs[q.ID] = true
	}

	s.Restart()

	if s.Graded() {
		t.Fatal("restart must clear the graded flag")
	}
	if s.Position() != 0 {
		t.Fatalf("restart must reset position, got %d", s.Position())
	}
	if _, ok := s.Score(); ok {
		t.Fatal("restart must clear the score")
	}
	for _, q := range s.Questions {
		if oldIDs[q.ID] {
			t.Fatal("restart must rebuild questions, not reuse them")
		}
		if _, chosen := s.Selected(q.ID); chosen {
			t.Fatal("restart must clear selections")
		}
	}
}

func TestSessionRegenerateSwapsDeck(t *testing.T) {
	s := quiz.NewSession(fourCards(), 0, rand.New(rand.NewSource(15)))

	s.Regenerate(deck("New question?", "New answer"))

	if s.Total() != 1 {
		t.Fatalf("expected 1 question after regenerate, got %d", s.Total())
	}
	if s.Questions[0].Prompt != "New question?" {
		t.Fatalf("unexpected prompt %q", s.Questions[0].Prompt)
	}
	if s.Graded() {
		t.Fatal("regenerate must reset grading state")
	}
}

func TestSessionEmptyQuizNotGradable(t *testing.T) {
	s := quiz.NewSession(nil, 0, rand.New(rand.NewSource(17)))

	if s.Total() != 0 {
		t.Fatalf("total = %d, want 0", s.Total())
	}
	if _, err := s.Grade(); err != quiz.ErrUnanswered {
		t.Fatalf("expected ErrUnanswered for empty quiz, got %v", err)
	}
	if s.Graded() {
		t.Fatal("empty quiz must not end up graded")
	}
}

func TestSessionNavigationClamps(t *testing.T) {
	s := quiz.NewSession(fourCards(), 2, rand.New(rand.NewSource(16)))

	if s.Prev() != 0 {
		t.Fatal("prev at the first question must stay put")
	}
	s.Next()
	if s.Next() != 1 {
		t.Fatal("next at the last question must stay put")
	}
}
