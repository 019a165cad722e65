package api

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"study-ai/internal/models"
	"study-ai/internal/quiz"
)

var (
	errSessionNotFound = errors.New("session not found")
)

// SessionManager holds active quiz sessions keyed by id. Handlers never
// touch a quiz.Session directly; every operation runs under the manager's
// lock and returns an immutable snapshot for the response.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*quiz.Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*quiz.Session),
	}
}

// SessionView is the wire shape of a session. Option correctness is withheld
// until the session is graded so clients cannot peek.
type SessionView struct {
	ID        string            `json:"sessionId"`
	Questions []QuestionView    `json:"questions"`
	Position  int               `json:"position"`
	Selected  map[string]string `json:"selected"`
	Graded    bool              `json:"graded"`
	Score     int               `json:"score"`
	Total     int               `json:"total"`
}

type QuestionView struct {
	ID           string       `json:"id"`
	Prompt       string       `json:"prompt"`
	Options      []OptionView `json:"options"`
	CorrectIndex int          `json:"correctIndex"` // -1 until graded
}

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Create builds a new session. A non-zero seed makes the build
// deterministic; zero seeds from the clock.
func (m *SessionManager) Create(cards []models.Flashcard, count int, seed int64) (string, SessionView) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	session := quiz.NewSession(cards, count, rand.New(rand.NewSource(seed)))

	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = session
	view := snapshot(id, session)
	m.mu.Unlock()

	return id, view
}

// Get returns a snapshot of an existing session.
func (m *SessionManager) Get(id string) (SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return SessionView{}, errSessionNotFound
	}
	return snapshot(id, session), nil
}

// Choose records a selection. Unknown ids and graded sessions are no-ops;
// the returned snapshot reflects whatever state resulted.
func (m *SessionManager) Choose(id, questionID, optionID string) (SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return SessionView{}, errSessionNotFound
	}
	session.Choose(questionID, optionID)
	return snapshot(id, session), nil
}

// Grade grades the session once every question is answered.
func (m *SessionManager) Grade(id string) (SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return SessionView{}, errSessionNotFound
	}
	if _, err := session.Grade(); err != nil {
		return SessionView{}, err
	}
	return snapshot(id, session), nil
}

// Restart rebuilds the session's quiz from its own flashcards.
func (m *SessionManager) Restart(id string) (SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return SessionView{}, errSessionNotFound
	}
	session.Restart()
	return snapshot(id, session), nil
}

// Regenerate rebuilds the session's quiz from new flashcards.
func (m *SessionManager) Regenerate(id string, cards []models.Flashcard) (SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return SessionView{}, errSessionNotFound
	}
	session.Regenerate(cards)
	return snapshot(id, session), nil
}

// Delete drops a session.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func snapshot(id string, s *quiz.Session) SessionView {
	view := SessionView{
		ID:        id,
		Questions: make([]QuestionView, len(s.Questions)),
		Position:  s.Position(),
		Selected:  make(map[string]string),
		Graded:    s.Graded(),
		Total:     s.Total(),
	}
	if score, ok := s.Score(); ok {
		view.Score = score
	}
	for i, q := range s.Questions {
		qv := QuestionView{
			ID:           q.ID,
			Prompt:       q.Prompt,
			Options:      make([]OptionView, len(q.Options)),
			CorrectIndex: -1,
		}
		if view.Graded {
			qv.CorrectIndex = q.CorrectIndex()
		}
		for j, o := range q.Options {
			qv.Options[j] = OptionView{ID: o.ID, Text: o.Text}
		}
		view.Questions[i] = qv
		if selected, ok := s.Selected(q.ID); ok {
			view.Selected[q.ID] = selected
		}
	}
	return view
}
