package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"study-ai/internal/models"
)

var (
	// ErrSetNotFound is returned when a study set does not exist or belongs
	// to another user.
	ErrSetNotFound = errors.New("study set not found")
)

// StudySetService persists named flashcard and quiz sets per user.
type StudySetService struct {
	db *sql.DB
}

func NewStudySetService(db *sql.DB) *StudySetService {
	return &StudySetService{db: db}
}

// SaveFlashcards stores a titled flashcard set and returns its id.
func (s *StudySetService) SaveFlashcards(ctx context.Context, userID, title string, cards []models.Flashcard) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("title is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO study_sets (id, user_id, set_type, title, card_count, question_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?);
	`, id, userID, models.SetFlashcards, title, len(cards), now, now); err != nil {
		return "", fmt.Errorf("insert set: %w", err)
	}

	for i, card := range cards {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flashcard_items (set_id, question, answer, position)
			VALUES (?, ?, ?, ?);
		`, id, card.Question, card.Answer, i); err != nil {
			return "", fmt.Errorf("insert flashcard %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit set: %w", err)
	}
	return id, nil
}

// SaveQuiz stores a titled quiz set and returns its id. Option order is
// stored as given and never reordered on read.
func (s *StudySetService) SaveQuiz(ctx context.Context, userID, title string, questions []models.MCQ) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("title is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO study_sets (id, user_id, set_type, title, card_count, question_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?);
	`, id, userID, models.SetQuiz, title, len(questions), now, now); err != nil {
		return "", fmt.Errorf("insert set: %w", err)
	}

	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return "", fmt.Errorf("encode options: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_items (set_id, prompt, options, correct_index, position)
			VALUES (?, ?, ?, ?, ?);
		`, id, q.Prompt, string(options), q.CorrectIndex, i); err != nil {
			return "", fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit set: %w", err)
	}
	return id, nil
}

// ListSets returns the user's sets ordered by most recently updated.
func (s *StudySetService) ListSets(ctx context.Context, userID string) ([]models.StudySet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, set_type, title, card_count, question_count, created_at, updated_at
		FROM study_sets
		WHERE user_id = ?
		ORDER BY updated_at DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	defer rows.Close()

	sets := make([]models.StudySet, 0)
	for rows.Next() {
		var set models.StudySet
		if err := rows.Scan(
			&set.ID,
			&set.UserID,
			&set.Type,
			&set.Title,
			&set.CardCount,
			&set.QuestionCount,
			&set.CreatedAt,
			&set.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// GetSet loads a set header, scoped to its owner.
func (s *StudySetService) GetSet(ctx context.Context, userID, setID string) (*models.StudySet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, set_type, title, card_count, question_count, created_at, updated_at
		FROM study_sets
		WHERE id = ? AND user_id = ?;
	`, setID, userID)

	var set models.StudySet
	if err := row.Scan(
		&set.ID,
		&set.UserID,
		&set.Type,
		&set.Title,
		&set.CardCount,
		&set.QuestionCount,
		&set.CreatedAt,
		&set.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSetNotFound
		}
		return nil, fmt.Errorf("scan set: %w", err)
	}
	return &set, nil
}

// SetWithItems is a set header plus whichever item list its type carries.
type SetWithItems struct {
	Set        models.StudySet    `json:"set"`
	Flashcards []models.Flashcard `json:"flashcards,omitempty"`
	Quiz       []models.MCQ       `json:"quiz,omitempty"`
}

// GetSetWithItems loads a set and its items in saved position order.
func (s *StudySetService) GetSetWithItems(ctx context.Context, userID, setID string) (*SetWithItems, error) {
	set, err := s.GetSet(ctx, userID, setID)
	if err != nil {
		return nil, err
	}

	out := &SetWithItems{Set: *set}
	switch set.Type {
	case models.SetFlashcards:
		rows, err := s.db.QueryContext(ctx, `
			SELECT question, answer FROM flashcard_items
			WHERE set_id = ? ORDER BY position ASC;
		`, setID)
		if err != nil {
			return nil, fmt.Errorf("list flashcards: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var card models.Flashcard
			if err := rows.Scan(&card.Question, &card.Answer); err != nil {
				return nil, fmt.Errorf("scan flashcard: %w", err)
			}
			out.Flashcards = append(out.Flashcards, card)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	case models.SetQuiz:
		rows, err := s.db.QueryContext(ctx, `
			SELECT prompt, options, correct_index FROM quiz_items
			WHERE set_id = ? ORDER BY position ASC;
		`, setID)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var q models.MCQ
			var options string
			if err := rows.Scan(&q.Prompt, &options, &q.CorrectIndex); err != nil {
				return nil, fmt.Errorf("scan question: %w", err)
			}
			if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
				return nil, fmt.Errorf("decode options: %w", err)
			}
			out.Quiz = append(out.Quiz, q)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteSet removes a set and, via cascade, its items.
func (s *StudySetService) DeleteSet(ctx context.Context, userID, setID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM study_sets WHERE id = ? AND user_id = ?;
	`, setID, userID)
	if err != nil {
		return fmt.Errorf("delete set: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSetNotFound
	}
	return nil
}

// Touch bumps a set's updated_at so it sorts to the top of the dashboard.
func (s *StudySetService) Touch(ctx context.Context, setID string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE study_sets SET updated_at = ? WHERE id = ?;
	`, time.Now().UTC(), setID); err != nil {
		return fmt.Errorf("touch set: %w", err)
	}
	return nil
}
