package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"study-ai/internal/models"
)

var (
	// ErrNoDueCards indicates that there are no cards ready to review.
	ErrNoDueCards = errors.New("no due cards")
	// ErrCardNotFound is returned when a card does not exist in the given set.
	ErrCardNotFound = errors.New("card not found in set")
)

// ReviewService schedules spaced repetition over saved flashcard sets with
// FSRS. New cards come up in saved order; reviewed cards come back when due.
type ReviewService struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewReviewService(db *sql.DB) *ReviewService {
	return &ReviewService{db: db, params: fsrs.DefaultParam()}
}

// NextCard returns the next card to review within a set: the earliest due
// card first, then the oldest unseen card.
func (s *ReviewService) NextCard(ctx context.Context, setID string) (*models.FlashcardItem, error) {
	now := time.Now().UTC()

	item, err := s.fetchItem(ctx, `
		SELECT id, set_id, question, answer, position, due, stability, difficulty,
		       elapsed_days, scheduled_days, reps, lapses, state, last_review
		FROM flashcard_items
		WHERE set_id = ? AND due IS NOT NULL AND due <= ?
		ORDER BY due ASC
		LIMIT 1;
	`, setID, now)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	item, err = s.fetchItem(ctx, `
		SELECT id, set_id, question, answer, position, due, stability, difficulty,
		       elapsed_days, scheduled_days, reps, lapses, state, last_review
		FROM flashcard_items
		WHERE set_id = ? AND due IS NULL
		ORDER BY position ASC
		LIMIT 1;
	`, setID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueCards
		}
		return nil, err
	}
	return item, nil
}

func (s *ReviewService) fetchItem(ctx context.Context, query string, args ...any) (*models.FlashcardItem, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	item := &models.FlashcardItem{}
	if err := row.Scan(
		&item.ID,
		&item.SetID,
		&item.Question,
		&item.Answer,
		&item.Position,
		&item.Due,
		&item.Stability,
		&item.Difficulty,
		&item.ElapsedDays,
		&item.ScheduledDays,
		&item.Reps,
		&item.Lapses,
		&item.State,
		&item.LastReview,
	); err != nil {
		return nil, err
	}
	return item, nil
}

// ReviewCard updates the scheduling information based on the user's rating.
// The card must belong to setID: membership is checked inside the transaction,
// before any write, so a foreign item id cannot touch another set's state.
func (s *ReviewService) ReviewCard(ctx context.Context, setID string, itemID int64, rating fsrs.Rating) (*models.FlashcardItem, *models.ReviewLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	item := &models.FlashcardItem{}
	row := tx.QueryRowContext(ctx, `
		SELECT id, set_id, question, answer, position, due, stability, difficulty,
		       elapsed_days, scheduled_days, reps, lapses, state, last_review
		FROM flashcard_items
		WHERE id = ? AND set_id = ?;
	`, itemID, setID)
	if err = row.Scan(
		&item.ID,
		&item.SetID,
		&item.Question,
		&item.Answer,
		&item.Position,
		&item.Due,
		&item.Stability,
		&item.Difficulty,
		&item.ElapsedDays,
		&item.ScheduledDays,
		&item.Reps,
		&item.Lapses,
		&item.State,
		&item.LastReview,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrCardNotFound
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load card %d: %w", itemID, err)
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(item.ToFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		return nil, nil, fmt.Errorf("rating %d not supported", rating)
	}
	item.ApplyFSRSCard(info.Card)

	if _, err = tx.ExecContext(ctx, `
		UPDATE flashcard_items
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
		    reps = ?, lapses = ?, state = ?, last_review = ?
		WHERE id = ?;
	`,
		nullTimePtr(item.Due),
		item.Stability,
		item.Difficulty,
		item.ElapsedDays,
		item.ScheduledDays,
		item.Reps,
		item.Lapses,
		item.State,
		nullTimePtr(item.LastReview),
		item.ID,
	); err != nil {
		return nil, nil, fmt.Errorf("update card %d: %w", item.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (item_id, rating, scheduled_days, elapsed_days, state, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, item.ID, info.ReviewLog.Rating, info.ReviewLog.ScheduledDays, info.ReviewLog.ElapsedDays, info.ReviewLog.State, now); err != nil {
		return nil, nil, fmt.Errorf("insert review log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit review: %w", err)
	}

	log := &models.ReviewLog{
		ItemID:        item.ID,
		Rating:        int(info.ReviewLog.Rating),
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
		ElapsedDays:   int(info.ReviewLog.ElapsedDays),
		State:         int(info.ReviewLog.State),
		ReviewedAt:    now,
	}

	return item, log, nil
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
