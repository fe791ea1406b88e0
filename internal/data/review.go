package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

const terminalStates = `('approved', 'rejected', 'expired')`

// reviewRepo implements the review state port on sqlite
type reviewRepo struct {
	db *sql.DB
}

// NewReviewRepo creates a new review repository
func NewReviewRepo(dbPath string) (repo.ReviewRepo, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	err = migrate(db,
		`CREATE TABLE IF NOT EXISTS reviews (
			review_id TEXT PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			prompt_message_id INTEGER,
			state TEXT NOT NULL,
			decision TEXT NOT NULL,
			actions TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			ttl_ms INTEGER NOT NULL,
			resolved_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_state ON reviews(state)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_resolved_at ON reviews(resolved_at)`,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create reviews table: %w", err)
	}

	slog.Debug("review store initialized", "component", "store", "path", dbPath)
	return &reviewRepo{db: db}, nil
}

const reviewColumns = `review_id, conversation_id, prompt_message_id, state, decision, actions, created_at, ttl_ms, resolved_at`

// Get gets a review by id
func (r *reviewRepo) Get(ctx context.Context, reviewID string) (*domain.PendingReview, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE review_id = ?`, reviewID)
	review, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return review, nil
}

// Put inserts or updates a review; terminal records are never overwritten
func (r *reviewRepo) Put(ctx context.Context, review *domain.PendingReview) error {
	decision, err := json.Marshal(review.Decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	actions := review.Actions
	if actions == nil {
		actions = []domain.Action{}
	}
	actionsRaw, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	var promptID, resolvedAt sql.NullInt64
	if review.PromptMessageID != nil {
		promptID = sql.NullInt64{Int64: *review.PromptMessageID, Valid: true}
	}
	if review.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: review.ResolvedAt.UnixMilli(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(review_id) DO UPDATE SET
			prompt_message_id = excluded.prompt_message_id,
			state = excluded.state,
			decision = excluded.decision,
			actions = excluded.actions,
			resolved_at = excluded.resolved_at
		WHERE reviews.state NOT IN `+terminalStates+`
	`,
		review.ReviewID,
		review.ConversationID,
		promptID,
		string(review.State),
		string(decision),
		string(actionsRaw),
		review.CreatedAt.UnixMilli(),
		review.TTL.Milliseconds(),
		resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put review: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to put review: %w", err)
	}
	if n == 0 {
		return domain.ErrReviewTerminal
	}
	return nil
}

// Delete deletes a review
func (r *reviewRepo) Delete(ctx context.Context, reviewID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE review_id = ?`, reviewID); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

// ListPending lists non-terminal reviews, oldest first
func (r *reviewRepo) ListPending(ctx context.Context) ([]*domain.PendingReview, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE state NOT IN `+terminalStates+`
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// ListResolved lists terminal reviews resolved since the given time, newest first
func (r *reviewRepo) ListResolved(ctx context.Context, since time.Time, limit int) ([]*domain.PendingReview, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE state IN `+terminalStates+` AND resolved_at >= ?
		ORDER BY resolved_at DESC
		LIMIT ?
	`, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// DeleteResolvedBefore deletes terminal reviews resolved before the cutoff
func (r *reviewRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM reviews WHERE state IN `+terminalStates+` AND resolved_at < ?
	`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge reviews: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (r *reviewRepo) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(s scanner) (*domain.PendingReview, error) {
	var (
		review               domain.PendingReview
		state                string
		decision, actions    string
		createdAt, ttlMs     int64
		promptID, resolvedAt sql.NullInt64
	)
	if err := s.Scan(&review.ReviewID, &review.ConversationID, &promptID, &state, &decision, &actions, &createdAt, &ttlMs, &resolvedAt); err != nil {
		return nil, err
	}

	review.State = domain.ReviewState(state)
	review.CreatedAt = time.UnixMilli(createdAt)
	review.TTL = time.Duration(ttlMs) * time.Millisecond
	if promptID.Valid {
		id := promptID.Int64
		review.PromptMessageID = &id
	}
	if resolvedAt.Valid {
		t := time.UnixMilli(resolvedAt.Int64)
		review.ResolvedAt = &t
	}
	if err := json.Unmarshal([]byte(decision), &review.Decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &review.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	return &review, nil
}

func scanReviews(rows *sql.Rows) ([]*domain.PendingReview, error) {
	var reviews []*domain.PendingReview
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}
