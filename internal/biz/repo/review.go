package repo

import (
	"context"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

// ReviewRepo is the review state port
type ReviewRepo interface {
	// Get returns domain.ErrReviewNotFound for unknown ids
	Get(ctx context.Context, reviewID string) (*domain.PendingReview, error)
	// Put inserts or updates a review. Updating a record that is already
	// terminal fails with domain.ErrReviewTerminal.
	Put(ctx context.Context, review *domain.PendingReview) error
	Delete(ctx context.Context, reviewID string) error

	// ListPending returns non-terminal reviews, oldest first
	ListPending(ctx context.Context) ([]*domain.PendingReview, error)
	// ListResolved returns terminal reviews resolved at or after since, newest first
	ListResolved(ctx context.Context, since time.Time, limit int) ([]*domain.PendingReview, error)
	// DeleteResolvedBefore removes terminal reviews resolved before the cutoff
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
