package repo

import (
	"context"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

// StateRepo is the durable store for buffers and classification history
type StateRepo interface {
	// LoadHistory returns an empty history when nothing is stored
	LoadHistory(ctx context.Context, conversationID int64) (*domain.ChatHistory, error)
	SaveHistory(ctx context.Context, history *domain.ChatHistory) error

	// LoadBuffers returns every persisted buffer snapshot
	LoadBuffers(ctx context.Context) ([]domain.BufferState, error)
	// SaveBuffers replaces the persisted snapshot set with states
	SaveBuffers(ctx context.Context, states []domain.BufferState) error

	Close() error
}
