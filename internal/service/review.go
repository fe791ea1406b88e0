package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/usecase"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// ReviewService wires the review manager to the bus and runs the cleanup loop
type ReviewService struct {
	reviews         *usecase.ReviewUsecase
	cleanupInterval time.Duration
	retention       time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewReviewService creates a new review service
func NewReviewService(reviews *usecase.ReviewUsecase, cleanupInterval, retention time.Duration) *ReviewService {
	if cleanupInterval <= 0 {
		cleanupInterval = 6 * time.Hour
	}
	return &ReviewService{
		reviews:         reviews,
		cleanupInterval: cleanupInterval,
		retention:       retention,
		logger:          slog.With("component", "review-service"),
	}
}

// Register subscribes the review manager to prompt delivery and decisions
func (s *ReviewService) Register(b *bus.Bus) {
	bus.On(b, bus.PriorityNormal, "review-manager", s.reviews.HandlePromptSent)
	bus.On(b, bus.PriorityNormal, "review-manager", s.reviews.HandleDecision)
}

// Start starts the cleanup loop
func (s *ReviewService) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.cleanupLoop()

	s.logger.Info("review cleanup started", "interval", s.cleanupInterval, "retention", s.retention)
}

// Stop stops the cleanup loop
func (s *ReviewService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *ReviewService) cleanupLoop() {
	defer s.wg.Done()

	// Catch up on reviews that expired while the process was down
	s.cleanup()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *ReviewService) cleanup() {
	expired, purged, err := s.reviews.Sweep(s.ctx, s.retention)
	if err != nil {
		s.logger.Warn("review cleanup failed", "error", err)
		return
	}
	if expired > 0 || purged > 0 {
		s.logger.Info("review cleanup", "expired", expired, "purged", purged)
	}
}
