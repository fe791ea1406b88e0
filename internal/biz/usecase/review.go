package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// ReviewRequestBuilder creates pending reviews and their prompts
type ReviewRequestBuilder struct {
	ttl   time.Duration
	newID func() string
}

// NewReviewRequestBuilder creates a builder issuing reviews with the given ttl
func NewReviewRequestBuilder(ttl time.Duration) *ReviewRequestBuilder {
	return &ReviewRequestBuilder{ttl: ttl, newID: uuid.NewString}
}

// Build returns the record to persist and the prompt to publish.
// Only moderation actions are held for review.
func (b *ReviewRequestBuilder) Build(conversationID int64, decision domain.Decision, actions []domain.Action, now time.Time) (*domain.PendingReview, bus.ReviewPrompt) {
	moderation, _ := domain.SplitActions(actions)
	review := &domain.PendingReview{
		ReviewID:       b.newID(),
		ConversationID: conversationID,
		State:          domain.ReviewPromptPending,
		Decision:       decision,
		Actions:        moderation,
		CreatedAt:      now,
		TTL:            b.ttl,
	}

	prompt := bus.ReviewPrompt{
		ReviewID:         review.ReviewID,
		ConversationID:   conversationID,
		ReplyToMessageID: decision.MessageID,
		Text:             formatReviewPrompt(review),
		Controls: []bus.Control{
			{Label: "Approve", ReviewID: review.ReviewID, Approve: true},
			{Label: "Reject", ReviewID: review.ReviewID, Approve: false},
		},
	}
	return review, prompt
}

func formatReviewPrompt(r *domain.PendingReview) string {
	var sb strings.Builder
	sb.WriteString("Moderation review required\n")
	if m := r.Decision.Moderation; m != nil {
		sb.WriteString(fmt.Sprintf("Action: %s\n", m.Action))
		sb.WriteString(fmt.Sprintf("User: %d\n", m.TargetUserID))
	}
	if r.Decision.AuthorName != "" {
		sb.WriteString(fmt.Sprintf("Author: %s\n", r.Decision.AuthorName))
	}
	if text := truncateRunes(r.Decision.MessageText, 200); text != "" {
		if text != r.Decision.MessageText {
			text += "..."
		}
		sb.WriteString(fmt.Sprintf("Message: %s\n", text))
	}
	if r.TTL > 0 {
		sb.WriteString(fmt.Sprintf("Expires in %s", r.TTL.Round(time.Minute)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ReviewUsecase is the review manager: it owns every review state transition
type ReviewUsecase struct {
	reviews   repo.ReviewRepo
	builder   *ReviewRequestBuilder
	publisher bus.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewReviewUsecase creates a new review usecase
func NewReviewUsecase(reviews repo.ReviewRepo, builder *ReviewRequestBuilder, publisher bus.Publisher) *ReviewUsecase {
	return &ReviewUsecase{
		reviews:   reviews,
		builder:   builder,
		publisher: publisher,
		now:       time.Now,
		logger:    slog.With("component", "review"),
	}
}

// Request persists a new pending review and publishes its prompt
func (uc *ReviewUsecase) Request(ctx context.Context, decision domain.Decision, actions []domain.Action) (*domain.PendingReview, error) {
	if decision.Moderation == nil {
		return nil, errors.New("review requested for a decision without moderation")
	}
	review, prompt := uc.builder.Build(decision.ConversationID, decision, actions, uc.now())
	if err := uc.reviews.Put(ctx, review); err != nil {
		return nil, fmt.Errorf("persist review: %w", err)
	}

	uc.logger.Info("review requested",
		"review", review.ReviewID,
		"conversation", review.ConversationID,
		"action", decision.Moderation.Action)
	uc.publisher.Publish(ctx, prompt)
	return review, nil
}

// HandlePromptSent records the delivered prompt's message id.
// Only a review still waiting for delivery moves; anything else is a no-op.
func (uc *ReviewUsecase) HandlePromptSent(ctx context.Context, evt bus.ReviewPromptSent) error {
	review, err := uc.reviews.Get(ctx, evt.ReviewID)
	if err != nil {
		return fmt.Errorf("get review %s: %w", evt.ReviewID, err)
	}
	if review.State != domain.ReviewPromptPending {
		uc.logger.Debug("prompt-sent ignored", "review", review.ReviewID, "state", review.State)
		return nil
	}

	if review.IsExpired(uc.now()) {
		// The prompt now exists on the platform and has to be cleaned up
		review.PromptMessageID = &evt.MessageID
		return uc.expire(ctx, review)
	}

	if err := review.MarkSent(evt.MessageID); err != nil {
		return err
	}
	if err := uc.reviews.Put(ctx, review); err != nil {
		if errors.Is(err, domain.ErrReviewTerminal) {
			return nil
		}
		return fmt.Errorf("persist review: %w", err)
	}
	uc.logger.Debug("review prompt delivered", "review", review.ReviewID, "message", evt.MessageID)
	return nil
}

// HandleDecision applies a human verdict. Decisions on resolved reviews are
// no-ops, so at most one review-resolved event is emitted per review.
func (uc *ReviewUsecase) HandleDecision(ctx context.Context, evt bus.ReviewDecision) error {
	review, err := uc.reviews.Get(ctx, evt.ReviewID)
	if err != nil {
		return fmt.Errorf("get review %s: %w", evt.ReviewID, err)
	}
	if review.State.IsTerminal() {
		uc.logger.Debug("decision on resolved review ignored", "review", review.ReviewID, "state", review.State)
		return nil
	}
	if review.IsExpired(uc.now()) {
		return uc.expire(ctx, review)
	}

	outcome := domain.ReviewRejected
	if evt.Approved {
		outcome = domain.ReviewApproved
	}
	if err := review.Resolve(outcome, uc.now()); err != nil {
		return err
	}
	if err := uc.reviews.Put(ctx, review); err != nil {
		if errors.Is(err, domain.ErrReviewTerminal) {
			// Lost the race against another decision or expiry
			return nil
		}
		return fmt.Errorf("persist review: %w", err)
	}

	uc.logger.Info("review resolved",
		"review", review.ReviewID,
		"conversation", review.ConversationID,
		"outcome", outcome,
		"decided_by", evt.DecidedBy)

	if outcome == domain.ReviewApproved && len(review.Actions) > 0 {
		uc.publisher.Publish(ctx, bus.ModerationAction{
			ConversationID: review.ConversationID,
			Actions:        review.Actions,
		})
	}
	uc.publisher.Publish(ctx, bus.ReviewResolved{
		ReviewID:       review.ReviewID,
		ConversationID: review.ConversationID,
		Outcome:        outcome,
	})
	if review.PromptMessageID != nil {
		uc.publisher.Publish(ctx, bus.ReviewDisablePrompt{
			ConversationID: review.ConversationID,
			MessageID:      *review.PromptMessageID,
			Outcome:        outcome,
		})
	}
	return nil
}

// Get returns a review, resolving it as expired first when its ttl has passed
func (uc *ReviewUsecase) Get(ctx context.Context, reviewID string) (*domain.PendingReview, error) {
	review, err := uc.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.IsExpired(uc.now()) {
		if err := uc.expire(ctx, review); err != nil {
			return nil, err
		}
		return uc.reviews.Get(ctx, reviewID)
	}
	return review, nil
}

// ListPending returns live reviews; expired ones found on the way are resolved
func (uc *ReviewUsecase) ListPending(ctx context.Context) ([]*domain.PendingReview, error) {
	reviews, err := uc.reviews.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}

	now := uc.now()
	live := make([]*domain.PendingReview, 0, len(reviews))
	for _, r := range reviews {
		if r.IsExpired(now) {
			if err := uc.expire(ctx, r); err != nil {
				uc.logger.Warn("failed to expire review", "review", r.ReviewID, "error", err)
			}
			continue
		}
		live = append(live, r)
	}
	return live, nil
}

// Sweep expires overdue reviews and deletes resolved ones older than retention
func (uc *ReviewUsecase) Sweep(ctx context.Context, retention time.Duration) (expired int, purged int64, err error) {
	reviews, err := uc.reviews.ListPending(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending reviews: %w", err)
	}
	now := uc.now()
	for _, r := range reviews {
		if !r.IsExpired(now) {
			continue
		}
		if err := uc.expire(ctx, r); err != nil {
			uc.logger.Warn("failed to expire review", "review", r.ReviewID, "error", err)
			continue
		}
		expired++
	}

	if retention > 0 {
		purged, err = uc.reviews.DeleteResolvedBefore(ctx, now.Add(-retention))
		if err != nil {
			return expired, 0, fmt.Errorf("purge resolved reviews: %w", err)
		}
	}
	return expired, purged, nil
}

func (uc *ReviewUsecase) expire(ctx context.Context, review *domain.PendingReview) error {
	if err := review.Resolve(domain.ReviewExpired, uc.now()); err != nil {
		if errors.Is(err, domain.ErrReviewTerminal) {
			return nil
		}
		return err
	}
	if err := uc.reviews.Put(ctx, review); err != nil {
		if errors.Is(err, domain.ErrReviewTerminal) {
			return nil
		}
		return fmt.Errorf("persist review: %w", err)
	}

	uc.logger.Info("review expired", "review", review.ReviewID, "conversation", review.ConversationID)
	uc.publisher.Publish(ctx, bus.ReviewResolved{
		ReviewID:       review.ReviewID,
		ConversationID: review.ConversationID,
		Outcome:        domain.ReviewExpired,
	})
	if review.PromptMessageID != nil {
		uc.publisher.Publish(ctx, bus.ReviewDeletePrompt{
			ConversationID: review.ConversationID,
			MessageID:      *review.PromptMessageID,
		})
	}
	return nil
}
