package domain

import (
	"fmt"
	"time"
)

// ReviewState is the escalation state of a pending review
type ReviewState string

const (
	ReviewPromptPending ReviewState = "prompt_pending"
	ReviewSent          ReviewState = "sent"
	ReviewApproved      ReviewState = "approved"
	ReviewRejected      ReviewState = "rejected"
	ReviewExpired       ReviewState = "expired"
)

// IsTerminal checks if no further transition is allowed
func (s ReviewState) IsTerminal() bool {
	return s == ReviewApproved || s == ReviewRejected || s == ReviewExpired
}

// PendingReview is a decision waiting for human confirmation
type PendingReview struct {
	ReviewID        string        `json:"reviewId"`
	ConversationID  int64         `json:"conversationId"`
	PromptMessageID *int64        `json:"promptMessageId,omitempty"`
	State           ReviewState   `json:"state"`
	Decision        Decision      `json:"decision"`
	Actions         []Action      `json:"actions"`
	CreatedAt       time.Time     `json:"createdAt"`
	TTL             time.Duration `json:"ttl"`
	ResolvedAt      *time.Time    `json:"resolvedAt,omitempty"`
}

// ExpiresAt returns the moment the review stops accepting decisions
func (r *PendingReview) ExpiresAt() time.Time {
	return r.CreatedAt.Add(r.TTL)
}

// IsExpired checks if a non-terminal review has outlived its ttl
func (r *PendingReview) IsExpired(now time.Time) bool {
	if r.State.IsTerminal() || r.TTL <= 0 {
		return false
	}
	return !now.Before(r.ExpiresAt())
}

// MarkSent records delivery of the review prompt
func (r *PendingReview) MarkSent(promptMessageID int64) error {
	if r.State.IsTerminal() {
		return ErrReviewTerminal
	}
	if r.State != ReviewPromptPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, ReviewSent)
	}
	r.State = ReviewSent
	r.PromptMessageID = &promptMessageID
	return nil
}

// Resolve moves the review into a terminal state.
// Approve and reject require a delivered prompt; expiry is allowed from any live state.
func (r *PendingReview) Resolve(state ReviewState, now time.Time) error {
	if r.State.IsTerminal() {
		return ErrReviewTerminal
	}
	switch state {
	case ReviewApproved, ReviewRejected:
		if r.State != ReviewSent {
			return ErrReviewNotSent
		}
	case ReviewExpired:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, state)
	}
	r.State = state
	r.ResolvedAt = &now
	return nil
}
