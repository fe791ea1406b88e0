package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "moderation_buffer_summary",
		Description: "List conversations with messages waiting for classification.",
	}, s.handleBufferSummary)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "moderation_list_reviews",
		Description: "List moderation actions waiting for an administrator's confirmation.",
	}, s.handleListReviews)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "moderation_decide_review",
		Description: "Approve or reject a pending review. Approval executes the held moderation action.",
	}, s.handleDecideReview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "moderation_chat_history",
		Description: "Show recent classified messages of a conversation.",
	}, s.handleChatHistory)
}

// BufferSummaryInput is empty
type BufferSummaryInput struct{}

// BufferSummaryOutput lists buffered conversations
type BufferSummaryOutput struct {
	Buffers []domain.BufferSummary `json:"buffers"`
}

func (s *Server) handleBufferSummary(ctx context.Context, req *mcp.CallToolRequest, input BufferSummaryInput) (*mcp.CallToolResult, BufferSummaryOutput, error) {
	summary := s.deps.Buffers.Summary()
	if summary == nil {
		summary = []domain.BufferSummary{}
	}
	return nil, BufferSummaryOutput{Buffers: summary}, nil
}

// ListReviewsInput filters reviews by conversation
type ListReviewsInput struct {
	ConversationID int64 `json:"conversation_id,omitempty" jsonschema:"Only list reviews of this conversation"`
}

// ReviewView is one pending review as shown to operators
type ReviewView struct {
	ReviewID        string             `json:"review_id"`
	ConversationID  int64              `json:"conversation_id"`
	State           domain.ReviewState `json:"state"`
	Action          string             `json:"action"`
	TargetUserID    int64              `json:"target_user_id,omitempty"`
	MessageID       int64              `json:"message_id"`
	MessageText     string             `json:"message_text,omitempty"`
	PromptMessageID int64              `json:"prompt_message_id,omitempty"`
	ExpiresAt       time.Time          `json:"expires_at"`
}

// ListReviewsOutput lists pending reviews
type ListReviewsOutput struct {
	Reviews []ReviewView `json:"reviews"`
}

func (s *Server) handleListReviews(ctx context.Context, req *mcp.CallToolRequest, input ListReviewsInput) (*mcp.CallToolResult, ListReviewsOutput, error) {
	pending, err := s.deps.Reviews.ListPending(ctx)
	if err != nil {
		return nil, ListReviewsOutput{}, err
	}

	out := ListReviewsOutput{Reviews: []ReviewView{}}
	for _, r := range pending {
		if input.ConversationID != 0 && r.ConversationID != input.ConversationID {
			continue
		}
		out.Reviews = append(out.Reviews, toReviewView(r))
	}
	return nil, out, nil
}

func toReviewView(r *domain.PendingReview) ReviewView {
	v := ReviewView{
		ReviewID:       r.ReviewID,
		ConversationID: r.ConversationID,
		State:          r.State,
		MessageID:      r.Decision.MessageID,
		MessageText:    r.Decision.MessageText,
		ExpiresAt:      r.ExpiresAt(),
	}
	if m := r.Decision.Moderation; m != nil {
		v.Action = string(m.Action)
		v.TargetUserID = m.TargetUserID
	}
	if r.PromptMessageID != nil {
		v.PromptMessageID = *r.PromptMessageID
	}
	return v
}

// DecideReviewInput is an operator verdict
type DecideReviewInput struct {
	ReviewID string `json:"review_id" jsonschema:"The review to decide"`
	Approve  bool   `json:"approve" jsonschema:"true executes the held action, false discards it"`
}

// DecideReviewOutput reports the state after the decision
type DecideReviewOutput struct {
	Success bool               `json:"success"`
	State   domain.ReviewState `json:"state,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func (s *Server) handleDecideReview(ctx context.Context, req *mcp.CallToolRequest, input DecideReviewInput) (*mcp.CallToolResult, DecideReviewOutput, error) {
	if input.ReviewID == "" {
		return nil, DecideReviewOutput{Error: "review_id is required"}, nil
	}

	review, err := s.deps.Reviews.Get(ctx, input.ReviewID)
	if errors.Is(err, domain.ErrReviewNotFound) {
		return nil, DecideReviewOutput{Error: "review not found"}, nil
	}
	if err != nil {
		return nil, DecideReviewOutput{}, err
	}
	if review.State.IsTerminal() {
		return nil, DecideReviewOutput{State: review.State, Error: fmt.Sprintf("review already %s", review.State)}, nil
	}
	if review.State != domain.ReviewSent {
		return nil, DecideReviewOutput{State: review.State, Error: "review prompt not delivered yet"}, nil
	}

	s.deps.Publisher.Publish(ctx, bus.ReviewDecision{ReviewID: input.ReviewID, Approved: input.Approve})

	after, err := s.deps.Reviews.Get(ctx, input.ReviewID)
	if err != nil {
		return nil, DecideReviewOutput{}, err
	}
	return nil, DecideReviewOutput{Success: after.State.IsTerminal(), State: after.State}, nil
}

// ChatHistoryInput selects a conversation
type ChatHistoryInput struct {
	ConversationID int64 `json:"conversation_id" jsonschema:"The conversation to show"`
	Limit          int   `json:"limit,omitempty" jsonschema:"Maximum number of entries to return (default 20)"`
}

// HistoryView is one classified message
type HistoryView struct {
	MessageID      int64  `json:"message_id"`
	UserID         int64  `json:"user_id"`
	Username       string `json:"username,omitempty"`
	Text           string `json:"text"`
	Classification string `json:"classification,omitempty"`
	Action         string `json:"action,omitempty"`
}

// ChatHistoryOutput lists the newest history entries, oldest first
type ChatHistoryOutput struct {
	Entries []HistoryView `json:"entries"`
}

func (s *Server) handleChatHistory(ctx context.Context, req *mcp.CallToolRequest, input ChatHistoryInput) (*mcp.CallToolResult, ChatHistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	out := ChatHistoryOutput{Entries: []HistoryView{}}
	history := s.deps.History.History(input.ConversationID)
	if history == nil {
		return nil, out, nil
	}

	entries := history.Entries
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	for _, e := range entries {
		v := HistoryView{
			MessageID: e.Message.MessageID,
			UserID:    e.Message.UserID,
			Username:  e.Message.Username,
			Text:      e.Message.Text,
		}
		if e.Result != nil {
			v.Classification = string(e.Result.Classification.Type)
			v.Action = string(e.Result.ModerationAction)
		}
		out.Entries = append(out.Entries, v)
	}
	return nil, out, nil
}
