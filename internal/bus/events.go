package bus

import "github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"

// Kind identifies an event type
type Kind string

const (
	KindMessageReceived     Kind = "message-received"
	KindModerationAction    Kind = "moderation-action"
	KindAgentResponse       Kind = "agent-response"
	KindReviewPrompt        Kind = "review-prompt"
	KindReviewPromptSent    Kind = "review-prompt-sent"
	KindReviewDecision      Kind = "review-decision"
	KindReviewResolved      Kind = "review-resolved"
	KindReviewDeletePrompt  Kind = "review-delete-prompt"
	KindReviewDisablePrompt Kind = "review-disable-prompt"
)

// Event is anything published on the bus
type Event interface {
	Kind() Kind
}

// MessageReceived is published by the platform for every inbound chat message
type MessageReceived struct {
	Message domain.IncomingMessage `json:"message"`
}

func (MessageReceived) Kind() Kind { return KindMessageReceived }

// ModerationAction asks the platform to execute moderation actions
type ModerationAction struct {
	ConversationID int64           `json:"conversationId"`
	Actions        []domain.Action `json:"actions"`
}

func (ModerationAction) Kind() Kind { return KindModerationAction }

// AgentResponse asks the platform to send replies
type AgentResponse struct {
	ConversationID int64           `json:"conversationId"`
	Actions        []domain.Action `json:"actions"`
}

func (AgentResponse) Kind() Kind { return KindAgentResponse }

// Control is one interactive button on a review prompt
type Control struct {
	Label    string `json:"label"`
	ReviewID string `json:"reviewId"`
	Approve  bool   `json:"approve"`
}

// ReviewPrompt asks the platform to deliver a review request
type ReviewPrompt struct {
	ReviewID         string    `json:"reviewId"`
	ConversationID   int64     `json:"conversationId"`
	ReplyToMessageID int64     `json:"replyToMessageId,omitempty"`
	Text             string    `json:"text"`
	Controls         []Control `json:"interactiveControls"`
}

func (ReviewPrompt) Kind() Kind { return KindReviewPrompt }

// ReviewPromptSent confirms delivery of a review prompt
type ReviewPromptSent struct {
	ReviewID       string `json:"reviewId"`
	ConversationID int64  `json:"conversationId"`
	MessageID      int64  `json:"messageId"`
}

func (ReviewPromptSent) Kind() Kind { return KindReviewPromptSent }

// ReviewDecision carries a human verdict on a review
type ReviewDecision struct {
	ReviewID  string `json:"reviewId"`
	Approved  bool   `json:"approved"`
	DecidedBy int64  `json:"decidedBy,omitempty"`
}

func (ReviewDecision) Kind() Kind { return KindReviewDecision }

// ReviewResolved reports the terminal outcome of a review
type ReviewResolved struct {
	ReviewID       string             `json:"reviewId"`
	ConversationID int64              `json:"conversationId"`
	Outcome        domain.ReviewState `json:"outcome"`
}

func (ReviewResolved) Kind() Kind { return KindReviewResolved }

// ReviewDeletePrompt asks the platform to remove a stale prompt
type ReviewDeletePrompt struct {
	ConversationID int64 `json:"conversationId"`
	MessageID      int64 `json:"messageId"`
}

func (ReviewDeletePrompt) Kind() Kind { return KindReviewDeletePrompt }

// ReviewDisablePrompt asks the platform to strip a prompt's controls
type ReviewDisablePrompt struct {
	ConversationID int64              `json:"conversationId"`
	MessageID      int64              `json:"messageId"`
	Outcome        domain.ReviewState `json:"outcome"`
}

func (ReviewDisablePrompt) Kind() Kind { return KindReviewDisablePrompt }
