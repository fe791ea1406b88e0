package domain

// ModerationDecision is a normalized moderation action for one message
type ModerationDecision struct {
	Action          ModerationActionKind `json:"action"`
	TargetUserID    int64                `json:"targetUserId,omitempty"`
	TargetMessageID int64                `json:"targetMessageId,omitempty"`
	DurationMinutes int                  `json:"durationMinutes,omitempty"`
	RequiresReview  bool                 `json:"requiresReview"`
}

// ResponseDecision is a reply the bot should send
type ResponseDecision struct {
	Text             string `json:"text"`
	ReplyToMessageID int64  `json:"replyToMessageId"`
}

// Decision is the merged moderation + response outcome for one message
type Decision struct {
	ConversationID int64               `json:"conversationId"`
	MessageID      int64               `json:"messageId"`
	AuthorID       int64               `json:"authorId"`
	AuthorName     string              `json:"authorName,omitempty"`
	MessageText    string              `json:"messageText,omitempty"`
	Moderation     *ModerationDecision `json:"moderation,omitempty"`
	Response       *ResponseDecision   `json:"response,omitempty"`
}

// RequiresReview checks if the moderation part needs human confirmation
func (d *Decision) RequiresReview() bool {
	return d.Moderation != nil && d.Moderation.RequiresReview
}

// IsWarning checks if the decision records a warning
func (d *Decision) IsWarning() bool {
	return d.Moderation != nil && d.Moderation.Action == ActionWarn
}
