package domain

import (
	"strconv"
	"time"
)

// IncomingMessage represents a chat message as delivered by the platform.
// It is immutable once created.
type IncomingMessage struct {
	ConversationID   int64     `json:"conversationId"`
	UserID           int64     `json:"userId"`
	MessageID        int64     `json:"messageId"`
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
	Username         string    `json:"username,omitempty"`
	IsAdmin          bool      `json:"isAdmin"`
	ReplyToMessageID *int64    `json:"replyToMessageId,omitempty"`
	ReplyToUserID    *int64    `json:"replyToUserId,omitempty"`
}

// DisplayName returns the username, falling back to the numeric user id
func (m *IncomingMessage) DisplayName() string {
	if m.Username != "" {
		return m.Username
	}
	return strconv.FormatInt(m.UserID, 10)
}

// IsReply checks if the message replies to another message
func (m *IncomingMessage) IsReply() bool {
	return m.ReplyToMessageID != nil
}

// BufferedMessage is an incoming message waiting in a conversation buffer
type BufferedMessage struct {
	IncomingMessage
	Processed bool `json:"processed"`
}
