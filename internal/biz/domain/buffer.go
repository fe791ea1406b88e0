package domain

import "time"

// BufferState is the persisted snapshot of one conversation buffer
type BufferState struct {
	ConversationID int64             `json:"conversationId"`
	Messages       []BufferedMessage `json:"messages"`
}

// BufferSummary represents buffer overview
type BufferSummary struct {
	ConversationID int64     `json:"conversationId"`
	MessageCount   int       `json:"messageCount"`
	OldestMessage  time.Time `json:"oldestMessage"`
	LastMessage    time.Time `json:"lastMessage"`
}
