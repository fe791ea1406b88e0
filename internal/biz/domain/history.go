package domain

import "unicode/utf8"

// entryOverheadTokens approximates the ids and labels serialized with every entry
const entryOverheadTokens = 12

// HistoryEntry is one already-classified message. Result is nil when the
// provider produced nothing for the message.
type HistoryEntry struct {
	Message IncomingMessage       `json:"message"`
	Result  *ClassificationResult `json:"result,omitempty"`
}

// ChatHistory is the rolling, token-bounded classification memory of a conversation
type ChatHistory struct {
	ConversationID int64          `json:"conversationId"`
	Entries        []HistoryEntry `json:"entries"`
}

// NewChatHistory creates an empty history
func NewChatHistory(conversationID int64) *ChatHistory {
	return &ChatHistory{ConversationID: conversationID}
}

// EstimateTokens gives a rough token count for text (about four characters per token)
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// EstimatedTokens estimates the prompt size of the entry
func (e *HistoryEntry) EstimatedTokens() int {
	tokens := entryOverheadTokens + EstimateTokens(e.Message.Text) + EstimateTokens(e.Message.Username)
	if e.Result != nil {
		tokens += EstimateTokens(e.Result.ResponseText)
	}
	return tokens
}

// EstimatedTokens estimates the prompt size of the whole history
func (h *ChatHistory) EstimatedTokens() int {
	total := 0
	for i := range h.Entries {
		total += h.Entries[i].EstimatedTokens()
	}
	return total
}

// Append adds entries at the newest end
func (h *ChatHistory) Append(entries ...HistoryEntry) {
	h.Entries = append(h.Entries, entries...)
}

// Trim drops the oldest entries until the estimate fits maxTokens.
// Returns the number of dropped entries. maxTokens <= 0 disables trimming.
func (h *ChatHistory) Trim(maxTokens int) int {
	if maxTokens <= 0 {
		return 0
	}

	total := h.EstimatedTokens()
	dropped := 0
	for dropped < len(h.Entries) && total > maxTokens {
		total -= h.Entries[dropped].EstimatedTokens()
		dropped++
	}
	if dropped > 0 {
		h.Entries = append([]HistoryEntry(nil), h.Entries[dropped:]...)
	}
	return dropped
}

// WarningsFor counts recorded warnings for a user
func (h *ChatHistory) WarningsFor(userID int64) int {
	count := 0
	for _, e := range h.Entries {
		if e.Result != nil && e.Result.ModerationAction == ActionWarn && e.Message.UserID == userID {
			count++
		}
	}
	return count
}

// FindMessage finds a history entry by message id
func (h *ChatHistory) FindMessage(messageID int64) *HistoryEntry {
	for i := range h.Entries {
		if h.Entries[i].Message.MessageID == messageID {
			return &h.Entries[i]
		}
	}
	return nil
}

// Clone returns a deep-enough copy for concurrent readers
func (h *ChatHistory) Clone() *ChatHistory {
	c := &ChatHistory{ConversationID: h.ConversationID}
	c.Entries = append([]HistoryEntry(nil), h.Entries...)
	return c
}
