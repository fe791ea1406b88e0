package usecase

import (
	"sort"
	"sync"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

// BufferConfig contains buffer configuration
type BufferConfig struct {
	MaxBufferSize int // Max queued messages per conversation, oldest dropped beyond it
	MaxBatchSize  int // Max messages drained per flush
}

// DefaultBufferConfig returns default buffer configuration
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxBufferSize: 100,
		MaxBatchSize:  10,
	}
}

// MessageBuffer holds per-conversation queues of not-yet-classified messages.
// Enqueue and drain are the only mutators; the mutex keeps both safe while
// the processor drains conversations concurrently.
type MessageBuffer struct {
	mu     sync.Mutex
	queues map[int64][]domain.BufferedMessage
	config BufferConfig
}

// NewMessageBuffer creates an empty buffer
func NewMessageBuffer(config BufferConfig) *MessageBuffer {
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = DefaultBufferConfig().MaxBufferSize
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultBufferConfig().MaxBatchSize
	}
	return &MessageBuffer{
		queues: make(map[int64][]domain.BufferedMessage),
		config: config,
	}
}

// Add appends a message to its conversation queue.
// Returns how many of the oldest messages were dropped to stay within the depth limit.
func (b *MessageBuffer) Add(msg domain.IncomingMessage) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := append(b.queues[msg.ConversationID], domain.BufferedMessage{IncomingMessage: msg})
	dropped := 0
	if over := len(q) - b.config.MaxBufferSize; over > 0 {
		dropped = over
		q = append([]domain.BufferedMessage(nil), q[over:]...)
	}
	b.queues[msg.ConversationID] = q
	return dropped
}

// Drain removes and returns up to max oldest messages in arrival order.
// max <= 0 uses the configured batch size.
func (b *MessageBuffer) Drain(conversationID int64, max int) []domain.BufferedMessage {
	if max <= 0 {
		max = b.config.MaxBatchSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[conversationID]
	if len(q) == 0 {
		return nil
	}
	if max > len(q) {
		max = len(q)
	}

	batch := make([]domain.BufferedMessage, max)
	copy(batch, q[:max])
	for i := range batch {
		batch[i].Processed = true
	}

	if rest := q[max:]; len(rest) > 0 {
		b.queues[conversationID] = append([]domain.BufferedMessage(nil), rest...)
	} else {
		delete(b.queues, conversationID)
	}
	return batch
}

// Pending returns the conversations with a non-empty queue, sorted
func (b *MessageBuffer) Pending() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int64, 0, len(b.queues))
	for id, q := range b.queues {
		if len(q) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the queue depth of a conversation
func (b *MessageBuffer) Len(conversationID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[conversationID])
}

// ToState snapshots every non-empty queue
func (b *MessageBuffer) ToState() []domain.BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]domain.BufferState, 0, len(b.queues))
	for id, q := range b.queues {
		if len(q) == 0 {
			continue
		}
		msgs := make([]domain.BufferedMessage, len(q))
		copy(msgs, q)
		states = append(states, domain.BufferState{ConversationID: id, Messages: msgs})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ConversationID < states[j].ConversationID })
	return states
}

// Restore merges persisted snapshots into the buffer.
// Messages already queued (same message id) and processed messages are skipped,
// so restoring the same snapshot twice is a no-op.
func (b *MessageBuffer) Restore(states []domain.BufferState) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	restored := 0
	for _, st := range states {
		q := b.queues[st.ConversationID]
		seen := make(map[int64]bool, len(q))
		for _, m := range q {
			seen[m.MessageID] = true
		}

		var older []domain.BufferedMessage
		for _, m := range st.Messages {
			if m.Processed || seen[m.MessageID] {
				continue
			}
			seen[m.MessageID] = true
			m.ConversationID = st.ConversationID
			older = append(older, m)
		}
		if len(older) == 0 {
			continue
		}
		restored += len(older)

		// Snapshotted messages arrived before anything queued since startup
		q = append(older, q...)
		if over := len(q) - b.config.MaxBufferSize; over > 0 {
			q = q[over:]
		}
		b.queues[st.ConversationID] = q
	}
	return restored
}

// Summary returns an overview of every non-empty queue
func (b *MessageBuffer) Summary() []domain.BufferSummary {
	states := b.ToState()
	summaries := make([]domain.BufferSummary, 0, len(states))
	for _, st := range states {
		summaries = append(summaries, domain.BufferSummary{
			ConversationID: st.ConversationID,
			MessageCount:   len(st.Messages),
			OldestMessage:  st.Messages[0].Timestamp,
			LastMessage:    st.Messages[len(st.Messages)-1].Timestamp,
		})
	}
	return summaries
}
