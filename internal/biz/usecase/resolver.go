package usecase

import "github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"

// BatchUserResolver resolves targets against the users and messages a batch
// and its history actually contain
type BatchUserResolver struct {
	users   map[int64]bool
	authors map[int64]int64
}

// NewBatchUserResolver indexes batch and history authors, plus reply-to users
func NewBatchUserResolver(batch []domain.BufferedMessage, history *domain.ChatHistory) *BatchUserResolver {
	r := &BatchUserResolver{
		users:   make(map[int64]bool),
		authors: make(map[int64]int64),
	}
	if history != nil {
		for _, e := range history.Entries {
			r.index(e.Message)
		}
	}
	for _, m := range batch {
		r.index(m.IncomingMessage)
	}
	return r
}

func (r *BatchUserResolver) index(m domain.IncomingMessage) {
	r.users[m.UserID] = true
	r.authors[m.MessageID] = m.UserID
	if m.ReplyToUserID != nil {
		r.users[*m.ReplyToUserID] = true
		if m.ReplyToMessageID != nil {
			if _, ok := r.authors[*m.ReplyToMessageID]; !ok {
				r.authors[*m.ReplyToMessageID] = *m.ReplyToUserID
			}
		}
	}
}

// ResolveUser reports whether userID appears in the batch or history
func (r *BatchUserResolver) ResolveUser(userID int64) (int64, bool) {
	return userID, r.users[userID]
}

// AuthorOf returns the author of a batch, history or replied-to message
func (r *BatchUserResolver) AuthorOf(messageID int64) (int64, bool) {
	id, ok := r.authors[messageID]
	return id, ok
}
