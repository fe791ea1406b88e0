package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

type mockProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []repo.CompletionRequest
}

func (m *mockProvider) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	if len(m.responses) > 0 {
		return m.responses[len(m.responses)-1], nil
	}
	return "", nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "unauthorized" }
func (permanentErr) Retryable() bool { return false }

var errTransient = errors.New("connection reset")

type mockReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]*domain.PendingReview
	putErr  error
}

func newMockReviewRepo() *mockReviewRepo {
	return &mockReviewRepo{reviews: make(map[string]*domain.PendingReview)}
}

func cloneReview(r *domain.PendingReview) *domain.PendingReview {
	c := *r
	c.Actions = append([]domain.Action(nil), r.Actions...)
	return &c
}

func (m *mockReviewRepo) Get(ctx context.Context, id string) (*domain.PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, domain.ErrReviewNotFound
	}
	return cloneReview(r), nil
}

func (m *mockReviewRepo) Put(ctx context.Context, r *domain.PendingReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if old, ok := m.reviews[r.ReviewID]; ok && old.State.IsTerminal() {
		return domain.ErrReviewTerminal
	}
	m.reviews[r.ReviewID] = cloneReview(r)
	return nil
}

func (m *mockReviewRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reviews, id)
	return nil
}

func (m *mockReviewRepo) ListPending(ctx context.Context) ([]*domain.PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PendingReview
	for _, r := range m.reviews {
		if !r.State.IsTerminal() {
			out = append(out, cloneReview(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockReviewRepo) ListResolved(ctx context.Context, since time.Time, limit int) ([]*domain.PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PendingReview
	for _, r := range m.reviews {
		if r.State.IsTerminal() && r.ResolvedAt != nil && !r.ResolvedAt.Before(since) {
			out = append(out, cloneReview(r))
		}
	}
	return out, nil
}

func (m *mockReviewRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reviews {
		if r.State.IsTerminal() && r.ResolvedAt != nil && r.ResolvedAt.Before(cutoff) {
			delete(m.reviews, id)
			n++
		}
	}
	return n, nil
}

func (m *mockReviewRepo) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt bus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofKind(kind bus.Kind) []bus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []bus.Event
	for _, e := range p.events {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

type staticResolver struct {
	users   map[int64]bool
	authors map[int64]int64
}

func (r staticResolver) ResolveUser(userID int64) (int64, bool) {
	return userID, r.users[userID]
}

func (r staticResolver) AuthorOf(messageID int64) (int64, bool) {
	id, ok := r.authors[messageID]
	return id, ok
}

type staticChatConfig struct {
	admins map[int64]bool
	config repo.ChatConfig
}

func (c staticChatConfig) IsAdmin(ctx context.Context, conversationID, userID int64) bool {
	return c.admins[userID]
}

func (c staticChatConfig) GetChatConfig(ctx context.Context, conversationID int64) repo.ChatConfig {
	return c.config
}

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }
