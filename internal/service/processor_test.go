package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/usecase"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// Mock implementations

type mockStateRepo struct {
	mu        sync.Mutex
	histories map[int64]*domain.ChatHistory
	buffers   []domain.BufferState
	saveErr   error
}

func newMockStateRepo() *mockStateRepo {
	return &mockStateRepo{histories: make(map[int64]*domain.ChatHistory)}
}

func (m *mockStateRepo) LoadHistory(ctx context.Context, id int64) (*domain.ChatHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histories[id]; ok {
		return h.Clone(), nil
	}
	return domain.NewChatHistory(id), nil
}

func (m *mockStateRepo) SaveHistory(ctx context.Context, h *domain.ChatHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.histories[h.ConversationID] = h.Clone()
	return nil
}

func (m *mockStateRepo) LoadBuffers(ctx context.Context) ([]domain.BufferState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffers, nil
}

func (m *mockStateRepo) SaveBuffers(ctx context.Context, states []domain.BufferState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.buffers = states
	return nil
}

func (m *mockStateRepo) Close() error { return nil }

func (m *mockStateRepo) savedHistory(id int64) *domain.ChatHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.histories[id]
}

type mockProvider struct {
	mu       sync.Mutex
	response func(req repo.CompletionRequest) (string, error)
	calls    int
}

func (m *mockProvider) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.response(req)
}

type staticInstructions struct{}

func (staticInstructions) Current() domain.AgentInstructions {
	return domain.AgentInstructions{Role: "moderator"}
}

type staticChats struct {
	admins map[int64]bool
	config repo.ChatConfig
}

func (c staticChats) IsAdmin(ctx context.Context, conversationID, userID int64) bool {
	return c.admins[userID]
}

func (c staticChats) GetChatConfig(ctx context.Context, conversationID int64) repo.ChatConfig {
	return c.config
}

type mockReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]*domain.PendingReview
}

func (m *mockReviewRepo) Get(ctx context.Context, id string) (*domain.PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, domain.ErrReviewNotFound
	}
	c := *r
	return &c, nil
}

func (m *mockReviewRepo) Put(ctx context.Context, r *domain.PendingReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.reviews[r.ReviewID]; ok && old.State.IsTerminal() {
		return domain.ErrReviewTerminal
	}
	c := *r
	m.reviews[r.ReviewID] = &c
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
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) ListResolved(ctx context.Context, since time.Time, limit int) ([]*domain.PendingReview, error) {
	return nil, nil
}

func (m *mockReviewRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *mockReviewRepo) Close() error { return nil }

type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) record(b *bus.Bus, kinds ...bus.Kind) {
	for _, k := range kinds {
		b.Subscribe(k, bus.PriorityLow, "recorder", func(ctx context.Context, evt bus.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, evt)
			return nil
		})
	}
}

func (r *recorder) ofKind(kind bus.Kind) []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.Event
	for _, e := range r.events {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

type pipeline struct {
	bus       *bus.Bus
	buffer    *usecase.MessageBuffer
	state     *mockStateRepo
	provider  *mockProvider
	reviews   *mockReviewRepo
	processor *BatchProcessor
	events    *recorder
}

func newPipeline(t *testing.T, respond func(req repo.CompletionRequest) (string, error)) *pipeline {
	t.Helper()

	p := &pipeline{
		bus:      bus.New(),
		buffer:   usecase.NewMessageBuffer(usecase.BufferConfig{MaxBufferSize: 100, MaxBatchSize: 10}),
		state:    newMockStateRepo(),
		provider: &mockProvider{response: respond},
		reviews:  &mockReviewRepo{reviews: make(map[string]*domain.PendingReview)},
		events:   &recorder{},
	}

	policy := usecase.DefaultPolicyConfig()
	chats := staticChats{config: repo.ChatConfig{Enabled: true, ProviderAPIKey: "key"}}
	classifier := usecase.NewClassifierUsecase(p.provider, usecase.NewPromptBuilder(usecase.DefaultPromptConfig), usecase.ClassifierConfig{MaxAttempts: 2})
	decisions := usecase.NewDecisionUsecase(usecase.NewModerationPolicy(policy), usecase.NewResponsePolicy(policy), chats, usecase.DecisionConfig{})
	reviewUC := usecase.NewReviewUsecase(p.reviews, usecase.NewReviewRequestBuilder(time.Hour), p.bus)

	p.processor = NewBatchProcessor(p.buffer, p.state, classifier, decisions, reviewUC, staticInstructions{}, chats, p.bus, ProcessorConfig{
		FlushInterval:     time.Hour,
		MaxBatchSize:      10,
		HistoryTrimTokens: 3000,
		Concurrency:       2,
	})
	p.processor.Register(p.bus)
	NewReviewService(reviewUC, time.Hour, 0).Register(p.bus)

	p.events.record(p.bus,
		bus.KindModerationAction, bus.KindAgentResponse, bus.KindReviewPrompt,
		bus.KindReviewResolved, bus.KindReviewDisablePrompt)
	return p
}

func (p *pipeline) receive(msgs ...domain.IncomingMessage) {
	for _, m := range msgs {
		p.bus.Publish(context.Background(), bus.MessageReceived{Message: m})
	}
}

func msg(convID, msgID, userID int64, text string) domain.IncomingMessage {
	return domain.IncomingMessage{
		ConversationID: convID,
		MessageID:      msgID,
		UserID:         userID,
		Text:           text,
		Timestamp:      time.Unix(1700000000+msgID, 0),
	}
}

func TestProcessor_EndToEndMute(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[{"messageId":2,"classification":{"type":"violation"},"moderationAction":"mute","durationMinutes":10}]}`, nil
	})

	p.receive(msg(42, 1, 501, "hi"), msg(42, 2, 502, "buy now"), msg(42, 3, 503, "hello"))
	p.processor.FlushAll(context.Background())

	mod := p.events.ofKind(bus.KindModerationAction)
	require.Len(t, mod, 1)
	evt := mod[0].(bus.ModerationAction)
	require.Equal(t, int64(42), evt.ConversationID)
	require.Len(t, evt.Actions, 1)
	require.Equal(t, domain.ActionTypeRestrict, evt.Actions[0].Type)
	require.Equal(t, int64(502), evt.Actions[0].UserID)
	require.Equal(t, 10, evt.Actions[0].DurationMinutes)
	require.Equal(t, domain.PermissionsNone, evt.Actions[0].Permissions)

	require.Empty(t, p.events.ofKind(bus.KindAgentResponse))
	require.Equal(t, 0, p.buffer.Len(42))

	saved := p.state.savedHistory(42)
	require.NotNil(t, saved)
	require.Len(t, saved.Entries, 3)
	require.Equal(t, domain.ActionMute, saved.Entries[1].Result.ModerationAction)
	require.Equal(t, domain.ActionNone, saved.Entries[0].Result.ModerationAction)
}

func TestProcessor_FailOpenOnProviderFailure(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return "", errors.New("503 service unavailable")
	})

	p.receive(msg(42, 1, 501, "hi"), msg(42, 2, 502, "buy now"))
	p.processor.FlushAll(context.Background())

	require.Equal(t, 2, p.provider.calls)
	require.Empty(t, p.events.ofKind(bus.KindModerationAction))
	require.Empty(t, p.events.ofKind(bus.KindAgentResponse))
	require.Equal(t, 0, p.buffer.Len(42), "failed batch must not be re-queued")

	p.processor.FlushAll(context.Background())
	require.Equal(t, 2, p.provider.calls)
}

func TestProcessor_ResponsesAndModerationGroupedPerConversation(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[
			{"messageId":1,"classification":{"type":"violation","requiresResponse":true},"moderationAction":"delete","responseText":"No links."},
			{"messageId":2,"classification":{"type":"bot_mention","requiresResponse":true},"responseText":"Hello!"},
			{"messageId":3,"classification":{"type":"violation"},"moderationAction":"delete"}
		]}`, nil
	})

	p.receive(msg(7, 1, 11, "http://spam"), msg(7, 2, 12, "@bot hi"), msg(7, 3, 13, "http://spam2"))
	p.processor.FlushAll(context.Background())

	mod := p.events.ofKind(bus.KindModerationAction)
	require.Len(t, mod, 1)
	require.Len(t, mod[0].(bus.ModerationAction).Actions, 2)

	resp := p.events.ofKind(bus.KindAgentResponse)
	require.Len(t, resp, 1)
	actions := resp[0].(bus.AgentResponse).Actions
	require.Len(t, actions, 2)
	require.Equal(t, "No links.", actions[0].Text)
	require.Equal(t, int64(2), actions[1].ReplyToMessageID)
}

func TestProcessor_EscalationRejected(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[{"messageId":5,"classification":{"type":"violation"},"moderationAction":"ban"}]}`, nil
	})

	p.receive(msg(42, 5, 505, "scam"))
	p.processor.FlushAll(context.Background())

	require.Empty(t, p.events.ofKind(bus.KindModerationAction))
	prompts := p.events.ofKind(bus.KindReviewPrompt)
	require.Len(t, prompts, 1)
	prompt := prompts[0].(bus.ReviewPrompt)
	require.Equal(t, int64(42), prompt.ConversationID)

	ctx := context.Background()
	p.bus.Publish(ctx, bus.ReviewPromptSent{ReviewID: prompt.ReviewID, ConversationID: 42, MessageID: 777})
	p.bus.Publish(ctx, bus.ReviewDecision{ReviewID: prompt.ReviewID, Approved: false})

	resolved := p.events.ofKind(bus.KindReviewResolved)
	require.Len(t, resolved, 1)
	require.Equal(t, domain.ReviewRejected, resolved[0].(bus.ReviewResolved).Outcome)
	require.Empty(t, p.events.ofKind(bus.KindModerationAction))
	require.Len(t, p.events.ofKind(bus.KindReviewDisablePrompt), 1)
}

func TestProcessor_EscalationApproved(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[{"messageId":5,"classification":{"type":"violation"},"moderationAction":"kick"}]}`, nil
	})

	p.receive(msg(42, 5, 505, "scam"))
	p.processor.FlushAll(context.Background())
	prompt := p.events.ofKind(bus.KindReviewPrompt)[0].(bus.ReviewPrompt)

	ctx := context.Background()
	p.bus.Publish(ctx, bus.ReviewPromptSent{ReviewID: prompt.ReviewID, ConversationID: 42, MessageID: 777})
	p.bus.Publish(ctx, bus.ReviewDecision{ReviewID: prompt.ReviewID, Approved: true})
	p.bus.Publish(ctx, bus.ReviewDecision{ReviewID: prompt.ReviewID, Approved: true})

	mod := p.events.ofKind(bus.KindModerationAction)
	require.Len(t, mod, 1)
	require.Equal(t, domain.ActionTypeKick, mod[0].(bus.ModerationAction).Actions[0].Type)
	require.Len(t, p.events.ofKind(bus.KindReviewResolved), 1)
}

func TestProcessor_HistoryStaysBounded(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[]}`, nil
	})
	p.processor.config.HistoryTrimTokens = 200

	for cycle := int64(0); cycle < 20; cycle++ {
		for i := int64(0); i < 5; i++ {
			id := cycle*5 + i + 1
			p.receive(msg(1, id, 9, fmt.Sprintf("message number %d with some padding text", id)))
		}
		p.processor.FlushAll(context.Background())

		h := p.processor.History(1)
		require.NotNil(t, h)
		require.LessOrEqual(t, h.EstimatedTokens(), 200)
	}

	h := p.processor.History(1)
	require.Equal(t, int64(100), h.Entries[len(h.Entries)-1].Message.MessageID)
}

func TestProcessor_DisabledChatConsumesWithoutClassifying(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[]}`, nil
	})
	p.processor.chats = staticChats{config: repo.ChatConfig{Enabled: false}}

	p.receive(msg(3, 1, 9, "hi"))
	p.processor.FlushAll(context.Background())

	require.Equal(t, 0, p.provider.calls)
	require.Equal(t, 0, p.buffer.Len(3))
}

func TestProcessor_StartRestoresAndStopPersists(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[]}`, nil
	})
	p.state.buffers = []domain.BufferState{{
		ConversationID: 42,
		Messages:       []domain.BufferedMessage{{IncomingMessage: msg(42, 1, 9, "before crash")}},
	}}

	p.processor.Start(context.Background())
	require.Equal(t, 1, p.buffer.Len(42))

	p.receive(msg(42, 2, 9, "after restart"))
	p.processor.Stop()

	require.Len(t, p.state.buffers, 1)
	require.Len(t, p.state.buffers[0].Messages, 2)
	require.Equal(t, int64(1), p.state.buffers[0].Messages[0].MessageID)
}

func TestProcessor_PersistenceFailureIsBestEffort(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[{"messageId":1,"classification":{"type":"violation"},"moderationAction":"delete"}]}`, nil
	})
	p.state.saveErr = errors.New("disk full")

	p.receive(msg(42, 1, 9, "spam"))
	p.processor.FlushAll(context.Background())

	require.Len(t, p.events.ofKind(bus.KindModerationAction), 1)
	require.NotNil(t, p.processor.History(42))
}

func TestProcessor_PanicInOneConversationDoesNotStopOthers(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		if req.Model == "boom" {
			panic("provider exploded")
		}
		return `{"results":[{"messageId":2,"classification":{"type":"violation"},"moderationAction":"delete"}]}`, nil
	})
	p.processor.chats = perChat{
		1: {Enabled: true, Model: "boom"},
		2: {Enabled: true},
	}

	p.receive(msg(1, 1, 9, "x"), msg(2, 2, 9, "y"))
	p.processor.FlushAll(context.Background())

	mod := p.events.ofKind(bus.KindModerationAction)
	require.Len(t, mod, 1)
	require.Equal(t, int64(2), mod[0].(bus.ModerationAction).ConversationID)
}

func TestProcessor_TickDrainsRemainderOnNextTick(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int64
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[]}`, nil
	})
	p.processor.config.FlushInterval = 20 * time.Millisecond
	p.processor.config.MaxBatchSize = 2
	p.processor.classifier = classifierFunc(func(ctx context.Context, req usecase.BatchRequest) *domain.BatchClassificationResult {
		ids := make([]int64, 0, len(req.Messages))
		for _, m := range req.Messages {
			ids = append(ids, m.MessageID)
		}
		mu.Lock()
		batches = append(batches, ids)
		mu.Unlock()
		return &domain.BatchClassificationResult{}
	})

	p.receive(msg(42, 1, 9, "a"), msg(42, 2, 9, "b"), msg(42, 3, 9, "c"))
	p.processor.Start(context.Background())
	defer p.processor.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, p.buffer.Len(42))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][]int64{{1, 2}, {3}}, batches)
}

func TestProcessor_StopWaitsForInflightFlush(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		once.Do(func() { close(entered) })
		<-release
		return `{"results":[{"messageId":1,"classification":{"type":"violation"},"moderationAction":"delete"}]}`, nil
	})
	p.processor.config.FlushInterval = 10 * time.Millisecond

	p.receive(msg(42, 1, 9, "spam"))
	p.processor.Start(context.Background())

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("flush never reached the provider")
	}

	stopped := make(chan struct{})
	go func() {
		p.processor.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while classification was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the flush finished")
	}

	require.Len(t, p.events.ofKind(bus.KindModerationAction), 1)
	require.NotNil(t, p.state.savedHistory(42))
}

func TestProcessor_FirstMessageIsSnapshotted(t *testing.T) {
	p := newPipeline(t, func(req repo.CompletionRequest) (string, error) {
		return `{"results":[]}`, nil
	})

	p.receive(msg(42, 1, 9, "between ticks"))

	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	require.Len(t, p.state.buffers, 1)
	require.Equal(t, int64(42), p.state.buffers[0].ConversationID)
	require.Equal(t, int64(1), p.state.buffers[0].Messages[0].MessageID)
}

type classifierFunc func(ctx context.Context, req usecase.BatchRequest) *domain.BatchClassificationResult

func (f classifierFunc) ClassifyBatch(ctx context.Context, req usecase.BatchRequest) *domain.BatchClassificationResult {
	return f(ctx, req)
}

type perChat map[int64]repo.ChatConfig

func (c perChat) IsAdmin(ctx context.Context, conversationID, userID int64) bool { return false }

func (c perChat) GetChatConfig(ctx context.Context, conversationID int64) repo.ChatConfig {
	return c[conversationID]
}
