package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/usecase"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// Classifier is the classification port as seen by the processor
type Classifier interface {
	ClassifyBatch(ctx context.Context, req usecase.BatchRequest) *domain.BatchClassificationResult
}

// ReviewRequester escalates decisions that need confirmation
type ReviewRequester interface {
	Request(ctx context.Context, decision domain.Decision, actions []domain.Action) (*domain.PendingReview, error)
}

// ProcessorConfig contains batch processor configuration
type ProcessorConfig struct {
	FlushInterval     time.Duration
	MaxBatchSize      int
	HistoryTrimTokens int
	Concurrency       int // Conversations flushed in parallel per tick
	PersistTimeout    time.Duration
}

// DefaultProcessorConfig returns default processor configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		FlushInterval:     5 * time.Second,
		MaxBatchSize:      10,
		HistoryTrimTokens: 3000,
		Concurrency:       4,
		PersistTimeout:    10 * time.Second,
	}
}

// BatchProcessor drives the classify, decide, act cycle from one periodic tick
type BatchProcessor struct {
	buffer       *usecase.MessageBuffer
	state        repo.StateRepo
	classifier   Classifier
	decisions    *usecase.DecisionUsecase
	reviews      ReviewRequester
	instructions repo.InstructionsRepo
	chats        repo.ChatConfigRepo
	publisher    bus.Publisher
	config       ProcessorConfig

	mu        sync.Mutex
	histories map[int64]*domain.ChatHistory
	flushing  map[int64]bool

	// persistMu keeps buffer snapshots from landing out of order
	persistMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(
	buffer *usecase.MessageBuffer,
	state repo.StateRepo,
	classifier Classifier,
	decisions *usecase.DecisionUsecase,
	reviews ReviewRequester,
	instructions repo.InstructionsRepo,
	chats repo.ChatConfigRepo,
	publisher bus.Publisher,
	config ProcessorConfig,
) *BatchProcessor {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultProcessorConfig().FlushInterval
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = DefaultProcessorConfig().PersistTimeout
	}
	return &BatchProcessor{
		buffer:       buffer,
		state:        state,
		classifier:   classifier,
		decisions:    decisions,
		reviews:      reviews,
		instructions: instructions,
		chats:        chats,
		publisher:    publisher,
		config:       config,
		histories:    make(map[int64]*domain.ChatHistory),
		flushing:     make(map[int64]bool),
		logger:       slog.With("component", "processor"),
	}
}

// Register subscribes the processor to inbound messages
func (p *BatchProcessor) Register(b *bus.Bus) {
	bus.On(b, bus.PriorityNormal, "moderation-pipeline", p.HandleMessage)
}

// Start restores persisted buffers and starts the flush loop
func (p *BatchProcessor) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	states, err := p.state.LoadBuffers(ctx)
	if err != nil {
		p.logger.Warn("failed to restore buffers", "error", err)
	} else if n := p.buffer.Restore(states); n > 0 {
		p.logger.Info("buffers restored", "messages", n, "conversations", len(states))
	}

	p.wg.Add(1)
	go p.flushLoop()

	p.logger.Info("processor started", "interval", p.config.FlushInterval, "max_batch", p.config.MaxBatchSize)
}

// Stop halts the tick, lets an in-flight flush finish, then persists buffers and histories
func (p *BatchProcessor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.PersistTimeout)
	defer cancel()

	p.persistBuffers(ctx)

	p.mu.Lock()
	histories := make([]*domain.ChatHistory, 0, len(p.histories))
	for _, h := range p.histories {
		histories = append(histories, h.Clone())
	}
	p.mu.Unlock()
	for _, h := range histories {
		if err := p.state.SaveHistory(ctx, h); err != nil {
			p.logger.Warn("failed to persist history", "conversation", h.ConversationID, "error", err)
		}
	}

	p.logger.Info("processor stopped")
}

// HandleMessage enqueues an inbound message; it never blocks on classification.
// The first message into an empty queue is snapshotted right away so it
// survives a crash before the next tick.
func (p *BatchProcessor) HandleMessage(ctx context.Context, evt bus.MessageReceived) error {
	wasEmpty := p.buffer.Len(evt.Message.ConversationID) == 0
	if dropped := p.buffer.Add(evt.Message); dropped > 0 {
		p.logger.Debug("buffer full, oldest messages dropped",
			"conversation", evt.Message.ConversationID,
			"dropped", dropped)
	}
	if wasEmpty {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.PersistTimeout)
		defer cancel()
		p.persistBuffers(persistCtx)
	}
	return nil
}

func (p *BatchProcessor) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			// A flush that already started runs to completion even if Stop is called
			p.FlushAll(context.WithoutCancel(p.ctx))
		}
	}
}

// FlushAll runs one flush cycle over every conversation with pending messages
func (p *BatchProcessor) FlushAll(ctx context.Context) {
	pending := p.buffer.Pending()
	if len(pending) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)
	for _, id := range pending {
		g.Go(func() error {
			p.flushConversation(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	p.persistBuffers(ctx)
}

func (p *BatchProcessor) flushConversation(ctx context.Context, conversationID int64) {
	if !p.claim(conversationID) {
		return
	}
	defer p.release(conversationID)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("flush panicked", "conversation", conversationID, "panic", fmt.Sprint(r))
		}
	}()

	// Drained messages are consumed even if classification fails
	batch := p.buffer.Drain(conversationID, p.config.MaxBatchSize)
	if len(batch) == 0 {
		return
	}

	cfg := repo.ChatConfig{Enabled: true}
	if p.chats != nil {
		cfg = p.chats.GetChatConfig(ctx, conversationID)
	}
	if !cfg.Enabled {
		p.logger.Debug("moderation disabled, batch skipped", "conversation", conversationID, "messages", len(batch))
		return
	}

	history := p.history(ctx, conversationID)
	result := p.classifier.ClassifyBatch(ctx, usecase.BatchRequest{
		ConversationID: conversationID,
		History:        history,
		Messages:       batch,
		Instructions:   p.instructions.Current(),
		APIKey:         cfg.ProviderAPIKey,
		Model:          cfg.Model,
	})

	entries := make([]domain.HistoryEntry, 0, len(batch))
	if result == nil {
		for _, m := range batch {
			entries = append(entries, domain.HistoryEntry{Message: m.IncomingMessage})
		}
		p.appendHistory(ctx, history, entries)
		return
	}

	resolver := usecase.NewBatchUserResolver(batch, history)
	var moderation, responses []domain.Action
	reviewed := 0
	for _, m := range batch {
		r, ok := result.Find(m.MessageID)
		if !ok {
			r = domain.NormalResult(m.MessageID)
		}
		res := r
		entries = append(entries, domain.HistoryEntry{Message: m.IncomingMessage, Result: &res})

		decision := p.decisions.Decide(ctx, m.IncomingMessage, r, resolver)
		if decision == nil {
			continue
		}

		actions := usecase.BuildActions(decision)
		mod, resp := domain.SplitActions(actions)
		responses = append(responses, resp...)

		if decision.RequiresReview() {
			if _, err := p.reviews.Request(ctx, *decision, actions); err != nil {
				p.logger.Warn("failed to request review", "conversation", conversationID, "message", m.MessageID, "error", err)
			} else {
				reviewed++
			}
			continue
		}
		moderation = append(moderation, mod...)
	}

	if len(moderation) > 0 {
		p.publisher.Publish(ctx, bus.ModerationAction{ConversationID: conversationID, Actions: moderation})
	}
	if len(responses) > 0 {
		p.publisher.Publish(ctx, bus.AgentResponse{ConversationID: conversationID, Actions: responses})
	}

	p.logger.Info("batch processed",
		"conversation", conversationID,
		"messages", len(batch),
		"results", len(result.Results),
		"moderation_actions", len(moderation),
		"responses", len(responses),
		"reviews", reviewed)

	p.appendHistory(ctx, history, entries)
}

func (p *BatchProcessor) claim(conversationID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flushing[conversationID] {
		return false
	}
	p.flushing[conversationID] = true
	return true
}

func (p *BatchProcessor) release(conversationID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.flushing, conversationID)
}

// history returns the cached history, loading it from the store on first use
func (p *BatchProcessor) history(ctx context.Context, conversationID int64) *domain.ChatHistory {
	p.mu.Lock()
	h, ok := p.histories[conversationID]
	p.mu.Unlock()
	if ok {
		return h
	}

	h, err := p.state.LoadHistory(ctx, conversationID)
	if err != nil || h == nil {
		if err != nil {
			p.logger.Warn("failed to load history", "conversation", conversationID, "error", err)
		}
		h = domain.NewChatHistory(conversationID)
	}

	p.mu.Lock()
	p.histories[conversationID] = h
	p.mu.Unlock()
	return h
}

func (p *BatchProcessor) appendHistory(ctx context.Context, history *domain.ChatHistory, entries []domain.HistoryEntry) {
	p.mu.Lock()
	history.Append(entries...)
	trimmed := history.Trim(p.config.HistoryTrimTokens)
	snapshot := history.Clone()
	p.mu.Unlock()

	if trimmed > 0 {
		p.logger.Debug("history trimmed", "conversation", history.ConversationID, "dropped", trimmed)
	}
	if err := p.state.SaveHistory(ctx, snapshot); err != nil {
		p.logger.Warn("failed to persist history", "conversation", history.ConversationID, "error", err)
	}
}

func (p *BatchProcessor) persistBuffers(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if err := p.state.SaveBuffers(ctx, p.buffer.ToState()); err != nil {
		p.logger.Warn("failed to persist buffers", "error", err)
	}
}

// History returns a copy of a conversation's cached history
func (p *BatchProcessor) History(conversationID int64) *domain.ChatHistory {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histories[conversationID]; ok {
		return h.Clone()
	}
	return nil
}
