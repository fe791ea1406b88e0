package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

// ClassifierConfig contains provider call configuration
type ClassifierConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration // Multiplied by the attempt number
}

// DefaultClassifierConfig returns default classifier configuration
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MaxAttempts:    3,
		AttemptTimeout: 30 * time.Second,
		RetryDelay:     time.Second,
	}
}

// BatchRequest is one classification call for one conversation
type BatchRequest struct {
	ConversationID int64
	History        *domain.ChatHistory
	Messages       []domain.BufferedMessage
	Instructions   domain.AgentInstructions
	APIKey         string
	Model          string
}

// retryable is implemented by provider errors that know whether another attempt can help
type retryable interface {
	Retryable() bool
}

// ClassifierUsecase is the classification port: prompt, call, parse
type ClassifierUsecase struct {
	provider repo.ProviderRepo
	prompts  *PromptBuilder
	config   ClassifierConfig
	logger   *slog.Logger
}

// NewClassifierUsecase creates a new classifier usecase
func NewClassifierUsecase(provider repo.ProviderRepo, prompts *PromptBuilder, config ClassifierConfig) *ClassifierUsecase {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &ClassifierUsecase{
		provider: provider,
		prompts:  prompts,
		config:   config,
		logger:   slog.With("component", "classifier"),
	}
}

// ClassifyBatch returns the parsed batch result, or nil when every attempt failed.
// Attempts are detached from ctx cancellation; each one has its own timeout.
func (uc *ClassifierUsecase) ClassifyBatch(ctx context.Context, req BatchRequest) *domain.BatchClassificationResult {
	if len(req.Messages) == 0 {
		return &domain.BatchClassificationResult{Results: []domain.ClassificationResult{}}
	}

	prompt := uc.prompts.Build(req.Instructions, req.History, req.Messages)
	ids := make([]int64, len(req.Messages))
	for i, m := range req.Messages {
		ids[i] = m.MessageID
	}

	base := context.WithoutCancel(ctx)
	for attempt := 1; attempt <= uc.config.MaxAttempts; attempt++ {
		raw, err := uc.call(base, repo.CompletionRequest{
			APIKey: req.APIKey,
			Model:  req.Model,
			System: prompt.System,
			User:   prompt.User,
		})
		if err == nil {
			result, report := parseBatchResponse(raw, ids)
			if report.Malformed || report.Dropped > 0 {
				uc.logger.Warn("provider output partially rejected",
					"conversation", req.ConversationID,
					"malformed", report.Malformed,
					"dropped", report.Dropped)
			}
			uc.logger.Debug("batch classified",
				"conversation", req.ConversationID,
				"messages", len(ids),
				"results", len(result.Results),
				"attempt", attempt)
			return &result
		}

		uc.logger.Warn("provider attempt failed",
			"conversation", req.ConversationID,
			"attempt", attempt,
			"max_attempts", uc.config.MaxAttempts,
			"error", err)

		var r retryable
		if errors.As(err, &r) && !r.Retryable() {
			break
		}
		if attempt < uc.config.MaxAttempts && uc.config.RetryDelay > 0 {
			time.Sleep(uc.config.RetryDelay * time.Duration(attempt))
		}
	}

	uc.logger.Warn("batch left unclassified", "conversation", req.ConversationID, "messages", len(ids))
	return nil
}

func (uc *ClassifierUsecase) call(ctx context.Context, req repo.CompletionRequest) (string, error) {
	if uc.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.AttemptTimeout)
		defer cancel()
	}
	return uc.provider.Complete(ctx, req)
}
