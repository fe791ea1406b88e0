package usecase

import (
	"context"
	"log/slog"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

// DecisionConfig contains decision orchestrator configuration
type DecisionConfig struct {
	// SuppressResponseOnRemoval drops the reply when a kick or ban fires for the same message
	SuppressResponseOnRemoval bool
}

// DecisionUsecase merges the moderation and response policies per message
type DecisionUsecase struct {
	moderation *ModerationPolicy
	response   *ResponsePolicy
	chats      repo.ChatConfigRepo
	config     DecisionConfig
	logger     *slog.Logger
}

// NewDecisionUsecase creates a new decision usecase
func NewDecisionUsecase(
	moderation *ModerationPolicy,
	response *ResponsePolicy,
	chats repo.ChatConfigRepo,
	config DecisionConfig,
) *DecisionUsecase {
	return &DecisionUsecase{
		moderation: moderation,
		response:   response,
		chats:      chats,
		config:     config,
		logger:     slog.With("component", "decision"),
	}
}

// Decide returns nil when neither axis fires for the message
func (uc *DecisionUsecase) Decide(
	ctx context.Context,
	msg domain.IncomingMessage,
	result domain.ClassificationResult,
	resolver repo.UserResolver,
) *domain.Decision {
	mod := uc.moderation.Evaluate(msg, result, resolver)
	if mod == nil && result.ModerationAction != domain.ActionNone && result.ModerationAction != "" {
		uc.logger.Debug("moderation target unresolved, action dropped",
			"conversation", msg.ConversationID,
			"message", msg.MessageID,
			"action", result.ModerationAction)
	}

	if mod != nil && mod.Action.IsRestrictive() && uc.isAdmin(ctx, msg, mod.TargetUserID) {
		uc.logger.Info("refusing to restrict an admin",
			"conversation", msg.ConversationID,
			"user", mod.TargetUserID,
			"action", mod.Action)
		mod = nil
	}

	if mod != nil && uc.chats != nil {
		if cfg := uc.chats.GetChatConfig(ctx, msg.ConversationID); cfg.ReviewActions != nil {
			mod.RequiresReview = actionSet(cfg.ReviewActions)[mod.Action]
		}
	}

	resp := uc.response.Evaluate(msg, result)
	if resp != nil && mod != nil && mod.Action.IsRemoval() && uc.config.SuppressResponseOnRemoval {
		resp = nil
	}

	if mod == nil && resp == nil {
		return nil
	}

	return &domain.Decision{
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
		AuthorID:       msg.UserID,
		AuthorName:     msg.DisplayName(),
		MessageText:    msg.Text,
		Moderation:     mod,
		Response:       resp,
	}
}

func (uc *DecisionUsecase) isAdmin(ctx context.Context, msg domain.IncomingMessage, userID int64) bool {
	if userID == msg.UserID && msg.IsAdmin {
		return true
	}
	if uc.chats == nil {
		return false
	}
	return uc.chats.IsAdmin(ctx, msg.ConversationID, userID)
}
