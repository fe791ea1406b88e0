package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// Executor carries out bus action events against the Bot API.
// Every call waits on a shared limiter so bursts stay under the flood limits.
type Executor struct {
	api       botAPI
	limiter   *rate.Limiter
	publisher bus.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewExecutor creates an executor. perSecond <= 0 disables throttling.
func NewExecutor(api botAPI, publisher bus.Publisher, perSecond float64) *Executor {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	return &Executor{
		api:       api,
		limiter:   rate.NewLimiter(limit, burst),
		publisher: publisher,
		now:       time.Now,
		logger:    slog.With("component", "telegram-executor"),
	}
}

// Register subscribes the executor to every action event
func (e *Executor) Register(b *bus.Bus) {
	bus.On(b, bus.PriorityNormal, "telegram-moderation", e.HandleModerationAction)
	bus.On(b, bus.PriorityNormal, "telegram-response", e.HandleAgentResponse)
	bus.On(b, bus.PriorityNormal, "telegram-review-prompt", e.HandleReviewPrompt)
	bus.On(b, bus.PriorityNormal, "telegram-review-delete", e.HandleDeletePrompt)
	bus.On(b, bus.PriorityNormal, "telegram-review-disable", e.HandleDisablePrompt)
}

// HandleModerationAction executes actions in order; one failure does not stop the rest
func (e *Executor) HandleModerationAction(ctx context.Context, evt bus.ModerationAction) error {
	return e.executeAll(ctx, evt.ConversationID, evt.Actions)
}

// HandleAgentResponse sends replies
func (e *Executor) HandleAgentResponse(ctx context.Context, evt bus.AgentResponse) error {
	return e.executeAll(ctx, evt.ConversationID, evt.Actions)
}

func (e *Executor) executeAll(ctx context.Context, conversationID int64, actions []domain.Action) error {
	var errs []error
	for _, a := range actions {
		if err := e.Execute(ctx, conversationID, a); err != nil {
			e.logger.Warn("action failed",
				"conversation_id", conversationID,
				"type", a.Type,
				"user_id", a.UserID,
				"message_id", a.MessageID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Execute runs one action descriptor
func (e *Executor) Execute(ctx context.Context, conversationID int64, a domain.Action) error {
	chat := tu.ID(conversationID)

	switch a.Type {
	case domain.ActionTypeDeleteMessage:
		return e.call(ctx, func() error {
			return e.api.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: chat, MessageID: int(a.MessageID)})
		})

	case domain.ActionTypeRestrict, domain.ActionTypeUnrestrict:
		perms := a.Permissions
		if perms == "" {
			perms = domain.PermissionsNone
			if a.Type == domain.ActionTypeUnrestrict {
				perms = domain.PermissionsFull
			}
		}
		params := &telego.RestrictChatMemberParams{
			ChatID:      chat,
			UserID:      a.UserID,
			Permissions: chatPermissions(perms),
		}
		if a.Type == domain.ActionTypeRestrict {
			params.UntilDate = untilDate(e.now(), a.DurationMinutes)
		}
		return e.call(ctx, func() error { return e.api.RestrictChatMember(ctx, params) })

	case domain.ActionTypeBan:
		return e.call(ctx, func() error {
			return e.api.BanChatMember(ctx, &telego.BanChatMemberParams{ChatID: chat, UserID: a.UserID})
		})

	case domain.ActionTypeKick:
		// No kick in the Bot API: ban, then lift the ban so the user may rejoin
		if err := e.call(ctx, func() error {
			return e.api.BanChatMember(ctx, &telego.BanChatMemberParams{ChatID: chat, UserID: a.UserID})
		}); err != nil {
			return err
		}
		return e.call(ctx, func() error {
			return e.api.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{ChatID: chat, UserID: a.UserID, OnlyIfBanned: true})
		})

	case domain.ActionTypeUnban:
		return e.call(ctx, func() error {
			return e.api.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{ChatID: chat, UserID: a.UserID, OnlyIfBanned: true})
		})

	case domain.ActionTypeSendMessage:
		msg := tu.Message(chat, a.Text)
		if a.ReplyToMessageID != 0 {
			msg = msg.WithReplyParameters(&telego.ReplyParameters{
				MessageID:                int(a.ReplyToMessageID),
				AllowSendingWithoutReply: true,
			})
		}
		return e.call(ctx, func() error {
			_, err := e.api.SendMessage(ctx, msg)
			return err
		})
	}
	return fmt.Errorf("unknown action type %q", a.Type)
}

// HandleReviewPrompt delivers a review prompt and reports the message id back
func (e *Executor) HandleReviewPrompt(ctx context.Context, evt bus.ReviewPrompt) error {
	row := make([]telego.InlineKeyboardButton, 0, len(evt.Controls))
	for _, c := range evt.Controls {
		row = append(row, tu.InlineKeyboardButton(c.Label).WithCallbackData(encodeCallback(c.ReviewID, c.Approve)))
	}

	msg := tu.Message(tu.ID(evt.ConversationID), evt.Text)
	if len(row) > 0 {
		msg = msg.WithReplyMarkup(tu.InlineKeyboard(row))
	}
	if evt.ReplyToMessageID != 0 {
		msg = msg.WithReplyParameters(&telego.ReplyParameters{
			MessageID:                int(evt.ReplyToMessageID),
			AllowSendingWithoutReply: true,
		})
	}

	var sent *telego.Message
	err := e.call(ctx, func() error {
		var err error
		sent, err = e.api.SendMessage(ctx, msg)
		return err
	})
	if err != nil {
		// The review stays PROMPT_PENDING and expires on its ttl
		return fmt.Errorf("send review prompt %s: %w", evt.ReviewID, err)
	}

	e.publisher.Publish(ctx, bus.ReviewPromptSent{
		ReviewID:       evt.ReviewID,
		ConversationID: evt.ConversationID,
		MessageID:      int64(sent.MessageID),
	})
	return nil
}

// HandleDeletePrompt removes an expired prompt
func (e *Executor) HandleDeletePrompt(ctx context.Context, evt bus.ReviewDeletePrompt) error {
	return e.call(ctx, func() error {
		return e.api.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    tu.ID(evt.ConversationID),
			MessageID: int(evt.MessageID),
		})
	})
}

// HandleDisablePrompt strips the buttons from a resolved prompt
func (e *Executor) HandleDisablePrompt(ctx context.Context, evt bus.ReviewDisablePrompt) error {
	return e.call(ctx, func() error {
		_, err := e.api.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
			ChatID:    tu.ID(evt.ConversationID),
			MessageID: int(evt.MessageID),
		})
		return err
	})
}

func (e *Executor) call(ctx context.Context, fn func() error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn()
}
