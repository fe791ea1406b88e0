package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// Client connects the moderator to Telegram via long polling
type Client struct {
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	logger     *slog.Logger
}

// New creates a Telegram client
func New(token string) (*Client, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Client{bot: bot, logger: slog.With("component", "telegram")}, nil
}

// Username returns the bot's username
func (c *Client) Username() string {
	return c.bot.Username()
}

// Admins lists the administrators of a chat
func (c *Client) Admins(ctx context.Context, conversationID int64) (map[int64]bool, error) {
	return listAdmins(ctx, c.bot, conversationID)
}

// NewExecutor creates an executor bound to this bot
func (c *Client) NewExecutor(publisher bus.Publisher, perSecond float64) *Executor {
	return NewExecutor(c.bot, publisher, perSecond)
}

// Start begins long polling. Messages and review callbacks are published on publisher.
func (c *Client) Start(ctx context.Context, publisher bus.Publisher, chats repo.ChatConfigRepo) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	c.logger.Info("telegram bot connected", "username", c.bot.Username())

	d := &dispatcher{api: c.bot, publisher: publisher, chats: chats, logger: c.logger}
	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					c.logger.Info("telegram updates channel closed")
					return
				}
				d.handleUpdate(pollCtx, update)
			}
		}
	}()
	return nil
}

// Stop cancels long polling and waits for the loop to exit
func (c *Client) Stop() {
	if c.pollCancel != nil {
		c.pollCancel()
		<-c.pollDone
	}
}

// dispatcher turns updates into bus events
type dispatcher struct {
	api       botAPI
	publisher bus.Publisher
	chats     repo.ChatConfigRepo
	logger    *slog.Logger
}

func (d *dispatcher) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	default:
		d.logger.Debug("telegram update skipped", "update_id", update.UpdateID)
	}
}

func (d *dispatcher) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.From.IsBot || !isGroupChat(msg.Chat) {
		return
	}
	isAdmin := d.chats.IsAdmin(ctx, msg.Chat.ID, msg.From.ID)
	in, ok := toIncoming(msg, isAdmin)
	if !ok {
		return
	}
	d.publisher.Publish(ctx, bus.MessageReceived{Message: in})
}

func (d *dispatcher) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	reviewID, approve, err := decodeCallback(q.Data)
	if err != nil {
		d.answer(ctx, q.ID, "")
		return
	}
	if q.Message == nil {
		d.answer(ctx, q.ID, "")
		return
	}

	chatID := q.Message.GetChat().ID
	if !d.chats.IsAdmin(ctx, chatID, q.From.ID) {
		d.logger.Info("review decision from non-admin ignored",
			"review_id", reviewID,
			"conversation_id", chatID,
			"user_id", q.From.ID,
		)
		d.answer(ctx, q.ID, "Only administrators can decide")
		return
	}

	d.publisher.Publish(ctx, bus.ReviewDecision{ReviewID: reviewID, Approved: approve, DecidedBy: q.From.ID})
	text := "Rejected"
	if approve {
		text = "Approved"
	}
	d.answer(ctx, q.ID, text)
}

func (d *dispatcher) answer(ctx context.Context, queryID, text string) {
	params := tu.CallbackQuery(queryID)
	if text != "" {
		params = params.WithText(text)
	}
	if err := d.api.AnswerCallbackQuery(ctx, params); err != nil {
		d.logger.Debug("answer callback failed", "error", err)
	}
}

func listAdmins(ctx context.Context, api botAPI, conversationID int64) (map[int64]bool, error) {
	members, err := api.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{ChatID: tu.ID(conversationID)})
	if err != nil {
		return nil, fmt.Errorf("get chat administrators: %w", err)
	}
	admins := make(map[int64]bool, len(members))
	for _, m := range members {
		admins[m.MemberUser().ID] = true
	}
	return admins, nil
}
