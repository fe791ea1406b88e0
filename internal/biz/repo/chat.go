package repo

import (
	"context"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

// ChatConfig is the per-conversation configuration
type ChatConfig struct {
	ProviderAPIKey string
	Model          string
	Enabled        bool
	// ReviewActions overrides the actions that need confirmation; nil means the default
	ReviewActions []domain.ModerationActionKind
}

// ChatConfigRepo is the chat config port
type ChatConfigRepo interface {
	IsAdmin(ctx context.Context, conversationID, userID int64) bool
	GetChatConfig(ctx context.Context, conversationID int64) ChatConfig
}

// AdminLookup lists the administrators of a conversation
type AdminLookup interface {
	Admins(ctx context.Context, conversationID int64) (map[int64]bool, error)
}

// InstructionsRepo supplies the current agent instructions
type InstructionsRepo interface {
	Current() domain.AgentInstructions
}

// UserResolver resolves provider-named targets to known users
type UserResolver interface {
	// ResolveUser confirms that userID is a member the batch knows about
	ResolveUser(userID int64) (int64, bool)
	// AuthorOf returns the author of a message in the batch or history
	AuthorOf(messageID int64) (int64, bool)
}
