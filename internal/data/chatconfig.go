package data

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

type adminEntry struct {
	admins    map[int64]bool
	fetchedAt time.Time
}

// chatConfigRepo serves static per-chat config and caches admin lists
type chatConfigRepo struct {
	defaults  repo.ChatConfig
	overrides map[int64]repo.ChatConfig
	admins    repo.AdminLookup
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[int64]adminEntry
	group singleflight.Group

	logger *slog.Logger
}

// NewChatConfigRepo creates a chat config repository.
// admins may be nil, in which case nobody is treated as an admin.
func NewChatConfigRepo(defaults repo.ChatConfig, overrides map[int64]repo.ChatConfig, admins repo.AdminLookup, ttl time.Duration) repo.ChatConfigRepo {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &chatConfigRepo{
		defaults:  defaults,
		overrides: overrides,
		admins:    admins,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[int64]adminEntry),
		logger:    slog.With("component", "chat-config"),
	}
}

// GetChatConfig returns the override for a chat, or the defaults
func (r *chatConfigRepo) GetChatConfig(_ context.Context, conversationID int64) repo.ChatConfig {
	if cfg, ok := r.overrides[conversationID]; ok {
		return cfg
	}
	return r.defaults
}

// IsAdmin checks the cached admin list. Lookup failures answer false.
func (r *chatConfigRepo) IsAdmin(ctx context.Context, conversationID, userID int64) bool {
	if r.admins == nil {
		return false
	}

	r.mu.Lock()
	entry, ok := r.cache[conversationID]
	r.mu.Unlock()
	if ok && r.now().Sub(entry.fetchedAt) < r.ttl {
		return entry.admins[userID]
	}

	v, err, _ := r.group.Do(strconv.FormatInt(conversationID, 10), func() (any, error) {
		admins, err := r.admins.Admins(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[conversationID] = adminEntry{admins: admins, fetchedAt: r.now()}
		r.mu.Unlock()
		return admins, nil
	})
	if err != nil {
		r.logger.Warn("admin lookup failed", "conversation_id", conversationID, "error", err)
		if ok {
			// Stale is better than nothing
			return entry.admins[userID]
		}
		return false
	}
	return v.(map[int64]bool)[userID]
}
