package data

import (
	"errors"
	"fmt"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/conf"
)

// Repositories contains all repositories
type Repositories struct {
	State        repo.StateRepo
	Reviews      repo.ReviewRepo
	Provider     repo.ProviderRepo
	Instructions *InstructionsRepo
	Chats        repo.ChatConfigRepo
}

// NewRepositories creates all repositories. admins backs the admin checks
// of the chat config repository and may be nil.
func NewRepositories(cfg *conf.Config, admins repo.AdminLookup) (*Repositories, error) {
	stateRepo, err := NewStateRepo(cfg.Store.DBPath)
	if err != nil {
		return nil, err
	}

	// Reviews share the state database file
	reviewRepo, err := NewReviewRepo(cfg.Store.DBPath)
	if err != nil {
		stateRepo.Close()
		return nil, err
	}

	instructions, err := NewInstructionsRepo(cfg.InstructionsPath, true)
	if err != nil {
		stateRepo.Close()
		reviewRepo.Close()
		return nil, fmt.Errorf("load instructions: %w", err)
	}

	chats, err := conf.LoadChats(cfg.ChatsPath)
	if err != nil {
		stateRepo.Close()
		reviewRepo.Close()
		instructions.Close()
		return nil, err
	}
	defaults := cfg.DefaultChatConfig()

	return &Repositories{
		State:   stateRepo,
		Reviews: reviewRepo,
		Provider: NewProviderRepo(ProviderOptions{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.BaseURL,
			Model:       cfg.Provider.Model,
			JSONMode:    cfg.Provider.JSONMode,
			MaxTokens:   cfg.Provider.MaxTokens,
			Temperature: cfg.Provider.Temperature,
		}),
		Instructions: instructions,
		Chats: NewChatConfigRepo(defaults, chats.Resolve(defaults), admins,
			time.Duration(cfg.Telegram.AdminCacheMinutes)*time.Minute),
	}, nil
}

// Close closes every repository that holds resources
func (r *Repositories) Close() error {
	return errors.Join(
		r.Instructions.Close(),
		r.Reviews.Close(),
		r.State.Close(),
	)
}
