package conf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

// ChatOverride is one chat's entry in the chats file
type ChatOverride struct {
	Enabled        *bool    `yaml:"enabled"`
	ProviderAPIKey string   `yaml:"provider_api_key"`
	Model          string   `yaml:"model"`
	ReviewActions  []string `yaml:"review_actions"`
}

// ChatsFile is the YAML layout of the per-chat overrides file
type ChatsFile struct {
	Chats map[int64]ChatOverride `yaml:"chats"`
}

// LoadChats loads per-chat overrides. An empty path means no overrides.
func LoadChats(path string) (*ChatsFile, error) {
	if path == "" {
		return &ChatsFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chats config: %w", err)
	}

	var file ChatsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chats config: %w", err)
	}
	for id, o := range file.Chats {
		if actions := parseActions(o.ReviewActions); len(actions) != len(o.ReviewActions) {
			return nil, &ConfigError{Field: fmt.Sprintf("chats.%d.review_actions", id), Message: "unknown moderation action"}
		}
	}
	return &file, nil
}

// DefaultChatConfig is the configuration of chats without an override
func (c *Config) DefaultChatConfig() repo.ChatConfig {
	return repo.ChatConfig{
		ProviderAPIKey: c.Provider.APIKey,
		Model:          c.Provider.Model,
		Enabled:        true,
	}
}

// Resolve merges every override onto defaults
func (f *ChatsFile) Resolve(defaults repo.ChatConfig) map[int64]repo.ChatConfig {
	out := make(map[int64]repo.ChatConfig, len(f.Chats))
	for id, o := range f.Chats {
		cfg := defaults
		if o.Enabled != nil {
			cfg.Enabled = *o.Enabled
		}
		if o.ProviderAPIKey != "" {
			cfg.ProviderAPIKey = o.ProviderAPIKey
		}
		if o.Model != "" {
			cfg.Model = o.Model
		}
		if o.ReviewActions != nil {
			cfg.ReviewActions = parseActions(o.ReviewActions)
		}
		out[id] = cfg
	}
	return out
}
