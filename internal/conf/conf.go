package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/usecase"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/service"
)

// Config represents application configuration
type Config struct {
	// Telegram configuration
	Telegram TelegramConfig

	// Language model provider configuration
	Provider ProviderConfig

	// Durable state configuration
	Store StoreConfig

	// Batching, history and policy configuration
	Pipeline PipelineConfig

	// Review (escalation) configuration
	Review ReviewConfig

	// Agent instructions file
	InstructionsPath string

	// Per-chat overrides file (optional)
	ChatsPath string

	// MCP operator server configuration
	MCP MCPConfig

	// Logging configuration
	Log LogConfig
}

// TelegramConfig contains Telegram configuration
type TelegramConfig struct {
	BotToken          string
	ActionsPerSecond  float64 // Outbound API call budget
	AdminCacheMinutes int
}

// ProviderConfig contains provider configuration
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	JSONMode    bool
	MaxTokens   int
	Temperature float32
}

// StoreConfig contains durable state configuration
type StoreConfig struct {
	DBPath string
}

// PipelineConfig contains batch processing configuration
type PipelineConfig struct {
	FlushInterval             time.Duration
	MaxBatchSize              int
	MaxBufferSize             int
	HistoryTrimTokens         int
	MaxResponseLength         int
	DefaultMuteMinutes        int
	MaxMuteMinutes            int
	ResponseTriggers          []string
	FlushConcurrency          int
	SuppressResponseOnRemoval bool
}

// ReviewConfig contains review configuration
type ReviewConfig struct {
	Actions         []string
	TTL             time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

// MCPConfig contains MCP configuration
type MCPConfig struct {
	Addr string // Empty disables the server
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	dbPath := os.Getenv("STATE_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".tg-moderator", "state.db")
	}

	instructionsPath := os.Getenv("INSTRUCTIONS_PATH")
	if instructionsPath == "" {
		instructionsPath = "configs/instructions.yaml"
	}

	return &Config{
		Telegram: TelegramConfig{
			BotToken:          os.Getenv("TELEGRAM_BOT_TOKEN"),
			ActionsPerSecond:  envFloat("TELEGRAM_ACTIONS_PER_SECOND", 20),
			AdminCacheMinutes: envInt("ADMIN_CACHE_MINUTES", 5),
		},
		Provider: ProviderConfig{
			APIKey:      os.Getenv("PROVIDER_API_KEY"),
			BaseURL:     os.Getenv("PROVIDER_BASE_URL"),
			Model:       os.Getenv("PROVIDER_MODEL"),
			Timeout:     time.Duration(envInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxAttempts: envInt("PROVIDER_MAX_ATTEMPTS", 3),
			RetryDelay:  time.Duration(envInt("PROVIDER_RETRY_DELAY_MS", 1000)) * time.Millisecond,
			JSONMode:    envBool("PROVIDER_JSON_MODE", false),
			MaxTokens:   envInt("PROVIDER_MAX_TOKENS", 2000),
			Temperature: float32(envFloat("PROVIDER_TEMPERATURE", 0.1)),
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		Pipeline: PipelineConfig{
			FlushInterval:             time.Duration(envInt("FLUSH_INTERVAL_SECONDS", 5)) * time.Second,
			MaxBatchSize:              envInt("MAX_BATCH_SIZE", 10),
			MaxBufferSize:             envInt("MAX_BUFFER_SIZE", 100),
			HistoryTrimTokens:         envInt("HISTORY_TRIM_TOKENS", 3000),
			MaxResponseLength:         envInt("MAX_RESPONSE_LENGTH", 1000),
			DefaultMuteMinutes:        envInt("DEFAULT_MUTE_MINUTES", 60),
			MaxMuteMinutes:            envInt("MAX_MUTE_MINUTES", 7*24*60),
			ResponseTriggers:          envList("RESPONSE_TRIGGERS", "bot_mention,violation"),
			FlushConcurrency:          envInt("FLUSH_CONCURRENCY", 4),
			SuppressResponseOnRemoval: envBool("SUPPRESS_RESPONSE_ON_REMOVAL", false),
		},
		Review: ReviewConfig{
			Actions:         envList("REVIEW_ACTIONS", "ban,kick"),
			TTL:             time.Duration(envInt("REVIEW_TTL_MINUTES", 60)) * time.Minute,
			Retention:       time.Duration(envInt("REVIEW_RETENTION_HOURS", 72)) * time.Hour,
			CleanupInterval: time.Duration(envInt("REVIEW_CLEANUP_HOURS", 6)) * time.Hour,
		},
		InstructionsPath: instructionsPath,
		ChatsPath:        os.Getenv("CHATS_CONFIG_PATH"),
		MCP: MCPConfig{
			Addr: os.Getenv("MCP_ADDR"),
		},
		Log: LogConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
	}
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return def
}

func envList(key, def string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		val = def
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// ReviewActions parses the configured review actions, skipping unknown names
func (c *Config) ReviewActions() []domain.ModerationActionKind {
	return parseActions(c.Review.Actions)
}

func parseActions(names []string) []domain.ModerationActionKind {
	actions := make([]domain.ModerationActionKind, 0, len(names))
	for _, name := range names {
		if a, ok := domain.ParseModerationAction(name); ok && a != domain.ActionNone {
			actions = append(actions, a)
		}
	}
	return actions
}

// ToBufferConfig converts to message buffer configuration
func (c *Config) ToBufferConfig() usecase.BufferConfig {
	return usecase.BufferConfig{
		MaxBufferSize: c.Pipeline.MaxBufferSize,
		MaxBatchSize:  c.Pipeline.MaxBatchSize,
	}
}

// ToPolicyConfig converts to policy configuration
func (c *Config) ToPolicyConfig() usecase.PolicyConfig {
	triggers := make([]domain.ClassificationType, 0, len(c.Pipeline.ResponseTriggers))
	for _, name := range c.Pipeline.ResponseTriggers {
		if t, ok := domain.ParseClassificationType(name); ok {
			triggers = append(triggers, t)
		}
	}
	return usecase.PolicyConfig{
		DefaultMuteMinutes: c.Pipeline.DefaultMuteMinutes,
		MaxMuteMinutes:     c.Pipeline.MaxMuteMinutes,
		ReviewActions:      c.ReviewActions(),
		ResponseTriggers:   triggers,
		MaxResponseLength:  c.Pipeline.MaxResponseLength,
	}
}

// ToClassifierConfig converts to classifier configuration
func (c *Config) ToClassifierConfig() usecase.ClassifierConfig {
	return usecase.ClassifierConfig{
		MaxAttempts:    c.Provider.MaxAttempts,
		AttemptTimeout: c.Provider.Timeout,
		RetryDelay:     c.Provider.RetryDelay,
	}
}

// ToDecisionConfig converts to decision configuration
func (c *Config) ToDecisionConfig() usecase.DecisionConfig {
	return usecase.DecisionConfig{
		SuppressResponseOnRemoval: c.Pipeline.SuppressResponseOnRemoval,
	}
}

// ToProcessorConfig converts to batch processor configuration
func (c *Config) ToProcessorConfig() service.ProcessorConfig {
	return service.ProcessorConfig{
		FlushInterval:     c.Pipeline.FlushInterval,
		MaxBatchSize:      c.Pipeline.MaxBatchSize,
		HistoryTrimTokens: c.Pipeline.HistoryTrimTokens,
		Concurrency:       c.Pipeline.FlushConcurrency,
	}
}

// Validate validates the configuration needed to serve
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return &ConfigError{Field: "TELEGRAM_BOT_TOKEN", Message: "required"}
	}
	if c.Pipeline.MaxBatchSize <= 0 {
		return &ConfigError{Field: "MAX_BATCH_SIZE", Message: "must be positive"}
	}
	if c.Pipeline.MaxBufferSize < c.Pipeline.MaxBatchSize {
		return &ConfigError{Field: "MAX_BUFFER_SIZE", Message: "must be at least MAX_BATCH_SIZE"}
	}
	if c.Pipeline.FlushInterval <= 0 {
		return &ConfigError{Field: "FLUSH_INTERVAL_SECONDS", Message: "must be positive"}
	}
	if c.Provider.MaxAttempts <= 0 {
		return &ConfigError{Field: "PROVIDER_MAX_ATTEMPTS", Message: "must be positive"}
	}
	if len(c.ReviewActions()) != len(c.Review.Actions) {
		return &ConfigError{Field: "REVIEW_ACTIONS", Message: "unknown moderation action"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
