package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

const defaultModel = "gpt-4o-mini"

// ProviderOptions configures the OpenAI-compatible completion client
type ProviderOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	JSONMode    bool
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
}

// ProviderError wraps a failed completion call with its HTTP status.
// StatusCode is zero when the request never got a response.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider request failed: %v", e.Err)
	}
	return fmt.Sprintf("provider returned status %d: %v", e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// ErrMissingAPIKey is returned when neither the chat nor the process has a key
var ErrMissingAPIKey = errors.New("provider api key not configured")

// providerRepo implements the provider port on top of go-openai.
// Clients are cached per api key since chats may bring their own.
type providerRepo struct {
	opts    ProviderOptions
	mu      sync.Mutex
	clients map[string]*openai.Client
	logger  *slog.Logger
}

// NewProviderRepo creates a provider repository
func NewProviderRepo(opts ProviderOptions) repo.ProviderRepo {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	return &providerRepo{
		opts:    opts,
		clients: make(map[string]*openai.Client),
		logger:  slog.With("component", "provider"),
	}
}

func (r *providerRepo) client(apiKey string) *openai.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[apiKey]; ok {
		return c
	}
	config := openai.DefaultConfig(apiKey)
	if r.opts.BaseURL != "" {
		config.BaseURL = r.opts.BaseURL
	}
	if r.opts.HTTPClient != nil {
		config.HTTPClient = r.opts.HTTPClient
	}
	c := openai.NewClientWithConfig(config)
	r.clients[apiKey] = c
	return c
}

// Complete sends one chat completion and returns the first choice's content
func (r *providerRepo) Complete(ctx context.Context, req repo.CompletionRequest) (string, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = r.opts.APIKey
	}
	if apiKey == "" {
		return "", &ProviderError{StatusCode: http.StatusUnauthorized, Err: ErrMissingAPIKey}
	}
	model := req.Model
	if model == "" {
		model = r.opts.Model
	}

	request := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
	}
	if r.opts.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := r.client(apiKey).CreateChatCompletion(ctx, request)
	if err != nil {
		return "", wrapProviderError(err)
	}

	if len(resp.Choices) == 0 {
		r.logger.Warn("completion returned no choices", "model", model)
		return "", nil
	}
	r.logger.Debug("completion done",
		"model", model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

func wrapProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &ProviderError{Err: err}
}
