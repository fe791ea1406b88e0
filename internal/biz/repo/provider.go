package repo

import "context"

// CompletionRequest is one provider call
type CompletionRequest struct {
	APIKey string // Per-chat key, empty means the default key
	Model  string // Empty means the default model
	System string
	User   string
}

// ProviderRepo is the language-model transport used by the classifier
type ProviderRepo interface {
	// Complete returns the raw text of the first choice
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
