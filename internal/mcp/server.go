package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// BufferSource exposes the pending buffers
type BufferSource interface {
	Summary() []domain.BufferSummary
}

// ReviewSource exposes the live reviews
type ReviewSource interface {
	ListPending(ctx context.Context) ([]*domain.PendingReview, error)
	Get(ctx context.Context, reviewID string) (*domain.PendingReview, error)
}

// HistorySource exposes the classification history of a conversation
type HistorySource interface {
	History(conversationID int64) *domain.ChatHistory
}

// Deps holds what the operator tools read and publish to
type Deps struct {
	Buffers   BufferSource
	Reviews   ReviewSource
	History   HistorySource
	Publisher bus.Publisher
}

// Server provides operator tools over MCP
type Server struct {
	server *mcp.Server
	deps   Deps
}

// NewServer creates the MCP server and registers its tools
func NewServer(version string, deps Deps) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tg-moderator",
		Version: version,
	}, nil)

	s := &Server{server: server, deps: deps}
	s.registerTools()
	return s
}

// Handler serves the tools over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}
