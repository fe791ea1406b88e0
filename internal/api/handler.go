package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
)

// Buffers exposes the pending buffers
type Buffers interface {
	Summary() []domain.BufferSummary
}

// Reviews exposes live reviews
type Reviews interface {
	ListPending(ctx context.Context) ([]*domain.PendingReview, error)
	Get(ctx context.Context, reviewID string) (*domain.PendingReview, error)
}

// Histories exposes cached classification histories
type Histories interface {
	History(conversationID int64) *domain.ChatHistory
}

// Server provides the operator HTTP API. The MCP handler, when set, is mounted at /mcp.
type Server struct {
	buffers   Buffers
	reviews   Reviews
	histories Histories
	publisher bus.Publisher
	mcp       http.Handler

	server *http.Server
	addr   string
	logger *slog.Logger
}

// NewServer creates a new API server
func NewServer(addr string, buffers Buffers, reviews Reviews, histories Histories, publisher bus.Publisher, mcp http.Handler) *Server {
	s := &Server{
		buffers:   buffers,
		reviews:   reviews,
		histories: histories,
		publisher: publisher,
		mcp:       mcp,
		addr:      addr,
		logger:    slog.With("component", "api"),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Buffers
	mux.HandleFunc("/api/buffer/summary", s.handleBufferSummary)

	// Reviews
	mux.HandleFunc("/api/reviews", s.handleReviews)
	mux.HandleFunc("/api/reviews/", s.handleReviewItem)

	// Histories
	mux.HandleFunc("/api/history/", s.handleHistory)

	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.addr, "mcp", s.mcp != nil)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ============ Buffer Handlers ============

func (s *Server) handleBufferSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summaries := s.buffers.Summary()
	if summaries == nil {
		summaries = []domain.BufferSummary{}
	}
	s.writeJSON(w, map[string]interface{}{"summaries": summaries})
}

// ============ Review Handlers ============

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := s.reviews.ListPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	var chatFilter int64
	if v := r.URL.Query().Get("chat_id"); v != "" {
		if chatFilter, err = strconv.ParseInt(v, 10, 64); err != nil {
			http.Error(w, "invalid chat_id", http.StatusBadRequest)
			return
		}
	}
	out := make([]*domain.PendingReview, 0, len(pending))
	for _, rv := range pending {
		if chatFilter == 0 || rv.ConversationID == chatFilter {
			out = append(out, rv)
		}
	}
	s.writeJSON(w, map[string]interface{}{"reviews": out})
}

// handleReviewItem serves /api/reviews/{id} and /api/reviews/{id}/{approve|reject}
func (s *Server) handleReviewItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/reviews/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "" || len(parts) > 2 {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	reviewID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		review, err := s.reviews.Get(r.Context(), reviewID)
		if errors.Is(err, domain.ErrReviewNotFound) {
			http.Error(w, "review not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, review)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var approve bool
	switch parts[1] {
	case "approve":
		approve = true
	case "reject":
	default:
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	s.decide(w, r, reviewID, approve)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, reviewID string, approve bool) {
	ctx := r.Context()

	review, err := s.reviews.Get(ctx, reviewID)
	if errors.Is(err, domain.ErrReviewNotFound) {
		http.Error(w, "review not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if review.State != domain.ReviewSent {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "review is not awaiting a decision", "state": string(review.State)})
		return
	}

	s.publisher.Publish(ctx, bus.ReviewDecision{ReviewID: reviewID, Approved: approve})

	after, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"review_id": reviewID, "state": after.State})
}

// ============ History Handlers ============

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chatID, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/history/"), "/"), 10, 64)
	if err != nil {
		http.Error(w, "invalid chat_id", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries := []domain.HistoryEntry{}
	if h := s.histories.History(chatID); h != nil {
		entries = h.Entries
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
	}
	s.writeJSON(w, map[string]interface{}{"entries": entries})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
