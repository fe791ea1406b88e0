package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/repo"
)

// stateRepo implements the state store on sqlite
type stateRepo struct {
	db *sql.DB
}

// NewStateRepo creates a new state repository
func NewStateRepo(dbPath string) (repo.StateRepo, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	err = migrate(db,
		`CREATE TABLE IF NOT EXISTS chat_histories (
			conversation_id INTEGER PRIMARY KEY,
			entries TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS buffer_states (
			conversation_id INTEGER PRIMARY KEY,
			messages TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state tables: %w", err)
	}

	slog.Debug("state store initialized", "component", "store", "path", dbPath)
	return &stateRepo{db: db}, nil
}

// LoadHistory loads a conversation's history
func (r *stateRepo) LoadHistory(ctx context.Context, conversationID int64) (*domain.ChatHistory, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `
		SELECT entries FROM chat_histories WHERE conversation_id = ?
	`, conversationID).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.NewChatHistory(conversationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	history := domain.NewChatHistory(conversationID)
	if err := json.Unmarshal([]byte(raw), &history.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return history, nil
}

// SaveHistory upserts a conversation's history
func (r *stateRepo) SaveHistory(ctx context.Context, history *domain.ChatHistory) error {
	entries := history.Entries
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO chat_histories (conversation_id, entries, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			entries = excluded.entries,
			updated_at = excluded.updated_at
	`, history.ConversationID, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// LoadBuffers loads every persisted buffer snapshot
func (r *stateRepo) LoadBuffers(ctx context.Context) ([]domain.BufferState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, messages FROM buffer_states ORDER BY conversation_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query buffers: %w", err)
	}
	defer rows.Close()

	var states []domain.BufferState
	for rows.Next() {
		var st domain.BufferState
		var raw string
		if err := rows.Scan(&st.ConversationID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan buffer: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &st.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode buffer %d: %w", st.ConversationID, err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// SaveBuffers replaces all buffer snapshots in one transaction
func (r *stateRepo) SaveBuffers(ctx context.Context, states []domain.BufferState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM buffer_states`); err != nil {
		return fmt.Errorf("failed to clear buffers: %w", err)
	}

	now := time.Now().Unix()
	for _, st := range states {
		if len(st.Messages) == 0 {
			continue
		}
		raw, err := json.Marshal(st.Messages)
		if err != nil {
			return fmt.Errorf("failed to encode buffer %d: %w", st.ConversationID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO buffer_states (conversation_id, messages, updated_at) VALUES (?, ?, ?)
		`, st.ConversationID, string(raw), now); err != nil {
			return fmt.Errorf("failed to save buffer %d: %w", st.ConversationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit buffers: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *stateRepo) Close() error {
	return r.db.Close()
}
