package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "nested", "state.db")
}

func TestStateRepo_HistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, err := NewStateRepo(tempDB(t))
	require.NoError(t, err)
	defer r.Close()

	empty, err := r.LoadHistory(ctx, -100)
	require.NoError(t, err)
	require.Empty(t, empty.Entries)
	require.Equal(t, int64(-100), empty.ConversationID)

	h := domain.NewChatHistory(-100)
	h.Append(
		domain.HistoryEntry{Message: domain.IncomingMessage{ConversationID: -100, UserID: 1, MessageID: 10, Text: "hi"}},
		domain.HistoryEntry{
			Message: domain.IncomingMessage{ConversationID: -100, UserID: 2, MessageID: 11, Text: "spam"},
			Result: &domain.ClassificationResult{
				MessageID:        11,
				Classification:   domain.Classification{Type: domain.ClassificationViolation},
				ModerationAction: domain.ActionWarn,
			},
		},
	)
	require.NoError(t, r.SaveHistory(ctx, h))

	got, err := r.LoadHistory(ctx, -100)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	require.Nil(t, got.Entries[0].Result)
	require.Equal(t, domain.ActionWarn, got.Entries[1].Result.ModerationAction)
	require.Equal(t, 1, got.WarningsFor(2))

	// Overwrite
	h.Entries = h.Entries[1:]
	require.NoError(t, r.SaveHistory(ctx, h))
	got, err = r.LoadHistory(ctx, -100)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
}

func TestStateRepo_BuffersReplaceSnapshot(t *testing.T) {
	ctx := context.Background()
	r, err := NewStateRepo(tempDB(t))
	require.NoError(t, err)
	defer r.Close()

	ts := time.UnixMilli(1_700_000_000_000).UTC()
	msg := func(conv, id int64) domain.BufferedMessage {
		return domain.BufferedMessage{IncomingMessage: domain.IncomingMessage{
			ConversationID: conv, UserID: 1, MessageID: id, Text: "m", Timestamp: ts,
		}}
	}

	require.NoError(t, r.SaveBuffers(ctx, []domain.BufferState{
		{ConversationID: 2, Messages: []domain.BufferedMessage{msg(2, 1)}},
		{ConversationID: 1, Messages: []domain.BufferedMessage{msg(1, 1), msg(1, 2)}},
		{ConversationID: 3},
	}))

	states, err := r.LoadBuffers(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	require.Equal(t, int64(1), states[0].ConversationID)
	require.Len(t, states[0].Messages, 2)
	require.True(t, ts.Equal(states[0].Messages[0].Timestamp))

	require.NoError(t, r.SaveBuffers(ctx, []domain.BufferState{
		{ConversationID: 2, Messages: []domain.BufferedMessage{msg(2, 5)}},
	}))
	states, err = r.LoadBuffers(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.Equal(t, int64(5), states[0].Messages[0].MessageID)
}

func TestStateRepo_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := tempDB(t)

	r, err := NewStateRepo(path)
	require.NoError(t, err)
	h := domain.NewChatHistory(7)
	h.Append(domain.HistoryEntry{Message: domain.IncomingMessage{ConversationID: 7, MessageID: 1, Text: "x"}})
	require.NoError(t, r.SaveHistory(ctx, h))
	require.NoError(t, r.Close())

	r, err = NewStateRepo(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.LoadHistory(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
}
