package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexcompanion/internal/history"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcript.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	turns := []history.Turn{
		{Role: history.RoleSystem, Content: "You are a helpful companion.", Timestamp: base},
		{Role: history.RoleUser, Content: "hello", Timestamp: base.Add(time.Second)},
		{Role: history.RoleAssistant, Content: "hi there", Timestamp: base.Add(2 * time.Second)},
	}
	for _, turn := range turns {
		require.NoError(t, s.SaveTurn(ctx, turn))
	}

	got, err := s.RecentTurns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, history.RoleSystem, got[0].Role)
	assert.Equal(t, "hello", got[1].Content)
	assert.Equal(t, "hi there", got[2].Content)
}

func TestRecentTurnsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveTurn(ctx, history.Turn{
			Role:    history.RoleUser,
			Content: string(rune('a' + i)),
		}))
	}

	got, err := s.RecentTurns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Last two, oldest first.
	assert.Equal(t, "d", got[0].Content)
	assert.Equal(t, "e", got[1].Content)
}

func TestMoodRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	value, err := s.LoadMood(ctx)
	require.NoError(t, err)
	assert.Zero(t, value)

	require.NoError(t, s.SaveMood(ctx, 7.5))
	require.NoError(t, s.SaveMood(ctx, -3.25))

	value, err = s.LoadMood(ctx)
	require.NoError(t, err)
	assert.Equal(t, -3.25, value)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTurn(ctx, history.Turn{Role: history.RoleUser, Content: "hi"}))
	require.NoError(t, s.SaveMood(ctx, 4))
	require.NoError(t, s.Clear(ctx))

	got, err := s.RecentTurns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	value, err := s.LoadMood(ctx)
	require.NoError(t, err)
	assert.Zero(t, value)
}
