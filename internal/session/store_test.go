package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

func newTestSession(id, chainID string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		ChainID:        chainID,
		CurrentStep:    1,
		TotalSteps:     3,
		RetryState:     RetryState{MaxAttempts: 3},
		Status:         StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// exerciseStore runs the Store contract against any implementation.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get unknown returns not found", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		require.Error(t, err)
		assert.True(t, prompterr.IsNotFound(err))
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		s := newTestSession("s1", "chain-a")
		s.PendingReview = &PendingGateReview{
			Prompt:       "review the output",
			GateIDs:      []string{"quality-gate"},
			CreatedAt:    time.Now(),
			AttemptCount: 1,
			MaxAttempts:  3,
			RetryHints:   []string{"check formatting"},
		}
		require.NoError(t, store.Put(ctx, s))

		got, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.ID)
		assert.Equal(t, "chain-a", got.ChainID)
		assert.Equal(t, StatusActive, got.Status)
		require.NotNil(t, got.PendingReview)
		assert.Equal(t, []string{"quality-gate"}, got.PendingReview.GateIDs)
		assert.Equal(t, []string{"check formatting"}, got.PendingReview.RetryHints)
	})

	t.Run("put overwrites existing record", func(t *testing.T) {
		s := newTestSession("s2", "chain-b")
		require.NoError(t, store.Put(ctx, s))

		s.CurrentStep = 2
		s.PendingReview = nil
		require.NoError(t, store.Put(ctx, s))

		got, err := store.Get(ctx, "s2")
		require.NoError(t, err)
		assert.Equal(t, 2, got.CurrentStep)
		assert.Nil(t, got.PendingReview)
	})

	t.Run("find active by chain picks most recent", func(t *testing.T) {
		older := newTestSession("old", "chain-c")
		older.LastActivityAt = time.Now().Add(-time.Hour)
		newer := newTestSession("new", "chain-c")
		require.NoError(t, store.Put(ctx, older))
		require.NoError(t, store.Put(ctx, newer))

		got, err := store.FindActiveByChain(ctx, "chain-c")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "new", got.ID)
	})

	t.Run("find active ignores terminal sessions", func(t *testing.T) {
		done := newTestSession("done", "chain-d")
		done.Status = StatusCompleted
		require.NoError(t, store.Put(ctx, done))

		got, err := store.FindActiveByChain(ctx, "chain-d")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete unknown is a no-op", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-existed"))
	})

	t.Run("delete removes record", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, newTestSession("gone", "chain-e")))
		require.NoError(t, store.Delete(ctx, "gone"))

		_, err := store.Get(ctx, "gone")
		assert.True(t, prompterr.IsNotFound(err))
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	exerciseStore(t, store)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, newTestSession("s", "c")))

	got, err := store.Get(ctx, "s")
	require.NoError(t, err)
	got.CurrentStep = 99

	again, err := store.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, again.CurrentStep)
}
