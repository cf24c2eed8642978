package repository

import (
	"context"
	"testing"
	"time"

	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateRepository(t *testing.T) {
	repo := NewMemoryStateRepository()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }
	ctx := context.Background()

	t.Run("SessionTTL", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "s1", IdentityID: 1}, time.Hour))
		got, err := repo.GetSession(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got)

		clock = clock.Add(2 * time.Hour)
		got, err = repo.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DeleteIdentitySessions", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "a", IdentityID: 2}, time.Hour))
		require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "b", IdentityID: 2}, time.Hour))
		require.NoError(t, repo.DeleteSession(ctx, "b"))

		removed, err := repo.DeleteIdentitySessions(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})

	t.Run("DraftIsCopied", func(t *testing.T) {
		draft := &models.AttendanceDraft{InstructorID: 1, SlotID: 2, Marks: map[int64]bool{5: true}}
		require.NoError(t, repo.SaveAttendanceDraft(ctx, draft, time.Hour))
		draft.Marks[6] = false

		got, err := repo.GetAttendanceDraft(ctx, 1, 2)
		require.NoError(t, err)
		assert.Len(t, got.Marks, 1)

		require.NoError(t, repo.ClearAttendanceDraft(ctx, 1, 2))
		got, _ = repo.GetAttendanceDraft(ctx, 1, 2)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		allowed, _ := repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		assert.False(t, allowed)

		clock = clock.Add(2 * time.Minute)
		allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		assert.True(t, allowed)
	})
}
