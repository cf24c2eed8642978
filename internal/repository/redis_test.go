package repository

import (
	"context"
	"testing"
	"time"

	"studiobook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	repo := NewRedisStateRepository(client)
	ctx := context.Background()

	t.Run("SessionRoundTrip", func(t *testing.T) {
		session := &models.Session{
			ID:         "sid-1",
			IdentityID: 7,
			Email:      "ana@example.com",
			Role:       models.RoleClient,
			State:      models.SessionAuthenticated,
		}
		require.NoError(t, repo.SaveSession(ctx, session, time.Hour))

		got, err := repo.GetSession(ctx, "sid-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, session.Email, got.Email)
		assert.Equal(t, models.RoleClient, got.Role)

		assert.True(t, s.Exists("session:sid-1"))
		assert.Equal(t, time.Hour, s.TTL("session:sid-1"))

		require.NoError(t, repo.DeleteSession(ctx, "sid-1"))
		got, err = repo.GetSession(ctx, "sid-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SessionExpires", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "short", IdentityID: 8}, time.Minute))
		s.FastForward(2 * time.Minute)
		got, err := repo.GetSession(ctx, "short")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DeleteIdentitySessions", func(t *testing.T) {
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: id, IdentityID: 9}, time.Hour))
		}
		require.NoError(t, repo.SaveSession(ctx, &models.Session{ID: "other", IdentityID: 10}, time.Hour))

		removed, err := repo.DeleteIdentitySessions(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		got, _ := repo.GetSession(ctx, "a")
		assert.Nil(t, got)
		got, _ = repo.GetSession(ctx, "other")
		assert.NotNil(t, got)
	})

	t.Run("AttendanceDraft", func(t *testing.T) {
		draft := &models.AttendanceDraft{InstructorID: 3, SlotID: 40, Marks: map[int64]bool{1: true, 2: false}}
		require.NoError(t, repo.SaveAttendanceDraft(ctx, draft, models.AttendanceDraftTTL))

		got, err := repo.GetAttendanceDraft(ctx, 3, 40)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, draft.Marks, got.Marks)

		missing, err := repo.GetAttendanceDraft(ctx, 4, 40)
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, repo.ClearAttendanceDraft(ctx, 3, 40))
		got, _ = repo.GetAttendanceDraft(ctx, 3, 40)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		window := time.Second
		for i := 0; i < 2; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "login:ana@example.com", 2, window)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "login:ana@example.com", 2, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)
		allowed, err = repo.CheckRateLimit(ctx, "login:ana@example.com", 2, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStateRepository(nil)
		_, err := repo.GetSession(ctx, "x")
		assert.ErrorContains(t, err, "redis client is nil")
		_, err = repo.CheckRateLimit(ctx, "x", 1, time.Second)
		assert.Error(t, err)
	})

	t.Run("PingAndClose", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
		assert.NoError(t, Close(client))
		assert.NoError(t, Close(nil))
	})
}
