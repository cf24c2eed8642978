package service

import (
	"context"
	"testing"
	"time"

	"studiobook/internal/auth"
	"studiobook/internal/config"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionFixture(t *testing.T) (*fixture, *SessionService, *models.Identity) {
	t.Helper()
	f := newFixture(t)
	// Sessions are validated against wall time, so use the real clock here.
	f.clock = NewClock(time.UTC)

	hash, err := auth.HashPassword("s3cret-pass")
	require.NoError(t, err)
	client := &models.Identity{Email: "ana@example.com", DisplayName: "Ana", Role: models.RoleClient, PasswordHash: hash}
	require.NoError(t, f.db.CreateIdentity(context.Background(), client))

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	svc := NewSessionService(f.db, f.state, tokens, config.APIAuthConfig{
		SessionTTL:    time.Hour,
		LoginAttempts: 3,
		LoginWindow:   time.Minute,
	}, f.clock, f.logger)
	return f, svc, client
}

func TestLogin(t *testing.T) {
	_, svc, client := newSessionFixture(t)
	ctx := context.Background()

	session, token, err := svc.Login(ctx, "  ANA@example.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, client.ID, session.IdentityID)
	assert.Equal(t, models.RoleClient, session.Role)
	assert.Equal(t, models.SessionAuthenticated, session.State)

	got, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	snap := svc.Snapshot(got)
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "Ana", snap.User.DisplayName)

	guest := svc.Snapshot(models.AnonymousSession())
	assert.False(t, guest.IsAuthenticated)
	assert.Equal(t, models.RoleGuest, guest.Role)
	assert.Nil(t, guest.User)
}

func TestLogin_Rejections(t *testing.T) {
	_, svc, _ := newSessionFixture(t)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = svc.Login(ctx, "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	for i := 0; i < 3; i++ {
		_, _, err = svc.Login(ctx, "ana@example.com", "wrong")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	_, _, err = svc.Login(ctx, "ana@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, domain.ErrTooManyAttempts)
}

func TestAuthenticate_AfterLogoutAndRevoke(t *testing.T) {
	_, svc, client := newSessionFixture(t)
	ctx := context.Background()

	first, token1, err := svc.Login(ctx, "ana@example.com", "s3cret-pass")
	require.NoError(t, err)
	_, token2, err := svc.Login(ctx, "ana@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, first.ID))
	_, err = svc.Authenticate(ctx, token1)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = svc.Authenticate(ctx, token2)
	require.NoError(t, err)

	n, err := svc.RevokeIdentity(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = svc.Authenticate(ctx, token2)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = svc.RevokeIdentity(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}
