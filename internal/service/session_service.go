package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiobook/internal/auth"
	"studiobook/internal/config"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionService logs identities in and out. Sessions live in the state
// store; the access token only points at one.
type SessionService struct {
	identities    domain.IdentityRepository
	state         domain.StateRepository
	tokens        *auth.TokenManager
	sessionTTL    time.Duration
	loginAttempts int
	loginWindow   time.Duration
	clock         Clock
	logger        *zerolog.Logger
}

func NewSessionService(
	identities domain.IdentityRepository,
	state domain.StateRepository,
	tokens *auth.TokenManager,
	cfg config.APIAuthConfig,
	clock Clock,
	logger *zerolog.Logger,
) *SessionService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = models.SessionTTL
	}
	return &SessionService{
		identities:    identities,
		state:         state,
		tokens:        tokens,
		sessionTTL:    cfg.SessionTTL,
		loginAttempts: cfg.LoginAttempts,
		loginWindow:   cfg.LoginWindow,
		clock:         clock,
		logger:        logger,
	}
}

func (s *SessionService) Login(ctx context.Context, email, password string) (*models.Session, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", domain.Validationf("email and password are required")
	}

	if s.loginAttempts > 0 {
		allowed, err := s.state.CheckRateLimit(ctx, "login:"+email, s.loginAttempts, s.loginWindow)
		if err != nil {
			return nil, "", fmt.Errorf("failed to check login rate: %w", err)
		}
		if !allowed {
			s.logger.Warn().Str("email", email).Msg("login rate limit exceeded")
			return nil, "", domain.ErrTooManyAttempts
		}
	}

	session := models.AnonymousSession()
	if err := session.Transition(models.SessionAuthenticating); err != nil {
		return nil, "", err
	}

	identity, err := s.identities.GetIdentityByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, "", err
	}
	role, known := models.Role(""), false
	if identity != nil {
		role, known = models.ParseRole(string(identity.Role))
	}
	if identity == nil || !known || role == models.RoleGuest || !auth.CheckPassword(identity.PasswordHash, password) {
		_ = session.Transition(models.SessionAnonymous)
		s.logger.Info().Str("email", email).Msg("login rejected")
		return nil, "", domain.ErrInvalidCredentials
	}

	now := s.clock.now()
	session.ID = uuid.NewString()
	session.IdentityID = identity.ID
	session.Email = identity.Email
	session.DisplayName = identity.DisplayName
	session.Role = role
	session.CreatedAt = now
	session.ExpiresAt = now.Add(s.sessionTTL)
	if err := session.Transition(models.SessionAuthenticated); err != nil {
		return nil, "", err
	}

	if err := s.state.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, "", fmt.Errorf("failed to save session: %w", err)
	}

	token, _, err := s.tokens.Issue(session)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().Int64("identity_id", identity.ID).Str("role", role.String()).Msg("login succeeded")
	return session, token, nil
}

// Authenticate resolves a token to its live session. A valid token whose
// session was revoked or expired is rejected.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, domain.ErrSessionExpired
	}

	session, err := s.state.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil || !session.Authenticated(s.clock.now()) {
		return nil, domain.ErrSessionExpired
	}
	if id, err := claims.IdentityID(); err != nil || id != session.IdentityID {
		return nil, domain.ErrSessionExpired
	}
	return session, nil
}

func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if err := s.state.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RevokeIdentity signs an identity out everywhere.
func (s *SessionService) RevokeIdentity(ctx context.Context, identityID int64) (int, error) {
	if _, err := s.identities.GetIdentityByID(ctx, identityID); err != nil {
		return 0, err
	}
	n, err := s.state.DeleteIdentitySessions(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.logger.Info().Int64("identity_id", identityID).Int("sessions", n).Msg("identity sessions revoked")
	return n, nil
}

// Snapshot is the display copy the front end keeps under models.SessionSnapshotKey.
func (s *SessionService) Snapshot(session *models.Session) models.SessionSnapshot {
	now := s.clock.now()
	if !session.Authenticated(now) {
		return models.SessionSnapshot{Role: models.RoleGuest, Timestamp: now.UnixMilli()}
	}
	return models.SessionSnapshot{
		User: &models.SnapshotUser{
			ID:          session.IdentityID,
			Email:       session.Email,
			DisplayName: session.DisplayName,
		},
		Role:            session.Role,
		IsAuthenticated: true,
		Timestamp:       now.UnixMilli(),
	}
}
