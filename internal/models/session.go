package models

import (
	"errors"
	"fmt"
	"time"
)

// SessionState tracks a login through its lifecycle.
type SessionState string

const (
	SessionAnonymous      SessionState = "anonymous"
	SessionAuthenticating SessionState = "authenticating"
	SessionAuthenticated  SessionState = "authenticated"
)

var ErrInvalidTransition = errors.New("invalid session transition")

var sessionTransitions = map[SessionState][]SessionState{
	SessionAnonymous:      {SessionAuthenticating},
	SessionAuthenticating: {SessionAuthenticated, SessionAnonymous},
	SessionAuthenticated:  {SessionAnonymous},
}

// Session is the server-side record behind an access token.
type Session struct {
	ID          string       `json:"id"`
	IdentityID  int64        `json:"identity_id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name"`
	Role        Role         `json:"role"`
	State       SessionState `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// AnonymousSession is the zero identity every request starts with.
func AnonymousSession() *Session {
	return &Session{Role: RoleGuest, State: SessionAnonymous}
}

// Transition moves the session to the next state or fails if the edge does not exist.
func (s *Session) Transition(to SessionState) error {
	from := s.State
	if from == "" {
		from = SessionAnonymous
	}
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			s.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Authenticated reports whether the session is live at now.
func (s *Session) Authenticated(now time.Time) bool {
	if s == nil || s.State != SessionAuthenticated {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// SessionSnapshot is the display-only copy a client keeps locally.
type SessionSnapshot struct {
	User            *SnapshotUser `json:"user"`
	Role            Role          `json:"role"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	Timestamp       int64         `json:"timestamp"`
}

type SnapshotUser struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Expired reports whether the snapshot is older than SessionTTL.
func (s SessionSnapshot) Expired(now time.Time) bool {
	taken := time.UnixMilli(s.Timestamp)
	return now.Sub(taken) > SessionTTL
}
