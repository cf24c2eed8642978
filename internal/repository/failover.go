package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository sends calls to primary and switches to fallback
// after the first primary error. Primary is retried once a minute.
// Deletions reach both stores; those made while primary is down are replayed
// against it before it serves again, so revoked sessions stay revoked.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time

	mu      sync.Mutex
	pending []deletion
}

type deletion func(ctx context.Context, s domain.StateRepository) error

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Degraded reports whether calls are currently served by the fallback.
func (r *FailoverStateRepository) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverStateRepository) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverStateRepository) shouldTryPrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func call[T any](ctx context.Context, r *FailoverStateRepository, op string, fn func(domain.StateRepository) (T, error)) (T, error) {
	if r.shouldTryPrimary() {
		wasDown := r.isDown.Load()
		if wasDown {
			if err := r.replay(ctx); err != nil {
				r.markDown(op, err)
				return fn(r.fallback)
			}
		}
		v, err := fn(r.primary)
		if err == nil {
			if wasDown {
				r.isDown.Store(false)
				r.logger.Info().Str("op", op).Msg("primary state repository recovered")
			}
			return v, nil
		}
		r.markDown(op, err)
	}
	return fn(r.fallback)
}

// replay applies deletions recorded during an outage to primary.
func (r *FailoverStateRepository) replay(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, del := range r.pending {
		if err := del(ctx, r.primary); err != nil {
			r.pending = r.pending[i:]
			return err
		}
	}
	if len(r.pending) > 0 {
		r.logger.Info().Int("deletions", len(r.pending)).Msg("replayed deletions on primary state repository")
	}
	r.pending = nil
	return nil
}

// mirror runs a deletion already served by call on the other store. While
// primary is down it is queued for replay instead.
func (r *FailoverStateRepository) mirror(ctx context.Context, op string, del deletion) {
	if r.isDown.Load() {
		r.mu.Lock()
		r.pending = append(r.pending, del)
		r.mu.Unlock()
		return
	}
	if err := del(ctx, r.fallback); err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("fallback state repository delete failed")
	}
}

// Pending is the number of deletions waiting for primary.
func (r *FailoverStateRepository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *FailoverStateRepository) remove(ctx context.Context, op string, del deletion) error {
	_, err := call(ctx, r, op, func(s domain.StateRepository) (struct{}, error) {
		return struct{}{}, del(ctx, s)
	})
	r.mirror(ctx, op, del)
	return err
}

func (r *FailoverStateRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return call(ctx, r, "get_session", func(s domain.StateRepository) (*models.Session, error) {
		return s.GetSession(ctx, id)
	})
}

func (r *FailoverStateRepository) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	_, err := call(ctx, r, "save_session", func(s domain.StateRepository) (struct{}, error) {
		return struct{}{}, s.SaveSession(ctx, session, ttl)
	})
	return err
}

func (r *FailoverStateRepository) DeleteSession(ctx context.Context, id string) error {
	return r.remove(ctx, "delete_session", func(ctx context.Context, s domain.StateRepository) error {
		return s.DeleteSession(ctx, id)
	})
}

func (r *FailoverStateRepository) DeleteIdentitySessions(ctx context.Context, identityID int64) (int, error) {
	n, err := call(ctx, r, "delete_identity_sessions", func(s domain.StateRepository) (int, error) {
		return s.DeleteIdentitySessions(ctx, identityID)
	})
	r.mirror(ctx, "delete_identity_sessions", func(ctx context.Context, s domain.StateRepository) error {
		_, err := s.DeleteIdentitySessions(ctx, identityID)
		return err
	})
	return n, err
}

func (r *FailoverStateRepository) GetAttendanceDraft(ctx context.Context, instructorID, slotID int64) (*models.AttendanceDraft, error) {
	return call(ctx, r, "get_draft", func(s domain.StateRepository) (*models.AttendanceDraft, error) {
		return s.GetAttendanceDraft(ctx, instructorID, slotID)
	})
}

func (r *FailoverStateRepository) SaveAttendanceDraft(ctx context.Context, draft *models.AttendanceDraft, ttl time.Duration) error {
	_, err := call(ctx, r, "save_draft", func(s domain.StateRepository) (struct{}, error) {
		return struct{}{}, s.SaveAttendanceDraft(ctx, draft, ttl)
	})
	return err
}

func (r *FailoverStateRepository) ClearAttendanceDraft(ctx context.Context, instructorID, slotID int64) error {
	return r.remove(ctx, "clear_draft", func(ctx context.Context, s domain.StateRepository) error {
		return s.ClearAttendanceDraft(ctx, instructorID, slotID)
	})
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return call(ctx, r, "rate_limit", func(s domain.StateRepository) (bool, error) {
		return s.CheckRateLimit(ctx, key, limit, window)
	})
}
