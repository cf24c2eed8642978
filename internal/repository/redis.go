package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/models"

	"github.com/redis/go-redis/v9"
)

var errNilClient = errors.New("redis client is nil")

func sessionKey(id string) string { return "session:" + id }

func identitySessionsKey(identityID int64) string {
	return fmt.Sprintf("identity_sessions:%d", identityID)
}

func draftKey(instructorID, slotID int64) string {
	return fmt.Sprintf("attendance_draft:%d:%d", instructorID, slotID)
}

func rateLimitKey(key string) string { return "rate_limit:" + key }

// RedisStateRepository keeps sessions, attendance drafts and login counters
// in Redis as JSON values with expirations.
type RedisStateRepository struct {
	client *redis.Client
}

// NewRedisClient builds a client from the redis section of the config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

func (r *RedisStateRepository) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisStateRepository) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisStateRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	found, err := r.getJSON(ctx, sessionKey(id), &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func (r *RedisStateRepository) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if err := r.setJSON(ctx, sessionKey(session.ID), session, ttl); err != nil {
		return err
	}

	index := identitySessionsKey(session.IdentityID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, index, session.ID)
		pipe.Expire(ctx, index, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) DeleteSession(ctx context.Context, id string) error {
	if r.client == nil {
		return errNilClient
	}
	session, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	if session != nil {
		r.client.SRem(ctx, identitySessionsKey(session.IdentityID), id)
	}
	return nil
}

// DeleteIdentitySessions drops every live session of the identity and
// reports how many were removed.
func (r *RedisStateRepository) DeleteIdentitySessions(ctx context.Context, identityID int64) (int, error) {
	if r.client == nil {
		return 0, errNilClient
	}
	index := identitySessionsKey(identityID)
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	removed := 0
	if len(keys) > 0 {
		n, err := r.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to delete sessions: %w", err)
		}
		removed = int(n)
	}
	if err := r.client.Del(ctx, index).Err(); err != nil {
		return removed, fmt.Errorf("failed to delete session index: %w", err)
	}
	return removed, nil
}

func (r *RedisStateRepository) GetAttendanceDraft(ctx context.Context, instructorID, slotID int64) (*models.AttendanceDraft, error) {
	var draft models.AttendanceDraft
	found, err := r.getJSON(ctx, draftKey(instructorID, slotID), &draft)
	if err != nil || !found {
		return nil, err
	}
	return &draft, nil
}

func (r *RedisStateRepository) SaveAttendanceDraft(ctx context.Context, draft *models.AttendanceDraft, ttl time.Duration) error {
	return r.setJSON(ctx, draftKey(draft.InstructorID, draft.SlotID), draft, ttl)
}

func (r *RedisStateRepository) ClearAttendanceDraft(ctx context.Context, instructorID, slotID int64) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, draftKey(instructorID, slotID)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft from redis: %w", err)
	}
	return nil
}

// CheckRateLimit counts a hit on key and reports whether it is within limit for the window.
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	k := rateLimitKey(key)
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		r.client.Expire(ctx, k, window)
	}
	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
