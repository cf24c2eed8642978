package repository

import (
	"context"
	"sync"
	"time"

	"studiobook/internal/models"
)

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStateRepository is the in-process fallback used while Redis is away.
// State does not survive a restart.
type MemoryStateRepository struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	identities map[int64]map[string]struct{}
	now        func() time.Time
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		entries:    make(map[string]memoryEntry),
		identities: make(map[int64]map[string]struct{}),
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) load(key string) (any, bool) {
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(r.now()) {
		delete(r.entries, key)
		return nil, false
	}
	return e.value, true
}

func (r *MemoryStateRepository) store(key string, value any, ttl time.Duration) {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = r.now().Add(ttl)
	}
	r.entries[key] = e
}

func (r *MemoryStateRepository) GetSession(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.load(sessionKey(id))
	if !ok {
		return nil, nil
	}
	s := v.(models.Session)
	return &s, nil
}

func (r *MemoryStateRepository) SaveSession(_ context.Context, session *models.Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(sessionKey(session.ID), *session, ttl)
	ids, ok := r.identities[session.IdentityID]
	if !ok {
		ids = make(map[string]struct{})
		r.identities[session.IdentityID] = ids
	}
	ids[session.ID] = struct{}{}
	return nil
}

func (r *MemoryStateRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.load(sessionKey(id)); ok {
		delete(r.identities[v.(models.Session).IdentityID], id)
	}
	delete(r.entries, sessionKey(id))
	return nil
}

func (r *MemoryStateRepository) DeleteIdentitySessions(_ context.Context, identityID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id := range r.identities[identityID] {
		if _, ok := r.load(sessionKey(id)); ok {
			removed++
		}
		delete(r.entries, sessionKey(id))
	}
	delete(r.identities, identityID)
	return removed, nil
}

func (r *MemoryStateRepository) GetAttendanceDraft(_ context.Context, instructorID, slotID int64) (*models.AttendanceDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.load(draftKey(instructorID, slotID))
	if !ok {
		return nil, nil
	}
	d := v.(models.AttendanceDraft)
	marks := make(map[int64]bool, len(d.Marks))
	for k, m := range d.Marks {
		marks[k] = m
	}
	d.Marks = marks
	return &d, nil
}

func (r *MemoryStateRepository) SaveAttendanceDraft(_ context.Context, draft *models.AttendanceDraft, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := *draft
	d.Marks = make(map[int64]bool, len(draft.Marks))
	for k, m := range draft.Marks {
		d.Marks[k] = m
	}
	r.store(draftKey(draft.InstructorID, draft.SlotID), d, ttl)
	return nil
}

func (r *MemoryStateRepository) ClearAttendanceDraft(_ context.Context, instructorID, slotID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, draftKey(instructorID, slotID))
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 1
	k := rateLimitKey(key)
	if v, ok := r.load(k); ok {
		count = v.(int) + 1
		e := r.entries[k]
		e.value = count
		r.entries[k] = e
	} else {
		r.store(k, count, window)
	}
	return count <= limit, nil
}
