package service

import (
	"context"
	"testing"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/database"
	"studiobook/internal/models"
	"studiobook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt string, rid int64, d *models.ReservationDetail) error {
	return m.Called(ctx, tt, rid, d).Error(0)
}

// fixedClock pins the studio to 2025-01-05 12:00 UTC.
func fixedClock() Clock {
	return Clock{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC) },
	}
}

type fixture struct {
	db      *database.DB
	state   *repository.MemoryStateRepository
	bus     *mockEventBus
	worker  *mockWorker
	clock   Clock
	logger  *zerolog.Logger
	avail   *AvailabilityService
	reserve *ReservationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:     db,
		state:  repository.NewMemoryStateRepository(),
		bus:    new(mockEventBus),
		worker: new(mockWorker),
		clock:  fixedClock(),
		logger: &logger,
	}
	f.avail = NewAvailabilityService(db, config.BookingConfig{ClientMonthsAhead: 2, HistoryDays: 90}, f.clock, &logger)
	f.reserve = NewReservationService(db, f.avail, f.bus, f.worker, f.clock, &logger)
	return f
}

func (f *fixture) identity(t *testing.T, email string, role models.Role) *models.Identity {
	t.Helper()
	id := &models.Identity{Email: email, DisplayName: email, Role: role}
	require.NoError(t, f.db.CreateIdentity(context.Background(), id))
	return id
}

func (f *fixture) slot(t *testing.T, date, start string, capacity, current int, instructorID int64) *models.ClassSlot {
	t.Helper()
	s := &models.ClassSlot{
		Date:            date,
		StartTime:       start,
		EndTime:         "23:00",
		CapacityMax:     capacity,
		CapacityCurrent: current,
		InstructorID:    instructorID,
	}
	require.NoError(t, f.db.CreateSlot(context.Background(), s))
	return s
}

func (f *fixture) pkg(t *testing.T, clientID int64, total, remaining int, expires string) *models.ClassPackage {
	t.Helper()
	p := &models.ClassPackage{
		ClientID:         clientID,
		Name:             "Pack",
		ClassesTotal:     total,
		ClassesRemaining: remaining,
		ExpiresAt:        expires,
		Active:           true,
	}
	require.NoError(t, f.db.CreatePackage(context.Background(), p))
	return p
}

func (f *fixture) expectSideEffects() {
	f.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	f.worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func sessionFor(identity *models.Identity) *models.Session {
	return &models.Session{
		ID:         "sid",
		IdentityID: identity.ID,
		Role:       identity.Role,
		State:      models.SessionAuthenticated,
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}
