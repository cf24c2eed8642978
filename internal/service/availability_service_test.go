package service

import (
	"context"
	"testing"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSlotRepo struct {
	mock.Mock
}

func (m *mockSlotRepo) GetSlot(ctx context.Context, id int64) (*models.ClassSlot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClassSlot), args.Error(1)
}

func (m *mockSlotRepo) GetSlotsByDate(ctx context.Context, date string) ([]*models.ClassSlot, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ClassSlot), args.Error(1)
}

func (m *mockSlotRepo) GetSlotsInRange(ctx context.Context, from, to string) ([]*models.ClassSlot, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ClassSlot), args.Error(1)
}

func (m *mockSlotRepo) GetInstructorCalendar(ctx context.Context, id int64, from, to string) ([]models.CalendarSlot, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CalendarSlot), args.Error(1)
}

func (m *mockSlotRepo) GetSlotRoster(ctx context.Context, slotID int64) (*models.SlotRoster, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SlotRoster), args.Error(1)
}

func day(s string) time.Time {
	d, _ := time.Parse(models.DateLayout, s)
	return d
}

func TestBookingWindow(t *testing.T) {
	f := newFixture(t)
	today := f.clock.Today()

	earliest, latest := f.avail.BookingWindow(models.RoleClient, today)
	assert.Equal(t, "2025-01-05", formatDay(earliest))
	assert.Equal(t, "2025-03-31", formatDay(latest))

	_, latest = f.avail.BookingWindow(models.RoleGuest, day("2025-12-15"))
	assert.Equal(t, "2026-02-28", formatDay(latest))

	earliest, latest = f.avail.BookingWindow(models.RoleInstructor, today)
	assert.Equal(t, "2024-10-07", formatDay(earliest))
	assert.Equal(t, "2025-04-05", formatDay(latest))
}

func TestDaySlots(t *testing.T) {
	repo := new(mockSlotRepo)
	f := newFixture(t)
	svc := NewAvailabilityService(repo, config.BookingConfig{ClientMonthsAhead: 2, HistoryDays: 90}, f.clock, f.logger)
	ctx := context.Background()

	t.Run("OutOfWindowIssuesNoQuery", func(t *testing.T) {
		_, err := svc.DaySlots(ctx, models.RoleClient, day("2025-04-01"))
		assert.ErrorIs(t, err, domain.ErrDateOutOfWindow)
		_, err = svc.DaySlots(ctx, models.RoleClient, day("2025-01-04"))
		assert.ErrorIs(t, err, domain.ErrDateOutOfWindow)
		repo.AssertNotCalled(t, "GetSlotsByDate", mock.Anything, mock.Anything)
	})

	t.Run("InstructorSeesHistory", func(t *testing.T) {
		repo.On("GetSlotsByDate", ctx, "2024-12-20").Return([]*models.ClassSlot{}, nil).Once()
		slots, err := svc.DaySlots(ctx, models.RoleInstructor, day("2024-12-20"))
		require.NoError(t, err)
		assert.Empty(t, slots)
		repo.AssertExpectations(t)
	})

	t.Run("RangeIsClipped", func(t *testing.T) {
		repo.On("GetSlotsInRange", ctx, "2025-01-05", "2025-01-31").Return([]*models.ClassSlot{{ID: 1}}, nil).Once()
		slots, err := svc.RangeSlots(ctx, models.RoleClient, day("2025-01-01"), day("2025-01-31"))
		require.NoError(t, err)
		assert.Len(t, slots, 1)
		repo.AssertExpectations(t)

		slots, err = svc.RangeSlots(ctx, models.RoleClient, day("2024-11-01"), day("2024-11-30"))
		require.NoError(t, err)
		assert.Empty(t, slots)

		_, err = svc.RangeSlots(ctx, models.RoleClient, day("2025-01-10"), day("2025-01-09"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestAvailability_WithDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	instructor := f.identity(t, "lucia@example.com", models.RoleInstructor)

	f.slot(t, "2025-01-10", "11:00", 5, 0, instructor.ID)
	f.slot(t, "2025-01-10", "09:00", 5, 5, instructor.ID)
	f.slot(t, "2025-01-11", "09:00", 4, 2, 0)

	slots, err := f.avail.DaySlots(ctx, models.RoleClient, day("2025-01-10"))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.False(t, slots[0].Available)
	assert.True(t, slots[1].Available)

	empty, err := f.avail.DaySlots(ctx, models.RoleClient, day("2025-01-12"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	calendar, err := f.avail.InstructorCalendar(ctx, instructor.ID, day("2025-01-01"), day("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, calendar, 2)
	assert.Equal(t, models.OccupancyFull, calendar[0].OccupancyState)
	assert.Equal(t, "#e74c3c", calendar[0].Color)
	assert.Equal(t, models.OccupancyEmpty, calendar[1].OccupancyState)

	_, err = f.avail.InstructorCalendar(ctx, instructor.ID, day("2025-06-01"), day("2025-06-30"))
	assert.ErrorIs(t, err, domain.ErrDateOutOfWindow)
}
