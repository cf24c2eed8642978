package service

import (
	"context"
	"testing"

	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type attendanceFixture struct {
	*fixture
	svc          *AttendanceService
	instructor   *models.Identity
	slot         *models.ClassSlot
	reservations []int64
}

// newAttendanceFixture books three clients into a class that ran yesterday.
func newAttendanceFixture(t *testing.T) *attendanceFixture {
	f := newFixture(t)
	ctx := context.Background()
	instructor := f.identity(t, "lucia@example.com", models.RoleInstructor)
	slot := f.slot(t, "2025-01-04", "09:00", 5, 0, instructor.ID)

	af := &attendanceFixture{
		fixture:    f,
		svc:        NewAttendanceService(f.db, f.state, f.bus, f.worker, 0, f.clock, f.logger),
		instructor: instructor,
		slot:       slot,
	}
	for _, email := range []string{"ana@example.com", "bea@example.com", "carla@example.com"} {
		client := f.identity(t, email, models.RoleClient)
		f.pkg(t, client.ID, 5, 5, "2025-03-01")
		res, err := f.db.CreateReservation(ctx, client.ID, slot.ID, 0, "2025-01-01")
		require.NoError(t, err)
		af.reservations = append(af.reservations, res.Reservation.ID)
	}
	return af
}

func TestAttendance_StageAndSubmit(t *testing.T) {
	af := newAttendanceFixture(t)
	ctx := context.Background()
	actor := sessionFor(af.instructor)
	r := af.reservations

	sheet, err := af.svc.Draft(ctx, actor, af.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sheet.Total)
	assert.Equal(t, 0, sheet.Marked)

	sheet, err = af.svc.StageMark(ctx, actor, af.slot.ID, r[0], true)
	require.NoError(t, err)
	assert.Equal(t, 1, sheet.Marked)
	assert.False(t, sheet.Ready)

	// Staged marks survive a reload.
	sheet, err = af.svc.Draft(ctx, actor, af.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sheet.Marked)
	assert.Equal(t, 3, sheet.Total)
	for _, row := range sheet.Rows {
		if row.ReservationID == r[0] {
			assert.True(t, row.Staged)
			require.NotNil(t, row.Attended)
			assert.True(t, *row.Attended)
		} else {
			assert.Nil(t, row.Attended)
		}
	}

	_, err = af.svc.Submit(ctx, actor, af.slot.ID, map[int64]bool{r[1]: false})
	assert.ErrorIs(t, err, domain.ErrAttendanceIncomplete)

	af.bus.On("PublishJSON", events.EventAttendanceRecorded, mock.MatchedBy(func(p events.AttendanceEventPayload) bool {
		return p.Attended == 2 && p.Absent == 1
	})).Return(nil).Once()
	af.worker.On("EnqueueTask", ctx, models.SyncTaskAttendance, mock.Anything, mock.Anything).Return(nil).Times(3)

	sheet, err = af.svc.Submit(ctx, actor, af.slot.ID, map[int64]bool{r[1]: false, r[2]: true})
	require.NoError(t, err)
	assert.True(t, sheet.Ready)
	for _, row := range sheet.Rows {
		assert.False(t, row.Staged)
		require.NotNil(t, row.Attended)
	}
	af.bus.AssertExpectations(t)
	af.worker.AssertExpectations(t)

	draft, err := af.state.GetAttendanceDraft(ctx, af.instructor.ID, af.slot.ID)
	require.NoError(t, err)
	assert.Nil(t, draft)

	past, err := af.svc.RecentClasses(ctx, af.instructor.ID)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, 3, past[0].Confirmed)
	assert.Equal(t, 3, past[0].Marked)
}

func TestAttendance_Rejections(t *testing.T) {
	af := newAttendanceFixture(t)
	ctx := context.Background()

	t.Run("Anonymous", func(t *testing.T) {
		_, err := af.svc.Draft(ctx, models.AnonymousSession(), af.slot.ID)
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("OtherInstructor", func(t *testing.T) {
		other := af.identity(t, "marta@example.com", models.RoleInstructor)
		_, err := af.svc.StageMark(ctx, sessionFor(other), af.slot.ID, af.reservations[0], true)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("AdminAllowed", func(t *testing.T) {
		admin := af.identity(t, "admin@example.com", models.RoleAdmin)
		sheet, err := af.svc.Draft(ctx, sessionFor(admin), af.slot.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, sheet.Total)
	})

	t.Run("UnknownReservation", func(t *testing.T) {
		_, err := af.svc.StageMark(ctx, sessionFor(af.instructor), af.slot.ID, 999, true)
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
		_, err = af.svc.Submit(ctx, sessionFor(af.instructor), af.slot.ID, map[int64]bool{999: true})
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})

	t.Run("ClassNotFinished", func(t *testing.T) {
		// Classes from earlier today are still open.
		upcoming := af.fixture.slot(t, "2025-01-05", "08:00", 5, 0, af.instructor.ID)
		_, err := af.svc.Draft(ctx, sessionFor(af.instructor), upcoming.ID)
		assert.ErrorIs(t, err, domain.ErrClassNotFinished)
	})

	t.Run("UnknownSlot", func(t *testing.T) {
		_, err := af.svc.Draft(ctx, sessionFor(af.instructor), 999)
		assert.ErrorIs(t, err, domain.ErrSlotNotFound)
	})
}
