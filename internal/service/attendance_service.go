package service

import (
	"context"
	"fmt"

	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/metrics"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

// AttendanceService stages marks in the state store and commits a whole
// class at once.
type AttendanceService struct {
	repo         domain.Repository
	state        domain.StateRepository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	historyLimit int
	clock        Clock
	logger       *zerolog.Logger
}

func NewAttendanceService(
	repo domain.Repository,
	state domain.StateRepository,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	historyLimit int,
	clock Clock,
	logger *zerolog.Logger,
) *AttendanceService {
	if historyLimit <= 0 {
		historyLimit = models.DefaultAttendanceHistory
	}
	return &AttendanceService{
		repo:         repo,
		state:        state,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		historyLimit: historyLimit,
		clock:        clock,
		logger:       logger,
	}
}

// RecentClasses lists finished classes with bookings, oldest first.
// instructorID 0 lists every instructor's classes.
func (s *AttendanceService) RecentClasses(ctx context.Context, instructorID int64) ([]models.PastClass, error) {
	return s.repo.GetRecentPastClasses(ctx, instructorID, formatDay(s.clock.Today()), s.historyLimit)
}

func (s *AttendanceService) Draft(ctx context.Context, actor *models.Session, slotID int64) (*models.AttendanceSheet, error) {
	sheet, draft, err := s.load(ctx, actor, slotID)
	if err != nil {
		return nil, err
	}
	return s.build(sheet.roster, draft), nil
}

func (s *AttendanceService) StageMark(ctx context.Context, actor *models.Session, slotID, reservationID int64, attended bool) (*models.AttendanceSheet, error) {
	sheet, draft, err := s.load(ctx, actor, slotID)
	if err != nil {
		return nil, err
	}
	if !sheet.has(reservationID) {
		return nil, domain.ErrReservationNotFound
	}

	draft.Marks[reservationID] = attended
	draft.UpdatedAt = s.clock.now()
	if err := s.state.SaveAttendanceDraft(ctx, draft, models.AttendanceDraftTTL); err != nil {
		return nil, fmt.Errorf("failed to save attendance draft: %w", err)
	}

	return s.build(sheet.roster, draft), nil
}

// Submit merges marks into the staged draft and commits the class. Every
// confirmed reservation must end up with a value.
func (s *AttendanceService) Submit(ctx context.Context, actor *models.Session, slotID int64, marks map[int64]bool) (*models.AttendanceSheet, error) {
	sheet, draft, err := s.load(ctx, actor, slotID)
	if err != nil {
		metrics.IncAttendance(domain.Kind(err))
		return nil, err
	}
	for id, v := range marks {
		if !sheet.has(id) {
			metrics.IncAttendance("not_found")
			return nil, domain.ErrReservationNotFound
		}
		draft.Marks[id] = v
	}

	merged := s.build(sheet.roster, draft)
	if !merged.Ready {
		metrics.IncAttendance("incomplete")
		return nil, domain.ErrAttendanceIncomplete
	}

	final := make(map[int64]bool, len(merged.Rows))
	for _, row := range merged.Rows {
		final[row.ReservationID] = *row.Attended
	}
	if err := s.repo.RecordAttendance(ctx, slotID, final); err != nil {
		metrics.IncAttendance(domain.Kind(err))
		return nil, err
	}
	metrics.IncAttendance("recorded")

	if err := s.state.ClearAttendanceDraft(ctx, actor.IdentityID, slotID); err != nil {
		s.logger.Warn().Err(err).Int64("slot_id", slotID).Msg("failed to clear attendance draft")
	}

	s.logger.Info().Int64("slot_id", slotID).Int64("recorded_by", actor.IdentityID).Int("marks", len(final)).Msg("attendance submitted")
	s.afterSubmit(ctx, actor, sheet.roster, final)

	committed := s.build(sheet.roster, &models.AttendanceDraft{Marks: final})
	for i := range committed.Rows {
		committed.Rows[i].Staged = false
	}
	return committed, nil
}

type loadedSheet struct {
	roster *models.SlotRoster
	ids    map[int64]struct{}
}

func (l loadedSheet) has(reservationID int64) bool {
	_, ok := l.ids[reservationID]
	return ok
}

// load checks that actor may record attendance for the slot and returns
// the roster together with the actor's draft.
func (s *AttendanceService) load(ctx context.Context, actor *models.Session, slotID int64) (loadedSheet, *models.AttendanceDraft, error) {
	if actor == nil || !actor.Authenticated(s.clock.now()) {
		return loadedSheet{}, nil, domain.ErrSessionExpired
	}

	roster, err := s.repo.GetSlotRoster(ctx, slotID)
	if err != nil {
		return loadedSheet{}, nil, err
	}
	if actor.Role != models.RoleAdmin && roster.Slot.InstructorID != actor.IdentityID {
		return loadedSheet{}, nil, fmt.Errorf("%w: class belongs to another instructor", domain.ErrForbidden)
	}

	day, err := roster.Slot.Day()
	if err != nil {
		return loadedSheet{}, nil, domain.Validationf("%v", err)
	}
	if !s.clock.Day(day).Before(s.clock.Today()) {
		return loadedSheet{}, nil, domain.ErrClassNotFinished
	}

	draft, err := s.state.GetAttendanceDraft(ctx, actor.IdentityID, slotID)
	if err != nil {
		return loadedSheet{}, nil, fmt.Errorf("failed to load attendance draft: %w", err)
	}
	if draft == nil {
		draft = &models.AttendanceDraft{InstructorID: actor.IdentityID, SlotID: slotID}
	}
	if draft.Marks == nil {
		draft.Marks = make(map[int64]bool)
	}

	ids := make(map[int64]struct{}, len(roster.Reservations))
	for _, r := range roster.Reservations {
		ids[r.ID] = struct{}{}
	}
	return loadedSheet{roster: roster, ids: ids}, draft, nil
}

// build overlays staged marks on the persisted ones.
func (s *AttendanceService) build(roster *models.SlotRoster, draft *models.AttendanceDraft) *models.AttendanceSheet {
	sheet := &models.AttendanceSheet{Slot: roster.Slot, Rows: make([]models.AttendanceRow, 0, len(roster.Reservations))}
	for _, r := range roster.Reservations {
		row := models.AttendanceRow{
			ReservationID: r.ID,
			ClientID:      r.ClientID,
			ClientName:    r.ClientName,
			ClientPhone:   r.ClientPhone,
			Attended:      r.Attended,
		}
		if v, ok := draft.Marks[r.ID]; ok {
			staged := v
			row.Attended = &staged
			row.Staged = true
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	sheet.Tally()
	return sheet
}

func (s *AttendanceService) afterSubmit(ctx context.Context, actor *models.Session, roster *models.SlotRoster, marks map[int64]bool) {
	if s.eventBus != nil {
		payload := events.AttendanceEventPayload{
			SlotID:       roster.Slot.ID,
			Date:         roster.Slot.Date,
			StartTime:    roster.Slot.StartTime,
			InstructorID: roster.Slot.InstructorID,
			RecordedBy:   actor.IdentityID,
			Marks:        marks,
		}
		for _, v := range marks {
			if v {
				payload.Attended++
			} else {
				payload.Absent++
			}
		}
		if err := s.eventBus.PublishJSON(events.EventAttendanceRecorded, payload); err != nil {
			s.logger.Error().Err(err).Int64("slot_id", roster.Slot.ID).Msg("publish event error")
		}
	}

	if s.sheetsWorker == nil {
		return
	}
	for i := range roster.Reservations {
		detail := roster.Reservations[i]
		v := marks[detail.ID]
		detail.Attended = &v
		if err := s.sheetsWorker.EnqueueTask(ctx, models.SyncTaskAttendance, detail.ID, &detail); err != nil {
			s.logger.Error().Err(err).Int64("reservation_id", detail.ID).Msg("sheets enqueue error")
		}
	}
}
