package service

import (
	"context"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

type AvailabilityService struct {
	repo        domain.SlotRepository
	monthsAhead int
	historyDays int
	clock       Clock
	logger      *zerolog.Logger
}

func NewAvailabilityService(repo domain.SlotRepository, cfg config.BookingConfig, clock Clock, logger *zerolog.Logger) *AvailabilityService {
	if cfg.ClientMonthsAhead <= 0 {
		cfg.ClientMonthsAhead = 2
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	return &AvailabilityService{
		repo:        repo,
		monthsAhead: cfg.ClientMonthsAhead,
		historyDays: cfg.HistoryDays,
		clock:       clock,
		logger:      logger,
	}
}

// BookingWindow returns the first and last bookable day for role. Clients
// and guests look from today to the end of the month monthsAhead away; staff
// look historyDays back and forth.
func (s *AvailabilityService) BookingWindow(role models.Role, today time.Time) (time.Time, time.Time) {
	today = dayOf(today)
	switch role {
	case models.RoleInstructor, models.RoleAdmin:
		return today.AddDate(0, 0, -s.historyDays), today.AddDate(0, 0, s.historyDays)
	default:
		y, m, _ := today.Date()
		last := time.Date(y, m+time.Month(s.monthsAhead)+1, 0, 0, 0, 0, 0, today.Location())
		return today, last
	}
}

func (s *AvailabilityService) inWindow(role models.Role, day time.Time) bool {
	earliest, latest := s.BookingWindow(role, s.clock.Today())
	day = s.clock.Day(day)
	return !day.Before(earliest) && !day.After(latest)
}

func (s *AvailabilityService) DaySlots(ctx context.Context, role models.Role, date time.Time) ([]*models.ClassSlot, error) {
	if !s.inWindow(role, date) {
		return nil, domain.ErrDateOutOfWindow
	}
	return s.repo.GetSlotsByDate(ctx, formatDay(date))
}

// RangeSlots lists slots between from and to, clipped to the role's window.
func (s *AvailabilityService) RangeSlots(ctx context.Context, role models.Role, from, to time.Time) ([]*models.ClassSlot, error) {
	from, to = s.clock.Day(from), s.clock.Day(to)
	if to.Before(from) {
		return nil, domain.Validationf("range end %s is before start %s", formatDay(to), formatDay(from))
	}

	earliest, latest := s.BookingWindow(role, s.clock.Today())
	if from.Before(earliest) {
		from = earliest
	}
	if to.After(latest) {
		to = latest
	}
	if to.Before(from) {
		return []*models.ClassSlot{}, nil
	}
	return s.repo.GetSlotsInRange(ctx, formatDay(from), formatDay(to))
}

func (s *AvailabilityService) InstructorCalendar(ctx context.Context, instructorID int64, from, to time.Time) ([]models.CalendarSlot, error) {
	from, to = s.clock.Day(from), s.clock.Day(to)
	if to.Before(from) {
		return nil, domain.Validationf("range end is before start")
	}
	if !s.inWindow(models.RoleInstructor, from) || !s.inWindow(models.RoleInstructor, to) {
		return nil, domain.ErrDateOutOfWindow
	}
	return s.repo.GetInstructorCalendar(ctx, instructorID, formatDay(from), formatDay(to))
}

func (s *AvailabilityService) SlotRoster(ctx context.Context, slotID int64) (*models.SlotRoster, error) {
	return s.repo.GetSlotRoster(ctx, slotID)
}
