package service

import (
	"context"
	"errors"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/metrics"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

type ReservationService struct {
	repo         domain.Repository
	availability domain.AvailabilityService
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	clock        Clock
	logger       *zerolog.Logger
}

func NewReservationService(
	repo domain.Repository,
	availability domain.AvailabilityService,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	clock Clock,
	logger *zerolog.Logger,
) *ReservationService {
	return &ReservationService{
		repo:         repo,
		availability: availability,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		clock:        clock,
		logger:       logger,
	}
}

// Eligibility returns the package the next booking would be charged to.
func (s *ReservationService) Eligibility(ctx context.Context, clientID int64) (*models.ClassPackage, error) {
	return s.repo.GetEligiblePackage(ctx, clientID, formatDay(s.clock.Today()))
}

func (s *ReservationService) Packages(ctx context.Context, clientID int64) ([]*models.ClassPackage, error) {
	return s.repo.GetClientPackages(ctx, clientID)
}

func (s *ReservationService) ClientReservations(ctx context.Context, clientID int64) ([]*models.ReservationDetail, error) {
	return s.repo.GetClientReservations(ctx, clientID)
}

// ValidateSlotDate rejects slots that already started and slots outside the
// client's window.
func (s *ReservationService) ValidateSlotDate(slot *models.ClassSlot) error {
	day, err := slot.Day()
	if err != nil {
		return domain.Validationf("%v", err)
	}
	startsAt, err := s.clock.slotStart(slot)
	if err != nil {
		return domain.Validationf("invalid slot start: %v", err)
	}
	if !startsAt.After(s.clock.now()) {
		return domain.ErrPastDate
	}
	day = s.clock.Day(day)
	today := s.clock.Today()
	_, latest := s.availability.BookingWindow(models.RoleClient, today)
	if day.After(latest) {
		return domain.ErrDateOutOfWindow
	}
	return nil
}

// Reserve books slotID for clientID, charging packageID or, when zero, the
// earliest-expiring eligible package.
func (s *ReservationService) Reserve(ctx context.Context, clientID, slotID, packageID int64) (*models.ReservationResult, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateSlotDate(slot); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.repo.CreateReservation(ctx, clientID, slotID, packageID, formatDay(s.clock.Today()))
	metrics.ObserveReservation(reservationOutcome(err), time.Since(start))
	if err != nil {
		s.logger.Info().Err(err).Int64("client_id", clientID).Int64("slot_id", slotID).Msg("reservation rejected")
		return nil, err
	}

	s.logger.Info().
		Int64("reservation_id", result.Reservation.ID).
		Int64("client_id", clientID).
		Int64("slot_id", slotID).
		Int("classes_remaining", result.ClassesRemaining).
		Msg("reservation created")

	s.afterWrite(ctx, events.EventReservationCreated, result)
	return result, nil
}

// Cancel releases a future reservation and refunds its class.
func (s *ReservationService) Cancel(ctx context.Context, clientID, reservationID int64) (*models.ReservationResult, error) {
	current, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if current.ClientID != clientID {
		return nil, domain.ErrReservationNotFound
	}

	slot, err := s.repo.GetSlot(ctx, current.SlotID)
	if err != nil {
		return nil, err
	}
	startsAt, err := s.clock.slotStart(slot)
	if err != nil {
		return nil, domain.Validationf("invalid slot start: %v", err)
	}
	if !startsAt.After(s.clock.now()) {
		return nil, domain.ErrPastDate
	}

	result, err := s.repo.CancelReservation(ctx, clientID, reservationID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("reservation_id", reservationID).Int64("client_id", clientID).Msg("reservation cancelled")
	s.afterWrite(ctx, events.EventReservationCancelled, result)
	return result, nil
}

func reservationOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrDuplicateReservation):
		return "duplicate"
	case errors.Is(err, domain.ErrSlotFull):
		return "full"
	case errors.Is(err, domain.ErrNoEligiblePackage):
		return "ineligible"
	default:
		return domain.Kind(err)
	}
}

func (s *ReservationService) afterWrite(ctx context.Context, eventType string, result *models.ReservationResult) {
	detail, err := s.repo.GetReservationDetail(ctx, result.Reservation.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", result.Reservation.ID).Msg("failed to load reservation detail")
		return
	}

	if s.eventBus != nil {
		payload := events.ReservationEventPayload{
			ReservationID:    detail.ID,
			ClientID:         detail.ClientID,
			ClientName:       detail.ClientName,
			ClientEmail:      detail.ClientEmail,
			SlotID:           detail.SlotID,
			Date:             detail.SlotDate,
			StartTime:        detail.StartTime,
			EndTime:          detail.EndTime,
			Status:           detail.Status,
			CapacityCurrent:  result.Slot.CapacityCurrent,
			CapacityMax:      result.Slot.CapacityMax,
			ClassesRemaining: result.ClassesRemaining,
		}
		if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", detail.ID).Msg("publish event error")
		}
	}

	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueTask(ctx, models.SyncTaskUpsertReservation, detail.ID, detail); err != nil {
			s.logger.Error().Err(err).Int64("reservation_id", detail.ID).Msg("sheets enqueue error")
		}
	}
}
