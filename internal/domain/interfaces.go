package domain

import (
	"context"
	"io"
	"time"

	"studiobook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type SlotRepository interface {
	GetSlot(ctx context.Context, id int64) (*models.ClassSlot, error)
	GetSlotsByDate(ctx context.Context, date string) ([]*models.ClassSlot, error)
	GetSlotsInRange(ctx context.Context, from, to string) ([]*models.ClassSlot, error)
	GetInstructorCalendar(ctx context.Context, instructorID int64, from, to string) ([]models.CalendarSlot, error)
	GetSlotRoster(ctx context.Context, slotID int64) (*models.SlotRoster, error)
}

type PackageRepository interface {
	GetClientPackages(ctx context.Context, clientID int64) ([]*models.ClassPackage, error)
	GetEligiblePackage(ctx context.Context, clientID int64, today string) (*models.ClassPackage, error)
}

type ReservationRepository interface {
	CreateReservation(ctx context.Context, clientID, slotID, packageID int64, today string) (*models.ReservationResult, error)
	CancelReservation(ctx context.Context, clientID, reservationID int64) (*models.ReservationResult, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetReservationDetail(ctx context.Context, id int64) (*models.ReservationDetail, error)
	GetClientReservations(ctx context.Context, clientID int64) ([]*models.ReservationDetail, error)
}

type AttendanceRepository interface {
	GetRecentPastClasses(ctx context.Context, instructorID int64, before string, limit int) ([]models.PastClass, error)
	RecordAttendance(ctx context.Context, slotID int64, marks map[int64]bool) error
}

type IdentityRepository interface {
	GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error)
	CreateIdentity(ctx context.Context, identity *models.Identity) error
}

type ClientRepository interface {
	ListClients(ctx context.Context, search, today string) ([]*models.ClientSummary, error)
}

// Repository is the full relational store.
type Repository interface {
	SlotRepository
	PackageRepository
	ReservationRepository
	AttendanceRepository
	IdentityRepository
	ClientRepository
}

// StateRepository keeps short-lived state: sessions, attendance drafts and rate-limit counters.
type StateRepository interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
	DeleteIdentitySessions(ctx context.Context, identityID int64) (int, error)
	GetAttendanceDraft(ctx context.Context, instructorID, slotID int64) (*models.AttendanceDraft, error)
	SaveAttendanceDraft(ctx context.Context, draft *models.AttendanceDraft, ttl time.Duration) error
	ClearAttendanceDraft(ctx context.Context, instructorID, slotID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, detail *models.ReservationDetail) error
}

type AvailabilityService interface {
	BookingWindow(role models.Role, today time.Time) (time.Time, time.Time)
	DaySlots(ctx context.Context, role models.Role, date time.Time) ([]*models.ClassSlot, error)
	RangeSlots(ctx context.Context, role models.Role, from, to time.Time) ([]*models.ClassSlot, error)
	InstructorCalendar(ctx context.Context, instructorID int64, from, to time.Time) ([]models.CalendarSlot, error)
	SlotRoster(ctx context.Context, slotID int64) (*models.SlotRoster, error)
}

type ReservationService interface {
	Eligibility(ctx context.Context, clientID int64) (*models.ClassPackage, error)
	Packages(ctx context.Context, clientID int64) ([]*models.ClassPackage, error)
	Reserve(ctx context.Context, clientID, slotID, packageID int64) (*models.ReservationResult, error)
	Cancel(ctx context.Context, clientID, reservationID int64) (*models.ReservationResult, error)
	ClientReservations(ctx context.Context, clientID int64) ([]*models.ReservationDetail, error)
}

type AttendanceService interface {
	RecentClasses(ctx context.Context, instructorID int64) ([]models.PastClass, error)
	StageMark(ctx context.Context, actor *models.Session, slotID, reservationID int64, attended bool) (*models.AttendanceSheet, error)
	Draft(ctx context.Context, actor *models.Session, slotID int64) (*models.AttendanceSheet, error)
	Submit(ctx context.Context, actor *models.Session, slotID int64, marks map[int64]bool) (*models.AttendanceSheet, error)
}

type SessionService interface {
	Login(ctx context.Context, email, password string) (*models.Session, string, error)
	Authenticate(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context, sessionID string) error
	RevokeIdentity(ctx context.Context, identityID int64) (int, error)
	Snapshot(session *models.Session) models.SessionSnapshot
}

type ClientService interface {
	ListClients(ctx context.Context, search string) ([]*models.ClientSummary, error)
	ClientDetail(ctx context.Context, clientID int64) (*models.ClientDetail, error)
	ExportClients(ctx context.Context, w io.Writer) error
}
