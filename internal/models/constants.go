package models

import "time"

const (
	// DateLayout is the storage and wire format for calendar days.
	DateLayout = "2006-01-02"
	// TimeLayout is the storage and wire format for slot start/end times.
	TimeLayout = "15:04"
)

const (
	ReservationConfirmed = "confirmed"
	ReservationCancelled = "cancelled"
)

const (
	SyncPending   = "pending"
	SyncRetry     = "retry"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

const (
	// SessionTTL is how long a login (and its mirrored snapshot) stays valid.
	SessionTTL = 7 * 24 * time.Hour

	// AttendanceDraftTTL bounds how long staged attendance marks are kept.
	AttendanceDraftTTL = 24 * time.Hour

	// DefaultAttendanceHistory is how many past classes the attendance view lists.
	DefaultAttendanceHistory = 20

	// SessionSnapshotKey is the storage key of the client-side session mirror.
	SessionSnapshotKey = "cssp_auth_session"
)

const (
	SyncTaskUpsertReservation = "upsert_reservation"
	SyncTaskAttendance        = "update_attendance"
)
