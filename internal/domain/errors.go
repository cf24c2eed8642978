package domain

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors wrap exactly one of them so the API edge can
// map with errors.Is.
var (
	ErrValidation   = errors.New("validation")
	ErrEligibility  = errors.New("eligibility")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

var (
	ErrDateOutOfWindow      = fmt.Errorf("%w: date is outside the booking window", ErrValidation)
	ErrPastDate             = fmt.Errorf("%w: date is in the past", ErrValidation)
	ErrAttendanceIncomplete = fmt.Errorf("%w: every reservation must be marked before submitting", ErrValidation)
	ErrClassNotFinished     = fmt.Errorf("%w: attendance can only be recorded for past classes", ErrValidation)

	ErrNoEligiblePackage = fmt.Errorf("%w: no active package with remaining classes", ErrEligibility)

	ErrDuplicateReservation   = fmt.Errorf("%w: reservation already exists for this class", ErrConflict)
	ErrSlotFull               = fmt.Errorf("%w: class is full", ErrConflict)
	ErrConcurrentModification = fmt.Errorf("%w: record was modified concurrently", ErrConflict)
	ErrReservationCancelled   = fmt.Errorf("%w: reservation is already cancelled", ErrConflict)

	ErrSlotNotFound        = fmt.Errorf("%w: class not found", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("%w: reservation not found", ErrNotFound)
	ErrIdentityNotFound    = fmt.Errorf("%w: identity not found", ErrNotFound)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	ErrSessionExpired     = fmt.Errorf("%w: session expired", ErrUnauthorized)
	ErrTooManyAttempts    = fmt.Errorf("%w: too many login attempts", ErrForbidden)
)

// Kind names the class of err for API payloads and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEligibility):
		return "eligibility"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "transport"
	}
}

// Validationf builds an ad-hoc validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
