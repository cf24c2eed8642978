package api

import (
	"errors"
	"net/http"

	"studiobook/internal/access"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/labstack/echo/v4"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error    string              `json:"error"`
	Kind     string              `json:"kind"`
	Redirect string              `json:"redirect,omitempty"`
	Slots    []*models.ClassSlot `json:"slots,omitempty"`
}

// slotsConflict carries the refreshed day listing with a full-slot rejection
// so the client can redraw without another round trip.
type slotsConflict struct {
	err   error
	slots []*models.ClassSlot
}

func (e *slotsConflict) Error() string { return e.err.Error() }
func (e *slotsConflict) Unwrap() error { return e.err }

// statusFor maps a domain error to its HTTP status and body.
func statusFor(err error) (int, errorBody) {
	body := errorBody{Error: err.Error(), Kind: domain.Kind(err)}

	var sc *slotsConflict
	if errors.As(err, &sc) {
		body.Slots = sc.slots
	}

	switch {
	case errors.Is(err, domain.ErrAttendanceIncomplete):
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrEligibility):
		body.Redirect = access.PathPlans
		return http.StatusPaymentRequired, body
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, body
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, body
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, body
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error", Kind: body.Kind}
	}
}

// handleError is the echo error handler. Domain errors map through statusFor;
// echo's own errors (unknown route, bad method) keep their status.
func (s *HTTPServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, errorBody{Error: msg, Kind: kindForStatus(he.Code)})
		return
	}

	code, body := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("request failed")
	}
	_ = c.JSON(code, body)
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "transport"
	}
}
