package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studiobook/internal/access"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string                 `json:"token"`
	Session models.SessionSnapshot `json:"session"`
}

type reserveRequest struct {
	SlotID    int64 `json:"slot_id"`
	PackageID int64 `json:"package_id,omitempty"`
}

type dayResponse struct {
	Date  string              `json:"date"`
	Slots []*models.ClassSlot `json:"slots"`
}

type rangeResponse struct {
	From  string              `json:"from"`
	To    string              `json:"to"`
	Slots []*models.ClassSlot `json:"slots"`
}

func (s *HTTPServer) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validationf("invalid JSON body")
	}
	session, token, err := s.svc.Sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, Session: s.svc.Sessions.Snapshot(session)})
}

func (s *HTTPServer) handleLogout(c echo.Context) error {
	if err := s.svc.Sessions.Logout(c.Request().Context(), sessionOf(c).ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Sessions.Snapshot(sessionOf(c)))
}

func (s *HTTPServer) handleNavigation(c echo.Context) error {
	path := strings.TrimSpace(c.QueryParam("path"))
	if path == "" {
		return domain.Validationf("path is required")
	}
	return c.JSON(http.StatusOK, access.Decide(path, sessionOf(c), s.now()))
}

// viewerRole is the role whose booking window applies; anonymous callers
// browse with the client window.
func (s *HTTPServer) viewerRole(c echo.Context) models.Role {
	session := sessionOf(c)
	if !session.Authenticated(s.now()) {
		return models.RoleGuest
	}
	return session.Role
}

func (s *HTTPServer) handleDaySlots(c echo.Context) error {
	date, err := dateParam(c, "date")
	if err != nil {
		return err
	}
	slots, err := s.svc.Availability.DaySlots(c.Request().Context(), s.viewerRole(c), date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dayResponse{Date: date.Format(models.DateLayout), Slots: nonNil(slots)})
}

func (s *HTTPServer) handleRangeSlots(c echo.Context) error {
	from, to, err := rangeParams(c)
	if err != nil {
		return err
	}
	slots, err := s.svc.Availability.RangeSlots(c.Request().Context(), s.viewerRole(c), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rangeResponse{
		From:  from.Format(models.DateLayout),
		To:    to.Format(models.DateLayout),
		Slots: nonNil(slots),
	})
}

func (s *HTTPServer) handleEligibility(c echo.Context) error {
	pkg, err := s.svc.Reservations.Eligibility(c.Request().Context(), sessionOf(c).IdentityID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"eligible": true, "package": pkg})
}

func (s *HTTPServer) handlePackages(c echo.Context) error {
	packages, err := s.svc.Reservations.Packages(c.Request().Context(), sessionOf(c).IdentityID)
	if err != nil {
		return err
	}
	if packages == nil {
		packages = []*models.ClassPackage{}
	}
	return c.JSON(http.StatusOK, map[string]any{"packages": packages})
}

func (s *HTTPServer) handleMyReservations(c echo.Context) error {
	reservations, err := s.svc.Reservations.ClientReservations(c.Request().Context(), sessionOf(c).IdentityID)
	if err != nil {
		return err
	}
	if reservations == nil {
		reservations = []*models.ReservationDetail{}
	}
	return c.JSON(http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *HTTPServer) handleReserve(c echo.Context) error {
	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validationf("invalid JSON body")
	}
	if req.SlotID <= 0 {
		return domain.Validationf("slot_id is required")
	}

	ctx := c.Request().Context()
	result, err := s.svc.Reservations.Reserve(ctx, sessionOf(c).IdentityID, req.SlotID, req.PackageID)
	if errors.Is(err, domain.ErrSlotFull) {
		return s.withDaySlots(c, req.SlotID, err)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// withDaySlots attaches the current listing of the slot's day to err.
func (s *HTTPServer) withDaySlots(c echo.Context, slotID int64, err error) error {
	ctx := c.Request().Context()
	roster, rerr := s.svc.Availability.SlotRoster(ctx, slotID)
	if rerr != nil {
		return err
	}
	day, derr := roster.Slot.Day()
	if derr != nil {
		return err
	}
	slots, serr := s.svc.Availability.DaySlots(ctx, s.viewerRole(c), day)
	if serr != nil {
		return err
	}
	return &slotsConflict{err: err, slots: nonNil(slots)}
}

func (s *HTTPServer) handleCancel(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	result, err := s.svc.Reservations.Cancel(c.Request().Context(), sessionOf(c).IdentityID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func idParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

func dateParam(c echo.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return time.Time{}, domain.Validationf("%s is required", name)
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, domain.Validationf("invalid %s; expected YYYY-MM-DD", name)
	}
	return d, nil
}

func rangeParams(c echo.Context) (time.Time, time.Time, error) {
	from, err := dateParam(c, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := dateParam(c, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func nonNil(slots []*models.ClassSlot) []*models.ClassSlot {
	if slots == nil {
		return []*models.ClassSlot{}
	}
	return slots
}
