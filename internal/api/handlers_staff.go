package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"studiobook/internal/domain"
	"studiobook/internal/export"
	"studiobook/internal/models"

	"github.com/labstack/echo/v4"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePDF  = "application/pdf"
)

type stageMarkRequest struct {
	Attended *bool `json:"attended"`
}

// submitRequest may carry the final marks for rows not yet staged. Keys are
// reservation ids.
type submitRequest struct {
	Marks map[int64]bool `json:"marks"`
}

// staffScope is the instructor whose classes a staff view lists. Admins see
// every instructor, which the store spells as 0.
func staffScope(session *models.Session) int64 {
	if session.Role == models.RoleAdmin {
		return 0
	}
	return session.IdentityID
}

func (s *HTTPServer) handleCalendar(c echo.Context) error {
	from, to, err := rangeParams(c)
	if err != nil {
		return err
	}
	calendar, err := s.svc.Availability.InstructorCalendar(c.Request().Context(), staffScope(sessionOf(c)), from, to)
	if err != nil {
		return err
	}
	if calendar == nil {
		calendar = []models.CalendarSlot{}
	}
	return c.JSON(http.StatusOK, map[string]any{"slots": calendar})
}

// roster loads a slot's roster. Instructors only see their own classes.
func (s *HTTPServer) roster(c echo.Context) (*models.SlotRoster, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	roster, err := s.svc.Availability.SlotRoster(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	session := sessionOf(c)
	if session.Role == models.RoleInstructor && roster.Slot.InstructorID != session.IdentityID {
		return nil, domain.ErrForbidden
	}
	return roster, nil
}

func (s *HTTPServer) handleRoster(c echo.Context) error {
	roster, err := s.roster(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, roster)
}

func (s *HTTPServer) handleRosterPDF(c echo.Context) error {
	roster, err := s.roster(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.RosterPDF(&buf, roster); err != nil {
		return err
	}
	name := fmt.Sprintf("roster_%s_%s.pdf", roster.Slot.Date, strings.ReplaceAll(roster.Slot.StartTime, ":", ""))
	return attachment(c, name, mimePDF, buf.Bytes())
}

func (s *HTTPServer) handleRecentClasses(c echo.Context) error {
	classes, err := s.svc.Attendance.RecentClasses(c.Request().Context(), staffScope(sessionOf(c)))
	if err != nil {
		return err
	}
	if classes == nil {
		classes = []models.PastClass{}
	}
	return c.JSON(http.StatusOK, map[string]any{"classes": classes})
}

func (s *HTTPServer) handleAttendanceDraft(c echo.Context) error {
	slotID, err := idParam(c, "slotID")
	if err != nil {
		return err
	}
	sheet, err := s.svc.Attendance.Draft(c.Request().Context(), sessionOf(c), slotID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sheet)
}

func (s *HTTPServer) handleStageMark(c echo.Context) error {
	slotID, err := idParam(c, "slotID")
	if err != nil {
		return err
	}
	reservationID, err := idParam(c, "reservationID")
	if err != nil {
		return err
	}
	var req stageMarkRequest
	if err := c.Bind(&req); err != nil || req.Attended == nil {
		return domain.Validationf("attended must be true or false")
	}
	sheet, err := s.svc.Attendance.StageMark(c.Request().Context(), sessionOf(c), slotID, reservationID, *req.Attended)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sheet)
}

func (s *HTTPServer) handleSubmitAttendance(c echo.Context) error {
	slotID, err := idParam(c, "slotID")
	if err != nil {
		return err
	}
	var req submitRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return domain.Validationf("invalid JSON body")
		}
	}
	sheet, err := s.svc.Attendance.Submit(c.Request().Context(), sessionOf(c), slotID, req.Marks)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sheet)
}

func (s *HTTPServer) handleAttendanceExport(c echo.Context) error {
	slotID, err := idParam(c, "slotID")
	if err != nil {
		return err
	}
	sheet, err := s.svc.Attendance.Draft(c.Request().Context(), sessionOf(c), slotID)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.AttendanceXLSX(&buf, sheet); err != nil {
		return err
	}
	name := fmt.Sprintf("attendance_%s_%d.xlsx", sheet.Slot.Date, sheet.Slot.ID)
	return attachment(c, name, mimeXLSX, buf.Bytes())
}

func (s *HTTPServer) handleListClients(c echo.Context) error {
	clients, err := s.svc.Clients.ListClients(c.Request().Context(), strings.TrimSpace(c.QueryParam("q")))
	if err != nil {
		return err
	}
	if clients == nil {
		clients = []*models.ClientSummary{}
	}
	return c.JSON(http.StatusOK, map[string]any{"clients": clients})
}

func (s *HTTPServer) handleExportClients(c echo.Context) error {
	var buf bytes.Buffer
	if err := s.svc.Clients.ExportClients(c.Request().Context(), &buf); err != nil {
		return err
	}
	name := fmt.Sprintf("clients_%s.xlsx", s.now().Format("20060102_150405"))
	if s.exportDir != "" {
		path, err := export.SaveCopy(s.exportDir, name, buf.Bytes())
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to keep export copy")
		} else {
			s.log.Info().Str("path", path).Msg("client export saved")
		}
	}
	return attachment(c, name, mimeXLSX, buf.Bytes())
}

func (s *HTTPServer) handleClientDetail(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.svc.Clients.ClientDetail(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *HTTPServer) handleRevoke(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	n, err := s.svc.Sessions.RevokeIdentity(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"revoked": n})
}

func attachment(c echo.Context, name, contentType string, data []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, contentType, data)
}
