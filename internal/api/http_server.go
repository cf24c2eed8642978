package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services bundles what the HTTP layer calls into. Live is optional; Now
// defaults to the wall clock.
type Services struct {
	Availability domain.AvailabilityService
	Reservations domain.ReservationService
	Attendance   domain.AttendanceService
	Sessions     domain.SessionService
	Clients      domain.ClientService
	Live         http.Handler
	Now          func() time.Time
}

// HTTPServer is the studio's JSON API.
type HTTPServer struct {
	cfg       config.APIConfig
	svc       Services
	exportDir string
	echo      *echo.Echo
	server    *http.Server
	log       zerolog.Logger
	now       func() time.Time
}

// NewHTTPServer wires routes and middleware. exportDir, when set, keeps a
// copy of every admin export on disk.
func NewHTTPServer(cfg config.APIConfig, svc Services, exportDir string, logger *zerolog.Logger) *HTTPServer {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "http").Logger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	now := svc.Now
	if now == nil {
		now = time.Now
	}
	s := &HTTPServer{cfg: cfg, svc: svc, exportDir: exportDir, echo: e, log: log, now: now}
	e.HTTPErrorHandler = s.handleError

	e.Use(requestLogger(log))
	e.Use(rateLimit(newRateLimiter(cfg.RateLimit)))
	e.Use(loadSession(svc.Sessions, log))
	s.routes()

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{echo.HeaderAuthorization, echo.HeaderContentType, headerReqID},
		ExposedHeaders:   []string{headerReqID},
		AllowCredentials: true,
	}).Handler(e)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() {
	e := s.echo
	e.GET("/healthz", s.handleHealth)

	v1 := e.Group("/api/v1")
	v1.POST("/auth/login", s.handleLogin)
	v1.POST("/auth/logout", s.handleLogout, s.requireAuth)
	v1.GET("/session", s.handleSession)
	v1.GET("/navigation", s.handleNavigation)
	v1.GET("/availability", s.handleDaySlots)
	v1.GET("/availability/range", s.handleRangeSlots, s.requireAuth)
	if s.svc.Live != nil {
		v1.GET("/live/slots", echo.WrapHandler(s.svc.Live))
	}

	clientOnly := s.requireRole(models.RoleClient)
	v1.GET("/me/eligibility", s.handleEligibility, clientOnly)
	v1.GET("/me/packages", s.handlePackages, clientOnly)
	v1.GET("/me/reservations", s.handleMyReservations, clientOnly)
	v1.POST("/reservations", s.handleReserve, clientOnly)
	v1.POST("/reservations/:id/cancel", s.handleCancel, clientOnly)

	instructor := v1.Group("/instructor", s.requireRole(models.RoleInstructor))
	instructor.GET("/calendar", s.handleCalendar)
	instructor.GET("/slots/:id/roster", s.handleRoster)
	instructor.GET("/slots/:id/roster.pdf", s.handleRosterPDF)
	instructor.GET("/attendance", s.handleRecentClasses)
	instructor.GET("/attendance/:slotID", s.handleAttendanceDraft)
	instructor.PUT("/attendance/:slotID/marks/:reservationID", s.handleStageMark)
	instructor.POST("/attendance/:slotID/submit", s.handleSubmitAttendance)
	instructor.GET("/attendance/:slotID/export.xlsx", s.handleAttendanceExport)

	admin := v1.Group("/admin", s.requireRole(models.RoleAdmin))
	admin.GET("/clients", s.handleListClients)
	admin.GET("/clients/export.xlsx", s.handleExportClients)
	admin.GET("/clients/:id", s.handleClientDetail)
	admin.POST("/identities/:id/revoke", s.handleRevoke)
}

// Handler exposes the full middleware stack, CORS included.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
