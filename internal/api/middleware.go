package api

import (
	"net/http"
	"strings"
	"time"

	"studiobook/internal/access"
	"studiobook/internal/domain"
	"studiobook/internal/metrics"
	"studiobook/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	ctxSession   = "session"
	headerReqID  = "X-Request-ID"
	bearerPrefix = "Bearer "
)

// requestLogger tags the request with an id, logs it once finished and
// counts it by route pattern.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := strings.TrimSpace(req.Header.Get(headerReqID))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(headerReqID, requestID)

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			metrics.IncHTTP(endpoint, status)

			logger.Info().
				Str("request_id", requestID).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote", c.RealIP()).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("http request")
			return nil
		}
	}
}

// rateLimit throttles callers by client IP.
func rateLimit(l *rateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// loadSession resolves the bearer token into a session. A missing or
// rejected token leaves the request anonymous; protected routes refuse it later.
func loadSession(sessions domain.SessionService, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := models.AnonymousSession()
			if token := bearerToken(c); token != "" {
				s, err := sessions.Authenticate(c.Request().Context(), token)
				switch {
				case err == nil:
					session = s
				case domain.Kind(err) != "unauthorized":
					logger.Warn().Err(err).Msg("session lookup failed")
				}
			}
			c.Set(ctxSession, session)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(h, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
}

func sessionOf(c echo.Context) *models.Session {
	if s, ok := c.Get(ctxSession).(*models.Session); ok && s != nil {
		return s
	}
	return models.AnonymousSession()
}

// requireAuth refuses anonymous requests.
func (s *HTTPServer) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !sessionOf(c).Authenticated(s.now()) {
			return domain.ErrSessionExpired
		}
		return next(c)
	}
}

// requireRole lets role and admins through.
func (s *HTTPServer) requireRole(role models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := s.now()
			session := sessionOf(c)
			if !session.Authenticated(now) {
				return domain.ErrSessionExpired
			}
			if !access.HasAccess(session, role, now) {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}
