// Package access holds the navigation table of the studio front end and the
// role checks shared by the HTTP layer.
package access

import (
	"strings"
	"time"

	"studiobook/internal/models"
)

const (
	PathHome  = "/"
	PathLogin = "/login"
	PathPlans = "/planes"
)

// Route is one entry of the navigation table. An empty Role means any
// authenticated user may open it when Protected is set.
type Route struct {
	Path      string      `json:"path"`
	Protected bool        `json:"protected"`
	Role      models.Role `json:"role,omitempty"`
}

// Decision is the outcome of a navigation check.
type Decision struct {
	Path     string `json:"path"`
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

// RouteTable is static; entries never change at runtime.
var RouteTable = []Route{
	{Path: "/"},
	{Path: "/planes"},
	{Path: "/ayuda"},
	{Path: "/login"},
	{Path: "/registro"},

	{Path: "/dashboard", Protected: true, Role: models.RoleClient},
	{Path: "/mis-reservas", Protected: true, Role: models.RoleClient},
	{Path: "/calendario-cliente", Protected: true, Role: models.RoleClient},
	{Path: "/metodo-pago", Protected: true, Role: models.RoleClient},

	{Path: "/calendario-instructor", Protected: true, Role: models.RoleInstructor},
	{Path: "/registro-asistencia", Protected: true, Role: models.RoleInstructor},

	{Path: "/gestion-clientes", Protected: true, Role: models.RoleAdmin},
	{Path: "/reportes-ventas", Protected: true, Role: models.RoleAdmin},
}

var routesByPath = func() map[string]Route {
	m := make(map[string]Route, len(RouteTable))
	for _, r := range RouteTable {
		m[r.Path] = r
	}
	return m
}()

// guestOnly are public routes an authenticated user is bounced away from.
var guestOnly = map[string]bool{"/login": true, "/registro": true}

// HasAccess reports whether session may act as required at now. Admin passes every check.
func HasAccess(session *models.Session, required models.Role, now time.Time) bool {
	if !session.Authenticated(now) {
		return false
	}
	return session.Role == required || session.Role == models.RoleAdmin
}

// Lookup finds the table entry for path, ignoring a trailing slash.
func Lookup(path string) (Route, bool) {
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	r, ok := routesByPath[path]
	return r, ok
}

// Decide evaluates a navigation to path for session at now. A nil session is anonymous.
func Decide(path string, session *models.Session, now time.Time) Decision {
	if session == nil {
		session = models.AnonymousSession()
	}
	authenticated := session.Authenticated(now)

	route, ok := Lookup(path)
	if !ok {
		return Decision{Path: path, Redirect: PathHome}
	}

	switch {
	case authenticated && guestOnly[route.Path]:
		return Decision{Path: route.Path, Redirect: session.Role.HomePath()}
	case !route.Protected:
		return Decision{Path: route.Path, Allowed: true}
	case !authenticated:
		return Decision{Path: route.Path, Redirect: PathLogin}
	case route.Role != "" && !HasAccess(session, route.Role, now):
		return Decision{Path: route.Path, Redirect: session.Role.HomePath()}
	default:
		return Decision{Path: route.Path, Allowed: true}
	}
}
