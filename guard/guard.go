// Package guard decides, before every navigation, whether the target route may
// be entered given the session's authentication state.
package guard

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/gorilla/mux"
)

const (
	RouteLogin     = "Login"
	RouteDashboard = "Dashboard"
)

type Route struct {
	Name         string
	Path         string
	RequiresAuth bool
}

// DefaultRoutes is the login page plus an authenticated landing page.
func DefaultRoutes(loginPath, landingPath string) []Route {
	return []Route{
		{Name: RouteLogin, Path: loginPath, RequiresAuth: false},
		{Name: RouteDashboard, Path: landingPath, RequiresAuth: true},
	}
}

type Action int

const (
	Proceed Action = iota
	RedirectToLogin
	RedirectToLanding
)

func (a Action) String() string {
	switch a {
	case Proceed:
		return "proceed"
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToLanding:
		return "redirect_landing"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decide applies the auth-gate rule to a target route. It has no side effects.
func Decide(target Route, authenticated bool) Action {
	switch {
	case target.RequiresAuth && !authenticated:
		return RedirectToLogin
	case target.Name == RouteLogin && authenticated:
		return RedirectToLanding
	default:
		return Proceed
	}
}

// Authenticator is the read-only view of the session the guard needs.
type Authenticator interface {
	IsAuthenticated() bool
}

// Decision is the outcome of checking a navigation.
type Decision struct {
	Action Action
	Target Route  // the route that was asked for
	Path   string // where navigation ends up
}

type Guard struct {
	session     Authenticator
	router      *mux.Router
	routes      map[string]Route
	loginPath   string
	landingPath string
}

// New builds a guard over routes. The table must contain a route named
// RouteLogin; the landing route is landingPath.
func New(session Authenticator, routes []Route, landingPath string) (*Guard, error) {
	g := &Guard{
		session:     session,
		router:      mux.NewRouter(),
		routes:      make(map[string]Route, len(routes)),
		landingPath: landingPath,
	}
	for _, r := range routes {
		if _, dup := g.routes[r.Name]; dup {
			return nil, fmt.Errorf("[guard New] duplicate route name %q", r.Name)
		}
		g.routes[r.Name] = r
		g.router.NewRoute().Name(r.Name).Path(normalizeTemplate(r.Path))
		if r.Name == RouteLogin {
			g.loginPath = r.Path
		}
	}
	if g.loginPath == "" {
		return nil, fmt.Errorf("[guard New] route table has no %q route", RouteLogin)
	}
	return g, nil
}

// normalizePath makes matching ignore case, trailing and repeated slashes.
// An empty path is the root.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.ToLower(path.Clean(p))
}

// normalizeTemplate lowercases the literal parts of a route template, leaving
// {name:pattern} variables alone.
func normalizeTemplate(tpl string) string {
	if tpl == "" {
		return "/"
	}
	if !strings.HasPrefix(tpl, "/") {
		tpl = "/" + tpl
	}
	if len(tpl) > 1 {
		tpl = strings.TrimRight(tpl, "/")
	}
	var b strings.Builder
	depth := 0
	for _, c := range tpl {
		switch {
		case c == '{':
			depth++
		case c == '}':
			depth--
		case depth == 0:
			c = unicode.ToLower(c)
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Resolve maps a path to its route. Matching is case-insensitive and
// ignores trailing slashes. Paths outside the table resolve to an unnamed
// route that does not require authentication.
func (g *Guard) Resolve(target string) Route {
	p, _, _ := strings.Cut(target, "#")
	p, _, _ = strings.Cut(p, "?")
	u := &url.URL{Path: normalizePath(p)}
	req := &http.Request{Method: http.MethodGet, URL: u, Header: http.Header{}}
	var match mux.RouteMatch
	if !g.router.Match(req, &match) || match.Route == nil {
		return Route{Path: u.Path}
	}
	return g.routes[match.Route.GetName()]
}

// Check evaluates a navigation to path against the current session.
func (g *Guard) Check(path string) Decision {
	target := g.Resolve(path)
	action := Decide(target, g.session.IsAuthenticated())
	d := Decision{Action: action, Target: target, Path: path}
	switch action {
	case RedirectToLogin:
		d.Path = g.loginPath
	case RedirectToLanding:
		d.Path = g.landingPath
	}
	return d
}
