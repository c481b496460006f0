// Package fakeapi serves the remote auth contract from an httptest server.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	RouteLogin   = "POST /api/auth/login/"
	RouteRefresh = "POST /api/auth/refresh/"
	RouteProfile = "GET /api/auth/user/profile/"
	RouteCourses = "GET /api/courses/"
)

type account struct {
	password string
	access   string
	refresh  string
}

type Server struct {
	srv *httptest.Server

	lock        sync.Mutex
	accounts    map[string]account
	refreshes   map[string]string         // refresh token -> access token it renews to
	profiles    map[string]map[string]any // access token -> profile
	refreshSeen []string
	calls       map[string]int
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts:  make(map[string]account),
		refreshes: make(map[string]string),
		profiles:  make(map[string]map[string]any),
		calls:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(RouteLogin, s.count(RouteLogin, s.login))
	mux.HandleFunc(RouteRefresh, s.count(RouteRefresh, s.refresh))
	mux.HandleFunc(RouteProfile, s.count(RouteProfile, s.profile))
	mux.HandleFunc(RouteCourses, s.count(RouteCourses, s.courses))
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// BaseURL is the API root the auth client should be pointed at.
func (s *Server) BaseURL() string {
	return s.srv.URL + "/api"
}

// AddUser registers credentials and the token pair a successful login returns.
func (s *Server) AddUser(username, password, access, refresh string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accounts[username] = account{password: password, access: access, refresh: refresh}
}

// AllowRefresh makes refresh valid, renewing to access.
func (s *Server) AllowRefresh(refresh, access string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshes[refresh] = access
}

// SetProfile makes access valid for the profile and courses endpoints.
func (s *Server) SetProfile(access string, profile map[string]any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.profiles[access] = profile
}

// Revoke makes access invalid.
func (s *Server) Revoke(access string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.profiles, access)
}

// RefreshTokensSeen lists the refresh tokens presented, in order.
func (s *Server) RefreshTokensSeen() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.refreshSeen...)
}

// Calls returns how many times route was hit.
func (s *Server) Calls(route string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls[route]
}

func (s *Server) count(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.calls[route]++
		s.lock.Unlock()
		next(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	s.lock.Lock()
	acct, ok := s.accounts[creds.Username]
	s.lock.Unlock()
	if !ok || acct.password != creds.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": acct.access, "refresh": acct.refresh})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	s.lock.Lock()
	s.refreshSeen = append(s.refreshSeen, body.Refresh)
	access, ok := s.refreshes[body.Refresh]
	s.lock.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) authorized(r *http.Request) (map[string]any, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	profile, ok := s.profiles[token]
	return profile, ok
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.authorized(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) courses(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorized(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "title": "Networking 101"}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
