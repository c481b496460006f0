package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/authclient"
	"github.com/jrsteele09/go-auth-client/credstore"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/jrsteele09/go-auth-client/pipeline"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLoginRoute   = "/login"
	DefaultLandingRoute = "/"
)

// AuthClient is the remote API as seen by the session; *authclient.Client implements it.
type AuthClient interface {
	Login(ctx context.Context, creds authclient.Credentials) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Profile(ctx context.Context) (authclient.Profile, error)
}

var _ AuthClient = (*authclient.Client)(nil)
var _ pipeline.Renewer = (*State)(nil)

type State struct {
	store        credstore.Store
	client       AuthClient
	navigator    Navigator
	reporter     Reporter
	metrics      *metrics.Metrics
	loginRoute   string
	landingRoute string

	// writeLock serialises mutations so the store and memory change together.
	// It is held across store writes but never across auth API calls.
	writeLock sync.Mutex
	lock      sync.RWMutex

	accessToken  string
	refreshToken string
	user         authclient.Profile

	renewals singleflight.Group
}

type Option func(*State)

func WithNavigator(n Navigator) Option {
	return func(s *State) {
		s.navigator = n
	}
}

func WithReporter(r Reporter) Option {
	return func(s *State) {
		s.reporter = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *State) {
		s.metrics = m
	}
}

func WithRoutes(login, landing string) Option {
	return func(s *State) {
		s.loginRoute = login
		s.landingRoute = landing
	}
}

// New builds a State and restores tokens from store. A store that cannot be
// read is an error; an empty store yields a logged-out session.
func New(ctx context.Context, store credstore.Store, client AuthClient, opts ...Option) (*State, error) {
	s := &State{
		store:        store,
		client:       client,
		reporter:     LogReporter{},
		loginRoute:   DefaultLoginRoute,
		landingRoute: DefaultLandingRoute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore reloads both tokens from the store, replacing the in-memory values.
// The user profile is not persisted and is reset.
func (s *State) Restore(ctx context.Context) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	rec, err := credstore.Load(ctx, s.store)
	if err != nil {
		s.report(OpRestore, err)
		return fmt.Errorf("[session Restore] %w", err)
	}

	s.lock.Lock()
	s.accessToken = rec.AccessToken
	s.refreshToken = rec.RefreshToken
	s.user = nil
	s.lock.Unlock()
	return nil
}

func (s *State) AccessToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.accessToken
}

func (s *State) RefreshToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.refreshToken
}

// User returns the profile, or nil when it has not been fetched.
func (s *State) User() authclient.Profile {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.user
}

// IsAuthenticated is true exactly when an access token is held.
func (s *State) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// Snapshot is a point-in-time view of the session for display.
type Snapshot struct {
	Authenticated   bool
	HasRefreshToken bool
	User            authclient.Profile
	AccessExpiresAt time.Time // zero unless the access token is a JWT with exp
}

func (s *State) Snapshot() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return Snapshot{
		Authenticated:   s.accessToken != "",
		HasRefreshToken: s.refreshToken != "",
		User:            s.user,
		AccessExpiresAt: authclient.AccessTokenExpiry(s.accessToken),
	}
}

// Login authenticates, persists the token pair, fetches the profile and
// navigates to the landing route. On failure the session is unchanged, the
// error is reported and returned, and no navigation happens.
func (s *State) Login(ctx context.Context, creds authclient.Credentials) error {
	tok, err := s.client.Login(ctx, creds)
	s.metrics.ObserveLogin(err)
	if err != nil {
		s.report(OpLogin, err)
		return fmt.Errorf("[session Login] %w", err)
	}

	if err := s.setTokens(ctx, tok.AccessToken, tok.RefreshToken); err != nil {
		s.report(OpLogin, err)
		return fmt.Errorf("[session Login] %w", err)
	}
	log.Debug().Time("access_expiry", tok.Expiry).Msg("logged in")

	// FetchUser reports its own failures; only a renewal that ended the
	// session is worth failing the login for, and it has already navigated.
	if err := s.FetchUser(ctx); err != nil && !s.IsAuthenticated() {
		return fmt.Errorf("[session Login] %w", err)
	}

	s.navigate(ctx, s.landingRoute)
	return nil
}

// Logout clears the session and the store unconditionally and navigates to
// the login route. It makes no network call and is safe to repeat. Store
// failures are reported, not returned.
func (s *State) Logout(ctx context.Context) {
	s.writeLock.Lock()
	s.lock.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
	s.lock.Unlock()
	if err := credstore.Clear(ctx, s.store); err != nil {
		s.report(OpLogout, err)
	}
	s.writeLock.Unlock()

	s.metrics.ObserveLogout()
	s.navigate(ctx, s.loginRoute)
}

// FetchUser loads the profile for the current access token. Without a token
// it does nothing. A 401 triggers RefreshAccessToken, which fetches the
// profile again under the new token; that second fetch never renews.
func (s *State) FetchUser(ctx context.Context) error {
	return s.fetchUser(ctx, true)
}

func (s *State) fetchUser(ctx context.Context, allowRenewal bool) error {
	token := s.AccessToken()
	if token == "" {
		return nil
	}

	// The session handles the profile's 401 itself, so the pipeline must not.
	profile, err := s.client.Profile(pipeline.WithoutRenewal(ctx))
	if err == nil {
		s.lock.Lock()
		if s.accessToken == token {
			s.user = profile
		}
		s.lock.Unlock()
		return nil
	}

	s.report(OpFetchUser, err)
	if allowRenewal && authclient.IsUnauthorized(err) {
		return s.RefreshAccessToken(ctx)
	}
	return fmt.Errorf("[session FetchUser] %w", err)
}

// RefreshAccessToken renews the access token with the refresh token, persists
// it and refetches the profile. If the refresh token is missing or rejected
// the session is logged out and an error wrapping ErrRenewalFailed is
// returned. Concurrent callers share one in-flight renewal and its result.
// Once issued, a renewal runs to completion: cancelling the context of the
// caller that started it neither aborts it nor ends the session for others.
func (s *State) RefreshAccessToken(ctx context.Context) error {
	_, err, shared := s.renewals.Do("refresh", func() (any, error) {
		return nil, s.refresh(context.WithoutCancel(ctx))
	})
	if shared {
		log.Debug().Err(err).Msg("joined in-flight token renewal")
	}
	return err
}

func (s *State) refresh(ctx context.Context) error {
	presented := s.RefreshToken()
	tok, err := s.client.Refresh(ctx, presented)
	s.metrics.ObserveRenewal(err)
	if err != nil {
		s.report(OpRefresh, err)
		s.Logout(ctx)
		return fmt.Errorf("[session RefreshAccessToken] %w", autherrors.Join(autherrors.ErrRenewalFailed, err))
	}

	if err := s.setAccessToken(ctx, presented, tok.AccessToken); err != nil {
		s.report(OpRefresh, err)
		return fmt.Errorf("[session RefreshAccessToken] %w", err)
	}
	log.Debug().Time("access_expiry", tok.Expiry).Msg("access token renewed")

	// Failures are reported inside; the renewal itself succeeded.
	_ = s.fetchUser(ctx, false)
	return nil
}

// setTokens writes both tokens to the store, then memory. If the second store
// write fails the first is rolled back so the store still matches memory.
func (s *State) setTokens(ctx context.Context, access, refresh string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	s.lock.RLock()
	prevAccess := s.accessToken
	s.lock.RUnlock()

	if err := s.store.Set(ctx, credstore.KeyAccessToken, access); err != nil {
		return fmt.Errorf("persist %s: %w", credstore.KeyAccessToken, err)
	}
	if err := s.store.Set(ctx, credstore.KeyRefreshToken, refresh); err != nil {
		if rbErr := s.restoreKey(ctx, credstore.KeyAccessToken, prevAccess); rbErr != nil {
			s.report(OpLogin, rbErr)
		}
		return fmt.Errorf("persist %s: %w", credstore.KeyRefreshToken, err)
	}

	s.lock.Lock()
	s.accessToken = access
	s.refreshToken = refresh
	s.user = nil
	s.lock.Unlock()
	return nil
}

// setAccessToken stores a renewed access token, unless the session moved on
// (logout or a new login) while the refresh call was in flight.
func (s *State) setAccessToken(ctx context.Context, presentedRefresh, access string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if s.RefreshToken() != presentedRefresh {
		return fmt.Errorf("session changed during renewal: %w", autherrors.ErrRenewalFailed)
	}
	if err := s.store.Set(ctx, credstore.KeyAccessToken, access); err != nil {
		return fmt.Errorf("persist %s: %w", credstore.KeyAccessToken, err)
	}

	s.lock.Lock()
	s.accessToken = access
	s.lock.Unlock()
	return nil
}

func (s *State) restoreKey(ctx context.Context, key, value string) error {
	if value == "" {
		return s.store.Delete(ctx, key)
	}
	return s.store.Set(ctx, key, value)
}

func (s *State) report(op string, err error) {
	if s.reporter != nil {
		s.reporter.Report(op, err)
	}
}

func (s *State) navigate(ctx context.Context, path string) {
	if s.navigator != nil {
		s.navigator.Push(ctx, path)
	}
}
