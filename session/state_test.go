package session_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/authclient"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/credstore/memstore"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/fakeapi"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewStartsLoggedOutOnEmptyStore(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{})
	st := f.newState(t)

	require.False(t, st.IsAuthenticated())
	require.Empty(t, st.AccessToken())
	require.Empty(t, st.RefreshToken())
	require.Nil(t, st.User())
}

func TestNewFailsWhenStoreUnreadable(t *testing.T) {
	store := &failingStore{Store: memstore.New(), readErr: errStoreDown}
	_, err := session.New(context.Background(), store, &stubClient{}, session.WithReporter(&recordingReporter{}))
	require.ErrorIs(t, err, errStoreDown)
}

func TestLoginPersistsFetchesUserAndNavigates(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{})
	f.api.AddUser(testUser, testPassword, "a1", "r1")
	f.api.SetProfile("a1", testProfile)
	st := f.newState(t)

	err := st.Login(context.Background(), authclient.Credentials{Username: testUser, Password: testPassword})
	require.NoError(t, err)

	require.True(t, st.IsAuthenticated())
	require.Equal(t, "a1", st.AccessToken())
	require.Equal(t, "r1", st.RefreshToken())
	require.Equal(t, testUser, st.User().String())
	require.Equal(t, credstore.Record{AccessToken: "a1", RefreshToken: "r1"}, f.stored(t))
	require.Equal(t, []string{session.DefaultLandingRoute}, f.nav.Paths())
	require.Empty(t, f.reports.Ops())
}

func TestPersistenceRoundTrip(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{})
	f.api.AddUser(testUser, testPassword, "a1", "r1")
	f.api.SetProfile("a1", testProfile)
	st := f.newState(t)
	require.NoError(t, st.Login(context.Background(), authclient.Credentials{Username: testUser, Password: testPassword}))

	restarted := f.newState(t)
	require.True(t, restarted.IsAuthenticated())
	require.Equal(t, st.AccessToken(), restarted.AccessToken())
	require.Equal(t, "r1", restarted.RefreshToken())
	require.Nil(t, restarted.User())
}

func TestLoginFailureLeavesSessionUnchanged(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{})
	f.api.AddUser(testUser, testPassword, "a1", "r1")
	st := f.newState(t)

	err := st.Login(context.Background(), authclient.Credentials{Username: testUser, Password: "nope"})
	require.ErrorIs(t, err, autherrors.ErrCredentialsRejected)

	require.False(t, st.IsAuthenticated())
	require.Equal(t, 0, f.store.Len())
	require.Empty(t, f.nav.Paths())
	require.Equal(t, []string{session.OpLogin}, f.reports.Ops())
	require.Equal(t, 0, f.api.Calls(fakeapi.RouteProfile))
}

func TestLoginStoreFailureRollsBack(t *testing.T) {
	mem := memstore.NewWithRecord(credstore.Record{})
	store := &failingStore{Store: mem, failKey: credstore.KeyRefreshToken}
	client := &stubClient{
		login: func(context.Context, authclient.Credentials) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}, nil
		},
	}
	reports := &recordingReporter{}
	nav := &recordingNavigator{}
	st, err := session.New(context.Background(), store, client, session.WithReporter(reports), session.WithNavigator(nav))
	require.NoError(t, err)

	err = st.Login(context.Background(), authclient.Credentials{Username: testUser, Password: testPassword})
	require.ErrorIs(t, err, errStoreDown)
	require.False(t, st.IsAuthenticated())
	require.False(t, mem.Has(credstore.KeyAccessToken))
	require.Empty(t, nav.Paths())
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{AccessToken: "a1", RefreshToken: "r1"})
	st := f.newState(t)
	require.True(t, st.IsAuthenticated())

	for i := 0; i < 2; i++ {
		st.Logout(context.Background())
		require.False(t, st.IsAuthenticated())
		require.Empty(t, st.RefreshToken())
		require.Nil(t, st.User())
		require.Equal(t, 0, f.store.Len())
	}
	require.Equal(t, []string{session.DefaultLoginRoute, session.DefaultLoginRoute}, f.nav.Paths())
	require.Empty(t, f.reports.Ops())
	require.Equal(t, 0, f.api.Calls(fakeapi.RouteRefresh))
}

func TestLogoutReportsStoreFailure(t *testing.T) {
	mem := memstore.NewWithRecord(credstore.Record{AccessToken: "a1", RefreshToken: "r1"})
	reports := &recordingReporter{}
	st, err := session.New(context.Background(), &failingStore{Store: mem, failKey: credstore.KeyAccessToken}, &stubClient{}, session.WithReporter(reports))
	require.NoError(t, err)

	st.Logout(context.Background())
	require.False(t, st.IsAuthenticated())
	require.False(t, mem.Has(credstore.KeyRefreshToken))
	require.Equal(t, []string{session.OpLogout}, reports.Ops())
}

func TestFetchUserWithoutTokenIsNoop(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{RefreshToken: "r1"})
	st := f.newState(t)

	require.NoError(t, st.FetchUser(context.Background()))
	require.Equal(t, 0, f.api.Calls(fakeapi.RouteProfile))
	require.Equal(t, 0, f.api.Calls(fakeapi.RouteRefresh))
}

func TestRenewalSelfHeal(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{AccessToken: "stale", RefreshToken: "valid-r"})
	f.api.AllowRefresh("valid-r", "fresh")
	f.api.SetProfile("fresh", testProfile)
	st := f.newState(t)

	require.NoError(t, st.FetchUser(context.Background()))

	require.Equal(t, []string{"valid-r"}, f.api.RefreshTokensSeen())
	require.Equal(t, "fresh", st.AccessToken())
	require.Equal(t, "valid-r", st.RefreshToken())
	require.Equal(t, credstore.Record{AccessToken: "fresh", RefreshToken: "valid-r"}, f.stored(t))
	require.Equal(t, testUser, st.User().String())
	require.Equal(t, 2, f.api.Calls(fakeapi.RouteProfile))
	require.Empty(t, f.nav.Paths())
}

func TestRenewalFailureClearsSession(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{AccessToken: "stale", RefreshToken: "invalid-r"})
	st := f.newState(t)

	err := st.FetchUser(context.Background())
	require.ErrorIs(t, err, autherrors.ErrRenewalFailed)
	require.ErrorIs(t, err, autherrors.ErrCredentialsRejected)

	require.Equal(t, []string{"invalid-r"}, f.api.RefreshTokensSeen())
	require.Empty(t, st.AccessToken())
	require.Empty(t, st.RefreshToken())
	require.Nil(t, st.User())
	require.False(t, f.store.Has(credstore.KeyAccessToken))
	require.False(t, f.store.Has(credstore.KeyRefreshToken))
	require.Equal(t, []string{session.DefaultLoginRoute}, f.nav.Paths())
	require.Equal(t, []string{session.OpFetchUser, session.OpRefresh}, f.reports.Ops())
}

func TestRenewedTokenStillRejectedDoesNotLoop(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{AccessToken: "stale", RefreshToken: "valid-r"})
	f.api.AllowRefresh("valid-r", "also-stale")
	st := f.newState(t)

	require.NoError(t, st.FetchUser(context.Background()))
	require.Equal(t, "also-stale", st.AccessToken())
	require.Nil(t, st.User())
	require.Equal(t, 1, f.api.Calls(fakeapi.RouteRefresh))
	require.Equal(t, 2, f.api.Calls(fakeapi.RouteProfile))
}

func TestRefreshWithoutRefreshTokenLogsOut(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{AccessToken: "a1"})
	st := f.newState(t)

	err := st.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, autherrors.ErrRenewalFailed)
	require.ErrorIs(t, err, autherrors.ErrNoRefreshToken)
	require.False(t, st.IsAuthenticated())
	require.Equal(t, 0, f.api.Calls(fakeapi.RouteRefresh))
}

func TestFetchUserOtherFailureKeepsUser(t *testing.T) {
	calls := 0
	client := &stubClient{
		login: func(context.Context, authclient.Credentials) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}, nil
		},
		profile: func(context.Context) (authclient.Profile, error) {
			calls++
			if calls == 1 {
				return authclient.Profile{"username": testUser}, nil
			}
			return nil, &authclient.StatusError{Op: authclient.OpProfile, StatusCode: http.StatusInternalServerError}
		},
		refresh: func(context.Context, string) (*oauth2.Token, error) {
			t.Fatal("refresh must not be called for a non-401 failure")
			return nil, nil
		},
	}
	reports := &recordingReporter{}
	st, err := session.New(context.Background(), memstore.New(), client, session.WithReporter(reports))
	require.NoError(t, err)
	require.NoError(t, st.Login(context.Background(), authclient.Credentials{Username: testUser, Password: testPassword}))
	require.Equal(t, testUser, st.User().String())

	err = st.FetchUser(context.Background())
	require.Error(t, err)
	require.Equal(t, testUser, st.User().String())
	require.True(t, st.IsAuthenticated())
	require.Equal(t, []string{session.OpFetchUser}, reports.Ops())
}

func TestConcurrentRenewalsShareOneRefresh(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var lock sync.Mutex
	refreshCalls := 0

	client := &stubClient{
		refresh: func(_ context.Context, rt string) (*oauth2.Token, error) {
			lock.Lock()
			refreshCalls++
			first := refreshCalls == 1
			lock.Unlock()
			if first {
				close(entered)
			}
			<-release
			return &oauth2.Token{AccessToken: "fresh", RefreshToken: rt}, nil
		},
		profile: func(context.Context) (authclient.Profile, error) {
			return authclient.Profile{"username": testUser}, nil
		},
	}
	store := memstore.NewWithRecord(credstore.Record{AccessToken: "stale", RefreshToken: "valid-r"})
	st, err := session.New(context.Background(), store, client, session.WithReporter(&recordingReporter{}))
	require.NoError(t, err)

	const callers = 5
	errs := make(chan error, callers)
	go func() { errs <- st.RefreshAccessToken(context.Background()) }()
	<-entered

	var joining sync.WaitGroup
	joining.Add(callers - 1)
	for i := 1; i < callers; i++ {
		go func() {
			joining.Done()
			errs <- st.RefreshAccessToken(context.Background())
		}()
	}
	joining.Wait()
	// Let the followers get from Done into the in-flight renewal.
	time.Sleep(10 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, "fresh", st.AccessToken())
}

func TestCancelledStarterDoesNotEndSharedRenewal(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var enterOnce sync.Once
	client := &stubClient{
		refresh: func(ctx context.Context, rt string) (*oauth2.Token, error) {
			enterOnce.Do(func() { close(entered) })
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &oauth2.Token{AccessToken: "fresh", RefreshToken: rt}, nil
		},
		profile: func(context.Context) (authclient.Profile, error) {
			return authclient.Profile{"username": testUser}, nil
		},
	}
	store := memstore.NewWithRecord(credstore.Record{AccessToken: "stale", RefreshToken: "valid-r"})
	st, err := session.New(context.Background(), store, client, session.WithReporter(&recordingReporter{}))
	require.NoError(t, err)

	starterCtx, cancel := context.WithCancel(context.Background())
	starterErr := make(chan error, 1)
	go func() { starterErr <- st.RefreshAccessToken(starterCtx) }()
	<-entered

	followerErr := make(chan error, 1)
	joined := make(chan struct{})
	go func() {
		close(joined)
		followerErr <- st.RefreshAccessToken(context.Background())
	}()
	<-joined
	time.Sleep(10 * time.Millisecond)

	cancel()
	close(release)

	require.NoError(t, <-starterErr)
	require.NoError(t, <-followerErr)
	require.True(t, st.IsAuthenticated())
	require.Equal(t, "fresh", st.AccessToken())
	require.Equal(t, "fresh", mustGet(t, store, credstore.KeyAccessToken))
	require.Equal(t, "valid-r", mustGet(t, store, credstore.KeyRefreshToken))
}

func TestRenewalDiscardedAfterConcurrentLogout(t *testing.T) {
	var st *session.State
	client := &stubClient{
		refresh: func(ctx context.Context, rt string) (*oauth2.Token, error) {
			st.Logout(ctx)
			return &oauth2.Token{AccessToken: "fresh", RefreshToken: rt}, nil
		},
	}
	store := memstore.NewWithRecord(credstore.Record{AccessToken: "stale", RefreshToken: "valid-r"})
	var err error
	st, err = session.New(context.Background(), store, client, session.WithReporter(&recordingReporter{}))
	require.NoError(t, err)

	err = st.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, autherrors.ErrRenewalFailed)
	require.False(t, st.IsAuthenticated())
	require.Equal(t, 0, store.Len())
}

func TestPipelineRenewsThroughSession(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{AccessToken: "stale", RefreshToken: "valid-r"})
	f.api.AllowRefresh("valid-r", "fresh")
	f.api.SetProfile("fresh", testProfile)
	st := f.newState(t)

	resp, err := f.http.Get(f.api.BaseURL() + "/courses/")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, f.api.Calls(fakeapi.RouteCourses))
	require.Equal(t, 1, f.api.Calls(fakeapi.RouteRefresh))
	require.Equal(t, "fresh", st.AccessToken())
	require.Equal(t, testUser, st.User().String())
}

func TestPipelineRenewalFailureLogsOut(t *testing.T) {
	f := setupTestFixture(t, credstore.Record{AccessToken: "stale", RefreshToken: "invalid-r"})
	st := f.newState(t)

	resp, err := f.http.Get(f.api.BaseURL() + "/courses/")
	require.Nil(t, resp)
	require.ErrorIs(t, err, autherrors.ErrRenewalFailed)

	require.Equal(t, 1, f.api.Calls(fakeapi.RouteCourses))
	require.False(t, st.IsAuthenticated())
	require.Equal(t, 0, f.store.Len())
	require.Equal(t, []string{session.DefaultLoginRoute}, f.nav.Paths())
}

func TestMetricsObserveSessionActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := &stubClient{
		refresh: func(context.Context, string) (*oauth2.Token, error) {
			return nil, autherrors.ErrCredentialsRejected
		},
	}
	store := memstore.NewWithRecord(credstore.Record{AccessToken: "stale", RefreshToken: "r"})
	st, err := session.New(context.Background(), store, client, session.WithMetrics(m), session.WithReporter(&recordingReporter{}))
	require.NoError(t, err)

	require.Error(t, st.RefreshAccessToken(context.Background()))
	count, err := testutil.GatherAndCount(reg, "authclient_token_renewals_total", "authclient_logouts_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSnapshot(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		ExpiresAt: jwtlib.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	f := setupTestFixture(t, credstore.Record{AccessToken: access, RefreshToken: "r1"})
	st := f.newState(t)

	snap := st.Snapshot()
	require.True(t, snap.Authenticated)
	require.True(t, snap.HasRefreshToken)
	require.Nil(t, snap.User)
	require.True(t, exp.Equal(snap.AccessExpiresAt))
}

func TestRouteOptions(t *testing.T) {
	nav := &recordingNavigator{}
	st, err := session.New(context.Background(), memstore.New(), &stubClient{},
		session.WithNavigator(nav), session.WithRoutes("/signin", "/home"), session.WithReporter(&recordingReporter{}))
	require.NoError(t, err)

	st.Logout(context.Background())
	require.Equal(t, []string{"/signin"}, nav.Paths())
}
