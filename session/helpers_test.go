package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-client/authclient"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/credstore/memstore"
	"github.com/jrsteele09/go-auth-client/internal/fakeapi"
	"github.com/jrsteele09/go-auth-client/pipeline"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testUser     = "alice"
	testPassword = "s3cret"
)

var testProfile = map[string]any{"username": testUser, "email": "alice@example.com"}

type recordingNavigator struct {
	lock  sync.Mutex
	paths []string
}

func (n *recordingNavigator) Push(_ context.Context, path string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]string(nil), n.paths...)
}

type recordingReporter struct {
	lock sync.Mutex
	ops  []string
}

func (r *recordingReporter) Report(op string, _ error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingReporter) Ops() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.ops...)
}

// testFixture wires a State to the fake API the same way client.New does.
type testFixture struct {
	api     *fakeapi.Server
	store   *memstore.MemStore
	nav     *recordingNavigator
	reports *recordingReporter
	http    *http.Client
}

func setupTestFixture(t *testing.T, rec credstore.Record) *testFixture {
	t.Helper()
	return &testFixture{
		api:     fakeapi.New(t),
		store:   memstore.NewWithRecord(rec),
		nav:     &recordingNavigator{},
		reports: &recordingReporter{},
	}
}

func (f *testFixture) newState(t *testing.T) *session.State {
	t.Helper()
	tr := pipeline.NewTransport(nil)
	f.http = &http.Client{Transport: tr}
	st, err := session.New(context.Background(), f.store, authclient.New(f.api.BaseURL(), f.http),
		session.WithNavigator(f.nav),
		session.WithReporter(f.reports),
	)
	require.NoError(t, err)
	tr.Bind(st)
	return st
}

func (f *testFixture) stored(t *testing.T) credstore.Record {
	t.Helper()
	rec, err := credstore.Load(context.Background(), f.store)
	require.NoError(t, err)
	return rec
}

// stubClient is an AuthClient with programmable responses.
type stubClient struct {
	login   func(ctx context.Context, creds authclient.Credentials) (*oauth2.Token, error)
	refresh func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	profile func(ctx context.Context) (authclient.Profile, error)
}

func (s *stubClient) Login(ctx context.Context, creds authclient.Credentials) (*oauth2.Token, error) {
	return s.login(ctx, creds)
}

func (s *stubClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return s.refresh(ctx, refreshToken)
}

func (s *stubClient) Profile(ctx context.Context) (authclient.Profile, error) {
	return s.profile(ctx)
}

// failingStore wraps a store and fails writes to one key.
type failingStore struct {
	credstore.Store
	failKey string
	readErr error
}

var errStoreDown = errors.New("disk full")

func (f *failingStore) Get(ctx context.Context, key string) (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errStoreDown
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if key == f.failKey {
		return errStoreDown
	}
	return f.Store.Delete(ctx, key)
}

func mustGet(t *testing.T, s credstore.Store, key string) string {
	t.Helper()
	v, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return v
}
