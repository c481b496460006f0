// Package client assembles the credential store, auth client, request
// pipeline, session and navigation guard from configuration.
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-client/authclient"
	"github.com/jrsteele09/go-auth-client/credstore"
	"github.com/jrsteele09/go-auth-client/credstore/filestore"
	"github.com/jrsteele09/go-auth-client/credstore/memstore"
	"github.com/jrsteele09/go-auth-client/credstore/redisstore"
	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/internal/config"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/jrsteele09/go-auth-client/pipeline"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Client struct {
	Session *session.State
	Guard   *guard.Guard
	Router  *guard.Router
	// HTTP sends application API calls with bearer attachment and renewal.
	HTTP    *http.Client
	Metrics *metrics.Metrics
	Store   credstore.Store

	baseURL string
	closers []func() error
}

type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	store      credstore.Store
	base       http.RoundTripper
	reporter   session.Reporter
}

// WithRegisterer registers the client's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithStore bypasses the configured credential store backend.
func WithStore(s credstore.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

func WithReporter(r session.Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	o := options{reporter: session.LogReporter{}}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{baseURL: cfg.GetAPIBaseURL()}
	c.Metrics = metrics.New(o.registerer)

	store := o.store
	if store == nil {
		var err error
		if store, err = c.openStore(cfg); err != nil {
			return nil, err
		}
	}
	c.Store = store

	// The auth client sends through the pipeline, and the pipeline renews
	// through the session, so the transport is bound once the session exists.
	tr := pipeline.NewTransport(nil, pipeline.WithBase(o.base), pipeline.WithMetrics(c.Metrics))
	c.HTTP = &http.Client{Transport: tr, Timeout: cfg.GetHTTPTimeout()}
	api := authclient.New(c.baseURL, c.HTTP)

	var router *guard.Router
	navigator := navigatorFunc(func(ctx context.Context, path string) {
		router.Push(ctx, path)
	})
	state, err := session.New(ctx, store, api,
		session.WithNavigator(navigator),
		session.WithReporter(o.reporter),
		session.WithMetrics(c.Metrics),
		session.WithRoutes(cfg.GetLoginRoute(), cfg.GetLandingRoute()),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client New] %w", err)
	}
	tr.Bind(state)
	c.Session = state

	c.Guard, err = guard.New(state, guard.DefaultRoutes(cfg.GetLoginRoute(), cfg.GetLandingRoute()), cfg.GetLandingRoute())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("[client New] %w", err)
	}
	router = guard.NewRouter(c.Guard)
	c.Router = router

	log.Debug().Str("api", c.baseURL).Bool("authenticated", state.IsAuthenticated()).Msg("auth client ready")
	return c, nil
}

func (c *Client) openStore(cfg config.StoreConfig) (credstore.Store, error) {
	switch backend := cfg.GetStoreBackend(); backend {
	case config.StoreBackendMemory:
		return memstore.New(), nil
	case config.StoreBackendFile:
		fs, err := filestore.New(cfg.GetCredentialFile(), filestore.WithPassphrase(cfg.GetCredentialPassphrase()))
		if err != nil {
			return nil, fmt.Errorf("[client New] file store: %w", err)
		}
		return fs, nil
	case config.StoreBackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		c.closers = append(c.closers, rdb.Close)
		return redisstore.New(rdb, cfg.GetRedisPrefix()), nil
	default:
		return nil, fmt.Errorf("[client New] credential store %q: %w", backend, autherrors.ErrUnsupported)
	}
}

// URL resolves an API path (e.g. "/courses/") against the configured base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Get issues an authenticated GET against the API.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("[client Get] %w", err)
	}
	return c.HTTP.Do(req)
}

// Close releases backend connections.
func (c *Client) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	c.closers = nil
	return autherrors.Join(errs...)
}

type navigatorFunc func(ctx context.Context, path string)

func (f navigatorFunc) Push(ctx context.Context, path string) {
	f(ctx, path)
}
