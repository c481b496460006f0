package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// HeaderRequestID correlates an original request with its resend in logs.
const HeaderRequestID = "X-Request-ID"

// TokenSource supplies the current access token ("" when logged out).
type TokenSource interface {
	AccessToken() string
}

// Renewer is the session side of the pipeline.
type Renewer interface {
	TokenSource
	RefreshAccessToken(ctx context.Context) error
}

// Transport attaches bearer credentials and performs at most one
// renew-and-resend per request.
type Transport struct {
	Base    http.RoundTripper
	Session Renewer
	Metrics *metrics.Metrics
}

var _ http.RoundTripper = (*Transport)(nil)

type Option func(*Transport)

func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.Base = base
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) {
		t.Metrics = m
	}
}

// NewTransport returns a Transport bound to session. The session may be nil
// and supplied later with Bind, before the transport is first used.
func NewTransport(session Renewer, opts ...Option) *Transport {
	t := &Transport{Session: session}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind sets the session. It exists because the session's own auth client
// usually sends through this transport, so one of the two is built first.
func (t *Transport) Bind(session Renewer) {
	t.Session = session
}

// NewClient returns an *http.Client sending through a new Transport.
func NewClient(session Renewer, timeout time.Duration, opts ...Option) *http.Client {
	return &http.Client{
		Transport: NewTransport(session, opts...),
		Timeout:   timeout,
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// pendingRequest is an in-flight call together with its retry state.
type pendingRequest struct {
	req       *http.Request
	body      []byte
	getBody   func() (io.ReadCloser, error)
	requestID string
	retried   bool
}

func newPendingRequest(req *http.Request) (*pendingRequest, error) {
	p := &pendingRequest{req: req, requestID: req.Header.Get(HeaderRequestID)}
	if p.requestID == "" {
		p.requestID = uuid.NewString()
	}
	if req.Body == nil || req.Body == http.NoBody {
		return p, nil
	}

	defer req.Body.Close()
	if req.GetBody != nil {
		p.getBody = req.GetBody
		return p, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("[pipeline RoundTrip] buffer request body: %w", err)
	}
	p.body = body
	p.getBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(p.body)), nil
	}
	return p, nil
}

// build produces a fresh copy of the original request carrying the current token.
func (p *pendingRequest) build(token string) (*http.Request, error) {
	out := p.req.Clone(p.req.Context())
	if p.getBody != nil {
		body, err := p.getBody()
		if err != nil {
			return nil, fmt.Errorf("[pipeline RoundTrip] replay request body: %w", err)
		}
		out.Body = body
		out.GetBody = p.getBody
	}
	out.Header.Set(HeaderRequestID, p.requestID)
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(out)
	}
	return out, nil
}

func (t *Transport) currentToken() string {
	if t.Session == nil {
		return ""
	}
	return t.Session.AccessToken()
}

func (t *Transport) send(p *pendingRequest) (*http.Response, error) {
	out, err := p.build(t.currentToken())
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(out)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	p, err := newPendingRequest(req)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("request_id", p.requestID).Str("method", req.Method).Str("url", req.URL.Redacted()).Logger()

	for {
		resp, err := t.send(p)
		if p.retried {
			t.Metrics.ObserveRetry(err == nil && isSuccess(resp.StatusCode))
		}
		if err != nil {
			return nil, err
		}
		if !t.shouldRenew(p, resp) {
			if p.retried {
				logger.Debug().Int("status", resp.StatusCode).Msg("resent after renewal")
			}
			return resp, nil
		}

		p.retried = true
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		logger.Debug().Msg("authorization failure, renewing access token")

		if err := t.Session.RefreshAccessToken(req.Context()); err != nil {
			logger.Warn().Err(err).Msg("renewal failed, not resending")
			return nil, fmt.Errorf("[pipeline RoundTrip] renew access token: %w", err)
		}
	}
}

// shouldRenew is true for a 401 on a request that has not been resent yet.
func (t *Transport) shouldRenew(p *pendingRequest, resp *http.Response) bool {
	return resp.StatusCode == http.StatusUnauthorized &&
		!p.retried &&
		t.Session != nil &&
		renewalAllowed(p.req.Context())
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}
