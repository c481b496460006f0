// Package authclient implements the three calls the session makes against the
// remote auth API: login, token refresh and profile fetch.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/pipeline"
	"golang.org/x/oauth2"
)

// Operation names used in errors and logs.
const (
	OpLogin   = "login"
	OpRefresh = "refresh"
	OpProfile = "profile"
)

const (
	RouteLogin   = "/auth/login/"
	RouteRefresh = "/auth/refresh/"
	RouteProfile = "/auth/user/profile/"
)

type Endpoints struct {
	Login   string
	Refresh string
	Profile string
}

// DefaultEndpoints resolves the standard routes under baseURL (e.g. "http://localhost:8000/api").
func DefaultEndpoints(baseURL string) Endpoints {
	baseURL = strings.TrimRight(baseURL, "/")
	return Endpoints{
		Login:   baseURL + RouteLogin,
		Refresh: baseURL + RouteRefresh,
		Profile: baseURL + RouteProfile,
	}
}

type Client struct {
	endpoints Endpoints
	http      *http.Client
}

// New returns a client for the API under baseURL. httpClient is normally built
// by pipeline.NewClient so the profile call carries the bearer token; nil uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	return NewWithEndpoints(DefaultEndpoints(baseURL), httpClient)
}

func NewWithEndpoints(endpoints Endpoints, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoints: endpoints, http: httpClient}
}

func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// Login exchanges credentials for an access/refresh token pair.
func (c *Client) Login(ctx context.Context, creds Credentials) (*oauth2.Token, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("[authclient %s] %w", OpLogin, autherrors.ErrMissingCredentials)
	}

	var resp loginResponse
	if err := c.do(pipeline.WithoutRenewal(ctx), OpLogin, http.MethodPost, c.endpoints.Login, creds, &resp); err != nil {
		return nil, err
	}
	if resp.Access == "" || resp.Refresh == "" {
		return nil, fmt.Errorf("[authclient %s] response missing access or refresh: %w", OpLogin, autherrors.ErrMalformedResponse)
	}
	return newToken(resp.Access, resp.Refresh), nil
}

// Refresh obtains a new access token. The returned token's RefreshToken is
// the one that was presented.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("[authclient %s] %w", OpRefresh, autherrors.ErrNoRefreshToken)
	}

	var resp refreshResponse
	if err := c.do(pipeline.WithoutRenewal(ctx), OpRefresh, http.MethodPost, c.endpoints.Refresh, refreshRequest{Refresh: refreshToken}, &resp); err != nil {
		return nil, err
	}
	if resp.Access == "" {
		return nil, fmt.Errorf("[authclient %s] response missing access: %w", OpRefresh, autherrors.ErrMalformedResponse)
	}
	return newToken(resp.Access, refreshToken), nil
}

// Profile fetches the current user. The bearer credential is attached by the
// HTTP client's transport.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var profile Profile
	if err := c.do(ctx, OpProfile, http.MethodGet, c.endpoints.Profile, nil, &profile); err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("[authclient %s] empty profile: %w", OpProfile, autherrors.ErrMalformedResponse)
	}
	return profile, nil
}

func (c *Client) do(ctx context.Context, op, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[authclient %s] encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("[authclient %s] build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("[authclient %s] %w", op, autherrors.Join(autherrors.ErrTransport, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[authclient %s] decode response: %w", op, autherrors.Join(autherrors.ErrMalformedResponse, err))
	}
	return nil
}

func newToken(access, refresh string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Expiry:       AccessTokenExpiry(access),
	}
}

// AccessTokenExpiry reads the exp claim of a JWT access token without
// verifying it; the client holds no verification key and only uses the value
// for display. Opaque tokens yield the zero time.
func AccessTokenExpiry(access string) time.Time {
	claims := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(access, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
