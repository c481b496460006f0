package credstore

import (
	"context"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Keys under which the two session tokens are persisted.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Store is durable key-value persistence for session tokens.
// A key that was never set (or was deleted) reads as "" with a nil error.
// Only session.State writes to a Store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Record is the persisted pair of tokens.
type Record struct {
	AccessToken  string
	RefreshToken string
}

// Load reads both token keys from the store.
func Load(ctx context.Context, s Store) (Record, error) {
	access, err := s.Get(ctx, KeyAccessToken)
	if err != nil {
		return Record{}, autherrors.Wrapf(err, "[credstore Load] %s", KeyAccessToken)
	}
	refresh, err := s.Get(ctx, KeyRefreshToken)
	if err != nil {
		return Record{}, autherrors.Wrapf(err, "[credstore Load] %s", KeyRefreshToken)
	}
	return Record{AccessToken: access, RefreshToken: refresh}, nil
}

// Clear deletes both token keys. Both deletes are attempted even if the first fails.
func Clear(ctx context.Context, s Store) error {
	errAccess := s.Delete(ctx, KeyAccessToken)
	errRefresh := s.Delete(ctx, KeyRefreshToken)
	if errAccess != nil {
		return autherrors.Wrapf(errAccess, "[credstore Clear] %s", KeyAccessToken)
	}
	if errRefresh != nil {
		return autherrors.Wrapf(errRefresh, "[credstore Clear] %s", KeyRefreshToken)
	}
	return nil
}
