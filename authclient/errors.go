package authclient

import (
	"fmt"
	"net/http"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

const maxErrorBody = 512

// StatusError is a non-2xx response from the auth API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("[authclient %s] unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("[authclient %s] unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrUnauthorized for 401s and
// ErrCredentialsRejected for any failure of the login and refresh endpoints.
func (e *StatusError) Unwrap() []error {
	var errs []error
	if e.StatusCode == http.StatusUnauthorized {
		errs = append(errs, autherrors.ErrUnauthorized)
	}
	if e.Op == OpLogin || e.Op == OpRefresh {
		errs = append(errs, autherrors.ErrCredentialsRejected)
	}
	return errs
}

// IsUnauthorized reports whether err carries a 401 from the auth API.
func IsUnauthorized(err error) bool {
	return autherrors.Is(err, autherrors.ErrUnauthorized)
}
