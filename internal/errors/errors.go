package errors

import (
	"errors"
	"fmt"
)

// Common error types for the auth client
var (
	// Credential errors
	ErrCredentialsRejected = errors.New("credentials rejected")
	ErrMissingCredentials  = errors.New("missing credentials")

	// Token errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNoRefreshToken    = errors.New("no refresh token")
	ErrRenewalFailed     = errors.New("token renewal failed")
	ErrMalformedResponse = errors.New("malformed response")

	// Store errors
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrStoreSealed      = errors.New("credential store could not be unsealed")

	// General errors
	ErrTransport   = errors.New("transport failure")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is errors.Join; kept here so callers import a single errors package.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
