package session

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Operation names passed to Reporter.
const (
	OpLogin     = "login"
	OpLogout    = "logout"
	OpFetchUser = "fetch_user"
	OpRefresh   = "refresh_access_token"
	OpRestore   = "restore"
)

// Reporter receives failures the session recovers from locally. Returned
// errors still reach the caller; this is the side channel for surfacing them
// (logs, notifications).
type Reporter interface {
	Report(op string, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(op string, err error)

func (f ReporterFunc) Report(op string, err error) {
	f(op, err)
}

// LogReporter writes failures to the global zerolog logger.
type LogReporter struct{}

func (LogReporter) Report(op string, err error) {
	log.Err(err).Str("op", op).Msg("session operation failed")
}

// Navigator moves the host application to a route. guard.Router implements it.
type Navigator interface {
	Push(ctx context.Context, path string)
}
