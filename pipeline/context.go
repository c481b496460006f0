package pipeline

import "context"

type contextKey string

const noRenewalKey contextKey = "no_renewal"

// WithoutRenewal marks requests made with ctx so that a 401 is returned to the
// caller as-is. Used for the renewal call itself and for the profile fetch that
// follows it.
func WithoutRenewal(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRenewalKey, true)
}

func renewalAllowed(ctx context.Context) bool {
	v, _ := ctx.Value(noRenewalKey).(bool)
	return !v
}
