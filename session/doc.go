// Package session owns the in-memory authentication state: the access and
// refresh tokens and the current user's profile. Every token change is
// written to the credential store before memory is updated, so a process
// restart (see Restore) picks up exactly what the running session held.
//
// State is constructed explicitly and handed to the request pipeline (as its
// Renewer) and the navigation guard (as its Authenticator). It is safe for
// concurrent use; concurrent renewals share a single refresh call.
package session
