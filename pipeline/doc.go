// Package pipeline wraps an http.RoundTripper with the session's credential
// handling: every outbound request carries the current access token as a
// bearer credential, and a 401 response triggers one token renewal followed
// by one resend of the original request.
package pipeline
