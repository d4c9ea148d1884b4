// Package apiclient talks to a running encodefleet daemon over its HTTP API.
//
// The client logs in lazily with the configured password, caches the session
// token, and logs in again once when the daemon answers UNAUTHORIZED (for
// example after a daemon restart). Error envelopes are returned as *Error so
// callers can branch on the public code.
package apiclient
