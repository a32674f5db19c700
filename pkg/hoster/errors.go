package hoster

// This file defines the error taxonomy shared by queries and hosting layers.
// Hosting layers map these to their own status codes (the HTTP server uses
// 400, 503, 404 and 307 respectively); queries wrap them with context via
// fmt.Errorf and %w.

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a malformed request: a missing required
	// input, an unparseable or negative distance bound, bad pagination
	// values. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPrecondition marks a Fetch that ran before the query's Setup
	// completed. The query remains usable once Setup succeeds.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotFound marks a lookup of a slug no query is registered under.
	ErrNotFound = errors.New("not found")
)

// RedirectError is returned by a Fetch that wants the caller sent to another
// location instead of receiving records. The HTTP layer turns it into a
// temporary redirect.
type RedirectError struct {
	URL string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect to %s", e.URL)
}
