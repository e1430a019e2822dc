// Package repository defines the persistence layer over MySQL (durable
// identity records, password-reset tickets) and Redis (the ephemeral session
// registry).  The sentinel errors below form the failure taxonomy shared with
// the handler layer, which translates them into HTTP responses.
package repository

import "errors"

// ErrEmailExists is returned on registration when the email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned on registration when the username is taken.
var ErrUsernameExists = errors.New("username already exists")

// ErrNotFound is returned when a referenced user or ticket does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRefreshToken is returned when a refresh token resolves to no
// live session registry record, including the dangling-reverse-index case
// where a newer token has superseded it.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// ErrUpstreamUnavailable signals that the session registry (or another
// auxiliary dependency) cannot be reached.  Callers degrade rather than
// abort: presence reads report unknown and login falls back to issuing an
// access token only.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")
