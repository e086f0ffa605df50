// Package session owns the client's authentication state: the access and
// refresh tokens, their persisted copy, and the transitions between
// signed-in and signed-out.
//
// A Manager is created once per process and handed to everything that needs
// it. Only the Manager mutates session state; the request pipeline reads
// tokens from it and asks it to refresh.
package session

import (
	"errors"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Session is a point-in-time copy of the authentication state.
type Session struct {
	AccessToken  string
	RefreshToken string
	// UserID is read from the access token without verification. Display only.
	UserID  string
	Loading bool
	State   State
}

// Authenticated reports whether the snapshot carries an access token.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated && s.AccessToken != ""
}

var (
	ErrEmptyToken     = errors.New("session: access and refresh tokens must be non-empty")
	ErrNotInitialized = errors.New("session: not initialized")
	ErrNoRefreshToken = errors.New("session: no refresh token")
	ErrRefreshFailed  = errors.New("session: refresh failed")
)
