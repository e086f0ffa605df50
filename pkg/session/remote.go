package session

import "context"

// Remote is the part of the API the session lifecycle talks to.
type Remote interface {
	// RefreshAccess exchanges a refresh token for a new access token.
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
	// NotifyLogout tells the service the session identified by accessToken
	// is over.
	NotifyLogout(ctx context.Context, accessToken string) error
}
