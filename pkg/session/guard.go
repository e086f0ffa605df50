package session

import "context"

// Decision is the outcome of Guard.
type Decision int

const (
	Allow Decision = iota
	RedirectLogin
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "redirect-login"
}

// Guard decides whether protected content may be shown. It waits until
// the manager has finished loading, so a restored session is never bounced
// to the login screen. A cancelled ctx yields RedirectLogin and ctx.Err().
func Guard(ctx context.Context, m *Manager) (Decision, error) {
	select {
	case <-m.Ready():
	case <-ctx.Done():
		return RedirectLogin, ctx.Err()
	}
	if m.AccessToken() == "" {
		return RedirectLogin, nil
	}
	return Allow, nil
}
