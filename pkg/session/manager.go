package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/naveenspark/sphere/internal/credstore"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRefreshCoalescing makes concurrent Refresh calls share one call to the
// remote refresh endpoint.
func WithRefreshCoalescing() Option {
	return func(m *Manager) { m.coalesce = true }
}

// Manager is the single owner of session state.
type Manager struct {
	store    credstore.Store
	remote   Remote
	logger   *slog.Logger
	coalesce bool
	refreshG singleflight.Group

	initOnce sync.Once
	initErr  error
	ready    chan struct{}

	mu      sync.RWMutex
	state   State
	access  string
	refresh string
	userID  string
	subs    map[int]chan Session
	nextSub int
	closed  bool
}

// New returns a Manager in the Uninitialized state. Call Initialize before
// using it.
func New(store credstore.Store, remote Remote, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		remote: remote,
		logger: slog.New(slog.DiscardHandler),
		ready:  make(chan struct{}),
		subs:   make(map[int]chan Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize restores the persisted credential pair. It runs once; later
// calls return the first result. Loading ends whatever the outcome, and a
// store error leaves the session Unauthenticated.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.setState(StateLoading)

		access, refresh, userID, err := m.loadPersisted()

		m.mu.Lock()
		if err == nil && access != "" && refresh != "" {
			m.access, m.refresh, m.userID = access, refresh, userID
			m.state = StateAuthenticated
		} else {
			m.state = StateUnauthenticated
		}
		state := m.state
		m.publishLocked()
		m.mu.Unlock()

		m.initErr = err
		close(m.ready)
		if err != nil {
			m.logger.ErrorContext(ctx, "restore session failed", "error", err)
			return
		}
		m.logger.DebugContext(ctx, "session restored", "state", state)
	})
	return m.initErr
}

func (m *Manager) loadPersisted() (access, refresh, userID string, err error) {
	if access, err = m.store.Get(credstore.KeyAccess); err != nil {
		return "", "", "", fmt.Errorf("session: load access token: %w", err)
	}
	if refresh, err = m.store.Get(credstore.KeyRefresh); err != nil {
		return "", "", "", fmt.Errorf("session: load refresh token: %w", err)
	}
	if userID, err = m.store.Get(credstore.KeyUserID); err != nil {
		return "", "", "", fmt.Errorf("session: load user id: %w", err)
	}
	return access, refresh, userID, nil
}

// Login installs a token pair already issued by the service. It makes no
// network call.
func (m *Manager) Login(access, refresh string) error {
	if access == "" || refresh == "" {
		return ErrEmptyToken
	}

	userID, err := UserIDFromToken(access)
	if err != nil {
		m.logger.Debug("no user id in access token", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUninitialized || m.state == StateLoading {
		return ErrNotInitialized
	}

	values := map[string]string{
		credstore.KeyAccess:  access,
		credstore.KeyRefresh: refresh,
	}
	if userID != "" {
		values[credstore.KeyUserID] = userID
	}
	if err := m.store.Set(values); err != nil {
		return fmt.Errorf("session: persist login: %w", err)
	}
	if userID == "" {
		// A user id cached by an earlier account must not survive.
		if err := m.store.Delete(credstore.KeyUserID); err != nil {
			m.logger.Warn("drop cached user id failed", "error", err)
		}
	}

	m.access, m.refresh, m.userID = access, refresh, userID
	m.state = StateAuthenticated
	m.publishLocked()
	m.logger.Info("logged in", "user_id", userID)
	return nil
}

// Refresh obtains a new access token with the current refresh token. Only
// the access token changes. When there is no refresh token it does nothing
// and returns ErrNoRefreshToken. When the service rejects the refresh, or
// cannot be reached, the session is logged out and the returned error wraps
// ErrRefreshFailed.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.coalesce {
		return m.doRefresh(ctx)
	}
	_, err, shared := m.refreshG.Do("refresh", func() (any, error) {
		return nil, m.doRefresh(ctx)
	})
	if shared {
		m.logger.DebugContext(ctx, "joined in-flight refresh")
	}
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.RLock()
	refresh := m.refresh
	m.mu.RUnlock()

	if refresh == "" {
		return ErrNoRefreshToken
	}

	access, err := m.remote.RefreshAccess(ctx, refresh)
	if err == nil && access == "" {
		err = errors.New("empty access token in refresh response")
	}
	if err != nil {
		m.mu.RLock()
		access, current := m.access, m.refresh
		m.mu.RUnlock()
		if current != refresh {
			// The pair this refresh was for is already gone; a newer login stays.
			m.logger.DebugContext(ctx, "refresh failed for a replaced session", "error", err)
			return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		m.logger.WarnContext(ctx, "refresh failed, logging out", "error", err)
		if logoutErr := m.endSession(ctx, access, refresh); logoutErr != nil {
			m.logger.ErrorContext(ctx, "logout after failed refresh", "error", logoutErr)
		}
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refresh != refresh {
		// Logged out or logged in again while the call was in flight.
		if m.access == "" {
			return fmt.Errorf("%w: session ended during refresh", ErrRefreshFailed)
		}
		return nil
	}
	if err := m.store.Set(map[string]string{credstore.KeyAccess: access}); err != nil {
		return fmt.Errorf("%w: persist access token: %w", ErrRefreshFailed, err)
	}
	m.access = access
	m.publishLocked()
	m.logger.DebugContext(ctx, "access token refreshed")
	return nil
}

// Logout ends the session. The service is told on a best-effort basis; local
// state is cleared whether or not that succeeds. The returned error only
// reports a failure to clear the persisted copy, which the in-memory state
// does not wait for. A Login that lands while the service is being told
// replaces the old pair and is left alone.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	access, refresh := m.access, m.refresh
	m.mu.RUnlock()
	return m.endSession(ctx, access, refresh)
}

// endSession notifies the service about access, then clears the session if
// it still holds the access/refresh pair it was called with.
func (m *Manager) endSession(ctx context.Context, access, refresh string) error {
	if access != "" && m.remote != nil {
		if err := m.remote.NotifyLogout(ctx, access); err != nil {
			m.logger.WarnContext(ctx, "remote logout failed", "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.access != access || m.refresh != refresh {
		m.logger.DebugContext(ctx, "session replaced during logout, keeping it")
		return nil
	}

	m.access, m.refresh, m.userID = "", "", ""
	if m.state == StateAuthenticated {
		m.state = StateUnauthenticated
	}
	err := m.store.Delete(credstore.KeyAccess, credstore.KeyRefresh, credstore.KeyUserID)
	m.publishLocked()
	if err != nil {
		return fmt.Errorf("session: clear persisted credentials: %w", err)
	}
	m.logger.InfoContext(ctx, "logged out")
	return nil
}

// AccessToken returns the current access token, or "".
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// RefreshToken returns the current refresh token, or "".
func (m *Manager) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh
}

// UserID returns the cached user id, or "".
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Loading reports whether Initialize has not finished yet.
func (m *Manager) Loading() bool {
	s := m.State()
	return s == StateUninitialized || s == StateLoading
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Ready is closed once Initialize has finished.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Subscribe returns a channel that receives the current session and then
// every change. Slow readers only see the latest value. The cancel func
// stops delivery and closes the channel.
func (m *Manager) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Close ends all subscriptions. Session state and the persisted copy are
// left as they are.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.publishLocked()
}

func (m *Manager) snapshotLocked() Session {
	return Session{
		AccessToken:  m.access,
		RefreshToken: m.refresh,
		UserID:       m.userID,
		Loading:      m.state == StateUninitialized || m.state == StateLoading,
		State:        m.state,
	}
}

// publishLocked must be called with mu held for writing.
func (m *Manager) publishLocked() {
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
