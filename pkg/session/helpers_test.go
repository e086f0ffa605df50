package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/naveenspark/sphere/internal/credstore"
)

// makeToken returns a signed JWT with the given claims. The key is
// irrelevant: the client never verifies signatures.
func makeToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

type fakeRemote struct {
	mu           sync.Mutex
	refreshCalls []string
	logoutCalls  []string
	nextAccess   string
	refreshErr   error
	logoutErr    error

	entered chan struct{} // signalled when RefreshAccess starts, if set
	release chan struct{} // RefreshAccess waits on it, if set

	logoutEntered chan struct{} // signalled when NotifyLogout starts, if set
	logoutRelease chan struct{} // NotifyLogout waits on it, if set
}

func (f *fakeRemote) RefreshAccess(_ context.Context, refresh string) (string, error) {
	f.mu.Lock()
	f.refreshCalls = append(f.refreshCalls, refresh)
	access, err := f.nextAccess, f.refreshErr
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}
	return access, err
}

func (f *fakeRemote) NotifyLogout(_ context.Context, access string) error {
	f.mu.Lock()
	f.logoutCalls = append(f.logoutCalls, access)
	err := f.logoutErr
	entered, release := f.logoutEntered, f.logoutRelease
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeRemote) refreshes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshCalls...)
}

func (f *fakeRemote) logouts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logoutCalls...)
}

// failingStore wraps a MemoryStore and fails selected operations.
type failingStore struct {
	*credstore.MemoryStore
	getErr    error
	setErr    error
	deleteErr error
}

func (s *failingStore) Get(key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.MemoryStore.Get(key)
}

func (s *failingStore) Set(values map[string]string) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(values)
}

func (s *failingStore) Delete(keys ...string) error {
	if err := s.MemoryStore.Delete(keys...); err != nil {
		return err
	}
	return s.deleteErr
}

var errDisk = errors.New("disk full")

func newInitialized(t *testing.T, store credstore.Store, remote Remote, opts ...Option) *Manager {
	t.Helper()
	m := New(store, remote, opts...)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, ch <-chan Session, match func(Session) bool) Session {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed")
			}
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for session update")
		}
	}
}
