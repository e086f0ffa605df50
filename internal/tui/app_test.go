package tui

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/sphere/internal/apitest"
	"github.com/naveenspark/sphere/internal/credstore"
	"github.com/naveenspark/sphere/pkg/client"
	"github.com/naveenspark/sphere/pkg/domain"
	"github.com/naveenspark/sphere/pkg/session"
	"github.com/naveenspark/sphere/pkg/transport"
)

func newTestApp() App {
	a := NewApp(nil, nil, "dev", "http://127.0.0.1:8000/api/")
	a.width = 80
	a.height = 30
	return a
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	app, ok := m.(App)
	if !ok {
		t.Fatalf("Update returned %T, want App", m)
	}
	return app, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestAppStartsLoading(t *testing.T) {
	a := newTestApp()
	if a.view != viewLoading {
		t.Fatalf("view = %v, want viewLoading", a.view)
	}
	if !strings.Contains(a.View(), "Loading") {
		t.Errorf("expected Loading in view, got:\n%s", a.View())
	}
}

func TestAppGuardDecision(t *testing.T) {
	tests := []struct {
		decision session.Decision
		want     view
	}{
		{session.Allow, viewFeed},
		{session.RedirectLogin, viewLogin},
	}
	for _, tt := range tests {
		t.Run(tt.decision.String(), func(t *testing.T) {
			a, _ := update(t, newTestApp(), guardMsg{decision: tt.decision})
			if a.view != tt.want {
				t.Errorf("view = %v, want %v", a.view, tt.want)
			}
		})
	}
}

func TestAppSessionClearedReturnsToLogin(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed
	a, _ = update(t, a, sessionChangedMsg{session: session.Session{State: session.StateUnauthenticated}})
	if a.view != viewLogin {
		t.Fatalf("view = %v, want viewLogin", a.view)
	}
	if !strings.Contains(a.View(), "session ended") {
		t.Errorf("expected session ended notice, got:\n%s", a.View())
	}
}

func TestAppSessionRefreshKeepsView(t *testing.T) {
	a := newTestApp()
	a.view = viewDetail
	a, _ = update(t, a, sessionChangedMsg{session: session.Session{AccessToken: "A2", RefreshToken: "R1", State: session.StateAuthenticated}})
	if a.view != viewDetail {
		t.Errorf("view = %v, want viewDetail", a.view)
	}
}

func TestAppSessionSnapshotWhileLoadingIgnored(t *testing.T) {
	a := newTestApp()
	a, _ = update(t, a, sessionChangedMsg{session: session.Session{Loading: true, State: session.StateUnauthenticated}})
	if a.view != viewLoading {
		t.Errorf("view = %v, want viewLoading until the guard decides", a.view)
	}
}

func TestAppLoginResult(t *testing.T) {
	a := newTestApp()
	a.view = viewLogin

	failed, _ := update(t, a, loginResultMsg{err: &client.HTTPError{StatusCode: 401, Message: "No active account"}})
	if failed.view != viewLogin {
		t.Errorf("view after failure = %v, want viewLogin", failed.view)
	}
	if !strings.Contains(failed.View(), "invalid credentials") {
		t.Errorf("expected invalid credentials, got:\n%s", failed.View())
	}

	ok, cmd := update(t, a, loginResultMsg{})
	if ok.view != viewFeed {
		t.Errorf("view after success = %v, want viewFeed", ok.view)
	}
	if cmd == nil {
		t.Error("expected feed load command")
	}
}

func TestAppQuitOnQ(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed
	_, cmd := update(t, a, keyMsg("q"))
	if !isQuit(cmd) {
		t.Error("expected quit on q in feed")
	}
}

func TestAppQNotFiredWhenEditing(t *testing.T) {
	a := newTestApp()
	a.view = viewLogin
	a, cmd := update(t, a, keyMsg("q"))
	if isQuit(cmd) {
		t.Fatal("q quit while typing in the login form")
	}
	if a.login.fields[loginEmail] != "q" {
		t.Errorf("email = %q, want q", a.login.fields[loginEmail])
	}
	_, cmd = update(t, a, keyMsg("ctrl+c"))
	if !isQuit(cmd) {
		t.Error("ctrl+c must always quit")
	}
}

func TestAppOpenDetailAndBack(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed
	p := domain.Post{ID: 5, Content: "hello there", LikeCount: 2}
	a, _ = update(t, a, postsLoadedMsg{posts: []domain.Post{p}})

	a, cmd := update(t, a, openDetailMsg{post: p})
	if a.view != viewDetail {
		t.Fatalf("view = %v, want viewDetail", a.view)
	}
	if cmd == nil {
		t.Error("expected comments load command")
	}

	// Like in detail, then leave: the feed picks up the new count.
	a.detail.setLiked(true)
	a, cmd = update(t, a, keyMsg("esc"))
	a, _ = update(t, a, cmd())
	if a.view != viewFeed {
		t.Fatalf("view = %v, want viewFeed", a.view)
	}
	if a.feed.posts[0].LikeCount != 3 || !a.feed.liked[5] {
		t.Errorf("feed post = %+v liked=%v, want count 3 liked", a.feed.posts[0], a.feed.liked[5])
	}
}

func TestAppComposeFlow(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed

	a, cmd := update(t, a, keyMsg("n"))
	a, _ = update(t, a, cmd())
	if a.view != viewCompose {
		t.Fatalf("view = %v, want viewCompose", a.view)
	}

	a, _ = update(t, a, keyMsg("esc"))
	if a.view != viewFeed {
		t.Fatalf("esc: view = %v, want viewFeed", a.view)
	}

	a.view = viewCompose
	a, cmd = update(t, a, postCreatedMsg{post: &domain.Post{ID: 9, Content: "new"}})
	if a.view != viewFeed {
		t.Errorf("after publish: view = %v, want viewFeed", a.view)
	}
	if cmd == nil {
		t.Error("expected feed reload after publish")
	}
	if !strings.Contains(a.View(), "posted") {
		t.Errorf("expected posted status, got:\n%s", a.View())
	}
}

func TestAppProfileOverlay(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed

	a, cmd := update(t, a, showProfileMsg{userID: 8})
	if !a.profileOpen || cmd == nil {
		t.Fatal("expected profile overlay with load command")
	}
	a, _ = update(t, a, profileLoadedMsg{profile: &domain.Profile{User: domain.User{ID: 8, Username: "bob"}}})
	if !strings.Contains(a.View(), "@bob") {
		t.Errorf("expected profile in view, got:\n%s", a.View())
	}

	// q closes the overlay instead of quitting.
	a, cmd = update(t, a, keyMsg("q"))
	if isQuit(cmd) || a.profileOpen {
		t.Error("q should close the overlay")
	}
}

func TestAppStatusMessages(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed
	a, _ = update(t, a, copyResultMsg{})
	if !strings.Contains(a.View(), "copied to clipboard") {
		t.Errorf("expected copy status, got:\n%s", a.View())
	}
}

func TestAppUpdateAvailableInHeader(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed
	a, _ = update(t, a, versionCheckMsg{latestVersion: "v1.2.0", hasUpdate: true})
	if !strings.Contains(a.View(), "v1.2.0 available") {
		t.Errorf("expected update notice, got:\n%s", a.View())
	}
}

func TestAppViewFitsTerminal(t *testing.T) {
	a := newTestApp()
	a.view = viewFeed
	a, _ = update(t, a, tea.WindowSizeMsg{Width: 80, Height: 20})
	posts := make([]domain.Post, 30)
	for i := range posts {
		posts[i] = domain.Post{ID: int64(i + 1), Content: "post", Author: "ada"}
	}
	a, _ = update(t, a, postsLoadedMsg{posts: posts})

	lines := strings.Count(a.View(), "\n") + 1
	if lines > 20 {
		t.Errorf("view has %d lines, want <= 20", lines)
	}
}

// TestAppReturnsToLoginWhenRefreshFails runs the real session and
// transport against the fake API: the stored refresh token is unknown to
// the server, so loading the feed ends the session.
func TestAppReturnsToLoginWhenRefreshFails(t *testing.T) {
	srv := apitest.New(t)
	store := credstore.NewMemoryStore()
	if err := store.Set(map[string]string{credstore.KeyAccess: "A1", credstore.KeyRefresh: "R1"}); err != nil {
		t.Fatal(err)
	}
	sess := session.New(store, client.New(srv.BaseURL()))
	defer sess.Close()
	if err := sess.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	hc := &http.Client{Transport: transport.New(nil, sess, nil), Timeout: 5 * time.Second}
	api := client.New(srv.BaseURL(), client.WithHTTPClient(hc))

	a := NewApp(api, sess, "dev", srv.BaseURL())
	a.width, a.height = 80, 30

	a, cmd := update(t, a, a.guard()())
	if a.view != viewFeed {
		t.Fatalf("view = %v, want viewFeed for a restored session", a.view)
	}
	a, _ = update(t, a, cmd())
	if a.feed.err == nil {
		t.Fatal("expected feed load to fail")
	}

	// The subscription delivers the cleared session.
	for a.view != viewLogin {
		msg := a.listen()()
		if msg == nil {
			t.Fatal("subscription closed before the session was cleared")
		}
		a, _ = update(t, a, msg)
	}
	if sess.State() != session.StateUnauthenticated {
		t.Errorf("State = %v, want Unauthenticated", sess.State())
	}
	if len(srv.Calls("/posts/")) != 1 {
		t.Errorf("posts calls = %d, want 1 (no retry after failed refresh)", len(srv.Calls("/posts/")))
	}
}

func TestAppQuitEndsSubscription(t *testing.T) {
	sess := session.New(credstore.NewMemoryStore(), nil)
	defer sess.Close()
	if err := sess.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a := NewApp(nil, sess, "dev", "")

	_, cmd := update(t, a, keyMsg("ctrl+c"))
	if !isQuit(cmd) {
		t.Fatal("expected quit")
	}

	// The pending snapshot may still be delivered; after it the channel closes.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-a.updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription still open after quit")
		}
	}
}

func TestAppLoginThroughForm(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser(7, "ada", "pw", domain.TokenPair{Access: "A1", Refresh: "R1"})
	sess := session.New(credstore.NewMemoryStore(), client.New(srv.BaseURL()))
	defer sess.Close()
	if err := sess.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	hc := &http.Client{Transport: transport.New(nil, sess, nil)}
	api := client.New(srv.BaseURL(), client.WithHTTPClient(hc))

	a := NewApp(api, sess, "dev", srv.BaseURL())
	a, _ = update(t, a, a.guard()())
	if a.view != viewLogin {
		t.Fatalf("view = %v, want viewLogin", a.view)
	}

	a, _ = update(t, a, keyMsg("tab"))
	a, _ = update(t, a, keyMsg("ada"))
	a, _ = update(t, a, keyMsg("tab"))
	a, _ = update(t, a, keyMsg("pw"))
	a, cmd := update(t, a, keyMsg("enter"))
	if cmd == nil {
		t.Fatal("expected login command")
	}
	a, _ = update(t, a, cmd())
	if a.view != viewFeed {
		t.Fatalf("view = %v, want viewFeed after login", a.view)
	}
	if sess.AccessToken() != "A1" || sess.RefreshToken() != "R1" {
		t.Errorf("session = %q/%q, want A1/R1", sess.AccessToken(), sess.RefreshToken())
	}
	if auth := srv.Calls("auth/login/")[0].Authorization; auth != "" {
		t.Errorf("login carried Authorization %q", auth)
	}
}
