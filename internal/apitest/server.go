// Package apitest runs an in-process fake of the SocialSphere API for tests.
// It records every request so tests can assert on headers and call counts.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/naveenspark/sphere/pkg/domain"
)

// Call is one request received by the fake.
type Call struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          []byte
}

type account struct {
	id       int64
	email    string
	username string
	password string
}

// Server is the fake API. All exported methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	calls    []Call
	access   map[string]int64 // valid access token -> user id
	refresh  map[string]int64 // valid refresh token -> user id
	issue    map[string][]string
	pairs    map[string]domain.TokenPair // username -> pair issued on login
	accounts map[string]*account
	posts    map[int64]*domain.Post
	comments map[int64][]domain.Comment
	likes    map[int64]map[int64]bool
	follows  map[int64]map[int64]bool
	nextID   int64

	logoutStatus int
	refreshDelay time.Duration
}

// New starts a fake API and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		access:   make(map[string]int64),
		refresh:  make(map[string]int64),
		issue:    make(map[string][]string),
		pairs:    make(map[string]domain.TokenPair),
		accounts: make(map[string]*account),
		posts:    make(map[int64]*domain.Post),
		comments: make(map[int64][]domain.Comment),
		likes:    make(map[int64]map[int64]bool),
		follows:  make(map[int64]map[int64]bool),
		nextID:   100,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root, with a trailing slash.
func (s *Server) BaseURL() string {
	return s.URL + "/api/"
}

// AddUser registers an account that can log in and receive pair on login.
func (s *Server) AddUser(id int64, username, password string, pair domain.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = &account{id: id, username: username, email: username + "@example.com", password: password}
	s.pairs[username] = pair
}

// AllowAccess marks an access token as valid for user id.
func (s *Server) AllowAccess(token string, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[token] = userID
}

// ExpireAccess makes a previously valid access token answer 401.
func (s *Server) ExpireAccess(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, token)
}

// AllowRefresh makes refresh valid for user id; each refresh call hands out
// the next token of issued, which becomes a valid access token.
func (s *Server) AllowRefresh(refresh string, userID int64, issued ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[refresh] = userID
	s.issue[refresh] = append(s.issue[refresh], issued...)
}

// FailLogout makes auth/logout answer with status.
func (s *Server) FailLogout(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = status
}

// SlowRefresh delays every refresh response.
func (s *Server) SlowRefresh(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// AddPost stores a post and returns it with its assigned ID.
func (s *Server) AddPost(p domain.Post) domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.IsActive = true
	cp := p
	s.posts[p.ID] = &cp
	return p
}

// Liked reports whether user liked post.
func (s *Server) Liked(postID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likes[postID][userID]
}

// Follows reports whether follower follows followee.
func (s *Server) Follows(follower, followee int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.follows[followee][follower]
}

// Calls returns the recorded requests whose path ends with suffix.
func (s *Server) Calls(suffix string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if strings.HasSuffix(c.Path, suffix) {
			out = append(out, c)
		}
	}
	return out
}

// AllCalls returns every recorded request in arrival order.
func (s *Server) AllCalls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record)
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register/", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login/", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/token/refresh/", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout/", s.handleLogout).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireAccess)
	authed.HandleFunc("/auth/change-password/", s.handleChangePassword).Methods(http.MethodPost, http.MethodPut)
	authed.HandleFunc("/posts/", s.handleListPosts).Methods(http.MethodGet)
	authed.HandleFunc("/posts/", s.handleCreatePost).Methods(http.MethodPost)
	authed.HandleFunc("/posts/{id:[0-9]+}/", s.handleGetPost).Methods(http.MethodGet)
	authed.HandleFunc("/posts/{id:[0-9]+}/", s.handleUpdatePost).Methods(http.MethodPatch)
	authed.HandleFunc("/posts/{id:[0-9]+}/", s.handleDeletePost).Methods(http.MethodDelete)
	authed.HandleFunc("/interaction/posts/{id:[0-9]+}/like/", s.handleLike).Methods(http.MethodPost)
	authed.HandleFunc("/interaction/posts/{id:[0-9]+}/comments/", s.handleListComments).Methods(http.MethodGet)
	authed.HandleFunc("/interaction/posts/{id:[0-9]+}/comments/create/", s.handleCreateComment).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id:[0-9]+}/", s.handleProfile).Methods(http.MethodGet)
	authed.HandleFunc("/follows/{id:[0-9]+}/{action:follow|unfollow}/", s.handleFollow).Methods(http.MethodPost)
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // recorded best-effort
		r.Body.Close()                //nolint:errcheck
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		uid, ok := s.access[tok]
		s.mu.Unlock()
		if tok == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		r.Header.Set("X-User-ID", strconv.FormatInt(uid, 10))
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64) //nolint:errcheck // set by requireAccess
	return id
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64) //nolint:errcheck // route regexp guarantees digits
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	fields := map[string][]string{}
	if req.Username == "" {
		fields["username"] = []string{"This field may not be blank."}
	}
	if req.Password == "" {
		fields["password"] = []string{"This field may not be blank."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.accounts[req.Username]; taken && req.Username != "" {
		fields["username"] = []string{"A user with that username already exists."}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fields)
		return
	}
	s.nextID++
	s.accounts[req.Username] = &account{id: s.nextID, email: req.Email, username: req.Username, password: req.Password}
	writeJSON(w, http.StatusCreated, domain.User{ID: s.nextID, Username: req.Username, Email: req.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[req.Username]
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	pair, ok := s.pairs[req.Username]
	if !ok {
		s.nextID++
		pair = domain.TokenPair{
			Access:  "access-" + strconv.FormatInt(s.nextID, 10),
			Refresh: "refresh-" + strconv.FormatInt(s.nextID, 10),
		}
	}
	s.access[pair.Access] = acc.id
	s.refresh[pair.Refresh] = acc.id
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.refresh[req.Refresh]
	queue := s.issue[req.Refresh]
	if !ok || len(queue) == 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	next := queue[0]
	if len(queue) > 1 {
		s.issue[req.Refresh] = queue[1:]
	}
	s.access[next] = uid
	writeJSON(w, http.StatusOK, map[string]string{"access": next})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.logoutStatus
	s.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "logout failed"})
		return
	}
	w.WriteHeader(http.StatusResetContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	uid := currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.id != uid {
			continue
		}
		if acc.password != req.OldPassword {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"old_password": {"Wrong password."}})
			return
		}
		acc.password = req.NewPassword
		writeJSON(w, http.StatusOK, map[string]string{"detail": "Password updated successfully"})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	posts := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, *p)
	}
	s.mu.Unlock()

	newestFirst := r.URL.Query().Get("ordering") == "-created_at"
	sort.Slice(posts, func(i, j int) bool {
		if newestFirst {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].CreatedAt.Before(posts[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, map[string]any{"count": len(posts), "results": posts})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "expected multipart form"})
		return
	}
	content := r.FormValue("content")
	if strings.TrimSpace(content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"content": {"This field may not be blank."}})
		return
	}
	p := domain.Post{
		Content:  content,
		Category: r.FormValue("category"),
		AuthorID: currentUser(r),
	}
	if f, hdr, err := r.FormFile("image"); err == nil {
		f.Close() //nolint:errcheck
		p.ImageURL = "/media/posts/" + hdr.Filename
	}
	writeJSON(w, http.StatusCreated, s.AddPost(p))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, ok := s.posts[pathID(r)]
	var out domain.Post
	if ok {
		out = *p
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  *string `json:"content"`
		Category *string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[pathID(r)]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if p.AuthorID != currentUser(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	if req.Content != nil {
		p.Content = *req.Content
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	p.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, *p)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := pathID(r)
	p, ok := s.posts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if p.AuthorID != currentUser(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	delete(s.posts, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Liked bool `json:"liked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := pathID(r)
	p, ok := s.posts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if s.likes[id] == nil {
		s.likes[id] = make(map[int64]bool)
	}
	uid := currentUser(r)
	was := s.likes[id][uid]
	switch {
	case req.Liked && !was:
		s.likes[id][uid] = true
		p.LikeCount++
	case !req.Liked && was:
		delete(s.likes[id], uid)
		p.LikeCount--
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": req.Liked, "like_count": p.LikeCount})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	comments := append([]domain.Comment{}, s.comments[pathID(r)]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"content": {"This field may not be blank."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := pathID(r)
	p, ok := s.posts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	s.nextID++
	c := domain.Comment{ID: s.nextID, Content: req.Content, Author: s.usernameLocked(currentUser(r)), CreatedAt: time.Now().UTC()}
	s.comments[id] = append(s.comments[id], c)
	p.CommentCount++
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.id != id {
			continue
		}
		posts := 0
		for _, p := range s.posts {
			if p.AuthorID == id {
				posts++
			}
		}
		following := 0
		for _, followers := range s.follows {
			if followers[id] {
				following++
			}
		}
		writeJSON(w, http.StatusOK, domain.Profile{
			User:           domain.User{ID: acc.id, Username: acc.username, Email: acc.email},
			Privacy:        "public",
			FollowersCount: len(s.follows[id]),
			FollowingCount: following,
			PostsCount:     posts,
		})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	target := pathID(r)
	uid := currentUser(r)
	if target == uid {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "You cannot follow yourself."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[target] == nil {
		s.follows[target] = make(map[int64]bool)
	}
	if mux.Vars(r)["action"] == "follow" {
		s.follows[target][uid] = true
	} else {
		delete(s.follows[target], uid)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) usernameLocked(id int64) string {
	for _, acc := range s.accounts {
		if acc.id == id {
			return acc.username
		}
	}
	return ""
}
