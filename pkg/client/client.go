package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/naveenspark/sphere/pkg/domain"
)

// CreatePostRequest is the payload for creating a new post.
type CreatePostRequest struct {
	Content  string
	Category string
	// Image is optional. ImageName is sent as the uploaded file name.
	Image     io.Reader
	ImageName string
}

// UpdatePostRequest changes the non-nil fields of a post.
type UpdatePostRequest struct {
	Content  *string `json:"content,omitempty"`
	Category *string `json:"category,omitempty"`
}

// Client is the SocialSphere API client. Credentials are not its concern:
// give it an http.Client whose transport attaches them.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new API client. baseURL is the API root, e.g.
// "http://127.0.0.1:8000/api/".
func New(baseURL string, opts ...Option) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- Auth ---

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg domain.Registration) error {
	if err := c.post(ctx, "auth/register/", reg, nil); err != nil {
		return fmt.Errorf("client.Register: %w", err)
	}
	return nil
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := c.post(ctx, "auth/login/", creds, &pair); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		return nil, fmt.Errorf("client.Login: incomplete token pair in response")
	}
	return &pair, nil
}

// RefreshAccess exchanges a refresh token for a new access token.
func (c *Client) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	var out struct {
		Access string `json:"access"`
	}
	if err := c.post(ctx, "auth/token/refresh/", map[string]string{"refresh": refreshToken}, &out); err != nil {
		return "", fmt.Errorf("client.RefreshAccess: %w", err)
	}
	return out.Access, nil
}

// NotifyLogout tells the service the session is over. accessToken, when
// set, is sent explicitly so this works on a client without credentials.
func (c *Client) NotifyLogout(ctx context.Context, accessToken string) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "auth/logout/", nil)
	if err != nil {
		return fmt.Errorf("client.NotifyLogout: %w", err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("client.NotifyLogout: %w", err)
	}
	return nil
}

// ChangePassword changes the signed-in user's password. The caller should
// end the session afterwards.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	if err := c.post(ctx, "auth/change-password/", body, nil); err != nil {
		return fmt.Errorf("client.ChangePassword: %w", err)
	}
	return nil
}

// --- Posts ---

// ListPosts fetches the feed. ordering is passed through, e.g. "-created_at"
// for newest first; "" leaves the server default.
func (c *Client) ListPosts(ctx context.Context, ordering string) ([]domain.Post, error) {
	path := "posts/"
	if ordering != "" {
		params := url.Values{}
		params.Set("ordering", ordering)
		path += "?" + params.Encode()
	}

	var raw json.RawMessage
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("client.ListPosts: %w", err)
	}
	posts, err := decodeList[domain.Post](raw)
	if err != nil {
		return nil, fmt.Errorf("client.ListPosts: %w", err)
	}
	return posts, nil
}

// GetPost fetches a single post by ID.
func (c *Client) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	var post domain.Post
	if err := c.get(ctx, postPath(id), &post); err != nil {
		return nil, fmt.Errorf("client.GetPost: %w", err)
	}
	return &post, nil
}

// CreatePost publishes a post. It is sent as a multipart form so an image
// can ride along.
func (c *Client) CreatePost(ctx context.Context, p CreatePostRequest) (*domain.Post, error) {
	category := p.Category
	if category == "" {
		category = domain.DefaultCategory
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("content", p.Content); err != nil {
		return nil, fmt.Errorf("client.CreatePost: %w", err)
	}
	if err := mw.WriteField("category", category); err != nil {
		return nil, fmt.Errorf("client.CreatePost: %w", err)
	}
	if p.Image != nil {
		name := p.ImageName
		if name == "" {
			name = "image"
		}
		fw, err := mw.CreateFormFile("image", name)
		if err != nil {
			return nil, fmt.Errorf("client.CreatePost: %w", err)
		}
		if _, err := io.Copy(fw, p.Image); err != nil {
			return nil, fmt.Errorf("client.CreatePost: read image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("client.CreatePost: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"posts/", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("client.CreatePost: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var created domain.Post
	if err := c.do(req, &created); err != nil {
		return nil, fmt.Errorf("client.CreatePost: %w", err)
	}
	return &created, nil
}

// UpdatePost edits a post the caller owns.
func (c *Client) UpdatePost(ctx context.Context, id int64, u UpdatePostRequest) (*domain.Post, error) {
	var updated domain.Post
	if err := c.doRequest(ctx, http.MethodPatch, postPath(id), u, &updated); err != nil {
		return nil, fmt.Errorf("client.UpdatePost: %w", err)
	}
	return &updated, nil
}

// DeletePost deletes a post the caller owns.
func (c *Client) DeletePost(ctx context.Context, id int64) error {
	if err := c.doRequest(ctx, http.MethodDelete, postPath(id), nil, nil); err != nil {
		return fmt.Errorf("client.DeletePost: %w", err)
	}
	return nil
}

// --- Interaction ---

// SetLike likes or unlikes a post.
func (c *Client) SetLike(ctx context.Context, postID int64, liked bool) error {
	path := "interaction/" + postPath(postID) + "like/"
	if err := c.post(ctx, path, map[string]bool{"liked": liked}, nil); err != nil {
		return fmt.Errorf("client.SetLike: %w", err)
	}
	return nil
}

// ListComments returns the comments on a post.
func (c *Client) ListComments(ctx context.Context, postID int64) ([]domain.Comment, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "interaction/"+postPath(postID)+"comments/", &raw); err != nil {
		return nil, fmt.Errorf("client.ListComments: %w", err)
	}
	comments, err := decodeList[domain.Comment](raw)
	if err != nil {
		return nil, fmt.Errorf("client.ListComments: %w", err)
	}
	return comments, nil
}

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(ctx context.Context, postID int64, content string) (*domain.Comment, error) {
	var created domain.Comment
	path := "interaction/" + postPath(postID) + "comments/create/"
	if err := c.post(ctx, path, map[string]string{"content": content}, &created); err != nil {
		return nil, fmt.Errorf("client.CreateComment: %w", err)
	}
	return &created, nil
}

// --- Users ---

// GetProfile fetches a user's profile.
func (c *Client) GetProfile(ctx context.Context, userID int64) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.get(ctx, "users/"+strconv.FormatInt(userID, 10)+"/", &p); err != nil {
		return nil, fmt.Errorf("client.GetProfile: %w", err)
	}
	return &p, nil
}

// Follow follows a user.
func (c *Client) Follow(ctx context.Context, userID int64) error {
	if err := c.post(ctx, followPath(userID, "follow"), nil, nil); err != nil {
		return fmt.Errorf("client.Follow: %w", err)
	}
	return nil
}

// Unfollow stops following a user.
func (c *Client) Unfollow(ctx context.Context, userID int64) error {
	if err := c.post(ctx, followPath(userID, "unfollow"), nil, nil); err != nil {
		return fmt.Errorf("client.Unfollow: %w", err)
	}
	return nil
}

func postPath(id int64) string {
	return "posts/" + strconv.FormatInt(id, 10) + "/"
}

func followPath(id int64, action string) string {
	return "follows/" + strconv.FormatInt(id, 10) + "/" + action + "/"
}

// decodeList accepts both a bare JSON array and a paginated
// {"results": [...]} envelope.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return items, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return page.Results, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	req, err := c.newJSONRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w: %w", ErrTransport, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		return parseError(resp.StatusCode, respBody)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// parseError understands {"detail": "..."}, {"error": "..."} and
// {"field": ["msg", ...]} bodies.
func parseError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status, Body: body}

	var obj map[string]json.RawMessage
	if json.Unmarshal(body, &obj) != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	for _, key := range []string{"detail", "error"} {
		var msg string
		if raw, ok := obj[key]; ok && json.Unmarshal(raw, &msg) == nil && msg != "" {
			e.Message = msg
			return e
		}
	}

	fields := make(map[string][]string)
	for name, raw := range obj {
		var msgs []string
		if json.Unmarshal(raw, &msgs) == nil {
			fields[name] = msgs
			continue
		}
		var msg string
		if json.Unmarshal(raw, &msg) == nil {
			fields[name] = []string{msg}
		}
	}
	if len(fields) > 0 {
		e.Fields = fields
		e.Message = fieldSummary(fields)
		return e
	}
	e.Message = http.StatusText(status)
	return e
}
