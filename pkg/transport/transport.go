// Package transport is the authenticated request pipeline: an
// http.RoundTripper that attaches the session's bearer token and, when the
// service answers 401, refreshes the token and replays the request once.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/naveenspark/sphere/internal/correlation"
)

// RequestIDHeader carries the correlation ID of every outbound request.
const RequestIDHeader = "X-Request-ID"

// DefaultRefreshTimeout bounds a refresh when Transport.RefreshTimeout is zero.
const DefaultRefreshTimeout = 10 * time.Second

// maxErrorBody caps how much of a 401 body is kept for the caller.
const maxErrorBody = 1 << 20

// TokenSource is the view of the session the pipeline works with. The
// pipeline never stores tokens itself.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	// Refresh replaces the access token. It must finish before it returns.
	Refresh(ctx context.Context) error
}

// Transport decorates Base with credential handling.
type Transport struct {
	Base   http.RoundTripper
	Tokens TokenSource
	Logger *slog.Logger
	// RefreshTimeout bounds the refresh triggered by a 401. The refresh does
	// not inherit the request's deadline, so a request that is about to time
	// out cannot starve it and end a valid session.
	RefreshTimeout time.Duration
}

// New returns a Transport. A nil base means http.DefaultTransport; a nil
// logger discards.
func New(base http.RoundTripper, tokens TokenSource, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{Base: base, Tokens: tokens, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	route := classify(req.URL.Path)

	out, err := replayable(req)
	if err != nil {
		return nil, err
	}
	if out.Header.Get(RequestIDHeader) == "" {
		id, ok := correlation.ID(ctx)
		if !ok {
			id = correlation.NewID()
		}
		out.Header.Set(RequestIDHeader, id)
	}
	if route.attach {
		if tok := t.Tokens.AccessToken(); tok != "" {
			out.Header.Set("Authorization", "Bearer "+tok)
		}
	} else {
		out.Header.Del("Authorization")
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !route.retry || t.Tokens.RefreshToken() == "" {
		return resp, nil
	}

	// Keep the 401 readable in case the refresh fails.
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close() //nolint:errcheck // fully read or abandoned
	if readErr != nil {
		body = nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	log := t.Logger.With("method", out.Method, "path", out.URL.Path)
	log.InfoContext(ctx, "access token rejected, refreshing")
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.refreshTimeout())
	err = t.Tokens.Refresh(refreshCtx)
	cancel()
	if err != nil {
		log.WarnContext(ctx, "refresh failed, returning 401", "error", err)
		return resp, nil
	}

	retry, err := rewind(out)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+t.Tokens.AccessToken())
	log.DebugContext(ctx, "replaying request with refreshed token")
	return t.base().RoundTrip(retry)
}

func (t *Transport) refreshTimeout() time.Duration {
	if t.RefreshTimeout > 0 {
		return t.RefreshTimeout
	}
	return DefaultRefreshTimeout
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// replayable clones req and makes sure the clone's body can be produced
// again for the retry.
func replayable(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return out, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close() //nolint:errcheck // consumed
	if err != nil {
		return nil, fmt.Errorf("transport: buffer request body: %w", err)
	}
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.ContentLength = int64(len(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return out, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody == nil {
		return retry, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("transport: rewind request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}

type route struct {
	attach bool // send the bearer token
	retry  bool // refresh and replay on 401
}

// Endpoints with special handling. Login and register are reachable without
// a session. The refresh call carries its credential in the body. Logout is
// never replayed so that a rejected logout cannot start another refresh.
var specialRoutes = map[string]route{
	"auth/login":         {attach: false, retry: false},
	"auth/register":      {attach: false, retry: false},
	"auth/token/refresh": {attach: false, retry: false},
	"auth/logout":        {attach: true, retry: false},
}

func classify(path string) route {
	p := strings.Trim(path, "/")
	for suffix, r := range specialRoutes {
		if p == suffix || strings.HasSuffix(p, "/"+suffix) {
			return r
		}
	}
	return route{attach: true, retry: true}
}

// Bootstrap reports whether path is reachable without an access token and
// therefore never carries one.
func Bootstrap(path string) bool {
	return !classify(path).attach
}
