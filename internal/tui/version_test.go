package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest  string
		current string
		want    bool
	}{
		{"1.0.0", "1.0.0", false},
		{"1.1.0", "1.0.0", true},
		{"1.0.0", "1.1.0", false},
		{"1.10.0", "1.9.0", true},
		{"2.0.0", "1.99.99", true},
		{"v1.2.3", "1.2.3", false},
		{"v1.3.0", "v1.2.0", true},
		{"1.0.1", "1.0.0", true},
		{"1.3.0-rc.1", "1.2.9", true},
		{"1.2.3+build.7", "1.2.3", false},
		{"1.2", "1.2.0", false},
		{"garbage", "0.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.latest+"_vs_"+tt.current, func(t *testing.T) {
			got := isNewerVersion(tt.latest, tt.current)
			if got != tt.want {
				t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
			}
		})
	}
}

func TestCheckVersionSkipsDevBuilds(t *testing.T) {
	if cmd := checkVersion("dev"); cmd != nil {
		t.Error("expected nil cmd for dev build")
	}
	if cmd := checkVersion(""); cmd != nil {
		t.Error("expected nil cmd for empty version")
	}
}

func releaseServer(t *testing.T, status int, tag string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"tag_name": tag}) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckVersionAt(t *testing.T) {
	srv := releaseServer(t, http.StatusOK, "v0.5.0")
	msg := checkVersionAt(srv.URL, "0.4.0")().(versionCheckMsg)
	if !msg.hasUpdate {
		t.Error("expected hasUpdate=true for 0.5.0 > 0.4.0")
	}
	if msg.latestVersion != "v0.5.0" {
		t.Errorf("latestVersion = %q, want v0.5.0", msg.latestVersion)
	}
}

func TestCheckVersionAtNoUpdate(t *testing.T) {
	srv := releaseServer(t, http.StatusOK, "v0.4.0")
	msg := checkVersionAt(srv.URL, "0.4.0")().(versionCheckMsg)
	if msg.hasUpdate {
		t.Error("expected hasUpdate=false for same version")
	}
}

func TestCheckVersionAt404(t *testing.T) {
	srv := releaseServer(t, http.StatusNotFound, "")
	msg := checkVersionAt(srv.URL, "0.4.0")().(versionCheckMsg)
	if msg.hasUpdate {
		t.Error("expected hasUpdate=false on 404")
	}
}
