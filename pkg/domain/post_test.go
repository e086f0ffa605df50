package domain

import (
	"encoding/json"
	"testing"
)

func TestValidCategory(t *testing.T) {
	tests := []struct {
		category string
		want     bool
	}{
		{"general", true},
		{"announcement", true},
		{"question", true},
		{"", false},
		{"General", false},
		{"spam", false},
	}
	for _, tt := range tests {
		if got := ValidCategory(tt.category); got != tt.want {
			t.Errorf("ValidCategory(%q) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestPost_NullImageURL(t *testing.T) {
	var p Post
	if err := json.Unmarshal([]byte(`{"id":7,"content":"hi","image_url":null,"like_count":3}`), &p); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if p.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty", p.ImageURL)
	}
	if p.ID != 7 || p.LikeCount != 3 {
		t.Errorf("got id=%d likes=%d, want 7 and 3", p.ID, p.LikeCount)
	}
}
