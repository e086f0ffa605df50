package domain

import "time"

// Post is a single entry in the feed.
type Post struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title,omitempty"`
	Content      string    `json:"content"`
	Category     string    `json:"category"`
	Author       string    `json:"author,omitempty"`
	AuthorID     int64     `json:"author_id,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	IsActive     bool      `json:"is_active"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Categories accepted by the posts endpoint.
var Categories = []string{"general", "announcement", "question"}

// DefaultCategory is used when a post is created without one.
const DefaultCategory = "general"

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
