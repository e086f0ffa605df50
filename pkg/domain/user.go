package domain

// User is the account part of a profile.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Profile is the public profile page of a user.
type Profile struct {
	User           User   `json:"user"`
	Bio            string `json:"bio"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Website        string `json:"website"`
	Location       string `json:"location"`
	Privacy        string `json:"privacy"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	PostsCount     int    `json:"posts_count"`
}
