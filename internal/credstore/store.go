// Package credstore persists the client's credentials across process
// restarts.
package credstore

// Fixed keys of the persisted entries.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
	KeyUserID  = "user_id"
)

// Store is a small durable key-value store for credentials.
// Get returns "" for a missing key.
type Store interface {
	Get(key string) (string, error)
	// Set writes all values in one step; either all land or none do.
	Set(values map[string]string) error
	Delete(keys ...string) error
}
