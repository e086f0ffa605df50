package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FileName is the credentials file inside the client home directory.
const FileName = "credentials.json"

type fileContents struct {
	Values    map[string]string `json:"values"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FileStore persists credentials as a JSON file readable only by the
// current user. Every write replaces the file atomically.
type FileStore struct {
	path  string
	clock clockwork.Clock
	mu    sync.Mutex
}

// NewFileStore returns a store backed by path. The file and its directory
// are created on first write.
func NewFileStore(path string, clock clockwork.Clock) *FileStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FileStore{path: path, clock: clock}
}

// Path returns the credentials file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read()
	if err != nil {
		return "", err
	}
	return c.Values[key], nil
}

func (s *FileStore) Set(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read()
	if err != nil {
		return err
	}
	maps.Copy(c.Values, values)
	return s.write(c)
}

func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read()
	if err != nil {
		// An unreadable file still has to go away on logout.
		if errors.Is(err, errCorrupt) {
			return s.remove()
		}
		return err
	}
	for _, k := range keys {
		delete(c.Values, k)
	}
	if len(c.Values) == 0 {
		return s.remove()
	}
	return s.write(c)
}

// UpdatedAt returns when the file was last written, or the zero time if it
// does not exist.
func (s *FileStore) UpdatedAt() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read()
	if err != nil {
		return time.Time{}, err
	}
	return c.UpdatedAt, nil
}

var errCorrupt = errors.New("corrupt credentials file")

func (s *FileStore) read() (fileContents, error) {
	c := fileContents{Values: make(map[string]string)}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("credstore: read %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("credstore: %w: %w", errCorrupt, err)
	}
	if c.Values == nil {
		c.Values = make(map[string]string)
	}
	return c, nil
}

func (s *FileStore) write(c fileContents) error {
	c.UpdatedAt = s.clock.Now().UTC()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("credstore: create %s: %w", dir, err)
	}

	// Write to a sibling, then rename over the original.
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("credstore: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("credstore: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("credstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("credstore: replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: remove %s: %w", s.path, err)
	}
	return nil
}
