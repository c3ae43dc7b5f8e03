// Package tokencache persists the CLI session token between invocations.
package tokencache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"webspec-auth/internal/cli/client"
)

const DefaultFileName = ".webspec_token.json"

var ErrNoToken = errors.New("no cached token")

type Entry struct {
	Token   string      `json:"token"`
	User    client.User `json:"user"`
	SavedAt time.Time   `json:"savedAt"`
}

type Cache struct {
	path string
	now  func() time.Time
}

func New(path string) *Cache {
	return &Cache{path: path, now: time.Now}
}

// DefaultPath is ~/.webspec_token.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(home, DefaultFileName)
}

func (c *Cache) Path() string { return c.path }

// Load returns ErrNoToken when the file is absent, unreadable JSON or empty.
func (c *Cache) Load() (*Entry, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("tokencache: read %s: %w", c.path, err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Token == "" {
		return nil, ErrNoToken
	}
	return &e, nil
}

func (c *Cache) Save(token string, user client.User) error {
	raw, err := json.MarshalIndent(Entry{
		Token:   token,
		User:    user,
		SavedAt: c.now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(c.path, raw, 0o600)
}

// Clear removes the cache file. A missing file is not an error.
func (c *Cache) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokencache: remove %s: %w", c.path, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path, so readers never observe a partial token.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("tokencache: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".webspec-token-*")
	if err != nil {
		return fmt.Errorf("tokencache: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("tokencache: chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("tokencache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("tokencache: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokencache: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return fmt.Errorf("tokencache: rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}
