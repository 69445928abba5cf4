package session

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"kaaj/internal/backend"
	"kaaj/internal/models"

	"github.com/BurntSushi/toml"
)

// Cached is everything persisted between runs: the signed-in user and the
// backend credentials. Nothing else is written to disk.
type Cached struct {
	User        models.User         `toml:"user"`
	Credentials backend.Credentials `toml:"credentials"`
}

// Cache stores the session in a TOML file readable only by the owner.
type Cache struct {
	path string
}

func NewCache(path string) *Cache {
	return &Cache{path: path}
}

func (c *Cache) Path() string { return c.path }

// Load returns the cached session, or nil when there is none.
func (c *Cache) Load() (*Cached, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session cache: %w", err)
	}

	var cached Cached
	if _, err := toml.Decode(string(data), &cached); err != nil {
		return nil, fmt.Errorf("decode session cache %s: %w", c.path, err)
	}
	if cached.User.ID == "" || cached.Credentials.Tokens.RefreshToken == "" {
		return nil, nil
	}
	return &cached, nil
}

func (c *Cache) Save(cached Cached) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cached); err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create session cache dir: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace session cache: %w", err)
	}
	return nil
}

func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session cache: %w", err)
	}
	return nil
}
