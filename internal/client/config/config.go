// Package config persists the sync client's local configuration: the sync
// key and an optional custom backend endpoint.
//
// Only the sync key is stored; the values derived from it are recomputed
// for every operation.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend describes a remote store endpoint.
type Backend struct {
	// URL is the base URL of the remote store.
	URL string `yaml:"url"`
	// APIKey is the public key sent with every request.
	APIKey string `yaml:"apiKey"`
	// CAFile optionally points to a PEM bundle trusted for TLS.
	CAFile string `yaml:"caFile,omitempty"`
}

// Client is the persisted client configuration.
type Client struct {
	// Passphrase is the sync key.
	Passphrase string `yaml:"passphrase,omitempty"`
	// CustomBackend overrides the default endpoint when set.
	CustomBackend *Backend `yaml:"customBackend,omitempty"`
}

// Configured reports whether a sync key has been set.
func (c *Client) Configured() bool {
	return c != nil && c.Passphrase != ""
}

// Endpoint returns the backend to talk to. Fields left empty in the custom
// backend fall back to defaults.
func (c *Client) Endpoint(defaults Backend) Backend {
	if c == nil || c.CustomBackend == nil {
		return defaults
	}
	out := defaults
	if c.CustomBackend.URL != "" {
		out.URL = c.CustomBackend.URL
	}
	if c.CustomBackend.APIKey != "" {
		out.APIKey = c.CustomBackend.APIKey
	}
	if c.CustomBackend.CAFile != "" {
		out.CAFile = c.CustomBackend.CAFile
	}
	return out
}

// Store loads and saves the client configuration.
type Store interface {
	Load(ctx context.Context) (*Client, error)
	Save(ctx context.Context, c *Client) error
	Reset(ctx context.Context) error
}

// DefaultPath returns $SESSIONSYNC_CONFIG or ~/.sessionsync/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("SESSIONSYNC_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sessionsync", "config.yaml")
	}
	return filepath.Join(home, ".sessionsync", "config.yaml")
}

// FileStore keeps the configuration in a YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the configuration. A missing file yields an empty configuration.
func (s *FileStore) Load(_ context.Context) (*Client, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Client{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Client
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.path, err)
	}
	return &c, nil
}

// Save writes the configuration atomically with owner-only permissions.
func (s *FileStore) Save(_ context.Context, c *Client) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Reset deletes the configuration file.
func (s *FileStore) Reset(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove config: %w", err)
	}
	return nil
}
