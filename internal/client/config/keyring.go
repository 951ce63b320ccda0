package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name the sync key is stored under.
const KeyringService = "sessionsync"

// KeyringStore keeps the sync key in the OS keyring and the rest of the
// configuration in a FileStore.
type KeyringStore struct {
	file *FileStore
	user string
}

// NewKeyringStore returns a KeyringStore. user names the keyring entry.
func NewKeyringStore(file *FileStore, user string) *KeyringStore {
	return &KeyringStore{file: file, user: user}
}

// Load reads the endpoint from the file and the sync key from the keyring.
func (s *KeyringStore) Load(ctx context.Context) (*Client, error) {
	c, err := s.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	secret, err := keyring.Get(KeyringService, s.user)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		c.Passphrase = ""
	case err != nil:
		return nil, fmt.Errorf("read keyring: %w", err)
	default:
		c.Passphrase = secret
	}
	return c, nil
}

// Save stores the sync key in the keyring; the file never contains it.
func (s *KeyringStore) Save(ctx context.Context, c *Client) error {
	if c.Passphrase != "" {
		if err := keyring.Set(KeyringService, s.user, c.Passphrase); err != nil {
			return fmt.Errorf("write keyring: %w", err)
		}
	}
	rest := *c
	rest.Passphrase = ""
	return s.file.Save(ctx, &rest)
}

// Reset removes both the keyring entry and the file.
func (s *KeyringStore) Reset(ctx context.Context) error {
	if err := keyring.Delete(KeyringService, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete keyring: %w", err)
	}
	return s.file.Reset(ctx)
}
