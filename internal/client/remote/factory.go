package remote

import (
	"errors"
	"sync"

	"github.com/atinyakov/SessionSync/internal/client/config"
)

// ErrNoEndpoint is returned when no remote store URL is configured.
var ErrNoEndpoint = errors.New("no remote store URL configured")

// Factory hands out one Client per endpoint configuration and reuses it
// until the configuration changes.
type Factory struct {
	mu      sync.Mutex
	current *Client
	key     config.Backend
}

// Get returns the Client for b, creating it if b differs from the
// endpoint of the cached client.
func (f *Factory) Get(b config.Backend) (*Client, error) {
	if b.URL == "" {
		return nil, ErrNoEndpoint
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != nil && f.key == b {
		return f.current, nil
	}
	hc, err := NewHTTPClient(b.CAFile)
	if err != nil {
		return nil, err
	}
	f.current = NewClient(b.URL, b.APIKey, hc)
	f.key = b
	return f.current, nil
}
