package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atinyakov/SessionSync/internal/client/collector"
	"github.com/atinyakov/SessionSync/internal/models"
)

// pageState is the on-disk form of one origin's storage.
type pageState struct {
	Origin         string           `json:"origin"`
	LocalStorage   []models.KVEntry `json:"localStorage"`
	SessionStorage []models.KVEntry `json:"sessionStorage"`
}

// FileStorage keeps each origin's localStorage and sessionStorage in a JSON
// file under Dir. It stands in for page storage when there is no live page
// to script, e.g. when syncing from the command line.
type FileStorage struct {
	Dir string
	mu  sync.Mutex
}

// NewFileStorage returns a FileStorage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{Dir: dir}
}

var fileNameReplacer = strings.NewReplacer("://", "_", ":", "_", "/", "_", "\\", "_")

func (s *FileStorage) path(pageURL string) (string, string, error) {
	origin, err := collector.Page{URL: pageURL}.Origin()
	if err != nil {
		return "", "", err
	}
	return origin, filepath.Join(s.Dir, fileNameReplacer.Replace(origin)+".json"), nil
}

// Read returns the stored entries for the page's origin. A missing file
// reads as empty storage.
func (s *FileStorage) Read(_ context.Context, pageURL string) ([]models.KVEntry, []models.KVEntry, error) {
	_, path, err := s.path(pageURL)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.KVEntry{}, []models.KVEntry{}, nil
		}
		return nil, nil, err
	}
	defer f.Close()

	var st pageState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if st.LocalStorage == nil {
		st.LocalStorage = []models.KVEntry{}
	}
	if st.SessionStorage == nil {
		st.SessionStorage = []models.KVEntry{}
	}
	return st.LocalStorage, st.SessionStorage, nil
}

// Write replaces the stored entries for the page's origin.
func (s *FileStorage) Write(_ context.Context, pageURL string, local, session []models.KVEntry) error {
	origin, path, err := s.path(pageURL)
	if err != nil {
		return err
	}
	if local == nil {
		local = []models.KVEntry{}
	}
	if session == nil {
		session = []models.KVEntry{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, ".page-*.json")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pageState{Origin: origin, LocalStorage: local, SessionStorage: session}); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
