package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/atinyakov/SessionSync/internal/client/restore"
	"github.com/atinyakov/SessionSync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_MissingIsEmpty(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	local, session, err := s.Read(context.Background(), "https://x.test/page")
	require.NoError(t, err)
	assert.Equal(t, []models.KVEntry{}, local)
	assert.Equal(t, []models.KVEntry{}, session)
}

func TestFileStorage_WriteReplacesPerOrigin(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(filepath.Join(dir, "pages"))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "https://x.test/a", []models.KVEntry{{Key: "k", Value: "1"}}, nil))
	require.NoError(t, s.Write(ctx, "https://x.test:8443/", []models.KVEntry{{Key: "port", Value: "2"}}, nil))
	require.NoError(t, s.Write(ctx, "https://x.test/b?q=1", []models.KVEntry{{Key: "k", Value: "2"}}, []models.KVEntry{{Key: "s", Value: "3"}}))

	local, session, err := s.Read(ctx, "https://x.test/")
	require.NoError(t, err)
	assert.Equal(t, []models.KVEntry{{Key: "k", Value: "2"}}, local)
	assert.Equal(t, []models.KVEntry{{Key: "s", Value: "3"}}, session)

	local, _, err = s.Read(ctx, "https://x.test:8443/other")
	require.NoError(t, err)
	assert.Equal(t, []models.KVEntry{{Key: "port", Value: "2"}}, local)

	files, err := os.ReadDir(filepath.Join(dir, "pages"))
	require.NoError(t, err)
	assert.Len(t, files, 2, "no temporary files left behind")
}

func TestFileStorage_Errors(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)
	ctx := context.Background()

	_, _, err := s.Read(ctx, "relative/path")
	assert.Error(t, err)
	assert.Error(t, s.Write(ctx, "relative/path", nil, nil))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "https_x.test.json"), []byte("{"), 0o600))
	_, _, err = s.Read(ctx, "https://x.test/")
	assert.Error(t, err)
}

// The mirror has no live page, so restores skip the reload step.
func TestFileStorage_IsNotReloader(t *testing.T) {
	var pages restore.PageStorage = NewFileStorage(t.TempDir())
	_, ok := pages.(restore.Reloader)
	assert.False(t, ok)
}
