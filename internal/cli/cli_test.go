package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/SessionSync/internal/client/browser"
	"github.com/atinyakov/SessionSync/internal/client/config"
	"github.com/atinyakov/SessionSync/internal/client/synckey"
	"github.com/atinyakov/SessionSync/internal/client/syncer"
	"github.com/atinyakov/SessionSync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ABCDEF-GHJKMN-PQRSTU-VWXYZ2"

// memRemote is an in-memory remote store shared by every App of a test.
type memRemote struct {
	mu   sync.Mutex
	rows map[string]map[string]models.Envelope
	seen []config.Backend
}

func newMemRemote() *memRemote {
	return &memRemote{rows: make(map[string]map[string]models.Envelope)}
}

func (m *memRemote) Upsert(_ context.Context, accountID, origin string, env models.Envelope, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[accountID] == nil {
		m.rows[accountID] = make(map[string]models.Envelope)
	}
	m.rows[accountID][origin] = env
	return nil
}

func (m *memRemote) Read(_ context.Context, accountID, origin string) (*models.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.rows[accountID][origin]
	if !ok {
		return nil, nil
	}
	return &env, nil
}

func (m *memRemote) Delete(_ context.Context, accountID, origin, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows[accountID], origin)
	return nil
}

func (m *memRemote) List(_ context.Context, accountID string) ([]models.OriginRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OriginRecord
	for origin := range m.rows[accountID] {
		out = append(out, models.OriginRecord{Origin: origin, UpdatedAt: time.Unix(0, 0).UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out, nil
}

// memCookies keeps cookies by name, ignoring domain and path matching.
type memCookies struct {
	cookies map[string]models.CookieEntry
	closed  bool
}

func (c *memCookies) GetAll(_ context.Context, _ models.CookieQuery) ([]models.CookieEntry, error) {
	out := make([]models.CookieEntry, 0, len(c.cookies))
	for _, e := range c.cookies {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *memCookies) Remove(_ context.Context, _, name string) error {
	delete(c.cookies, name)
	return nil
}

func (c *memCookies) Set(_ context.Context, req models.CookieSetRequest) error {
	c.cookies[req.Name] = models.CookieEntry{Name: req.Name, Value: req.Value, Domain: req.Domain, Path: req.Path, Secure: req.Secure}
	return nil
}

type harness struct {
	t       *testing.T
	dir     string
	remote  *memRemote
	cookies *memCookies
	storage *browser.FileStorage
	env     map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		t:       t,
		dir:     dir,
		remote:  newMemRemote(),
		cookies: &memCookies{cookies: make(map[string]models.CookieEntry)},
		storage: browser.NewFileStorage(filepath.Join(dir, "storage")),
		env: map[string]string{
			"SESSIONSYNC_CONFIG": filepath.Join(dir, "config.yaml"),
			"SESSIONSYNC_URL":    "https://store.test",
		},
	}
}

// run executes args and returns stdout, stderr and the exit code.
func (h *harness) run(args ...string) (string, string, int) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	app := &App{
		Out:    &out,
		Err:    &errOut,
		Getenv: func(k string) string { return h.env[k] },
		Dial: func(b config.Backend) (syncer.RemoteStore, error) {
			h.remote.mu.Lock()
			h.remote.seen = append(h.remote.seen, b)
			h.remote.mu.Unlock()
			return h.remote, nil
		},
		OpenBrowser: func(context.Context, string, string) (*Browser, error) {
			h.cookies.closed = false
			return &Browser{
				Cookies: h.cookies,
				Storage: h.storage,
				Close:   func() error { h.cookies.closed = true; return nil },
			}, nil
		},
		Version: "1.2.3",
	}
	code := Execute(context.Background(), app, args)
	return out.String(), errOut.String(), code
}

func (h *harness) configStore() *config.FileStore {
	return config.NewFileStore(h.env["SESSIONSYNC_CONFIG"])
}

func TestInit_CreatesKeyOnce(t *testing.T) {
	h := newHarness(t)

	out, _, code := h.run("init")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Sync key created")

	cfg, err := h.configStore().Load(context.Background())
	require.NoError(t, err)
	require.True(t, synckey.Validate(cfg.Passphrase))
	assert.Contains(t, out, cfg.Passphrase)

	_, errOut, code := h.run("init")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already configured")

	_, _, code = h.run("init", "--force")
	require.Equal(t, 0, code)
	cfg2, err := h.configStore().Load(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, cfg.Passphrase, cfg2.Passphrase)

	out, _, code = h.run("key")
	require.Equal(t, 0, code)
	assert.Equal(t, cfg2.Passphrase+"\n", out)
}

func TestImport(t *testing.T) {
	h := newHarness(t)

	_, errOut, code := h.run("import", "not-a-key")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid sync key format")

	_, _, code = h.run("import", "  "+strings.ToLower(testKey)+" ")
	require.Equal(t, 0, code)
	cfg, err := h.configStore().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testKey, cfg.Passphrase)
}

func TestCommands_RequireKey(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{
		{"key"},
		{"ls"},
		{"push", "https://app.test/"},
		{"pull", "https://app.test/"},
		{"rm", "https://app.test"},
	} {
		_, errOut, code := h.run(args...)
		assert.Equal(t, 1, code, "%v", args)
		assert.Contains(t, errOut, "Set up a sync key first.", "%v", args)
	}
	assert.Empty(t, h.remote.rows)
}

func TestPushPullRoundTrip(t *testing.T) {
	h := newHarness(t)
	_, _, code := h.run("import", testKey)
	require.Equal(t, 0, code)

	ctx := context.Background()
	h.cookies.cookies["sid"] = models.CookieEntry{Name: "sid", Value: "s3cr3t", Domain: "app.test", Path: "/", Secure: true}
	require.NoError(t, h.storage.Write(ctx, "https://app.test/", []models.KVEntry{{Key: "theme", Value: "dark"}}, nil))

	out, errOut, code := h.run("push", "https://app.test/inbox", "--title", "Inbox")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Pushed https://app.test")
	assert.True(t, h.cookies.closed)
	assert.Equal(t, config.Backend{URL: "https://store.test"}, h.remote.seen[0])

	// The stored row never carries the plaintext.
	for _, env := range h.remote.rows[firstAccount(h.remote)] {
		assert.NotContains(t, env.Ciphertext, "s3cr3t")
	}

	// Local state drifts, then pull restores the pushed state.
	h.cookies.cookies = map[string]models.CookieEntry{
		"sid":     {Name: "sid", Value: "other", Domain: "app.test", Path: "/"},
		"tracker": {Name: "tracker", Value: "x", Domain: "app.test", Path: "/"},
	}
	require.NoError(t, h.storage.Write(ctx, "https://app.test/", nil, nil))

	out, errOut, code = h.run("pull", "https://app.test/")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Pulled https://app.test")
	require.Len(t, h.cookies.cookies, 1)
	assert.Equal(t, "s3cr3t", h.cookies.cookies["sid"].Value)

	local, _, err := h.storage.Read(ctx, "https://app.test/")
	require.NoError(t, err)
	assert.Equal(t, []models.KVEntry{{Key: "theme", Value: "dark"}}, local)

	out, _, code = h.run("ls", "--json")
	require.Equal(t, 0, code)
	var listed []models.OriginRecord
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "https://app.test", listed[0].Origin)

	out, _, code = h.run("ls")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "ORIGIN")
	assert.Contains(t, out, "https://app.test")

	out, _, code = h.run("rm", "https://app.test/anything")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Deleted https://app.test")

	_, errOut, code = h.run("pull", "https://app.test/")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "No cloud data for this site.")

	out, _, code = h.run("ls")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No synced sites")
}

func TestPull_WrongKey(t *testing.T) {
	h := newHarness(t)
	_, _, code := h.run("import", testKey)
	require.Equal(t, 0, code)
	h.cookies.cookies["sid"] = models.CookieEntry{Name: "sid", Value: "v", Domain: "app.test", Path: "/"}
	_, _, code = h.run("push", "https://app.test/")
	require.Equal(t, 0, code)

	// Same account row, different key material.
	account := firstAccount(h.remote)
	env := h.remote.rows[account]["https://app.test"]
	env.Salt = "AAAAAAAAAAAAAAAAAAAAAA=="
	h.remote.rows[account]["https://app.test"] = env

	_, errOut, code := h.run("pull", "https://app.test/")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Decryption failed.")
	assert.Equal(t, "v", h.cookies.cookies["sid"].Value)
}

func TestEndpoint(t *testing.T) {
	h := newHarness(t)

	out, _, code := h.run("endpoint", "show")
	require.Equal(t, 0, code)
	assert.Equal(t, "https://store.test (default)\n", out)

	_, errOut, code := h.run("endpoint", "set", "--url", "ftp://x")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "absolute http(s) URL")

	_, _, code = h.run("endpoint", "set", "--url", "https://self.test", "--api-key", "anon")
	require.Equal(t, 0, code)
	out, _, code = h.run("endpoint", "show", "--json")
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"url":"https://self.test","custom":true}`, out)

	_, _, code = h.run("import", testKey)
	require.Equal(t, 0, code)
	_, _, code = h.run("ls")
	require.Equal(t, 0, code)
	assert.Equal(t, config.Backend{URL: "https://self.test", APIKey: "anon"}, h.remote.seen[len(h.remote.seen)-1])

	_, _, code = h.run("endpoint", "clear")
	require.Equal(t, 0, code)
	out, _, _ = h.run("endpoint", "show")
	assert.Contains(t, out, "(default)")

	// Reset forgets the key and the endpoint.
	_, _, code = h.run("reset")
	require.Equal(t, 0, code)
	_, errOut, code = h.run("key")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Set up a sync key first.")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out, _, code := h.run("version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Version: 1.2.3")
	assert.Contains(t, out, "Build Date: N/A")
}

func firstAccount(m *memRemote) string {
	for k := range m.rows {
		return k
	}
	return ""
}

func TestSyncHelp_NamesStorageMirror(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"push", "pull"} {
		out, _, code := h.run(name, "--help")
		require.Equal(t, 0, code)
		assert.Contains(t, out, "--storage-dir", name)
		assert.Contains(t, out, "localStorage", name)
	}
}
