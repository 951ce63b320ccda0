// Package browser adapts a Firefox profile to the cookie and page storage
// interfaces used by restore and syncer.
//
// Cookies are read from and written to the profile's cookies.sqlite. The
// browser keeps the database open while running, so writes are only safe
// with Firefox closed.
package browser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/SessionSync/internal/models"
	_ "modernc.org/sqlite" // SQLite driver (pure Go).
)

// SameSite values as reported to and accepted from callers.
const (
	SameSiteNoRestriction = "no_restriction"
	SameSiteLax           = "lax"
	SameSiteStrict        = "strict"
	SameSiteUnspecified   = "unspecified"
)

// ErrRejected is returned by Set when the cookie would not be accepted by
// the browser.
var ErrRejected = errors.New("cookie rejected")

// FirefoxCookies is a cookie store backed by a Firefox cookies.sqlite file.
type FirefoxCookies struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// OpenFirefoxCookies opens the cookie database at path for reading and writing.
func OpenFirefoxCookies(ctx context.Context, path string) (*FirefoxCookies, error) {
	dsn := "file:" + filepath.ToSlash(path) + "?mode=rw"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open cookie store %q: %w", path, err)
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'moz_cookies'`).Scan(&n)
	if err != nil || n == 0 {
		_ = db.Close()
		return nil, fmt.Errorf("open cookie store %q: moz_cookies table not found", path)
	}
	return &FirefoxCookies{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (f *FirefoxCookies) Close() error {
	return f.db.Close()
}

type firefoxRow struct {
	host     string
	name     string
	value    string
	path     string
	expiry   int64
	isSecure bool
	httpOnly bool
	sameSite int64
}

// GetAll returns unexpired cookies matching q.
func (f *FirefoxCookies) GetAll(ctx context.Context, q models.CookieQuery) ([]models.CookieEntry, error) {
	var (
		host   string
		target *url.URL
	)
	switch {
	case q.URL != "":
		u, err := url.Parse(q.URL)
		if err != nil || u.Hostname() == "" {
			return nil, fmt.Errorf("cookie query: invalid url %q", q.URL)
		}
		target = u
		host = normalizeHost(u.Hostname())
	case q.Domain != "":
		host = normalizeHost(q.Domain)
	default:
		return nil, errors.New("cookie query: url or domain required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rows, err := f.readRows(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	now := f.now().Unix()
	out := make([]models.CookieEntry, 0, len(rows))
	for _, r := range rows {
		if r.expiry > 0 && r.expiry <= now {
			continue
		}
		if target != nil && !sentTo(r, target) {
			continue
		}
		out = append(out, rowToEntry(r))
	}
	return out, nil
}

// readRows returns every row whose host equals host, is a domain cookie of
// one of its parent domains, or is a sub-domain of it. Host-only cookies of
// parent hosts are never sent to host and are left out.
func (f *FirefoxCookies) readRows(ctx context.Context, host string) ([]firefoxRow, error) {
	clauses := []string{"host = ?"}
	args := []any{host}
	for _, candidate := range expandHostCandidates(host) {
		clauses = append(clauses, "host = ?")
		args = append(args, "."+candidate)
	}
	clauses = append(clauses, "host LIKE ?")
	args = append(args, "%."+host)

	//nolint:gosec // clauses hold placeholders only.
	query := `SELECT host, name, value, path, expiry, isSecure, isHttpOnly, sameSite FROM moz_cookies WHERE (` +
		strings.Join(clauses, " OR ") + `) ORDER BY host, name, path`

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []firefoxRow
	for rows.Next() {
		var r firefoxRow
		var expiry, secure, httpOnly, sameSite sql.NullInt64
		if err := rows.Scan(&r.host, &r.name, &r.value, &r.path, &expiry, &secure, &httpOnly, &sameSite); err != nil {
			return nil, err
		}
		if expiry.Valid {
			r.expiry = expiry.Int64
		}
		r.isSecure = secure.Valid && secure.Int64 == 1
		r.httpOnly = httpOnly.Valid && httpOnly.Int64 == 1
		if sameSite.Valid {
			r.sameSite = sameSite.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// sentTo reports whether the browser would attach the cookie to a request for u.
func sentTo(r firefoxRow, u *url.URL) bool {
	host := normalizeHost(u.Hostname())
	if strings.HasPrefix(r.host, ".") {
		if !domainMatch(host, strings.TrimPrefix(r.host, ".")) {
			return false
		}
	} else if r.host != host {
		return false
	}
	if r.isSecure && u.Scheme != "https" {
		return false
	}
	return pathMatch(u.EscapedPath(), r.path)
}

// Remove deletes the cookie called name whose host and path match url.
// Removing a missing cookie succeeds.
func (f *FirefoxCookies) Remove(ctx context.Context, rawURL, name string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("remove cookie: invalid url %q", rawURL)
	}
	host := normalizeHost(u.Hostname())

	f.mu.Lock()
	defer f.mu.Unlock()

	_, err = f.db.ExecContext(ctx,
		`DELETE FROM moz_cookies WHERE name = ? AND (host = ? OR host = ?) AND path = ?`,
		name, host, "."+host, normalizePath(u.Path))
	if err != nil {
		return fmt.Errorf("remove cookie %q: %w", name, err)
	}
	return nil
}

// Set writes a cookie, replacing any cookie with the same name, host and
// path. It returns ErrRejected for cookies the browser would refuse.
func (f *FirefoxCookies) Set(ctx context.Context, req models.CookieSetRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("%w: invalid url %q", ErrRejected, req.URL)
	}
	if req.Name == "" && req.Value == "" {
		return fmt.Errorf("%w: empty cookie", ErrRejected)
	}
	urlHost := normalizeHost(u.Hostname())

	host := urlHost
	if req.Domain != "" {
		domain := normalizeHost(req.Domain)
		if !domainMatch(urlHost, domain) {
			return fmt.Errorf("%w: domain %q does not match %q", ErrRejected, req.Domain, urlHost)
		}
		host = "." + domain
	}
	if req.Secure && u.Scheme != "https" {
		return fmt.Errorf("%w: secure cookie %q over %s", ErrRejected, req.Name, u.Scheme)
	}
	sameSite, ok := sameSiteToInt(req.SameSite)
	if !ok {
		return fmt.Errorf("%w: unknown sameSite %q", ErrRejected, req.SameSite)
	}
	if req.SameSite == SameSiteNoRestriction && !req.Secure {
		return fmt.Errorf("%w: sameSite=none requires secure", ErrRejected)
	}

	now := f.now()
	var expiry int64
	if req.ExpirationDate != nil {
		expiry = int64(*req.ExpirationDate)
		if expiry <= now.Unix() {
			return fmt.Errorf("%w: cookie %q already expired", ErrRejected, req.Name)
		}
	}
	path := normalizePath(req.Path)
	micros := now.UnixMicro()

	f.mu.Lock()
	defer f.mu.Unlock()

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM moz_cookies WHERE name = ? AND host = ? AND path = ? AND originAttributes = ''`,
		req.Name, host, path); err != nil {
		return fmt.Errorf("set cookie %q: %w", req.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO moz_cookies(originAttributes, name, value, host, path, expiry, lastAccessed, creationTime, isSecure, isHttpOnly, sameSite)
		 VALUES('', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Name, req.Value, host, path, expiry, micros, micros, boolInt(req.Secure), boolInt(req.HTTPOnly), sameSite); err != nil {
		return fmt.Errorf("set cookie %q: %w", req.Name, err)
	}
	return tx.Commit()
}

func rowToEntry(r firefoxRow) models.CookieEntry {
	e := models.CookieEntry{
		Name:     r.name,
		Value:    r.value,
		Domain:   r.host,
		Path:     normalizePath(r.path),
		Secure:   r.isSecure,
		HTTPOnly: r.httpOnly,
		SameSite: sameSiteFromInt(r.sameSite, r.isSecure),
		HostOnly: !strings.HasPrefix(r.host, "."),
	}
	if r.expiry > 0 {
		exp := float64(r.expiry)
		e.ExpirationDate = &exp
	}
	return e
}

// sameSiteFromInt maps the moz_cookies sameSite column. Firefox stores an
// unset attribute as 0, which is only meaningful as "none" on secure cookies.
func sameSiteFromInt(v int64, secure bool) string {
	switch v {
	case 2:
		return SameSiteStrict
	case 1:
		return SameSiteLax
	case 0:
		if secure {
			return SameSiteNoRestriction
		}
		return SameSiteUnspecified
	default:
		return SameSiteUnspecified
	}
}

func sameSiteToInt(s string) (int64, bool) {
	switch s {
	case SameSiteStrict:
		return 2, true
	case SameSiteLax:
		return 1, true
	case SameSiteNoRestriction, SameSiteUnspecified, "":
		return 0, true
	default:
		return 0, false
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, ".")
	return strings.ToLower(host)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '/' {
		return "/"
	}
	return path
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathMatch(requestPath, cookiePath string) bool {
	if requestPath == "" {
		requestPath = "/"
	}
	cookiePath = normalizePath(cookiePath)
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
}

// expandHostCandidates returns host followed by its parent domains, stopping
// before the top-level label.
func expandHostCandidates(host string) []string {
	parts := strings.FieldsFunc(host, func(r rune) bool { return r == '.' })
	if len(parts) <= 1 {
		return []string{host}
	}
	out := []string{host}
	for i := 1; i <= len(parts)-2; i++ {
		out = append(out, strings.Join(parts[i:], "."))
	}
	return out
}
