// Package restore replaces the live cookies and page storage of a page with
// the content of a decrypted snapshot.
//
// The replacement is destructive and not transactional: existing cookies are
// removed, snapshot cookies are set one by one, then local and session
// storage are overwritten. Individual failures are counted, never fatal.
package restore

import (
	"context"
	"fmt"

	"github.com/atinyakov/SessionSync/internal/client/collector"
	"github.com/atinyakov/SessionSync/internal/models"
	"go.uber.org/zap"
)

// DefaultSameSite is used when a snapshot cookie carries no SameSite value.
const DefaultSameSite = "unspecified"

// CookieStore reads and writes the cookies of the browser profile being synced.
type CookieStore interface {
	// GetAll returns the cookies matching q.
	GetAll(ctx context.Context, q models.CookieQuery) ([]models.CookieEntry, error)
	// Remove deletes the cookie called name associated with url.
	Remove(ctx context.Context, url, name string) error
	// Set creates or overwrites a cookie. It returns an error when the
	// store rejects the cookie.
	Set(ctx context.Context, req models.CookieSetRequest) error
}

// PageStorage reads and writes a page's localStorage and sessionStorage.
type PageStorage interface {
	Read(ctx context.Context, pageURL string) (local, session []models.KVEntry, err error)
	// Write replaces both storages wholesale.
	Write(ctx context.Context, pageURL string, local, session []models.KVEntry) error
}

// Reloader is implemented by page collaborators able to reload a page so it
// picks up restored state.
type Reloader interface {
	Reload(ctx context.Context, pageURL string) error
}

// Outcome summarizes one restore.
type Outcome struct {
	// Succeeded is the number of snapshot cookies set.
	Succeeded int
	// Failed is the number of snapshot cookies the store rejected.
	Failed int
	// Removed is the number of live cookies cleared before restoring.
	Removed int
	// RemoveFailed is the number of live cookies that could not be cleared.
	RemoveFailed int
	// StorageRestored reports whether page storage was overwritten.
	StorageRestored bool
}

// Total is the number of cookies in the snapshot.
func (o Outcome) Total() int { return o.Succeeded + o.Failed }

// Partial reports whether some snapshot cookies could not be set.
func (o Outcome) Partial() bool { return o.Failed > 0 }

// Summary returns a short human-readable description, empty for a clean restore.
func (o Outcome) Summary() string {
	msg := ""
	if o.Partial() {
		msg = fmt.Sprintf("%d of %d cookies restored", o.Succeeded, o.Total())
	}
	if !o.StorageRestored {
		if msg != "" {
			msg += "; "
		}
		msg += "page storage not restored"
	}
	return msg
}

// Reconciler applies snapshots to a page.
type Reconciler struct {
	cookies CookieStore
	storage PageStorage
	log     *zap.Logger
}

// NewReconciler constructs a Reconciler. A nil logger disables logging.
func NewReconciler(cookies CookieStore, storage PageStorage, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{cookies: cookies, storage: storage, log: log}
}

// Apply clears the page's cookies, restores the snapshot's cookies and
// overwrites page storage. It only returns an error when page is not a
// valid absolute URL; every other failure is reflected in the Outcome.
func (r *Reconciler) Apply(ctx context.Context, page collector.Page, snap models.Snapshot) (Outcome, error) {
	host, err := page.Hostname()
	if err != nil {
		return Outcome{}, fmt.Errorf("restore target: %w", err)
	}

	var out Outcome
	r.clear(ctx, page.URL, host, &out)

	for _, c := range snap.Cookies {
		if err := r.cookies.Set(ctx, SetRequestFor(c)); err != nil {
			out.Failed++
			r.log.Debug("cookie rejected",
				zap.String("name", c.Name),
				zap.String("domain", c.Domain),
				zap.Error(err))
			continue
		}
		out.Succeeded++
	}

	if err := r.storage.Write(ctx, page.URL, snap.LocalEntries, snap.SessionEntries); err != nil {
		r.log.Warn("page storage not restored", zap.String("url", page.URL), zap.Error(err))
	} else {
		out.StorageRestored = true
	}

	if rl, ok := r.storage.(Reloader); ok {
		if err := rl.Reload(ctx, page.URL); err != nil {
			r.log.Debug("page reload failed", zap.Error(err))
		}
	}

	if out.Partial() {
		r.log.Warn("partial restore", zap.Int("restored", out.Succeeded), zap.Int("failed", out.Failed))
	}
	return out, nil
}

// clear removes every live cookie of the page. Failures are counted and
// do not stop the remaining removals.
func (r *Reconciler) clear(ctx context.Context, pageURL, host string, out *Outcome) {
	for _, c := range LiveCookies(ctx, r.cookies, pageURL, host, r.log) {
		if err := r.cookies.Remove(ctx, CookieURL(c.Domain, c.Path, c.Secure), c.Name); err != nil {
			out.RemoveFailed++
			r.log.Debug("cookie not removed", zap.String("name", c.Name), zap.Error(err))
			continue
		}
		out.Removed++
	}
}

// LiveCookies queries store by URL and by domain and merges the results the
// same way snapshots are collected. A failing query contributes nothing.
func LiveCookies(ctx context.Context, store CookieStore, pageURL, host string, log *zap.Logger) []models.CookieEntry {
	byURL, err := store.GetAll(ctx, models.CookieQuery{URL: pageURL})
	if err != nil {
		log.Warn("cookie query by url failed", zap.Error(err))
	}
	byDomain, err := store.GetAll(ctx, models.CookieQuery{Domain: host})
	if err != nil {
		log.Warn("cookie query by domain failed", zap.Error(err))
	}
	return collector.Dedupe(byURL, byDomain)
}

// CookieURL builds the URL a cookie is associated with from its attributes.
func CookieURL(domain, path string, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return scheme + "://" + collector.HostFromDomain(domain) + path
}

// SetRequestFor converts a snapshot cookie into a set request carrying its
// original attributes. Host-only cookies are set without a domain so the
// store does not widen them to sub-domains.
func SetRequestFor(c models.CookieEntry) models.CookieSetRequest {
	req := models.CookieSetRequest{
		URL:      CookieURL(c.Domain, c.Path, c.Secure),
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
	if req.SameSite == "" {
		req.SameSite = DefaultSameSite
	}
	if !c.HostOnly {
		req.Domain = c.Domain
	}
	if c.ExpirationDate != nil && *c.ExpirationDate != 0 {
		exp := *c.ExpirationDate
		req.ExpirationDate = &exp
	}
	return req
}
