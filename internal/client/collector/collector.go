// Package collector builds a Snapshot from the raw cookie and storage
// entries read from a page. It performs no I/O and no cryptography.
package collector

import (
	"errors"
	"net/url"
	"strings"

	"github.com/atinyakov/SessionSync/internal/models"
)

// Page identifies the page a snapshot is taken from or restored to.
type Page struct {
	// URL is the full page URL.
	URL string
	// Title is the page title.
	Title string
}

// Origin returns the scheme://host[:port] of the page.
func (p Page) Origin() (string, error) {
	u, err := parsePageURL(p.URL)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}

// Hostname returns the page host without port.
func (p Page) Hostname() (string, error) {
	u, err := parsePageURL(p.URL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

func parsePageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errNotAbsolute}
	}
	return u, nil
}

var errNotAbsolute = errors.New("page URL must be absolute")

// Key returns the identity of a cookie: domain, name and path.
func Key(c models.CookieEntry) string {
	return c.Domain + "\t" + c.Name + "\t" + c.Path
}

// Dedupe concatenates the lists and drops repeated cookies, keeping the
// first occurrence of each (domain, name, path).
func Dedupe(lists ...[]models.CookieEntry) []models.CookieEntry {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	if total == 0 {
		return []models.CookieEntry{}
	}

	seen := make(map[string]struct{}, total)
	out := make([]models.CookieEntry, 0, total)
	for _, l := range lists {
		for _, c := range l {
			k := Key(c)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Build assembles the snapshot for page. byURL and byDomain are the two
// cookie query results for the page; parent-domain cookies usually only
// show up in the domain query, so both are merged.
func Build(page Page, byURL, byDomain []models.CookieEntry, local, session []models.KVEntry) models.Snapshot {
	return models.Snapshot{
		OriginURL:      page.URL,
		Title:          page.Title,
		Cookies:        Dedupe(byURL, byDomain),
		LocalEntries:   nonNil(local),
		SessionEntries: nonNil(session),
	}
}

func nonNil(entries []models.KVEntry) []models.KVEntry {
	if entries == nil {
		return []models.KVEntry{}
	}
	return entries
}

// HostFromDomain strips the leading dot of a cookie domain.
func HostFromDomain(domain string) string {
	return strings.TrimPrefix(domain, ".")
}
