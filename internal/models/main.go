// Package models defines the core data structures shared by the sync client
// and the reference store server.
package models

import "time"

// CookieEntry carries exactly the attributes needed to recreate a cookie.
type CookieEntry struct {
	// Name is the cookie name.
	Name string `json:"name"`
	// Value is the cookie value.
	Value string `json:"value"`
	// Domain is the cookie domain as reported by the browser (may carry a leading dot).
	Domain string `json:"domain"`
	// Path is the cookie path.
	Path string `json:"path"`
	// Secure restricts the cookie to secure transports.
	Secure bool `json:"secure"`
	// HTTPOnly hides the cookie from page scripts.
	HTTPOnly bool `json:"httpOnly"`
	// SameSite is one of "no_restriction", "lax", "strict" or "unspecified".
	SameSite string `json:"sameSite"`
	// ExpirationDate is seconds since the Unix epoch; nil for session cookies.
	ExpirationDate *float64 `json:"expirationDate,omitempty"`
	// HostOnly marks cookies that must not be sent to sub-domains.
	HostOnly bool `json:"hostOnly,omitempty"`
}

// KVEntry is one localStorage or sessionStorage item.
type KVEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Snapshot is a point-in-time capture of one origin's cookies and storage.
// It is the unit of push and pull.
type Snapshot struct {
	// OriginURL is the full URL of the page the snapshot was taken from.
	OriginURL string `json:"url"`
	// Title is the page title.
	Title string `json:"title"`
	// Cookies are the deduplicated cookies visible to the page.
	Cookies []CookieEntry `json:"cookies"`
	// LocalEntries are the page's localStorage items.
	LocalEntries []KVEntry `json:"localStorage"`
	// SessionEntries are the page's sessionStorage items.
	SessionEntries []KVEntry `json:"sessionStorage"`
}

// Envelope is the authenticated-encrypted container for one Snapshot.
// All fields are standard base64.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
}

// OriginRecord describes one stored snapshot without revealing its content.
type OriginRecord struct {
	// Origin is the scheme+host+port of the synced site.
	Origin string `json:"origin"`
	// UpdatedAt is the time of the last upsert.
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncRecord is a stored row of the reference store server.
type SyncRecord struct {
	// ID is the unique identifier of the row.
	ID string
	// AccountID is the public account identifier (user hash).
	AccountID string
	// Origin is the synced site.
	Origin string
	// Envelope is the opaque encrypted payload.
	Envelope Envelope
	// UpdatedAt is the time of the last upsert.
	UpdatedAt time.Time
}

// CookieQuery selects cookies from a cookie store. Exactly one of URL or
// Domain is set: a URL query returns cookies the browser would send to that
// URL, a Domain query returns the cookies set for the given host, domain
// cookies of its parent domains, and cookies of its sub-domains. Host-only
// cookies of a parent host are not returned.
type CookieQuery struct {
	URL    string
	Domain string
}

// CookieSetRequest describes a cookie to create, in the shape browsers'
// cookie APIs accept.
type CookieSetRequest struct {
	// URL is the URL the cookie is associated with; it determines the
	// default domain and path.
	URL   string
	Name  string
	Value string
	// Domain is empty for host-only cookies.
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite string
	// ExpirationDate is nil for session cookies.
	ExpirationDate *float64
}
