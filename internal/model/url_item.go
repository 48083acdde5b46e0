package model

import (
	"net/http"
	"time"
)

// ResponseMeta holds the response-side metadata of a fetch.
// It is attached to URLItems and passed to fetch error handlers.
type ResponseMeta struct {
	// StatusCode is the HTTP response status code.
	// Zero when the request never produced a response (transport failure).
	StatusCode int `json:"status_code"`

	// Header contains the HTTP response headers.
	// It is never serialized: headers may carry Set-Cookie and similar secrets.
	Header http.Header `json:"-"`

	// ContentType is the media type from the Content-Type header,
	// kept separately for convenience.
	ContentType string `json:"content_type,omitempty"`
}

// URLItem represents a successfully fetched page.
// It is created exactly once per URL, on successful fetch, and is owned by the
// sitemap assembler until final serialization.
//
// Only ChangeFreq and Priority may change after creation, and only from a
// fetch-complete handler, which runs before the item is stored.
type URLItem struct {
	// Loc is the absolute URL of the page.
	Loc string `json:"loc"`

	// LastMod is taken from the response Date header. Nil when absent or unparseable.
	LastMod *time.Time `json:"lastmod,omitempty"`

	// ChangeFreq is the change frequency hint. Empty means absent.
	ChangeFreq ChangeFreq `json:"changefreq,omitempty"`

	// Priority is the optional priority.
	Priority Priority `json:"priority"`

	// Indexable is false when the page declares <meta name="robots" content="noindex">.
	// Non-indexable items are kept in the item store but never written to a sitemap.
	Indexable bool `json:"indexable"`

	// Depth is the link distance from the seed (the seed is depth 0).
	Depth int `json:"depth"`

	// Response holds the response status and headers.
	Response ResponseMeta `json:"response"`
}

// HasLastMod reports whether a last modification time is present.
func (u *URLItem) HasLastMod() bool {
	return u.LastMod != nil && !u.LastMod.IsZero()
}
