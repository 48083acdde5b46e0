package model

import (
	"sort"
	"time"
)

// FailureKind classifies why a fetch failed.
type FailureKind string

const (
	// FailureTransport is a network, DNS, TLS or timeout failure while fetching.
	FailureTransport FailureKind = "transport"

	// FailureStatus is a response with an error status code (4xx, 5xx).
	FailureStatus FailureKind = "status"

	// FailureData is a response body that could not be decoded or parsed.
	FailureData FailureKind = "data"
)

// FetchFailure records one URL that could not be fetched.
// Failures are reported once and the URL is never re-enqueued.
type FetchFailure struct {
	// URL is the normalized URL of the failed entry.
	URL string `json:"url"`

	// Referrer is the page the URL was discovered on.
	Referrer string `json:"referrer,omitempty"`

	// Kind is the failure classification.
	Kind FailureKind `json:"kind"`

	// StatusCode is the response status, zero for transport failures.
	StatusCode int `json:"status_code,omitempty"`

	// Message is the error text.
	Message string `json:"message"`
}

// FrontierStats summarizes the frontier at the end of a crawl.
type FrontierStats struct {
	// Known is the size of the dedup set.
	Known int `json:"known"`

	// Queued is the number of entries still waiting for dispatch.
	Queued int `json:"queued"`

	// InFlight is the number of entries currently being fetched.
	InFlight int `json:"in_flight"`

	// Fetched is the number of entries fetched successfully.
	Fetched int `json:"fetched"`

	// Errored is the number of entries whose fetch failed.
	Errored int `json:"errored"`

	// Rejected counts rejected candidate URLs by rejection reason.
	Rejected map[string]int `json:"rejected,omitempty"`
}

// TotalRejected returns the number of rejected candidates across all reasons.
func (s FrontierStats) TotalRejected() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// CrawlRun is the summary of one crawl of one seed.
// It is produced after the crawl finishes, persisted by the database package
// and rendered by the report package.
type CrawlRun struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// StartedAt is when the crawl entered the running state.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl reached a terminal state.
	FinishedAt time.Time `json:"finished_at"`

	// State is the terminal state name (completed, cancelled, fatal).
	State string `json:"state"`

	// Error holds the error message for runs that did not complete.
	Error string `json:"error,omitempty"`

	// Items are all fetched pages in fetch-completion order, including
	// non-indexable ones.
	Items []URLItem `json:"items"`

	// Failures are the URLs that could not be fetched.
	Failures []FetchFailure `json:"failures,omitempty"`

	// Stats is the frontier summary.
	Stats FrontierStats `json:"stats"`

	// SitemapDocuments is the number of <urlset> documents produced.
	SitemapDocuments int `json:"sitemap_documents"`

	// SitemapFiles lists the files written, if the sitemap was persisted.
	SitemapFiles []string `json:"sitemap_files,omitempty"`
}

// Duration returns the wall-clock time the crawl took.
func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IndexableItems returns the items that belong in the sitemap, in order.
func (r *CrawlRun) IndexableItems() []URLItem {
	out := make([]URLItem, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Indexable {
			out = append(out, item)
		}
	}
	return out
}

// NoIndexCount returns the number of fetched pages excluded by noindex.
func (r *CrawlRun) NoIndexCount() int {
	return len(r.Items) - len(r.IndexableItems())
}

// FailureCounts returns the number of failures per kind.
func (r *CrawlRun) FailureCounts() map[FailureKind]int {
	counts := make(map[FailureKind]int)
	for _, f := range r.Failures {
		counts[f.Kind]++
	}
	return counts
}

// SortedLocs returns the sitemap URLs of the run in lexical order.
// Fetch-completion order is not deterministic under concurrency, so
// comparisons between runs use this instead.
func (r *CrawlRun) SortedLocs() []string {
	items := r.IndexableItems()
	locs := make([]string, len(items))
	for i, item := range items {
		locs[i] = item.Loc
	}
	sort.Strings(locs)
	return locs
}
