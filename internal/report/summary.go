package report

import (
	"sort"
	"time"

	"github.com/nao1215/sitemapgen/internal/model"
)

// Summary is the condensed view of a CrawlRun that all writers render.
type Summary struct {
	// RunID is the crawl run ID.
	RunID string `json:"run_id"`

	// Seed is the crawled seed URL.
	Seed string `json:"seed"`

	// StartedAt is when the crawl started.
	StartedAt time.Time `json:"started_at"`

	// DurationSeconds is the crawl wall-clock time.
	DurationSeconds float64 `json:"duration_seconds"`

	// State is the terminal crawl state.
	State string `json:"state"`

	// Error is set when the crawl did not complete.
	Error string `json:"error,omitempty"`

	// PagesFetched is the number of successfully fetched pages.
	PagesFetched int `json:"pages_fetched"`

	// Indexable is the number of pages written to the sitemap.
	Indexable int `json:"indexable"`

	// NoIndex is the number of fetched pages excluded by noindex.
	NoIndex int `json:"noindex"`

	// TransportFailures, StatusFailures and DataFailures count failed fetches by kind.
	TransportFailures int `json:"transport_failures"`
	StatusFailures    int `json:"status_failures"`
	DataFailures      int `json:"data_failures"`

	// Rejected counts rejected candidate URLs by reason.
	Rejected map[string]int `json:"rejected,omitempty"`

	// SitemapDocuments is the number of <urlset> documents produced.
	SitemapDocuments int `json:"sitemap_documents"`

	// SitemapFiles lists the written sitemap files.
	SitemapFiles []string `json:"sitemap_files,omitempty"`

	// Failures lists every failed fetch.
	Failures []model.FetchFailure `json:"failures,omitempty"`
}

// NewSummary condenses run into a Summary.
func NewSummary(run *model.CrawlRun) *Summary {
	counts := run.FailureCounts()
	indexable := len(run.IndexableItems())

	return &Summary{
		RunID:             run.ID,
		Seed:              run.Seed,
		StartedAt:         run.StartedAt,
		DurationSeconds:   run.Duration().Seconds(),
		State:             run.State,
		Error:             run.Error,
		PagesFetched:      len(run.Items),
		Indexable:         indexable,
		NoIndex:           len(run.Items) - indexable,
		TransportFailures: counts[model.FailureTransport],
		StatusFailures:    counts[model.FailureStatus],
		DataFailures:      counts[model.FailureData],
		Rejected:          run.Stats.Rejected,
		SitemapDocuments:  run.SitemapDocuments,
		SitemapFiles:      run.SitemapFiles,
		Failures:          run.Failures,
	}
}

// TotalFailures returns the number of failed fetches.
func (s *Summary) TotalFailures() int {
	return s.TransportFailures + s.StatusFailures + s.DataFailures
}

// HasFailures reports whether any fetch failed.
func (s *Summary) HasFailures() bool {
	return s.TotalFailures() > 0
}

// Completed reports whether the crawl ran to completion.
func (s *Summary) Completed() bool {
	return s.State == "completed"
}

// RejectReasons returns the rejection reasons in lexical order.
func (s *Summary) RejectReasons() []string {
	reasons := make([]string, 0, len(s.Rejected))
	for reason := range s.Rejected {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return reasons
}
