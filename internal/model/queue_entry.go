package model

// EntryState is the crawl state of a QueueEntry.
// Entries move Queued -> Fetching -> Fetched|Errored. Fetched and Errored are terminal.
type EntryState int

const (
	// EntryQueued means the URL was admitted and waits for dispatch.
	EntryQueued EntryState = iota

	// EntryFetching means a fetch for the URL is in flight.
	EntryFetching

	// EntryFetched means the fetch finished successfully (terminal).
	EntryFetched

	// EntryErrored means the fetch failed (terminal).
	EntryErrored
)

// String returns a human-readable representation of the state.
func (s EntryState) String() string {
	switch s {
	case EntryQueued:
		return "queued"
	case EntryFetching:
		return "fetching"
	case EntryFetched:
		return "fetched"
	case EntryErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s EntryState) IsTerminal() bool {
	return s == EntryFetched || s == EntryErrored
}

// QueueEntry is a URL's tracked crawl state.
type QueueEntry struct {
	// URL is the normalized absolute URL.
	URL string `json:"url"`

	// Referrer is the URL of the page the link was discovered on.
	// Empty for the seed.
	Referrer string `json:"referrer,omitempty"`

	// Depth is the link distance from the seed (the seed is depth 0).
	Depth int `json:"depth"`

	// State is the current crawl state.
	State EntryState `json:"state"`
}
