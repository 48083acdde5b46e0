package crawler

import (
	"errors"
	"fmt"

	"github.com/nao1215/sitemapgen/internal/frontier"
)

var (
	// ErrInvalidSeed is wrapped by FatalError when the seed cannot be crawled.
	ErrInvalidSeed = frontier.ErrInvalidSeed

	// ErrSeedRejected is wrapped by FatalError when the seed itself fails the
	// admission rules, for example an excluded extension.
	ErrSeedRejected = errors.New("seed rejected by admission rules")

	// ErrUndecodableBody is wrapped by a Fetcher when the response arrived but
	// its body could not be decoded, for example a corrupt gzip stream.
	ErrUndecodableBody = errors.New("response body could not be decoded")

	// ErrAlreadyStarted is returned when Run is called on a Generator that
	// has left the Idle state.
	ErrAlreadyStarted = errors.New("generator already started")

	// ErrNilFetcher is returned when a Generator is run without a Fetcher.
	ErrNilFetcher = errors.New("no fetcher configured")

	errNoResponse = errors.New("fetcher returned no response")
)

// TransportError is a network, DNS, TLS or timeout failure while fetching.
// The crawl continues.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a response with an error status code (4xx or 5xx).
// The crawl continues.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// DataError is a response body that could not be decoded or parsed.
// The crawl continues.
type DataError struct {
	URL string
	Err error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.URL, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// FatalError means the run could not be initialized. It is returned
// synchronously from Run; no fetch starts and no signal fires.
type FatalError struct {
	Seed string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("cannot start crawl of %q: %v", e.Seed, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
