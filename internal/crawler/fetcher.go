package crawler

import (
	"context"
	"net/http"
)

// Response is what a Fetcher returns for a completed request, whatever its
// status code.
type Response struct {
	// FinalURL is the URL the body was served from. It differs from the
	// requested URL only when the Fetcher follows redirects itself.
	// Empty means the requested URL.
	FinalURL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the (possibly truncated) response body.
	Body []byte
}

// Fetcher retrieves a URL. An error means no response was obtained; error
// status codes are reported through Response.StatusCode instead. The one
// exception is an error wrapping ErrUndecodableBody, which may come with a
// Response carrying the status and headers.
// Implementations must honour ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}
