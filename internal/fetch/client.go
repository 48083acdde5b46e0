package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/crawler"
	"golang.org/x/net/proxy"
)

// Request header values sent with every fetch.
const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.5"
)

// Options configures a Client.
type Options struct {
	// UserAgent is sent as the User-Agent header.
	UserAgent string

	// Timeout bounds each request including reading the body.
	// Zero means no timeout.
	Timeout time.Duration

	// MaxBodySize truncates response bodies to this many bytes.
	// Zero means unlimited.
	MaxBodySize int64

	// InsecureSkipVerify disables TLS certificate verification for this
	// client only.
	InsecureSkipVerify bool

	// ProxyAddress routes all connections through a SOCKS5 proxy
	// ("host:port"). Empty means direct connections.
	ProxyAddress string

	// Cookie is added to the Cookie header of every request.
	Cookie string

	// Headers are set on every request.
	Headers map[string]string
}

// Client fetches pages over HTTP(S). It implements crawler.Fetcher.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
}

var _ crawler.Fetcher = (*Client)(nil)

// New creates a Client from opts.
//
// New validates the proxy address format but does not connect to the proxy.
// Use CheckProxy to verify it is reachable.
func New(opts Options) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // Opt-in per crawl run
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	if opts.ProxyAddress != "" {
		if !isValidProxyAddress(opts.ProxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		dialer, err := proxy.SOCKS5("tcp", opts.ProxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = contextDialer(dialer)
		// Fewer idle connections per proxied host keeps circuit usage low.
		transport.MaxIdleConns = 10
		transport.MaxIdleConnsPerHost = 2
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = transport
	if opts.Cookie != "" || len(opts.Headers) > 0 {
		rt = &headerInjectingTransport{
			base:    transport,
			cookie:  opts.Cookie,
			headers: opts.Headers,
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   opts.Timeout,
			Jar:       jar,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent:   userAgent,
		maxBodySize: opts.MaxBodySize,
	}, nil
}

// NewFromConfig creates a Client from the fetch settings of cfg.
// proxyAddress overrides cfg.ProxyAddress when non-empty, which is how the
// embedded Tor daemon's SOCKS address is injected.
func NewFromConfig(cfg *config.Config, proxyAddress string) (*Client, error) {
	if proxyAddress == "" {
		proxyAddress = cfg.ProxyAddress
	}
	return New(Options{
		UserAgent:          cfg.UserAgent,
		Timeout:            cfg.Timeout,
		MaxBodySize:        cfg.MaxBodySize,
		InsecureSkipVerify: cfg.IgnoreInvalidSSL,
		ProxyAddress:       proxyAddress,
		Cookie:             cfg.Cookie,
		Headers:            cfg.Headers,
	})
}

// contextDialer adapts a proxy.Dialer to http.Transport.DialContext.
// The SOCKS5 dialer from x/net implements proxy.ContextDialer, so the
// fallback only applies to other dialer implementations.
func contextDialer(d proxy.Dialer) func(context.Context, string, string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case result := <-resultCh:
			return result.conn, result.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Fetch performs a GET request for rawURL.
//
// Any HTTP status is returned as a Response; an error means no response
// was obtained. A body that arrives but cannot be decoded yields the
// Response without a body and an error wrapping crawler.ErrUndecodableBody.
// Redirects are not followed.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*crawler.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)
	req.Header.Set("Accept-Encoding", acceptEncodingHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &crawler.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	raw := &bodyReader{r: resp.Body}
	reader, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return bodyFailure(result, raw, err)
	}
	if c.maxBodySize > 0 {
		reader = io.LimitReader(reader, c.maxBodySize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return bodyFailure(result, raw, err)
	}
	result.Body = body

	return result, nil
}

// bodyReader records the first non-EOF error of the underlying body so that
// connection failures can be told apart from decoding failures.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && b.err == nil {
		b.err = err
	}
	return n, err
}

// bodyFailure classifies an error raised while reading the body. A failed
// connection means no response; anything else is a body that arrived but
// could not be decoded, returned with the response metadata.
func bodyFailure(resp *crawler.Response, raw *bodyReader, err error) (*crawler.Response, error) {
	if raw.err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, fmt.Errorf("%w: %w", crawler.ErrUndecodableBody, err)
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
