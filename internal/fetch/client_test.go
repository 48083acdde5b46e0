package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemapgen/internal/config"
)

// TestNew tests Client construction.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults user agent", func(t *testing.T) {
		t.Parallel()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.userAgent != config.DefaultUserAgent {
			t.Errorf("expected %q, got %q", config.DefaultUserAgent, c.userAgent)
		}
	})

	t.Run("sets timeout and cookie jar", func(t *testing.T) {
		t.Parallel()

		c, err := New(Options{Timeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.HTTPClient().Timeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %v", c.HTTPClient().Timeout)
		}
		if c.HTTPClient().Jar == nil {
			t.Error("expected cookie jar to be set")
		}
	})

	t.Run("valid proxy address", func(t *testing.T) {
		t.Parallel()

		if _, err := New(Options{ProxyAddress: "127.0.0.1:9050"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid proxy address", func(t *testing.T) {
		t.Parallel()

		_, err := New(Options{ProxyAddress: "127.0.0.1"})
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})

	t.Run("TLS settings are per client", func(t *testing.T) {
		t.Parallel()

		insecure, err := New(Options{InsecureSkipVerify: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		strict, err := New(Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		insecureTransport, ok := insecure.HTTPClient().Transport.(*http.Transport)
		if !ok {
			t.Fatal("expected *http.Transport")
		}
		strictTransport, ok := strict.HTTPClient().Transport.(*http.Transport)
		if !ok {
			t.Fatal("expected *http.Transport")
		}
		if !insecureTransport.TLSClientConfig.InsecureSkipVerify {
			t.Error("expected InsecureSkipVerify on insecure client")
		}
		if strictTransport.TLSClientConfig.InsecureSkipVerify {
			t.Error("expected verification on strict client")
		}
	})
}

// TestNewFromConfig tests building a Client from crawl configuration.
func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.UserAgent = "test-agent"
	cfg.MaxBodySize = 1024

	c, err := NewFromConfig(cfg, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.userAgent != "test-agent" {
		t.Errorf("expected test-agent, got %q", c.userAgent)
	}
	if c.maxBodySize != 1024 {
		t.Errorf("expected 1024, got %d", c.maxBodySize)
	}

	cfg.ProxyAddress = "bad"
	if _, err := NewFromConfig(cfg, "127.0.0.1:9050"); err != nil {
		t.Errorf("expected override address to win, got %v", err)
	}
}

// TestIsValidProxyAddress tests proxy address validation.
func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		address  string
		expected bool
	}{
		{"127.0.0.1:9050", true},
		{"localhost:1080", true},
		{"[::1]:9050", true},
		{"", false},
		{"127.0.0.1", false},
		{":9050", false},
		{"127.0.0.1:", false},
		{"127.0.0.1:0", false},
		{"127.0.0.1:65536", false},
		{"127.0.0.1:abc", false},
	}

	for _, tc := range testCases {
		t.Run(tc.address, func(t *testing.T) {
			t.Parallel()
			if got := isValidProxyAddress(tc.address); got != tc.expected {
				t.Errorf("isValidProxyAddress(%q) = %v, expected %v", tc.address, got, tc.expected)
			}
		})
	}
}

// TestFetch tests fetching against a local HTTP server.
func TestFetch(t *testing.T) {
	t.Parallel()

	t.Run("sends request headers", func(t *testing.T) {
		t.Parallel()

		received := make(chan http.Header, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received <- r.Header.Clone()
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer server.Close()

		c, err := New(Options{
			UserAgent: "agent/1.0",
			Cookie:    "session=abc",
			Headers:   map[string]string{"X-Test": "value"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resp, err := c.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if string(resp.Body) != "<html></html>" {
			t.Errorf("unexpected body %q", resp.Body)
		}
		got := <-received
		gotUA, gotAccept := got.Get("User-Agent"), got.Get("Accept")
		gotCookie, gotCustom := got.Get("Cookie"), got.Get("X-Test")
		if gotUA != "agent/1.0" {
			t.Errorf("expected agent/1.0, got %q", gotUA)
		}
		if gotAccept != acceptHeader {
			t.Errorf("expected %q, got %q", acceptHeader, gotAccept)
		}
		if gotCookie != "session=abc" {
			t.Errorf("expected session=abc, got %q", gotCookie)
		}
		if gotCustom != "value" {
			t.Errorf("expected value, got %q", gotCustom)
		}
	})

	t.Run("does not follow redirects", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/old" {
				http.Redirect(w, r, "/new", http.StatusMovedPermanently)
				return
			}
			_, _ = w.Write([]byte("new"))
		}))
		defer server.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resp, err := c.Fetch(context.Background(), server.URL+"/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusMovedPermanently {
			t.Errorf("expected 301, got %d", resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/new" {
			t.Errorf("expected Location /new, got %q", loc)
		}
	})

	t.Run("returns error statuses as responses", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resp, err := c.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("truncates body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		}))
		defer server.Close()

		c, err := New(Options{MaxBodySize: 10})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resp, err := c.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Body) != 10 {
			t.Errorf("expected 10 bytes, got %d", len(resp.Body))
		}
	})

	t.Run("self-signed certificate", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		insecure, err := New(Options{InsecureSkipVerify: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := insecure.Fetch(context.Background(), server.URL); err != nil {
			t.Errorf("expected insecure fetch to succeed, got %v", err)
		}

		strict, err := New(Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := strict.Fetch(context.Background(), server.URL); err == nil {
			t.Error("expected certificate error, got nil")
		}
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer server.Close()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := c.Fetch(ctx, server.URL); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		t.Parallel()

		c, err := New(Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := c.Fetch(context.Background(), "://bad"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// TestHeaderInjectingTransport tests cookie and header injection.
func TestHeaderInjectingTransport(t *testing.T) {
	t.Parallel()

	var got http.Header
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		got = req.Header
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
	})

	transport := &headerInjectingTransport{
		base:    base,
		cookie:  "b=2",
		headers: map[string]string{"Authorization": "Bearer x"},
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("Cookie", "a=1")
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = resp.Body.Close()

	if got.Get("Cookie") != "a=1; b=2" {
		t.Errorf("expected merged cookie, got %q", got.Get("Cookie"))
	}
	if got.Get("Authorization") != "Bearer x" {
		t.Errorf("expected Authorization header, got %q", got.Get("Authorization"))
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("expected original request to be unmodified")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// TestProxyStatus tests ProxyStatus String and Error.
func TestProxyStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status   ProxyStatus
		str      string
		expected error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS5},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.str, func(t *testing.T) {
			t.Parallel()
			if tc.status.String() != tc.str {
				t.Errorf("expected %q, got %q", tc.str, tc.status.String())
			}
			if !errors.Is(tc.status.Error(), tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, tc.status.Error())
			}
		})
	}

	if ProxyStatus(999).String() != "unknown" {
		t.Error("expected unknown for out of range status")
	}
	if ProxyStatus(999).Error() == nil {
		t.Error("expected error for out of range status")
	}
}

// mockSOCKS5 starts a one-shot TCP server running handle on the accepted
// connection and returns its address.
func mockSOCKS5(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return listener.Addr().String()
}

// TestCheckProxy tests the SOCKS5 handshake check.
func TestCheckProxy(t *testing.T) {
	t.Parallel()

	t.Run("returns CannotConnect for closed port", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := listener.Addr().String()
		_ = listener.Close()

		if status := CheckProxy(context.Background(), addr); status != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", status)
		}
	})

	t.Run("returns WrongType for non-SOCKS5 server", func(t *testing.T) {
		t.Parallel()

		addr := mockSOCKS5(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
		})

		if status := CheckProxy(context.Background(), addr); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("returns WrongType when auth is required", func(t *testing.T) {
		t.Parallel()

		addr := mockSOCKS5(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})

		if status := CheckProxy(context.Background(), addr); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("returns OK for SOCKS5 proxy", func(t *testing.T) {
		t.Parallel()

		addr := mockSOCKS5(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})
			connectBuf := make([]byte, 256)
			_, _ = conn.Read(connectBuf)
			_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		})

		if status := CheckProxy(context.Background(), addr); status != ProxyStatusOK {
			t.Errorf("expected ProxyStatusOK, got %v", status)
		}
	})

	t.Run("returns WrongType for bad CONNECT reply version", func(t *testing.T) {
		t.Parallel()

		addr := mockSOCKS5(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})
			connectBuf := make([]byte, 256)
			_, _ = conn.Read(connectBuf)
			_, _ = conn.Write([]byte{0x04, 0x00, 0x00, 0x01})
		})

		if status := CheckProxy(context.Background(), addr); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("handles cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		status := CheckProxy(ctx, "127.0.0.1:59998")
		if status != ProxyStatusCannotConnect && status != ProxyStatusTimeout {
			t.Errorf("expected ProxyStatusCannotConnect or ProxyStatusTimeout, got %v", status)
		}
	})
}
