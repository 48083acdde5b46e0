package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/sitemap"
)

// page is a canned response of fakeFetcher.
type page struct {
	status int
	body   string
	header http.Header
	err    error
}

// fakeFetcher serves canned pages and records what was fetched.
type fakeFetcher struct {
	pages map[string]page
	delay time.Duration

	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
}

func newFakeFetcher(pages map[string]page) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p, ok := f.pages[url]
	if !ok {
		return &Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
	}
	if p.err != nil {
		return nil, p.err
	}

	header := http.Header{"Content-Type": []string{"text/html; charset=utf-8"}}
	for k, v := range p.header {
		header[k] = v
	}
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{StatusCode: status, Header: header, Body: []byte(p.body)}, nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Interval = 0
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func locs(items []model.URLItem) map[string]model.URLItem {
	out := make(map[string]model.URLItem, len(items))
	for _, item := range items {
		out[item.Loc] = item
	}
	return out
}

// sitePages is a small site exercising every extraction and admission rule.
func sitePages() map[string]page {
	return map[string]page{
		"https://example.com/": {body: `<html><body>
			<a href="/about">About</a>
			<a href="/private">Private</a>
			<a href="/missing">Missing</a>
			<a href="mailto:info@example.com">Mail</a>
			<a href="/login" rel="nofollow">Login</a>
			<a href="https://other.com/">Other</a>
			<a href="/logo.png">Logo</a>
			<a href="/about#team">Team</a>
		</body></html>`},
		"https://example.com/about": {
			body:   `<a href="/">Home</a><a href="/about/team">Team</a>`,
			header: http.Header{"Date": []string{"Mon, 06 May 2024 07:08:09 GMT"}},
		},
		"https://example.com/about/team": {body: `<p>team</p>`},
		"https://example.com/private": {body: `<html><head>
			<meta name="robots" content="noindex, nofollow">
			</head><body><a href="/secret">Secret</a></body></html>`},
		"https://example.com/secret": {body: `<p>should never be fetched</p>`},
		"https://example.com/login":  {body: `<p>should never be fetched</p>`},
	}
}

// TestGeneratorRun tests a complete crawl of a small site.
func TestGeneratorRun(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(sitePages())
	gen := NewGenerator(testConfig(), fetcher, WithLogger(quietLogger()))

	var (
		completeCalls int
		fetchErrors   []string
		fetchedItems  []string
		completeItems []model.URLItem
		completeOut   *sitemap.Output
	)
	gen.OnFetchComplete(func(item *model.URLItem) {
		fetchedItems = append(fetchedItems, item.Loc)
	})
	gen.OnFetchError(func(entry *model.QueueEntry, meta *model.ResponseMeta, err error) {
		fetchErrors = append(fetchErrors, fmt.Sprintf("%s %d", entry.URL, meta.StatusCode))
		if entry.State != model.EntryErrored {
			t.Errorf("expected errored entry state in handler, got %s", entry.State)
		}
	})
	gen.OnComplete(func(out *sitemap.Output, items []model.URLItem) {
		completeCalls++
		completeOut = out
		completeItems = items
		if !gen.Frontier().IsComplete() {
			t.Error("expected frontier to be complete when OnComplete fires")
		}
	})

	result, err := gen.Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("state is completed", func(t *testing.T) {
		if gen.State() != StateCompleted {
			t.Errorf("expected completed, got %s", gen.State())
		}
		if result.Run.State != "completed" {
			t.Errorf("expected run state completed, got %q", result.Run.State)
		}
	})

	t.Run("complete fires exactly once", func(t *testing.T) {
		if completeCalls != 1 {
			t.Errorf("expected 1 complete call, got %d", completeCalls)
		}
		if completeOut != result.Output {
			t.Error("expected OnComplete to receive the returned output")
		}
		if len(completeItems) != 4 {
			t.Errorf("expected 4 items in OnComplete, got %d", len(completeItems))
		}
	})

	t.Run("fetched pages", func(t *testing.T) {
		items := locs(result.Run.Items)
		for _, want := range []string{
			"https://example.com/",
			"https://example.com/about",
			"https://example.com/about/team",
			"https://example.com/private",
		} {
			if _, ok := items[want]; !ok {
				t.Errorf("expected %s to be fetched", want)
			}
		}
		if len(fetchedItems) != 4 {
			t.Errorf("expected 4 fetch-complete signals, got %d", len(fetchedItems))
		}
	})

	t.Run("rejected links are never fetched", func(t *testing.T) {
		for _, u := range fetcher.fetched() {
			switch u {
			case "https://example.com/secret", "https://example.com/login", "https://other.com/", "https://example.com/logo.png":
				t.Errorf("expected %s never to be fetched", u)
			}
			if strings.HasPrefix(u, "mailto:") {
				t.Errorf("expected mailto never to be fetched: %s", u)
			}
		}
	})

	t.Run("each URL fetched once", func(t *testing.T) {
		seen := make(map[string]int)
		for _, u := range fetcher.fetched() {
			seen[u]++
		}
		for u, n := range seen {
			if n != 1 {
				t.Errorf("expected %s to be fetched once, got %d", u, n)
			}
		}
	})

	t.Run("noindex page is stored but not in sitemap", func(t *testing.T) {
		private, ok := locs(result.Run.Items)["https://example.com/private"]
		if !ok {
			t.Fatal("expected private page to be stored")
		}
		if private.Indexable {
			t.Error("expected private page to be non-indexable")
		}
		if strings.Contains(result.Output.Documents[0], "/private") {
			t.Error("expected private page to be excluded from the sitemap")
		}
		if result.Output.Entries() != 3 {
			t.Errorf("expected 3 sitemap entries, got %d", result.Output.Entries())
		}
	})

	t.Run("status errors are signalled", func(t *testing.T) {
		if len(fetchErrors) != 1 || fetchErrors[0] != "https://example.com/missing 404" {
			t.Errorf("expected one 404 error, got %v", fetchErrors)
		}
		if len(result.Run.Failures) != 1 || result.Run.Failures[0].Kind != model.FailureStatus {
			t.Errorf("expected one status failure, got %+v", result.Run.Failures)
		}
		if result.Run.Failures[0].Referrer != "https://example.com/" {
			t.Errorf("expected referrer to be recorded, got %q", result.Run.Failures[0].Referrer)
		}
	})

	t.Run("lastmod from date header", func(t *testing.T) {
		about := locs(result.Run.Items)["https://example.com/about"]
		if !about.HasLastMod() {
			t.Fatal("expected lastmod")
		}
		want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		if !about.LastMod.Equal(want) {
			t.Errorf("expected %v, got %v", want, about.LastMod)
		}
		if !strings.Contains(result.Output.Documents[0], "<lastmod>2024-05-06T07:08:09Z</lastmod>") {
			t.Error("expected lastmod in sitemap")
		}
	})

	t.Run("depths", func(t *testing.T) {
		items := locs(result.Run.Items)
		if items["https://example.com/"].Depth != 0 {
			t.Errorf("expected seed depth 0, got %d", items["https://example.com/"].Depth)
		}
		if items["https://example.com/about/team"].Depth != 2 {
			t.Errorf("expected team depth 2, got %d", items["https://example.com/about/team"].Depth)
		}
	})

	t.Run("stats", func(t *testing.T) {
		stats := result.Run.Stats
		if stats.Known != 5 || stats.Fetched != 4 || stats.Errored != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}
		if stats.Rejected["foreign_host"] != 1 || stats.Rejected["extension"] != 1 {
			t.Errorf("unexpected rejections: %v", stats.Rejected)
		}
		if result.Run.ID == "" {
			t.Error("expected run ID")
		}
	})
}

// TestGeneratorFatal tests that an unusable seed aborts before any fetch.
func TestGeneratorFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seed    string
		cfg     func(*config.Config)
		wantErr error
	}{
		{name: "malformed seed", seed: "://broken", wantErr: ErrInvalidSeed},
		{name: "relative seed", seed: "/about", wantErr: ErrInvalidSeed},
		{name: "unsupported scheme", seed: "ftp://example.com/", wantErr: ErrInvalidSeed},
		{
			name:    "seed rejected by ignore",
			seed:    "https://example.com/",
			cfg:     func(c *config.Config) { c.Ignore = func(string) bool { return true } },
			wantErr: ErrSeedRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(cfg)
			}
			fetcher := newFakeFetcher(sitePages())
			gen := NewGenerator(cfg, fetcher, WithLogger(quietLogger()))

			signals := 0
			gen.OnFetchComplete(func(*model.URLItem) { signals++ })
			gen.OnFetchError(func(*model.QueueEntry, *model.ResponseMeta, error) { signals++ })
			gen.OnComplete(func(*sitemap.Output, []model.URLItem) { signals++ })

			result, err := gen.Run(t.Context(), tt.seed)
			if result != nil {
				t.Error("expected no result")
			}

			var fatal *FatalError
			if !errors.As(err, &fatal) {
				t.Fatalf("expected *FatalError, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if gen.State() != StateFatal {
				t.Errorf("expected fatal state, got %s", gen.State())
			}
			if signals != 0 {
				t.Errorf("expected no signals, got %d", signals)
			}
			if n := len(fetcher.fetched()); n != 0 {
				t.Errorf("expected no fetches, got %d", n)
			}
		})
	}

	t.Run("nil fetcher", func(t *testing.T) {
		t.Parallel()
		_, err := NewGenerator(testConfig(), nil).Run(t.Context(), "https://example.com/")
		if !errors.Is(err, ErrNilFetcher) {
			t.Errorf("expected ErrNilFetcher, got %v", err)
		}
	})
}

// TestGeneratorRunOnce tests that a Generator cannot be reused.
func TestGeneratorRunOnce(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(testConfig(), newFakeFetcher(sitePages()), WithLogger(quietLogger()))
	if _, err := gen.Run(t.Context(), "https://example.com/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gen.Run(t.Context(), "https://example.com/"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	if !gen.State().IsTerminal() {
		t.Errorf("expected terminal state, got %s", gen.State())
	}
	gen.setState(StateRunning)
	if gen.State() != StateCompleted {
		t.Errorf("expected state to stay completed, got %s", gen.State())
	}
}

// TestGeneratorFrontierConcurrentRead tests that the frontier can be observed
// from another goroutine while a crawl runs.
func TestGeneratorFrontierConcurrentRead(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(testConfig(), newFakeFetcher(widePages(5)), WithLogger(quietLogger()))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if f := gen.Frontier(); f != nil {
				_ = f.Stats()
			}
		}
	}()

	_, err := gen.Run(t.Context(), "https://example.com/")
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Frontier() == nil || !gen.Frontier().IsComplete() {
		t.Error("expected a complete frontier after Run")
	}
}

// widePages returns a seed linking to n leaf pages.
func widePages(n int) map[string]page {
	var b strings.Builder
	pages := make(map[string]page, n+1)
	for i := range n {
		fmt.Fprintf(&b, `<a href="/p%d">p</a>`, i)
		pages[fmt.Sprintf("https://example.com/p%d", i)] = page{body: "<p>leaf</p>"}
	}
	pages["https://example.com/"] = page{body: b.String()}
	return pages
}

// TestGeneratorConcurrencyCap tests that in-flight fetches never exceed MaxConcurrency.
func TestGeneratorConcurrencyCap(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxConcurrency = 3

	fetcher := newFakeFetcher(widePages(20))
	fetcher.delay = 5 * time.Millisecond

	result, err := NewGenerator(cfg, fetcher, WithLogger(quietLogger())).Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Run.Items) != 21 {
		t.Errorf("expected 21 items, got %d", len(result.Run.Items))
	}
	fetcher.mu.Lock()
	maxSeen := fetcher.maxInFlight
	fetcher.mu.Unlock()
	if maxSeen > 3 {
		t.Errorf("expected at most 3 concurrent fetches, got %d", maxSeen)
	}
	if maxSeen < 2 {
		t.Errorf("expected fetches to run concurrently, got max %d", maxSeen)
	}
}

// TestGeneratorPacing tests the global interval between dispatches.
func TestGeneratorPacing(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	cfg.MaxConcurrency = 5

	start := time.Now()
	result, err := NewGenerator(cfg, newFakeFetcher(widePages(4)), WithLogger(quietLogger())).Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	// 5 dispatches with a burst of one need at least 4 intervals.
	if elapsed < 4*cfg.Interval {
		t.Errorf("expected at least %v, took %v", 4*cfg.Interval, elapsed)
	}
	if len(result.Run.Items) != 5 {
		t.Errorf("expected 5 items, got %d", len(result.Run.Items))
	}
}

// TestGeneratorOverrides tests that fetch-complete handlers change items before storage.
func TestGeneratorOverrides(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(testConfig(), newFakeFetcher(sitePages()), WithLogger(quietLogger()))
	gen.OnFetchComplete(func(item *model.URLItem) {
		switch item.Loc {
		case "https://example.com/":
			item.Priority = model.NewPriority(1.7)
			item.ChangeFreq = model.ChangeFreqDaily
		case "https://example.com/about":
			item.Priority = model.NewPriority(0)
		case "https://example.com/about/team":
			item.Priority = model.Priority{}
			item.ChangeFreq = "fortnightly"
		case "https://example.com/private":
			item.Priority = model.NewPriority(math.NaN())
		}
	})

	result, err := gen.Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := locs(result.Run.Items)

	if p := items["https://example.com/"].Priority; !p.Valid || p.Value != 1 {
		t.Errorf("expected clamped priority 1, got %+v", p)
	}
	if p := items["https://example.com/about"].Priority; !p.Valid || p.Value != 0 {
		t.Errorf("expected priority 0, got %+v", p)
	}
	team := items["https://example.com/about/team"]
	if team.Priority.Valid {
		t.Errorf("expected absent priority, got %+v", team.Priority)
	}
	if team.ChangeFreq != "" {
		t.Errorf("expected invalid changefreq to be dropped, got %q", team.ChangeFreq)
	}
	if p := items["https://example.com/private"].Priority; p.Valid {
		t.Errorf("expected NaN priority to be dropped, got %+v", p)
	}

	doc := result.Output.Documents[0]
	if !strings.Contains(doc, "<priority>0</priority>") {
		t.Error("expected priority 0 in sitemap")
	}
	if !strings.Contains(doc, "<changefreq>daily</changefreq>") {
		t.Error("expected overridden changefreq in sitemap")
	}
	if strings.Count(doc, "<priority>") != 2 {
		t.Errorf("expected 2 priorities in sitemap, got %d", strings.Count(doc, "<priority>"))
	}
}

// TestGeneratorDefaults tests that items carry the configured defaults.
func TestGeneratorDefaults(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ChangeFreq = model.ChangeFreqMonthly
	cfg.Priority = model.NewPriority(0.3)

	result, err := NewGenerator(cfg, newFakeFetcher(widePages(1)), WithLogger(quietLogger())).Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, item := range result.Run.Items {
		if item.ChangeFreq != model.ChangeFreqMonthly || item.Priority.Value != 0.3 {
			t.Errorf("expected defaults on %s, got %q %v", item.Loc, item.ChangeFreq, item.Priority)
		}
	}
}

// TestGeneratorErrorKinds tests the classification of fetch failures.
func TestGeneratorErrorKinds(t *testing.T) {
	t.Parallel()

	pages := map[string]page{
		"https://example.com/": {body: `<a href="/down">d</a><a href="/gone">g</a><a href="/garbled">x</a>`},
		"https://example.com/down": {err: errors.New("connection refused")},
		"https://example.com/gone": {status: http.StatusInternalServerError},
		"https://example.com/garbled": {
			body:   "<p>x</p>",
			header: http.Header{"Content-Type": []string{"text/html; charset=klingon"}},
		},
	}

	gen := NewGenerator(testConfig(), newFakeFetcher(pages), WithLogger(quietLogger()))
	got := make(map[string]error)
	gen.OnFetchError(func(entry *model.QueueEntry, _ *model.ResponseMeta, err error) {
		got[entry.URL] = err
	})

	result, err := gen.Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var transportErr *TransportError
	if !errors.As(got["https://example.com/down"], &transportErr) {
		t.Errorf("expected *TransportError, got %v", got["https://example.com/down"])
	}
	var statusErr *StatusError
	if !errors.As(got["https://example.com/gone"], &statusErr) || statusErr.StatusCode != 500 {
		t.Errorf("expected *StatusError 500, got %v", got["https://example.com/gone"])
	}
	var dataErr *DataError
	if !errors.As(got["https://example.com/garbled"], &dataErr) {
		t.Errorf("expected *DataError, got %v", got["https://example.com/garbled"])
	}

	counts := result.Run.FailureCounts()
	if counts[model.FailureTransport] != 1 || counts[model.FailureStatus] != 1 || counts[model.FailureData] != 1 {
		t.Errorf("unexpected failure counts: %v", counts)
	}
	if result.Output.Entries() != 1 {
		t.Errorf("expected only the seed in the sitemap, got %d", result.Output.Entries())
	}
}

// TestGeneratorUndecodableBody tests that a body the fetcher could not
// decode is a data failure with the response metadata kept.
func TestGeneratorUndecodableBody(t *testing.T) {
	t.Parallel()

	htmlHeader := func() http.Header {
		return http.Header{"Content-Type": []string{"text/html"}}
	}
	fetcher := FetcherFunc(func(_ context.Context, url string) (*Response, error) {
		switch url {
		case "https://example.com/":
			return &Response{
				StatusCode: http.StatusOK,
				Header:     htmlHeader(),
				Body:       []byte(`<a href="/corrupt">c</a><a href="/moved">m</a>`),
			}, nil
		case "https://example.com/corrupt":
			return &Response{StatusCode: http.StatusOK, Header: htmlHeader()},
				fmt.Errorf("%w: flate: corrupt input", ErrUndecodableBody)
		case "https://example.com/moved":
			header := htmlHeader()
			header.Set("Location", "/target")
			return &Response{StatusCode: http.StatusFound, Header: header},
				fmt.Errorf("%w: flate: corrupt input", ErrUndecodableBody)
		default:
			return &Response{StatusCode: http.StatusOK, Header: htmlHeader(), Body: []byte(`<p>ok</p>`)}, nil
		}
	})

	gen := NewGenerator(testConfig(), fetcher, WithLogger(quietLogger()))
	metas := make(map[string]model.ResponseMeta)
	errs := make(map[string]error)
	gen.OnFetchError(func(entry *model.QueueEntry, meta *model.ResponseMeta, err error) {
		metas[entry.URL] = *meta
		errs[entry.URL] = err
	})

	result, err := gen.Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var dataErr *DataError
	if !errors.As(errs["https://example.com/corrupt"], &dataErr) {
		t.Errorf("expected *DataError, got %v", errs["https://example.com/corrupt"])
	}
	if !errors.Is(errs["https://example.com/corrupt"], ErrUndecodableBody) {
		t.Errorf("expected ErrUndecodableBody in chain, got %v", errs["https://example.com/corrupt"])
	}
	if got := metas["https://example.com/corrupt"].StatusCode; got != http.StatusOK {
		t.Errorf("expected status 200 in metadata, got %d", got)
	}
	if _, ok := errs["https://example.com/moved"]; ok {
		t.Errorf("expected redirect with an undecodable body to be followed, got %v", errs["https://example.com/moved"])
	}
	if _, ok := locs(result.Run.Items)["https://example.com/target"]; !ok {
		t.Errorf("expected redirect target to be fetched, got %v", result.Run.SortedLocs())
	}
	if counts := result.Run.FailureCounts(); counts[model.FailureData] != 1 || counts[model.FailureTransport] != 0 {
		t.Errorf("unexpected failure counts: %v", counts)
	}
}

// TestGeneratorRedirect tests that redirect targets are enqueued and the
// redirecting URL produces no item.
func TestGeneratorRedirect(t *testing.T) {
	t.Parallel()

	pages := map[string]page{
		"https://example.com/": {body: `<a href="/old">old</a>`},
		"https://example.com/old": {
			status: http.StatusMovedPermanently,
			header: http.Header{"Location": []string{"/new"}},
		},
		"https://example.com/new": {body: `<p>new</p>`},
	}

	result, err := NewGenerator(testConfig(), newFakeFetcher(pages), WithLogger(quietLogger())).Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := locs(result.Run.Items)
	if _, ok := items["https://example.com/old"]; ok {
		t.Error("expected no item for the redirecting URL")
	}
	newItem, ok := items["https://example.com/new"]
	if !ok {
		t.Fatal("expected redirect target to be fetched")
	}
	if newItem.Depth != 2 {
		t.Errorf("expected redirect target depth 2, got %d", newItem.Depth)
	}
	if len(result.Run.Failures) != 0 {
		t.Errorf("expected no failures, got %+v", result.Run.Failures)
	}
}

// TestGeneratorMaxDepth tests that links beyond MaxDepth are not fetched.
func TestGeneratorMaxDepth(t *testing.T) {
	t.Parallel()

	pages := map[string]page{
		"https://example.com/":  {body: `<a href="/1">1</a>`},
		"https://example.com/1": {body: `<a href="/2">2</a>`},
		"https://example.com/2": {body: `<a href="/3">3</a>`},
		"https://example.com/3": {body: `<p>3</p>`},
	}

	cfg := testConfig()
	cfg.MaxDepth = 2
	fetcher := newFakeFetcher(pages)

	result, err := NewGenerator(cfg, fetcher, WithLogger(quietLogger())).Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Run.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(result.Run.Items))
	}
	for _, item := range result.Run.Items {
		if item.Depth > cfg.MaxDepth {
			t.Errorf("expected depth <= %d, got %d for %s", cfg.MaxDepth, item.Depth, item.Loc)
		}
	}
	if result.Run.Stats.Rejected["depth"] != 1 {
		t.Errorf("expected 1 depth rejection, got %v", result.Run.Stats.Rejected)
	}
}

// TestGeneratorPagination tests that the sitemap is split at MaxEntriesPerFile.
func TestGeneratorPagination(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxEntriesPerFile = 4

	result, err := NewGenerator(cfg, newFakeFetcher(widePages(9)), WithLogger(quietLogger())).Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output.Len() != 3 {
		t.Fatalf("expected 3 documents, got %d", result.Output.Len())
	}
	for i, doc := range result.Output.Documents {
		if n := strings.Count(doc, "<url>"); n > cfg.MaxEntriesPerFile {
			t.Errorf("document %d has %d entries", i, n)
		}
	}
	if result.Run.SitemapDocuments != 3 {
		t.Errorf("expected run to record 3 documents, got %d", result.Run.SitemapDocuments)
	}
}

// TestGeneratorIgnorePanic tests that a panicking ignore predicate only
// rejects the URL being evaluated.
func TestGeneratorIgnorePanic(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Ignore = func(u string) bool {
		if strings.HasSuffix(u, "/p1") {
			panic("bad predicate")
		}
		return false
	}

	result, err := NewGenerator(cfg, newFakeFetcher(widePages(3)), WithLogger(quietLogger())).Run(t.Context(), "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := locs(result.Run.Items)
	if _, ok := items["https://example.com/p1"]; ok {
		t.Error("expected /p1 to be rejected")
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
}

// TestGeneratorCancel tests cancellation while fetches are in flight.
func TestGeneratorCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	fetcher := newFakeFetcher(widePages(10))
	fetcher.delay = time.Second

	gen := NewGenerator(testConfig(), fetcher, WithLogger(quietLogger()))
	completed := false
	gen.OnComplete(func(*sitemap.Output, []model.URLItem) { completed = true })

	time.AfterFunc(20*time.Millisecond, cancel)

	result, err := gen.Run(ctx, "https://example.com/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.State() != StateCancelled {
		t.Errorf("expected cancelled state, got %s", gen.State())
	}
	if completed {
		t.Error("expected OnComplete not to fire")
	}
	if result == nil || result.Run.State != "cancelled" {
		t.Errorf("expected partial cancelled run, got %+v", result)
	}
	if gen.Frontier().InFlight() != 0 {
		t.Errorf("expected in-flight fetches to be drained, got %d", gen.Frontier().InFlight())
	}
}

// TestGeneratorDeadlineBeforeNextToken tests a deadline that falls before
// the next pacing token: the run keeps going until the deadline passes and
// undispatched entries stay queued instead of being counted as errors.
func TestGeneratorDeadlineBeforeNextToken(t *testing.T) {
	t.Parallel()

	const timeout = 150 * time.Millisecond
	ctx, cancel := context.WithTimeout(t.Context(), timeout)
	defer cancel()

	cfg := testConfig()
	cfg.Interval = time.Hour

	gen := NewGenerator(cfg, newFakeFetcher(widePages(3)), WithLogger(quietLogger()))
	start := time.Now()
	result, err := gen.Run(ctx, "https://example.com/")
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed < timeout-20*time.Millisecond {
		t.Errorf("expected run to last until the deadline, returned after %v", elapsed)
	}
	if gen.State() != StateCancelled {
		t.Errorf("expected cancelled state, got %s", gen.State())
	}
	if len(result.Run.Items) != 1 {
		t.Errorf("expected the seed to be stored, got %d items", len(result.Run.Items))
	}
	stats := result.Run.Stats
	if stats.Errored != len(result.Run.Failures) {
		t.Errorf("expected errored count %d to match failures %d", stats.Errored, len(result.Run.Failures))
	}
	if stats.Queued != 3 {
		t.Errorf("expected 3 entries left queued, got %d", stats.Queued)
	}
}

// TestGeneratorHTTP crawls a real HTTP server with basepath restriction.
func TestGeneratorHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/about">About</a><a href="http://other.test/">Other</a>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<p>about</p>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := server.Client()
	fetcher := FetcherFunc(func(ctx context.Context, url string) (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	})

	cfg := testConfig()
	cfg.RestrictToBasepath = true

	gen := NewGenerator(cfg, fetcher, WithLogger(quietLogger()))
	result, err := gen.Run(t.Context(), server.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items := locs(result.Run.Items)
	if _, ok := items[server.URL+"/about"]; !ok {
		t.Errorf("expected %s/about to be crawled, got %v", server.URL, result.Run.SortedLocs())
	}
	if gen.Frontier().Known("http://other.test/") {
		t.Error("expected external link to be rejected")
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}
