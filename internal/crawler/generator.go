package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/frontier"
	"github.com/nao1215/sitemapgen/internal/log"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/sitemap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Handler types for the Generator's subscription points.
type (
	// FetchCompleteHandler receives every successfully fetched item before
	// it is stored. It may change the item's ChangeFreq and Priority.
	FetchCompleteHandler func(item *model.URLItem)

	// FetchErrorHandler receives every failed entry with the response
	// metadata (StatusCode 0 for transport failures) and the classified error.
	FetchErrorHandler func(entry *model.QueueEntry, meta *model.ResponseMeta, err error)

	// CompleteHandler receives the built sitemap and all fetched items,
	// including non-indexable ones. It is called exactly once per completed run.
	CompleteHandler func(out *sitemap.Output, items []model.URLItem)
)

// Result is what Run returns for a completed crawl.
type Result struct {
	// Run is the crawl summary.
	Run *model.CrawlRun

	// Output holds the serialized sitemap documents.
	Output *sitemap.Output
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Generator is the crawl state machine. It ties the frontier, the fetcher,
// the link extractor and the sitemap assembler together.
// A Generator runs once; create a new one per crawl.
type Generator struct {
	cfg     *config.Config
	fetcher Fetcher
	logger  *slog.Logger

	onFetchComplete []FetchCompleteHandler
	onFetchError    []FetchErrorHandler
	onComplete      []CompleteHandler

	mu    sync.Mutex
	state State

	// frontier is written under mu once Run starts; the coordinating
	// goroutine reads it without locking.
	frontier *frontier.Frontier

	// The fields below are owned by the coordinating goroutine in Run.
	assembler *sitemap.Assembler
	failures  []model.FetchFailure
}

// NewGenerator creates a Generator. A nil cfg uses config.NewConfig().
func NewGenerator(cfg *config.Config, fetcher Fetcher, opts ...Option) *Generator {
	if cfg == nil {
		cfg = config.NewConfig()
	}

	g := &Generator{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  slog.Default(),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnFetchComplete registers a handler for fetched items.
func (g *Generator) OnFetchComplete(h FetchCompleteHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onFetchComplete = append(g.onFetchComplete, h)
}

// OnFetchError registers a handler for failed fetches.
func (g *Generator) OnFetchError(h FetchErrorHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onFetchError = append(g.onFetchError, h)
}

// OnComplete registers a handler for crawl completion.
func (g *Generator) OnComplete(h CompleteHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onComplete = append(g.onComplete, h)
}

// State returns the current lifecycle state.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// setState moves the generator to s. A terminal state is never left.
func (g *Generator) setState(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.IsTerminal() {
		return
	}
	g.state = s
}

// Frontier returns the frontier of the run, or nil before Run.
func (g *Generator) Frontier() *frontier.Frontier {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frontier
}

// Run crawls from seed until the frontier drains and returns the result.
//
// A seed that cannot be crawled yields a *FatalError before any fetch
// starts; no handler is called. When ctx is cancelled, in-flight fetches are
// drained, the state becomes Cancelled and ctx.Err() is returned together
// with the partial result; OnComplete is not called.
func (g *Generator) Run(ctx context.Context, seed string) (*Result, error) {
	g.mu.Lock()
	if g.state != StateIdle {
		g.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	g.mu.Unlock()

	if err := g.init(seed); err != nil {
		g.setState(StateFatal)
		return nil, err
	}

	run := &model.CrawlRun{
		ID:        uuid.NewString(),
		Seed:      g.frontier.Seed(),
		StartedAt: time.Now(),
	}
	g.setState(StateRunning)
	g.logger.Debug("crawl started", "url", run.Seed, "run_id", run.ID)

	err := g.dispatchLoop(ctx)

	run.FinishedAt = time.Now()
	run.Items = g.assembler.Items()
	run.Failures = append([]model.FetchFailure(nil), g.failures...)
	run.Stats = g.frontier.Stats()

	if err != nil {
		g.setState(StateCancelled)
		run.State = StateCancelled.String()
		run.Error = err.Error()
		g.logger.Warn("crawl cancelled", "url", run.Seed, "fetched", g.assembler.Len(), "error", err)
		return &Result{Run: run}, err
	}

	out, err := g.assembler.Build()
	if err != nil {
		g.setState(StateFatal)
		run.State = StateFatal.String()
		run.Error = err.Error()
		return &Result{Run: run}, err
	}

	g.setState(StateCompleted)
	run.State = StateCompleted.String()
	run.SitemapDocuments = out.Len()

	g.logger.Debug("crawl completed",
		"url", run.Seed,
		"items", len(run.Items),
		"failures", len(run.Failures),
		"documents", out.Len(),
		"duration", run.Duration(),
	)

	for _, h := range g.completeHandlers() {
		h(out, append([]model.URLItem(nil), run.Items...))
	}

	return &Result{Run: run, Output: out}, nil
}

// init validates the seed and prepares the frontier and assembler.
func (g *Generator) init(seed string) error {
	if g.fetcher == nil {
		return &FatalError{Seed: seed, Err: ErrNilFetcher}
	}

	f, err := frontier.New(seed,
		frontier.WithStripQuerystring(g.cfg.StripQuerystring),
		frontier.WithRestrictToBasepath(g.cfg.RestrictToBasepath),
		frontier.WithMaxDepth(g.cfg.MaxDepth),
		frontier.WithMaxConcurrency(g.maxConcurrency()),
		frontier.WithExclude(g.cfg.Exclude),
		frontier.WithExcludePaths(g.cfg.ExcludePaths),
		frontier.WithIgnore(g.cfg.IsIgnored),
	)
	if err != nil {
		return &FatalError{Seed: seed, Err: err}
	}

	adm, err := f.Enqueue(f.Seed(), "", 0)
	if err != nil {
		return &FatalError{Seed: seed, Err: fmt.Errorf("%w: %w", ErrSeedRejected, err)}
	}
	if !adm.Admitted() {
		return &FatalError{Seed: seed, Err: fmt.Errorf("%w: %s", ErrSeedRejected, adm.Reason)}
	}

	g.mu.Lock()
	g.frontier = f
	g.mu.Unlock()
	g.assembler = sitemap.NewAssembler(g.cfg.MaxEntriesPerFile)
	return nil
}

func (g *Generator) maxConcurrency() int {
	if g.cfg.MaxConcurrency <= 0 {
		return config.DefaultMaxConcurrency
	}
	return g.cfg.MaxConcurrency
}

// limiter builds the global pacing gate: one dispatch per Interval.
func (g *Generator) limiter() *rate.Limiter {
	if g.cfg.Interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(g.cfg.Interval), 1)
}

// dispatchLoop is the coordinating loop. It returns nil when the frontier
// drains and ctx.Err() when cancelled.
//
// The results channel is buffered to the concurrency cap. An entry stays in
// flight until its outcome is handled here, so buffered outcomes plus running
// fetches never exceed the cap and a fetch goroutine never blocks on send.
func (g *Generator) dispatchLoop(ctx context.Context) error {
	maxConc := g.maxConcurrency()
	results := make(chan outcome, maxConc)
	limiter := g.limiter()

	var eg errgroup.Group
	eg.SetLimit(maxConc)

	for {
		if err := ctx.Err(); err != nil {
			g.drain(&eg, results)
			return err
		}

		if err := g.dispatch(ctx, &eg, limiter, results, maxConc); err != nil {
			if ctx.Err() == nil {
				// The next pacing token falls after the deadline: keep
				// handling in-flight fetches until it passes.
				g.awaitDone(ctx, results)
			}
			g.drain(&eg, results)
			return ctx.Err()
		}

		if g.frontier.IsComplete() {
			_ = eg.Wait()
			return nil
		}

		select {
		case o := <-results:
			g.handle(o)
		case <-ctx.Done():
			g.drain(&eg, results)
			return ctx.Err()
		}
	}
}

// dispatch starts fetches for queued entries up to the concurrency cap,
// waiting on the pacing gate before each one. Entries leave the queue only
// once their token is granted, so a failed wait leaves them queued.
func (g *Generator) dispatch(ctx context.Context, eg *errgroup.Group, limiter *rate.Limiter, results chan<- outcome, maxConc int) error {
	for g.frontier.Pending() > 0 && g.frontier.InFlight() < maxConc {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		entries := g.frontier.Dequeue(1)
		if len(entries) == 0 {
			return nil
		}
		entry := entries[0]

		g.logger.Debug("dispatching fetch", "url", entry.URL, "depth", entry.Depth)
		eg.Go(func() error {
			results <- g.fetchOne(ctx, entry)
			return nil
		})
	}
	return nil
}

// awaitDone handles outcomes without dispatching until ctx is done.
func (g *Generator) awaitDone(ctx context.Context, results <-chan outcome) {
	for {
		select {
		case o := <-results:
			g.handle(o)
		case <-ctx.Done():
			return
		}
	}
}

// drain waits for in-flight fetches after cancellation and settles their
// entries without emitting signals.
func (g *Generator) drain(eg *errgroup.Group, results chan outcome) {
	_ = eg.Wait()
	for {
		select {
		case o := <-results:
			_ = g.frontier.MarkErrored(o.entry.URL)
		default:
			return
		}
	}
}

// outcome is the result of one fetch, computed on a fetch goroutine and
// applied on the coordinating goroutine.
type outcome struct {
	entry    model.QueueEntry
	meta     model.ResponseMeta
	item     *model.URLItem
	links    []string
	redirect string
	err      error
}

// fetchOne performs the fetch and classifies the response. It does not
// touch shared state.
func (g *Generator) fetchOne(ctx context.Context, entry model.QueueEntry) outcome {
	o := outcome{entry: entry}

	resp, err := g.fetcher.Fetch(ctx, entry.URL)
	var bodyErr error
	switch {
	case err == nil && resp == nil:
		err = errNoResponse
	case err != nil && resp != nil && errors.Is(err, ErrUndecodableBody):
		bodyErr, err = err, nil
	}
	if err != nil {
		o.err = &TransportError{URL: entry.URL, Err: err}
		return o
	}

	contentType := resp.Header.Get("Content-Type")
	o.meta = model.ResponseMeta{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: mediaType(contentType),
	}

	switch {
	case resp.StatusCode >= http.StatusBadRequest:
		o.err = &StatusError{URL: entry.URL, StatusCode: resp.StatusCode}
		return o
	case resp.StatusCode >= http.StatusMultipleChoices:
		o.redirect = resp.Header.Get("Location")
		return o
	}
	if bodyErr != nil {
		o.err = &DataError{URL: entry.URL, Err: bodyErr}
		return o
	}

	indexable := true
	if isHTML(contentType) {
		source, err := url.Parse(entry.URL)
		if resp.FinalURL != "" {
			source, err = url.Parse(resp.FinalURL)
		}
		if err != nil {
			o.err = &DataError{URL: entry.URL, Err: err}
			return o
		}

		text, err := DecodeBody(resp.Body, contentType)
		if err != nil {
			o.err = &DataError{URL: entry.URL, Err: err}
			return o
		}

		links, err := ExtractLinks(text, source)
		if err != nil {
			o.err = &DataError{URL: entry.URL, Err: err}
			return o
		}
		indexable = links.Indexable
		o.links = links.URLs
	}

	item := &model.URLItem{
		Loc:        entry.URL,
		ChangeFreq: g.cfg.ChangeFreq,
		Priority:   g.cfg.Priority,
		Indexable:  indexable,
		Depth:      entry.Depth,
		Response:   o.meta,
	}
	if date := resp.Header.Get("Date"); date != "" {
		if t, err := http.ParseTime(date); err == nil {
			item.LastMod = &t
		}
	}
	o.item = item

	return o
}

// handle applies an outcome: frontier first, then the signal, then storage.
func (g *Generator) handle(o outcome) {
	if o.err != nil {
		g.handleError(o)
		return
	}

	if err := g.frontier.MarkFetched(o.entry.URL); err != nil {
		g.logger.Error("inconsistent frontier state", "url", o.entry.URL, "error", err)
	}
	o.entry.State = model.EntryFetched

	if o.redirect != "" {
		g.logger.Debug("following redirect", "url", o.entry.URL, "location", o.redirect, "status", o.meta.StatusCode)
		g.enqueue(o.redirect, o.entry)
	}
	for _, link := range o.links {
		g.enqueue(link, o.entry)
	}

	if o.item == nil {
		return
	}

	for _, h := range g.fetchCompleteHandlers() {
		h(o.item)
	}
	g.sanitizeItem(o.item)

	g.assembler.Add(*o.item)

	g.logger.Debug("fetched",
		"url", o.item.Loc,
		"status", o.meta.StatusCode,
		"indexable", o.item.Indexable,
		"links", len(o.links),
	)
}

func (g *Generator) handleError(o outcome) {
	if err := g.frontier.MarkErrored(o.entry.URL); err != nil {
		g.logger.Error("inconsistent frontier state", "url", o.entry.URL, "error", err)
	}
	o.entry.State = model.EntryErrored

	failure := model.FetchFailure{
		URL:        o.entry.URL,
		Referrer:   o.entry.Referrer,
		StatusCode: o.meta.StatusCode,
		Message:    o.err.Error(),
	}
	var (
		statusErr *StatusError
		dataErr   *DataError
	)
	switch {
	case errors.As(o.err, &statusErr):
		failure.Kind = model.FailureStatus
	case errors.As(o.err, &dataErr):
		failure.Kind = model.FailureData
	default:
		failure.Kind = model.FailureTransport
	}
	g.failures = append(g.failures, failure)

	g.logger.Warn("fetch failed",
		"url", o.entry.URL,
		"referrer", o.entry.Referrer,
		"kind", failure.Kind,
		"status", o.meta.StatusCode,
		"error", o.err,
		log.HeaderAttr("headers", o.meta.Header),
	)

	meta := o.meta
	for _, h := range g.fetchErrorHandlers() {
		h(&o.entry, &meta, o.err)
	}
}

// enqueue offers a discovered URL to the frontier at the next depth.
func (g *Generator) enqueue(rawURL string, from model.QueueEntry) {
	adm, err := g.frontier.Enqueue(rawURL, from.URL, from.Depth+1)
	if err != nil {
		g.logger.Warn("admission predicate failed", "url", rawURL, "referrer", from.URL, "error", err)
		return
	}
	if !adm.Admitted() && adm.Reason != frontier.RejectDuplicate {
		g.logger.Debug("rejected", "url", rawURL, "reason", adm.Reason)
	}
}

// sanitizeItem keeps handler overrides within the sitemap protocol.
// Out-of-range priorities are clamped; NaN priorities and unknown
// changefreqs are dropped.
func (g *Generator) sanitizeItem(item *model.URLItem) {
	if err := item.Priority.Validate(); err != nil {
		clamped := item.Priority.Clamp()
		if clamped.Valid {
			g.logger.Warn("priority out of range, clamping",
				"url", item.Loc, "priority", item.Priority.Value, "clamped", clamped.Value)
		} else {
			g.logger.Warn("priority is not a number, omitting", "url", item.Loc)
		}
		item.Priority = clamped
	}
	if item.ChangeFreq != "" && !item.ChangeFreq.IsValid() {
		g.logger.Warn("invalid changefreq, omitting", "url", item.Loc, "changefreq", string(item.ChangeFreq))
		item.ChangeFreq = ""
	}
}

func (g *Generator) fetchCompleteHandlers() []FetchCompleteHandler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]FetchCompleteHandler(nil), g.onFetchComplete...)
}

func (g *Generator) fetchErrorHandlers() []FetchErrorHandler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]FetchErrorHandler(nil), g.onFetchError...)
}

func (g *Generator) completeHandlers() []CompleteHandler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]CompleteHandler(nil), g.onComplete...)
}
