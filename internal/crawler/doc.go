// Package crawler provides the crawl engine of sitemapgen.
//
// # Architecture
//
// The package is designed around the Generator type, an explicit state
// machine (Idle -> Running -> Completed | Fatal | Cancelled) that owns a
// frontier.Frontier, dispatches fetches through an injected Fetcher and hands
// fetched pages to a sitemap.Assembler.
//
// Design decision: A single coordinating goroutine owns all crawl state
// transitions. Fetch goroutines only perform network I/O and body parsing,
// then report back over a channel. This means:
//  1. Subscription handlers run synchronously and never race each other
//  2. Frontier state is always updated before a signal is emitted
//  3. Completion is detected in exactly one place
//
// # Components
//
//   - Generator: the crawl state machine and fetch coordinator
//   - ExtractLinks: pure link extraction from an HTML document
//   - DecodeBody: charset detection and decoding to UTF-8
//   - Fetcher: the network collaborator (see internal/fetch for HTTP)
//
// # Politeness
//
// The crawler is designed to be polite:
//   - A global pacing gate spaces out dispatches by Interval
//   - At most MaxConcurrency fetches are in flight
//   - Pages declaring <meta name="robots" content="nofollow"> are not followed
//   - rel="nofollow" anchors are skipped
//
// # Usage
//
//	gen := crawler.NewGenerator(cfg, fetcher, crawler.WithLogger(logger))
//	gen.OnFetchComplete(func(item *model.URLItem) { ... })
//	result, err := gen.Run(ctx, "https://example.com/")
package crawler
