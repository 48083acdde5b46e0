// Package frontier implements the crawl frontier: the URL queue, the dedup
// set, per-URL crawl state and the admission rules that decide which
// discovered URLs are crawled at all.
//
// A Frontier is safe for concurrent use. Every state mutation happens under a
// single mutex so that the no-duplicate and completion invariants hold even
// when fetches finish on separate goroutines.
package frontier
