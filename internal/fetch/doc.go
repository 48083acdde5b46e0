// Package fetch provides the HTTP fetcher used by the crawl engine.
//
// A Client is built once per crawl run. It owns its own transport and TLS
// configuration, so skipping certificate verification for one run never
// affects another run in the same process.
//
// Redirects are never followed by the HTTP client. The crawl engine sees the
// 3xx response and enqueues the Location target itself, which keeps redirect
// targets subject to the same admission rules as ordinary links.
//
// Responses compressed with gzip, deflate or brotli are decoded before the
// body size limit is applied.
//
// Requests can optionally be routed through a SOCKS5 proxy, either an
// external one given by address or the embedded Tor daemon from the tor
// package.
package fetch
