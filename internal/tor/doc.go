// Package tor lets sitemapgen crawl onion services.
//
// It has two parts. EmbeddedTor starts and stops a Tor daemon through
// tornago, so the crawler can route requests through its SOCKS5 port
// without a system Tor installation. The onion helpers validate .onion
// hosts given as crawl seeds, including the v3 address checksum, so a
// mistyped address fails before the daemon spends minutes bootstrapping.
//
// The HTTP client that uses the SOCKS5 port lives in the fetch package.
package tor
