// Package main provides the entry point for the sitemapgen CLI.
//
// sitemapgen crawls a website from one or more seed URLs and writes a
// sitemaps.org XML sitemap of every indexable page it finds.
//
// Usage:
//
//	sitemapgen crawl https://example.com/
//	sitemapgen crawl -o out/sitemap.xml https://a.example/ https://b.example/
//	sitemapgen diff https://example.com/
//
// See --help for all available options.
package main

// main is the entry point for sitemapgen.
func main() {
	Execute()
}
