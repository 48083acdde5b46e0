// Package model defines the core data structures used throughout sitemapgen.
//
// This package contains the following main types:
//   - URLItem: A successfully fetched page, the unit a sitemap is built from
//   - QueueEntry: A URL's tracked crawl state inside the frontier
//   - ResponseMeta: Status code and headers of a fetch response
//   - CrawlRun: The summary of one crawl, persisted and rendered as a report
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The frontier, crawler, sitemap, database and report packages
// all exchange these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
