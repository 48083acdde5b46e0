// Package database provides SQLite-based crawl history for sitemapgen.
//
// Each finished crawl is stored as one row in the runs table, holding the
// full CrawlRun as JSON, and one row per fetched page in the pages table.
// The history powers `sitemapgen diff`, which reports the URLs that
// appeared or disappeared between two crawls of the same seed.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. The database is a single file in the XDG data directory
// 2. The CGO-free driver keeps cross-compilation trivial
// 3. Set differences between runs are a single SQL EXCEPT query
package database
