// Package pipeline runs the per-seed work of a crawl in sequence and
// batches several seeds concurrently.
//
// A Job carries one seed through the steps: CrawlStep runs the crawl
// engine, WriteSitemapStep persists the sitemap files, SaveRunStep records
// the run in the history database and ReportStep renders a report. Each
// step receives the Job and adds its results to it.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. The CLI assembles only the steps a command line asks for
// 2. Error handling and logging are uniform across steps
// 3. It supports cancellation via context between steps
//
// BatchProcessor runs one fresh Pipeline per seed with errgroup, bounding
// the number of seeds crawled at the same time.
package pipeline
