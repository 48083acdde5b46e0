// Package report renders crawl run summaries.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with a mermaid pie chart of page outcomes
//
// Design decision: We separate report writing from the crawl data
// structures (which are in the model package) so new output formats never
// touch the crawler.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
