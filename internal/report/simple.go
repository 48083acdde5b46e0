package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitemapgen/internal/model"
)

// defaultMaxFailures is the number of failures listed when not verbose.
const defaultMaxFailures = 10

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because the report is often piped to a file next to the
// sitemap it describes.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to report are shown.
	showEmpty bool

	// verbose lists every failure instead of the first few.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report for run in human-readable format.
func (w *SimpleWriter) Write(run *model.CrawlRun) (int, error) {
	return w.WriteSummary(NewSummary(run))
}

// WriteSummary outputs summary in human-readable format.
func (w *SimpleWriter) WriteSummary(summary *Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounts(&sb, summary)
	w.writeRejected(&sb, summary)
	w.writeFailures(&sb, summary)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       SITEMAPGEN CRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Seed:       %s\n", s.Seed))
	sb.WriteString(fmt.Sprintf("Run ID:     %s\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Started:    %s\n", s.StartedAt.Format(dateLayout)))
	sb.WriteString(fmt.Sprintf("Duration:   %.1fs\n", s.DurationSeconds))

	switch {
	case s.Completed():
		sb.WriteString("Status:     Complete\n")
	case s.Error != "":
		sb.WriteString(fmt.Sprintf("Status:     %s - %s\n", strings.ToUpper(s.State), s.Error))
	default:
		sb.WriteString(fmt.Sprintf("Status:     %s (partial results)\n", strings.ToUpper(s.State)))
	}
	sb.WriteString("\n")
}

// writeCounts writes the page and sitemap counts.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, s *Summary) {
	writeSection(sb, "PAGES")

	sb.WriteString(fmt.Sprintf("  FETCHED:    %d\n", s.PagesFetched))
	sb.WriteString(fmt.Sprintf("  INDEXABLE:  %d\n", s.Indexable))
	sb.WriteString(fmt.Sprintf("  NOINDEX:    %d\n", s.NoIndex))
	sb.WriteString(fmt.Sprintf("  FAILED:     %d (transport %d, status %d, data %d)\n",
		s.TotalFailures(), s.TransportFailures, s.StatusFailures, s.DataFailures))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  SITEMAP DOCUMENTS: %d\n", s.SitemapDocuments))
	for _, file := range s.SitemapFiles {
		sb.WriteString(fmt.Sprintf("  [+] %s\n", file))
	}
	sb.WriteString("\n")
}

// writeRejected writes rejected candidate counts by reason.
func (w *SimpleWriter) writeRejected(sb *strings.Builder, s *Summary) {
	if len(s.Rejected) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "REJECTED LINKS")

	if len(s.Rejected) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, reason := range s.RejectReasons() {
		sb.WriteString(fmt.Sprintf("  %-14s %d\n", reason+":", s.Rejected[reason]))
	}
	sb.WriteString("\n")
}

// writeFailures lists failed fetches.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, s *Summary) {
	if !s.HasFailures() && !w.showEmpty {
		return
	}

	writeSection(sb, "FAILURES")

	if !s.HasFailures() {
		sb.WriteString("  No failures\n\n")
		return
	}

	failures := s.Failures
	if !w.verbose && len(failures) > defaultMaxFailures {
		failures = failures[:defaultMaxFailures]
	}
	for _, f := range failures {
		sb.WriteString(fmt.Sprintf("  [%s] %s\n", failureIndicator(f), f.URL))
		if w.verbose {
			if f.Referrer != "" {
				sb.WriteString(fmt.Sprintf("    Referrer: %s\n", f.Referrer))
			}
			sb.WriteString(fmt.Sprintf("    Error: %s\n", f.Message))
		}
	}
	if hidden := len(s.Failures) - len(failures); hidden > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more (use --verbose to list all)\n", hidden))
	}
	sb.WriteString("\n")
}

// failureIndicator returns a short label for a failure.
func failureIndicator(f model.FetchFailure) string {
	if f.Kind == model.FailureStatus && f.StatusCode != 0 {
		return fmt.Sprintf("%d", f.StatusCode)
	}
	return string(f.Kind)
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by sitemapgen\n")
	sb.WriteString("https://github.com/nao1215/sitemapgen\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
