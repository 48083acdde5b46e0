package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitemapgen/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing, for example as a
// CI job summary after regenerating a sitemap.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report for run in Markdown format.
func (w *MarkdownWriter) Write(run *model.CrawlRun) (int, error) {
	return w.WriteSummary(NewSummary(run))
}

// WriteSummary outputs summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeOutcomes(md, summary)
	w.writeRejected(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("Sitemap Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + s.Seed + "`"},
			{"Run ID", "`" + s.RunID + "`"},
			{"Started", s.StartedAt.Format(dateLayout)},
			{"Duration", strconv.FormatFloat(s.DurationSeconds, 'f', 1, 64) + "s"},
			{"Status", w.getStatusText(s)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on run state.
func (w *MarkdownWriter) getStatusText(s *Summary) string {
	switch {
	case s.Completed():
		return "✅ Complete"
	case s.Error != "":
		return "❌ " + s.State + " - " + s.Error
	default:
		return "⚠️ " + s.State + " (partial results)"
	}
}

// writeOutcomes writes the page counts, the outcome chart and an alert.
func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, s *Summary) {
	md.H2("Pages")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Indexable", strconv.Itoa(s.Indexable)},
			{"Noindex", strconv.Itoa(s.NoIndex)},
			{"Transport failure", strconv.Itoa(s.TransportFailures)},
			{"Status failure", strconv.Itoa(s.StatusFailures)},
			{"Data failure", strconv.Itoa(s.DataFailures)},
			{"**Sitemap documents**", "**" + strconv.Itoa(s.SitemapDocuments) + "**"},
		},
	})
	md.PlainText("")

	if s.PagesFetched+s.TotalFailures() > 0 {
		w.writePieChart(md, s)
	}

	if len(s.SitemapFiles) > 0 {
		md.PlainText("Files written:")
		md.PlainText("")
		md.BulletList(s.SitemapFiles...)
		md.PlainText("")
	}

	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of page outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)

	slices := []struct {
		label string
		count int
	}{
		{"Indexable", s.Indexable},
		{"Noindex", s.NoIndex},
		{"Transport failure", s.TransportFailures},
		{"Status failure", s.StatusFailures},
		{"Data failure", s.DataFailures},
	}
	for _, slice := range slices {
		if slice.count > 0 {
			chart.LabelAndIntValue(slice.label, uint64(slice.count))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert summarizing the run.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	switch {
	case !s.Completed():
		md.Cautionf("The crawl did not complete (%s). The sitemap may be missing pages.", s.State)
	case s.Indexable == 0:
		md.Warningf("No indexable pages were found. The sitemap is empty.")
	case s.HasFailures():
		md.Importantf("%d URL(s) could not be fetched and are missing from the sitemap.", s.TotalFailures())
	case s.NoIndex > 0:
		md.Note(strconv.Itoa(s.NoIndex) + " page(s) were excluded by a noindex robots meta tag.")
	default:
		md.Tip("Every discovered page was fetched and indexed.")
	}
	md.PlainText("")
}

// writeRejected writes rejected candidate counts by reason.
func (w *MarkdownWriter) writeRejected(md *markdown.Markdown, s *Summary) {
	if len(s.Rejected) == 0 {
		return
	}

	md.H2("Rejected Links")
	md.PlainText("")

	rows := make([][]string, 0, len(s.Rejected))
	for _, reason := range s.RejectReasons() {
		rows = append(rows, []string{reason, strconv.Itoa(s.Rejected[reason])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Reason", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes a table of failed fetches.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, s *Summary) {
	md.H2("Failures")
	md.PlainText("")

	if !s.HasFailures() {
		md.PlainText("No fetch failures.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Failures))
	for i, f := range s.Failures {
		status := "-"
		if f.StatusCode != 0 {
			status = strconv.Itoa(f.StatusCode)
		}
		referrer := f.Referrer
		if referrer == "" {
			referrer = "-"
		}
		rows[i] = []string{
			truncateString(f.URL, 60),
			string(f.Kind),
			status,
			truncateString(referrer, 40),
			truncateString(f.Message, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Kind", "Status", "Referrer", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitemapgen](https://github.com/nao1215/sitemapgen)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
