package main

import (
	"fmt"
	"io"

	"github.com/nao1215/sitemapgen/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// newBatchProgress returns a progress bar counting finished seeds of a batch.
func newBatchProgress(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// advance records a finished job on the bar, showing its outcome as the
// bar description.
func advance(bar *progressbar.ProgressBar, job *pipeline.Job) {
	bar.Describe(fmt.Sprintf("%s: %s", job.Seed, jobStatus(job)))
	_ = bar.Add(1) //nolint:errcheck // rendering errors are not actionable
}
