package pipeline

import (
	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/sitemap"
)

// Job is the unit of work a Pipeline processes: one seed and everything
// produced for it.
type Job struct {
	// Seed is the URL to crawl.
	Seed string

	// Config is the crawl configuration for this seed, with any site
	// configuration already applied.
	Config *config.Config

	// Run is the crawl summary, set by CrawlStep. For a seed that could not
	// be crawled at all it records the fatal state and error.
	Run *model.CrawlRun

	// Output is the built sitemap, set by CrawlStep for completed crawls.
	Output *sitemap.Output

	// Err is the error of the first failed step.
	Err error

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string
}

// NewJob creates a Job for seed using cfg.
func NewJob(seed string, cfg *config.Config) *Job {
	return &Job{
		Seed:   seed,
		Config: cfg,
	}
}

// Completed reports whether the crawl finished and produced a sitemap.
func (j *Job) Completed() bool {
	return j.Output != nil
}
