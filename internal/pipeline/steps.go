package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/crawler"
	"github.com/nao1215/sitemapgen/internal/database"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/report"
	"github.com/nao1215/sitemapgen/internal/sitemap"
)

// ErrNoRun is returned by steps that need a crawl result when CrawlStep
// has not produced one.
var ErrNoRun = errors.New("no crawl result")

// FetcherFactory builds the Fetcher for one job. It is called once per job
// so per-site settings (TLS verification, cookies, headers) never leak
// between seeds.
type FetcherFactory func(cfg *config.Config) (crawler.Fetcher, error)

// CrawlStep runs the crawl engine for the job's seed.
type CrawlStep struct {
	// newFetcher creates the job's fetcher.
	newFetcher FetcherFactory

	// onFetchError is registered on every generator.
	onFetchError crawler.FetchErrorHandler

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// WithCrawlFetchErrorHandler registers h for fetch errors of every job.
func WithCrawlFetchErrorHandler(h crawler.FetchErrorHandler) CrawlStepOption {
	return func(s *CrawlStep) {
		s.onFetchError = h
	}
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(newFetcher FetcherFactory, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		newFetcher: newFetcher,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls job.Seed and stores the result in the job.
//
// The site's priority rules are applied from a fetch-complete handler. A
// seed that cannot be crawled still leaves a fatal CrawlRun in the job so
// it shows up in reports.
func (s *CrawlStep) Do(ctx context.Context, job *Job) error {
	fetcher, err := s.newFetcher(job.Config)
	if err != nil {
		job.Run = fatalRun(job.Seed, err)
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	gen := crawler.NewGenerator(job.Config, fetcher, crawler.WithLogger(s.logger))
	if rules := job.Config.PriorityRules; len(rules) > 0 {
		gen.OnFetchComplete(func(item *model.URLItem) {
			config.ApplyPriorityRules(rules, item)
		})
	}
	if s.onFetchError != nil {
		gen.OnFetchError(s.onFetchError)
	}

	result, err := gen.Run(ctx, job.Seed)
	if result != nil {
		job.Run = result.Run
		job.Output = result.Output
	}
	if err != nil {
		if job.Run == nil {
			job.Run = fatalRun(job.Seed, err)
		}
		return err
	}

	s.logger.Info("crawl completed",
		"url", job.Seed,
		"pages", len(job.Run.Items),
		"failures", len(job.Run.Failures),
		"duration", job.Run.Duration(),
	)
	return nil
}

// fatalRun records a seed that could not be crawled.
func fatalRun(seed string, err error) *model.CrawlRun {
	now := time.Now()
	return &model.CrawlRun{
		Seed:       seed,
		StartedAt:  now,
		FinishedAt: now,
		State:      crawler.StateFatal.String(),
		Error:      err.Error(),
	}
}

// PathFunc returns the sitemap output path for a job.
type PathFunc func(job *Job) string

// StaticPath always returns path.
func StaticPath(path string) PathFunc {
	return func(*Job) string { return path }
}

// PerHostPath places each seed's sitemap in a directory named after its
// host: "out/sitemap.xml" becomes "out/example.com/sitemap.xml".
func PerHostPath(path string) PathFunc {
	return func(job *Job) string {
		host := "unknown"
		if u, err := url.Parse(job.Seed); err == nil && u.Host != "" {
			host = strings.ReplaceAll(u.Host, ":", "_")
		}
		return filepath.Join(filepath.Dir(path), host, filepath.Base(path))
	}
}

// SiteRoot returns the scheme and host of seed with a "/" path. Part files
// of a sitemap index are located relative to it.
func SiteRoot(seed string) string {
	u, err := url.Parse(seed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}

// WriteSitemapStep writes the job's sitemap files.
type WriteSitemapStep struct {
	pathFor PathFunc
}

// NewWriteSitemapStep creates a step writing sitemaps to pathFor(job).
func NewWriteSitemapStep(pathFor PathFunc) *WriteSitemapStep {
	return &WriteSitemapStep{pathFor: pathFor}
}

// Name returns the step name.
func (s *WriteSitemapStep) Name() string {
	return "write-sitemap"
}

// Do writes the sitemap and records the file paths in job.Run.
func (s *WriteSitemapStep) Do(_ context.Context, job *Job) error {
	if job.Output == nil || job.Run == nil {
		return ErrNoRun
	}
	files, err := sitemap.WriteFiles(job.Output, s.pathFor(job), SiteRoot(job.Seed))
	job.Run.SitemapFiles = files
	return err
}

// SaveRunStep stores the job's run in the history database.
type SaveRunStep struct {
	db *database.CrawlDB
}

// NewSaveRunStep creates a step saving runs to db.
func NewSaveRunStep(db *database.CrawlDB) *SaveRunStep {
	return &SaveRunStep{db: db}
}

// Name returns the step name.
func (s *SaveRunStep) Name() string {
	return "save-run"
}

// Do saves job.Run. Runs without an ID never reached the crawl loop and
// are not stored.
func (s *SaveRunStep) Do(ctx context.Context, job *Job) error {
	if job.Run == nil {
		return ErrNoRun
	}
	if job.Run.ID == "" {
		return nil
	}
	return s.db.SaveRun(ctx, job.Run)
}

// ReportStep renders the job's run with a report writer.
// Writes are serialized so batch reports never interleave.
type ReportStep struct {
	writer report.Writer
	mu     *sync.Mutex
}

// NewReportStep creates a step writing reports with w.
// Steps sharing mu serialize their writes.
func NewReportStep(w report.Writer, mu *sync.Mutex) *ReportStep {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &ReportStep{writer: w, mu: mu}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do writes the report for job.Run.
func (s *ReportStep) Do(_ context.Context, job *Job) error {
	if job.Run == nil {
		return ErrNoRun
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.writer.Write(job.Run)
	return err
}
