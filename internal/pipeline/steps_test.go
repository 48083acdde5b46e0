package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/crawler"
	"github.com/nao1215/sitemapgen/internal/database"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/report"
)

// testSite maps URLs to HTML bodies.
type testSite map[string]string

func (s testSite) fetcher() crawler.Fetcher {
	return crawler.FetcherFunc(func(ctx context.Context, url string) (*crawler.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, ok := s[url]
		if !ok {
			return &crawler.Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
		}
		return &crawler.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
			Body:       []byte(body),
		}, nil
	})
}

func (s testSite) factory() FetcherFactory {
	return func(*config.Config) (crawler.Fetcher, error) {
		return s.fetcher(), nil
	}
}

func exampleSite() testSite {
	return testSite{
		"https://example.com/":      `<a href="/blog/">blog</a><a href="/about">about</a><a href="/gone">gone</a>`,
		"https://example.com/about": `<p>about</p>`,
		"https://example.com/blog/": `<a href="post">post</a>`,
		"https://example.com/blog/post": `<html><head><meta name="robots" content="noindex"></head></html>`,
	}
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Interval = 0
	return cfg
}

// TestCrawlStep tests running the crawl engine from a pipeline.
func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("crawls and stores the result", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var failed []string
		step := NewCrawlStep(exampleSite().factory(),
			WithCrawlLogger(quietLogger()),
			WithCrawlFetchErrorHandler(func(entry *model.QueueEntry, _ *model.ResponseMeta, _ error) {
				mu.Lock()
				defer mu.Unlock()
				failed = append(failed, entry.URL)
			}),
		)
		if step.Name() != "crawl" {
			t.Errorf("expected name crawl, got %q", step.Name())
		}

		job := NewJob("https://example.com/", testConfig())
		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !job.Completed() {
			t.Fatal("expected completed job")
		}
		if len(job.Run.Items) != 4 {
			t.Errorf("expected 4 fetched pages, got %d", len(job.Run.Items))
		}
		if len(job.Run.IndexableItems()) != 3 {
			t.Errorf("expected 3 indexable pages, got %d", len(job.Run.IndexableItems()))
		}
		if len(failed) != 1 || failed[0] != "https://example.com/gone" {
			t.Errorf("expected /gone to fail, got %v", failed)
		}
	})

	t.Run("applies priority rules", func(t *testing.T) {
		t.Parallel()

		high := 0.9
		cfg := testConfig()
		cfg.PriorityRules = []config.PriorityRule{
			{Pattern: "/blog/*", Priority: &high, ChangeFreq: "daily"},
		}

		job := NewJob("https://example.com/", cfg)
		step := NewCrawlStep(exampleSite().factory(), WithCrawlLogger(quietLogger()))
		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, item := range job.Run.Items {
			isBlog := strings.HasPrefix(item.Loc, "https://example.com/blog/")
			if isBlog && (item.Priority.Value != 0.9 || item.ChangeFreq != model.ChangeFreqDaily) {
				t.Errorf("expected rule applied to %s, got %+v", item.Loc, item)
			}
			if !isBlog && item.Priority.Value != config.DefaultPriority {
				t.Errorf("expected default priority for %s, got %v", item.Loc, item.Priority.Value)
			}
		}
	})

	t.Run("fetcher factory error yields fatal run", func(t *testing.T) {
		t.Parallel()

		errFactory := errors.New("no fetcher")
		step := NewCrawlStep(func(*config.Config) (crawler.Fetcher, error) {
			return nil, errFactory
		}, WithCrawlLogger(quietLogger()))

		job := NewJob("https://example.com/", testConfig())
		err := step.Do(context.Background(), job)
		if !errors.Is(err, errFactory) {
			t.Errorf("expected errFactory, got %v", err)
		}
		if job.Run == nil || job.Run.State != "fatal" {
			t.Errorf("expected fatal run, got %+v", job.Run)
		}
	})

	t.Run("invalid seed yields fatal run", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(exampleSite().factory(), WithCrawlLogger(quietLogger()))
		job := NewJob("ftp://example.com/", testConfig())

		err := step.Do(context.Background(), job)
		var fatal *crawler.FatalError
		if !errors.As(err, &fatal) {
			t.Fatalf("expected FatalError, got %v", err)
		}
		if job.Run == nil || job.Run.State != "fatal" || job.Run.Error == "" {
			t.Errorf("expected fatal run with error, got %+v", job.Run)
		}
		if job.Completed() {
			t.Error("expected job not to be completed")
		}
	})
}

// TestPaths tests output path helpers.
func TestPaths(t *testing.T) {
	t.Parallel()

	job := NewJob("https://example.com:8443/docs/", nil)

	if got := StaticPath("out/sitemap.xml")(job); got != "out/sitemap.xml" {
		t.Errorf("expected out/sitemap.xml, got %q", got)
	}
	want := filepath.Join("out", "example.com_8443", "sitemap.xml")
	if got := PerHostPath(filepath.Join("out", "sitemap.xml"))(job); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	testCases := []struct {
		seed     string
		expected string
	}{
		{"https://example.com/docs/page", "https://example.com/"},
		{"http://example.com:8080", "http://example.com:8080/"},
		{"not a url", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.seed, func(t *testing.T) {
			t.Parallel()
			if got := SiteRoot(tc.seed); got != tc.expected {
				t.Errorf("SiteRoot(%q) = %q, expected %q", tc.seed, got, tc.expected)
			}
		})
	}
}

// crawledJob returns a job that has gone through CrawlStep.
func crawledJob(t *testing.T) *Job {
	t.Helper()

	job := NewJob("https://example.com/", testConfig())
	step := NewCrawlStep(exampleSite().factory(), WithCrawlLogger(quietLogger()))
	if err := step.Do(context.Background(), job); err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	return job
}

// TestWriteSitemapStep tests writing sitemap files.
func TestWriteSitemapStep(t *testing.T) {
	t.Parallel()

	t.Run("writes sitemap", func(t *testing.T) {
		t.Parallel()

		job := crawledJob(t)
		path := filepath.Join(t.TempDir(), "sitemap.xml")

		if err := NewWriteSitemapStep(StaticPath(path)).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(job.Run.SitemapFiles) != 1 || job.Run.SitemapFiles[0] != path {
			t.Errorf("unexpected files: %v", job.Run.SitemapFiles)
		}
		data, err := os.ReadFile(path) //nolint:gosec // test file
		if err != nil {
			t.Fatalf("failed to read sitemap: %v", err)
		}
		if !strings.Contains(string(data), "<loc>https://example.com/about</loc>") {
			t.Errorf("expected about page in sitemap, got:\n%s", data)
		}
		if strings.Contains(string(data), "blog/post") {
			t.Error("expected noindex page to be left out")
		}
	})

	t.Run("writes index for multiple documents", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.MaxEntriesPerFile = 2
		job := NewJob("https://example.com/", cfg)
		if err := NewCrawlStep(exampleSite().factory(), WithCrawlLogger(quietLogger())).Do(context.Background(), job); err != nil {
			t.Fatalf("crawl failed: %v", err)
		}

		path := filepath.Join(t.TempDir(), "sitemap.xml")
		if err := NewWriteSitemapStep(StaticPath(path)).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(job.Run.SitemapFiles) != 3 {
			t.Fatalf("expected index and 2 parts, got %v", job.Run.SitemapFiles)
		}
		index, err := os.ReadFile(path) //nolint:gosec // test file
		if err != nil {
			t.Fatalf("failed to read index: %v", err)
		}
		if !strings.Contains(string(index), "<loc>https://example.com/sitemap-2.xml</loc>") {
			t.Errorf("expected part location in index, got:\n%s", index)
		}
	})

	t.Run("requires crawl output", func(t *testing.T) {
		t.Parallel()

		err := NewWriteSitemapStep(StaticPath("unused.xml")).Do(context.Background(), NewJob("https://example.com/", nil))
		if !errors.Is(err, ErrNoRun) {
			t.Errorf("expected ErrNoRun, got %v", err)
		}
	})
}

// TestSaveRunStep tests storing runs in the history database.
func TestSaveRunStep(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	job := crawledJob(t)
	step := NewSaveRunStep(db)
	if err := step.Do(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := db.GetRun(context.Background(), job.Run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if stored == nil || len(stored.Items) != len(job.Run.Items) {
		t.Errorf("expected stored run with %d items, got %+v", len(job.Run.Items), stored)
	}

	fatal := NewJob("https://example.com/", nil)
	fatal.Run = &model.CrawlRun{Seed: "https://example.com/", State: "fatal"}
	if err := step.Do(context.Background(), fatal); err != nil {
		t.Errorf("expected run without ID to be skipped, got %v", err)
	}

	if err := step.Do(context.Background(), NewJob("https://example.com/", nil)); !errors.Is(err, ErrNoRun) {
		t.Errorf("expected ErrNoRun, got %v", err)
	}
}

// TestReportStep tests rendering reports.
func TestReportStep(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	step := NewReportStep(report.NewSimpleWriter(&buf), nil)

	if err := step.Do(context.Background(), crawledJob(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "https://example.com/") {
		t.Errorf("expected seed in report, got:\n%s", buf.String())
	}

	if err := step.Do(context.Background(), NewJob("https://example.com/", nil)); !errors.Is(err, ErrNoRun) {
		t.Errorf("expected ErrNoRun, got %v", err)
	}
}
