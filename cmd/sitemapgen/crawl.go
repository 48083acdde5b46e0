package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/crawler"
	"github.com/nao1215/sitemapgen/internal/database"
	"github.com/nao1215/sitemapgen/internal/fetch"
	"github.com/nao1215/sitemapgen/internal/log"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/pipeline"
	"github.com/nao1215/sitemapgen/internal/report"
	"github.com/nao1215/sitemapgen/internal/tor"
	"github.com/spf13/cobra"
)

// stdoutPath selects standard output as the sitemap destination.
const stdoutPath = "-"

var (
	// errOnionNeedsProxy is returned for .onion seeds without --tor or --proxy.
	errOnionNeedsProxy = errors.New(".onion seeds require --tor or --proxy")

	// errMultiFileStdout is returned when a split sitemap would be written to stdout.
	errMultiFileStdout = errors.New("sitemap was split into several files: use --output to write it to disk")

	// errMultiSeedStdout is returned when several seeds would share stdout.
	errMultiSeedStdout = errors.New("several seeds cannot be written to stdout: use --output")
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl websites and write their sitemaps",
		Long: `Crawl fetches every page reachable from each seed URL and writes a
sitemaps.org XML sitemap of the indexable pages.

Pages declaring <meta name="robots" content="noindex"> are crawled for links
but left out of the sitemap. When a sitemap exceeds --max-entries URLs it is
split into numbered part files and the output path receives a sitemap index.

Examples:
  # Crawl a site and write sitemap.xml
  sitemapgen crawl https://example.com/

  # Write the sitemap to stdout
  sitemapgen crawl -o - https://example.com/

  # Crawl several sites, two at a time; sitemaps go to out/<host>/sitemap.xml
  sitemapgen crawl -o out/sitemap.xml -b 2 https://a.example/ https://b.example/

  # Stay below the seed's directory and skip the admin area
  sitemapgen crawl --restrict-basepath --ignore "/docs/admin/*" https://example.com/docs/

  # Crawl a hidden service through an embedded Tor daemon
  sitemapgen crawl --tor http://exampleonion.onion/

  # Output a Markdown crawl report
  sitemapgen crawl --markdown --report report.md https://example.com/

Configuration file (.sitemapgen) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      priorityRules:
        - pattern: "/blog/*"
          priority: 0.8`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Sitemap content flags
	cmd.Flags().String("changefreq", string(config.DefaultChangeFreq),
		"Default changefreq for every URL (empty to omit)")
	cmd.Flags().String("priority", model.NewPriority(config.DefaultPriority).String(),
		"Default priority for every URL, between 0 and 1 (empty to omit)")
	cmd.Flags().IntP("max-entries", "n", config.DefaultMaxEntriesPerFile,
		"Maximum number of URLs per sitemap file")
	cmd.Flags().StringP("output", "o", config.DefaultFilepath,
		"Sitemap output path (\"-\" for stdout); with several seeds each host gets its own directory")

	// Crawl behavior flags
	cmd.Flags().DurationP("interval", "i", config.DefaultInterval,
		"Minimum time between two requests")
	cmd.Flags().IntP("concurrency", "C", config.DefaultMaxConcurrency,
		"Maximum number of requests in flight")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the seed (0 = unlimited)")
	cmd.Flags().Bool("keep-query", false,
		"Keep query strings when normalizing URLs")
	cmd.Flags().Bool("restrict-basepath", false,
		"Only crawl URLs below the seed's directory")
	cmd.Flags().StringSlice("exclude", config.DefaultExclude,
		"File extensions that are never crawled")
	cmd.Flags().StringSlice("exclude-path", nil,
		"Skip URLs whose path contains any of these substrings")
	cmd.Flags().StringSlice("ignore", nil,
		"Skip URLs whose path matches any of these glob patterns")
	cmd.Flags().StringSlice("follow", nil,
		"Only crawl URLs whose path matches one of these glob patterns")

	// Fetch flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes (0 = unlimited)")
	cmd.Flags().Bool("strict-ssl", false,
		"Verify TLS certificates")
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Route requests through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemapgen in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write report to specified file path instead of stderr")

	// History flags
	cmd.Flags().Bool("no-db", false,
		"Do not store the crawl in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logOutput := cmd.ErrOrStderr()
	if path := getLogFileFlag(cmd); path != "" {
		file, err := log.OpenFile(path)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer file.Close()
		logOutput = log.Tee(logOutput, file)
	}

	logger := log.NewLogger(logOutput, cfg.Verbose, getLogJSONFlag(cmd))
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getLogJSONFlag retrieves the log-json flag from the command or its parent.
func getLogJSONFlag(cmd *cobra.Command) bool {
	jsonLogs, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		jsonLogs, err = cmd.Root().PersistentFlags().GetBool("log-json")
		if err != nil {
			return false
		}
	}
	return jsonLogs
}

// getLogFileFlag retrieves the log-file flag from the command or its parent.
func getLogFileFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("log-file")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("log-file")
		if err != nil {
			return ""
		}
	}
	return path
}

// buildConfig creates a Config from cobra command flags.
//
//nolint:gocyclo,cyclop,funlen // flag plumbing is long but linear
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	changeFreq, err := flags.GetString("changefreq")
	if err != nil {
		return nil, err
	}
	if cfg.ChangeFreq, err = model.ParseChangeFreq(changeFreq); err != nil {
		return nil, err
	}

	priority, err := flags.GetString("priority")
	if err != nil {
		return nil, err
	}
	if cfg.Priority, err = model.ParsePriority(priority); err != nil {
		return nil, err
	}

	if cfg.MaxEntriesPerFile, err = flags.GetInt("max-entries"); err != nil {
		return nil, err
	}
	if cfg.Filepath, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Interval, err = flags.GetDuration("interval"); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}

	keepQuery, err := flags.GetBool("keep-query")
	if err != nil {
		return nil, err
	}
	cfg.StripQuerystring = !keepQuery

	if cfg.RestrictToBasepath, err = flags.GetBool("restrict-basepath"); err != nil {
		return nil, err
	}
	if cfg.Exclude, err = flags.GetStringSlice("exclude"); err != nil {
		return nil, err
	}
	if cfg.ExcludePaths, err = flags.GetStringSlice("exclude-path"); err != nil {
		return nil, err
	}

	ignore, err := flags.GetStringSlice("ignore")
	if err != nil {
		return nil, err
	}
	follow, err := flags.GetStringSlice("follow")
	if err != nil {
		return nil, err
	}
	cfg.Ignore = config.NewIgnoreFunc(ignore, follow)

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}

	strictSSL, err := flags.GetBool("strict-ssl")
	if err != nil {
		return nil, err
	}
	cfg.IgnoreInvalidSSL = !strictSSL

	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// Load site-specific configurations from config file.
	// An explicitly given path must exist; otherwise a missing file means
	// no site configuration.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Seeds = args

	return cfg, nil
}

// runCrawl crawls every seed in cfg and writes sitemaps and reports.
// Sitemaps written to stdout go to stdout; reports go to stderr unless a
// report file is configured.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	if err := checkSeeds(cfg); err != nil {
		return err
	}
	if cfg.Filepath == stdoutPath && len(cfg.Seeds) > 1 {
		return errMultiSeedStdout
	}

	logger.Info("starting crawl",
		"seeds", cfg.Seeds,
		"useTor", cfg.UseTor,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	proxyAddress, stopProxy, err := setupProxy(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}
	defer stopProxy()

	reportOut, closeReport, err := openReportOutput(cfg.ReportFile, stderr)
	if err != nil {
		return err
	}
	defer closeReport()

	writer := newReportWriter(cfg, reportOut)
	newFetcher := func(c *config.Config) (crawler.Fetcher, error) {
		return fetch.NewFromConfig(c, proxyAddress)
	}

	var reportMu sync.Mutex
	newPipeline := func() *pipeline.Pipeline {
		p := pipeline.New(
			pipeline.WithLogger(logger),
			pipeline.WithContinueOnError(true),
		)
		p.AddStep(pipeline.NewCrawlStep(newFetcher, pipeline.WithCrawlLogger(logger)))
		p.AddStep(sitemapStep(cfg, stdout))
		if db != nil {
			p.AddStep(pipeline.NewSaveRunStep(db))
		}
		p.AddStep(pipeline.NewReportStep(writer, &reportMu))
		return p
	}

	jobs := make([]*pipeline.Job, len(cfg.Seeds))
	for i, seed := range cfg.Seeds {
		jobs[i] = pipeline.NewJob(seed, siteConfig(cfg, seed))
	}

	startTime := time.Now()
	bp := pipeline.NewBatchProcessor(newPipeline,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)
	onDone := func(*pipeline.Job, int) {}
	if len(jobs) > 1 {
		bar := newBatchProgress(stderr, len(jobs))
		onDone = func(job *pipeline.Job, _ int) {
			reportMu.Lock()
			defer reportMu.Unlock()
			advance(bar, job)
		}
	}
	batchErr := bp.ProcessBatchWithCallback(ctx, jobs, onDone)

	failed := 0
	for _, job := range jobs {
		if job.Err != nil {
			failed++
		}
	}
	logger.Info("crawl finished",
		"seeds", len(jobs),
		"failed", failed,
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)

	if batchErr != nil {
		return fmt.Errorf("crawl interrupted: %w", batchErr)
	}
	if failed > 0 {
		if len(jobs) == 1 {
			return jobs[0].Err
		}
		return fmt.Errorf("%d of %d seeds failed", failed, len(jobs))
	}
	return nil
}

// checkSeeds rejects malformed .onion seeds and .onion seeds that would be
// fetched without a proxy.
func checkSeeds(cfg *config.Config) error {
	for _, seed := range cfg.Seeds {
		u, err := url.Parse(seed)
		if err != nil {
			continue
		}
		if !tor.IsOnionHost(u.Hostname()) {
			continue
		}
		if err := tor.ValidateHost(u.Host); err != nil {
			return fmt.Errorf("invalid seed %q: %w", seed, err)
		}
		if !cfg.UseTor && cfg.ProxyAddress == "" {
			return fmt.Errorf("%w: %s", errOnionNeedsProxy, seed)
		}
	}
	return nil
}

// setupProxy verifies the configured SOCKS5 proxy or starts the embedded
// Tor daemon. It returns the proxy address for the fetchers and a function
// releasing the proxy.
func setupProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (string, func(), error) {
	noop := func() {}

	if cfg.ProxyAddress != "" {
		if status := fetch.CheckProxy(ctx, cfg.ProxyAddress); status != fetch.ProxyStatusOK {
			return "", noop, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Error(), cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return cfg.ProxyAddress, noop, nil
	}

	if !cfg.UseTor {
		return "", noop, nil
	}

	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return "", noop, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	stop := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	address, err := embeddedTor.ProxyAddress()
	if err != nil {
		stop()
		return "", noop, err
	}
	if status := fetch.CheckProxy(ctx, address); status != fetch.ProxyStatusOK {
		stop()
		return "", noop, fmt.Errorf("embedded Tor proxy check failed: %w", status.Error())
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embeddedTor.SocksAddr(),
		"controlAddr", embeddedTor.ControlAddr(),
	)
	return address, stop, nil
}

// siteConfig returns cfg with the site configuration for seed's host applied.
func siteConfig(cfg *config.Config, seed string) *config.Config {
	if cfg.SiteConfigs == nil {
		return cfg.Clone()
	}
	host := seed
	if u, err := url.Parse(seed); err == nil && u.Host != "" {
		host = u.Host
	}
	return cfg.ApplySite(cfg.SiteConfigs.GetSiteConfig(host))
}

// sitemapStep returns the step persisting the sitemap for cfg's output path.
func sitemapStep(cfg *config.Config, stdout io.Writer) pipeline.Step {
	if cfg.Filepath == stdoutPath {
		return &printSitemapStep{w: stdout}
	}
	if len(cfg.Seeds) > 1 {
		return pipeline.NewWriteSitemapStep(pipeline.PerHostPath(cfg.Filepath))
	}
	return pipeline.NewWriteSitemapStep(pipeline.StaticPath(cfg.Filepath))
}

// printSitemapStep writes a single-document sitemap to w.
type printSitemapStep struct {
	w io.Writer
}

// Name returns the step name.
func (s *printSitemapStep) Name() string {
	return "print-sitemap"
}

// Do prints the sitemap document.
func (s *printSitemapStep) Do(_ context.Context, job *pipeline.Job) error {
	if job.Output == nil {
		return pipeline.ErrNoRun
	}
	if job.Output.IsMultiFile() {
		return errMultiFileStdout
	}
	if job.Output.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(s.w, job.Output.Documents[0])
	return err
}

// newReportWriter returns the report writer for the configured format.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(w, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// openReportOutput opens path for the report, or returns fallback when
// path is empty. The returned function closes the file.
func openReportOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// jobStatus summarizes a finished job for progress output.
func jobStatus(job *pipeline.Job) string {
	if job.Err != nil {
		return "failed: " + job.Err.Error()
	}
	if job.Run == nil {
		return "no result"
	}
	return fmt.Sprintf("%d pages, %d in sitemap", len(job.Run.Items), len(job.Run.IndexableItems()))
}
