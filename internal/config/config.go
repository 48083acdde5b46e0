package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/sitemapgen/internal/model"
)

// Default configuration values.
const (
	// DefaultChangeFreq is the changefreq written for every URL unless overridden.
	DefaultChangeFreq = model.ChangeFreqWeekly

	// DefaultPriority is the priority written for every URL unless overridden.
	DefaultPriority = 0.5

	// DefaultInterval is the minimum time between two dispatched fetches.
	// The gate is global across the whole crawl, not per URL.
	DefaultInterval = 500 * time.Millisecond

	// DefaultMaxConcurrency is the maximum number of fetches in flight.
	DefaultMaxConcurrency = 5

	// DefaultMaxEntriesPerFile is the sitemaps.org limit of URLs per document.
	DefaultMaxEntriesPerFile = 50000

	// MaxEntriesPerFileLimit is the hard protocol limit; larger values are rejected.
	MaxEntriesPerFileLimit = 50000

	// DefaultMaxDepth of 0 means unlimited depth.
	DefaultMaxDepth = 0

	// DefaultTimeout is the per-request timeout of the HTTP fetcher.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits the maximum response body size to read.
	// 10MB is generous for HTML pages while preventing memory exhaustion.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultBatchSize is the number of seeds crawled concurrently.
	DefaultBatchSize = 2

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap when --tor is used.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent identifies sitemapgen in HTTP requests.
	DefaultUserAgent = "sitemapgen/1.0 (+https://github.com/nao1215/sitemapgen)"

	// DefaultFilepath is the sitemap output path used by the CLI.
	DefaultFilepath = "sitemap.xml"

	// AppName is the application name used for XDG directory paths.
	AppName = "sitemapgen"
)

// DefaultExclude lists the file extensions never crawled by default:
// binary and static assets that do not belong in a sitemap.
var DefaultExclude = []string{
	"gif", "jpg", "jpeg", "png", "ico", "bmp", "ogg", "webp",
	"mp4", "webm", "mp3", "ttf", "woff", "json", "rss", "atom",
	"gz", "zip", "rar", "7z", "css", "js", "gzip", "exe", "svg",
}

// Config holds all configuration options for a sitemapgen run.
// The crawl tunables are read by the frontier and the crawler; the remaining
// fields configure the fetcher, logging, persistence and reports.
//
// Design decision: We keep a single flat struct, as the number of options is
// manageable. Defaults come from NewConfig and callers override fields by plain
// assignment; there is no layered merging.
type Config struct {
	// ChangeFreq is the default <changefreq> for every URL. Empty omits it.
	ChangeFreq model.ChangeFreq

	// Priority is the default <priority> for every URL. Absent omits it.
	Priority model.Priority

	// Interval is the minimum time between two dispatched fetches.
	// Zero disables pacing.
	Interval time.Duration

	// MaxConcurrency is the maximum number of fetches in flight.
	MaxConcurrency int

	// StripQuerystring removes the query string during URL normalization.
	StripQuerystring bool

	// IgnoreInvalidSSL skips TLS certificate validation for this run's fetcher.
	// It never changes process-wide settings.
	IgnoreInvalidSSL bool

	// RestrictToBasepath limits the crawl to URLs sharing the seed's origin
	// and path prefix.
	RestrictToBasepath bool

	// MaxEntriesPerFile is the maximum number of URLs per sitemap document.
	MaxEntriesPerFile int

	// MaxDepth is the maximum link depth from the seed. 0 means unlimited.
	MaxDepth int

	// Exclude lists file extensions (without the dot) that are never crawled.
	// Matching is case-insensitive against the end of the URL path.
	Exclude []string

	// ExcludePaths lists literal substrings; URLs whose path contains any of
	// them are never crawled (e.g. "disclaimer.html").
	ExcludePaths []string

	// Ignore is an optional predicate; URLs for which it returns true are
	// never crawled. Nil means no URL is ignored.
	Ignore func(url string) bool

	// PriorityRules override changefreq/priority per URL after each fetch.
	PriorityRules []PriorityRule

	// Filepath is the output path of the sitemap. Empty means the caller
	// consumes the XML strings directly.
	Filepath string

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// ProxyAddress routes all requests through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes requests through it.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon.
	TorStartupTimeout time.Duration

	// Cookie is sent with every request when set.
	Cookie string

	// Headers are extra request headers sent with every request.
	Headers map[string]string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the site configuration file.
	ConfigFilePath string

	// SiteConfigs holds the site configurations loaded from the config file.
	SiteConfigs *File

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// DBDir is the directory holding the crawl history database.
	DBDir string

	// SaveToDB stores each finished crawl in the history database.
	SaveToDB bool

	// JSONReport prints the crawl report as JSON.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport prints the crawl report as Markdown.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to this path instead of stderr.
	ReportFile string

	// Seeds are the URLs to crawl.
	Seeds []string
}

// NewConfig creates a new Config with default values.
// Every crawl tunable starts at its documented default.
func NewConfig() *Config {
	exclude := make([]string, len(DefaultExclude))
	copy(exclude, DefaultExclude)

	return &Config{
		ChangeFreq:        DefaultChangeFreq,
		Priority:          model.NewPriority(DefaultPriority),
		Interval:          DefaultInterval,
		MaxConcurrency:    DefaultMaxConcurrency,
		StripQuerystring:  true,
		IgnoreInvalidSSL:  true,
		MaxEntriesPerFile: DefaultMaxEntriesPerFile,
		MaxDepth:          DefaultMaxDepth,
		Exclude:           exclude,
		UserAgent:         DefaultUserAgent,
		Timeout:           DefaultTimeout,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		BatchSize:         DefaultBatchSize,
		Filepath:          DefaultFilepath,
	}
}

// Clone returns a copy of the configuration that can be modified per seed
// without affecting the original. Slices and maps are copied.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Exclude = append([]string(nil), c.Exclude...)
	clone.ExcludePaths = append([]string(nil), c.ExcludePaths...)
	clone.PriorityRules = append([]PriorityRule(nil), c.PriorityRules...)
	clone.Seeds = append([]string(nil), c.Seeds...)
	if c.Headers != nil {
		clone.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			clone.Headers[k] = v
		}
	}
	return &clone
}

// IsIgnored evaluates the Ignore predicate, treating nil as "never ignore".
func (c *Config) IsIgnored(url string) bool {
	if c.Ignore == nil {
		return false
	}
	return c.Ignore(url)
}

// XDGDataDir returns the XDG data directory for sitemapgen.
// On Linux: ~/.local/share/sitemapgen
// On macOS: ~/Library/Application Support/sitemapgen
// On Windows: %LOCALAPPDATA%\sitemapgen
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitemapgen.
// On Linux: ~/.config/sitemapgen
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first sentinel error found.
//
// Design decision: We validate once, before any fetch begins, so that a bad
// configuration fails fast instead of surfacing halfway through a crawl.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}

	if c.Interval < 0 {
		return ErrInvalidInterval
	}

	if c.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.MaxEntriesPerFile <= 0 || c.MaxEntriesPerFile > MaxEntriesPerFileLimit {
		return ErrInvalidMaxEntries
	}

	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}

	if err := c.Priority.Validate(); err != nil {
		return ErrInvalidPriority
	}

	if c.ChangeFreq != "" && !c.ChangeFreq.IsValid() {
		return ErrInvalidChangeFreq
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}

	return nil
}
