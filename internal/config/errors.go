package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors so callers can use
// errors.Is() for programmatic handling while still getting readable messages.
var (
	// ErrNoSeed is returned when no seed URL is specified.
	ErrNoSeed = errors.New("no seed specified: provide at least one URL to crawl")

	// ErrInvalidInterval is returned when the pacing interval is negative.
	ErrInvalidInterval = errors.New("invalid interval: must be non-negative")

	// ErrInvalidConcurrency is returned when the concurrency limit is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidMaxEntries is returned when the per-file entry limit is outside 1..50000.
	ErrInvalidMaxEntries = errors.New("invalid max entries per file: must be between 1 and 50000")

	// ErrInvalidMaxDepth is returned when the maximum depth is negative.
	// Use 0 for unlimited depth.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative (0 = unlimited)")

	// ErrInvalidPriority is returned when the default priority is outside [0, 1].
	ErrInvalidPriority = errors.New("invalid priority: must be between 0 and 1")

	// ErrInvalidChangeFreq is returned when the default changefreq is unknown.
	ErrInvalidChangeFreq = errors.New("invalid changefreq: must be always, hourly, daily, weekly, monthly, yearly or never")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxy is returned when both --tor and --proxy are specified.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --tor and --proxy cannot be used together")
)
