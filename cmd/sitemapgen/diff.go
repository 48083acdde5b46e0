package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/database"
	"github.com/nao1215/sitemapgen/internal/frontier"
	"github.com/spf13/cobra"
)

// historyDateLayout formats run timestamps in listings.
const historyDateLayout = "2006-01-02 15:04:05"

// errNoSeedArg is returned when diff is called without a seed.
var errNoSeedArg = errors.New("seed URL is required (use --list-seeds to see crawled seeds)")

// NewDiffCmd creates the diff command.
// This command compares the sitemap URLs of stored crawls.
func NewDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [url]",
		Short: "Compare the sitemap of the latest crawl with a previous one",
		Long: `Diff displays the sitemap URLs that appeared or disappeared between two
crawls of the same seed.

Crawls are read from the history database written by 'sitemapgen crawl'.
By default the latest two crawls are compared.

Examples:
  # Compare the latest two crawls of a seed
  sitemapgen diff https://example.com/

  # Compare the latest crawl with a specific earlier crawl
  sitemapgen diff --with-run-id 3f1c... https://example.com/

  # List crawl history for a seed
  sitemapgen diff --list https://example.com/

  # List all crawled seeds
  sitemapgen diff --list-seeds

  # Output the difference as JSON
  sitemapgen diff --json https://example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDiffCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List crawl history for the specified seed")
	cmd.Flags().BoolP("list-seeds", "L", false,
		"List all crawled seeds in the database")
	cmd.Flags().StringP("with-run-id", "i", "",
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// diffOptions holds the parsed flags of the diff command.
type diffOptions struct {
	seed      string
	list      bool
	listSeeds bool
	withRunID string
	json      bool
	markdown  bool
	dbDir     string
}

// runDiffCmd executes the diff command.
func runDiffCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseDiffOptions(cmd, args)
	if err != nil {
		return err
	}

	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false

	db, err := database.Open(opts.dbDir, dbOpts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runDiff(cmd.Context(), db, opts, cmd.OutOrStdout())
}

// parseDiffOptions reads and validates the diff flags.
func parseDiffOptions(cmd *cobra.Command, args []string) (*diffOptions, error) {
	opts := &diffOptions{}
	var err error

	if opts.listSeeds, err = cmd.Flags().GetBool("list-seeds"); err != nil {
		return nil, err
	}
	if opts.list, err = cmd.Flags().GetBool("list"); err != nil {
		return nil, err
	}
	if opts.withRunID, err = cmd.Flags().GetString("with-run-id"); err != nil {
		return nil, err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.json && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	if opts.dbDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}

	// Validate arguments before opening the database.
	if !opts.listSeeds {
		if len(args) == 0 {
			return nil, errNoSeedArg
		}
		seed, err := frontier.Normalize(args[0], nil, false)
		if err != nil {
			return nil, fmt.Errorf("invalid seed URL %q: %w", args[0], err)
		}
		opts.seed = seed
	}
	return opts, nil
}

// runDiff dispatches to the listing or comparison mode selected by opts.
func runDiff(ctx context.Context, db *database.CrawlDB, opts *diffOptions, w io.Writer) error {
	if opts.listSeeds {
		return listSeeds(ctx, db, w)
	}
	if opts.list {
		return listRunHistory(ctx, db, opts.seed, w)
	}

	result, err := compareLatest(ctx, db, opts.seed, opts.withRunID)
	if err != nil {
		return err
	}

	switch {
	case opts.json:
		return outputDiffJSON(result, w)
	case opts.markdown:
		return outputDiffMarkdown(result, w)
	default:
		return outputDiffText(result, w)
	}
}

// listSeeds lists every seed that has runs in the database.
func listSeeds(ctx context.Context, db *database.CrawlDB, w io.Writer) error {
	seeds, err := db.ListSeeds(ctx)
	if err != nil {
		return fmt.Errorf("failed to list seeds: %w", err)
	}

	if len(seeds) == 0 {
		fmt.Fprintln(w, "No crawled seeds found in the database.")
		fmt.Fprintln(w, "\nUse 'sitemapgen crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(w, "Crawled seeds (%d):\n\n", len(seeds))
	for _, seed := range seeds {
		fmt.Fprintf(w, "  • %s\n", seed)
	}
	fmt.Fprintln(w, "\nUse 'sitemapgen diff --list <url>' to see crawl history for a seed.")
	return nil
}

// listRunHistory lists the stored runs of seed, newest first.
func listRunHistory(ctx context.Context, db *database.CrawlDB, seed string, w io.Writer) error {
	history, err := db.GetRunHistory(ctx, seed)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(history) == 0 {
		fmt.Fprintf(w, "No crawl history found for %s\n", seed)
		return nil
	}

	fmt.Fprintf(w, "Crawl history for %s (%d runs):\n\n", seed, len(history))
	fmt.Fprintf(w, "  %-36s  %-19s  %-9s  %6s  %7s  %8s\n", "ID", "Date", "State", "Pages", "Sitemap", "Failures")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 96))
	for _, meta := range history {
		fmt.Fprintf(w, "  %-36s  %-19s  %-9s  %6d  %7d  %8d\n",
			meta.ID,
			meta.StartedAt.Local().Format(historyDateLayout),
			meta.State,
			meta.PageCount,
			meta.IndexableCount,
			meta.FailureCount,
		)
	}

	fmt.Fprintln(w, "\nUse 'sitemapgen diff <url>' to compare the latest two crawls.")
	return nil
}

// DiffResult is the comparison of two runs of one seed.
type DiffResult struct {
	// Seed is the crawled seed URL.
	Seed string `json:"seed"`

	// Previous describes the earlier run.
	Previous RunInfo `json:"previous"`

	// Current describes the later run.
	Current RunInfo `json:"current"`

	// Added are sitemap URLs only present in the current run.
	Added []string `json:"added"`

	// Removed are sitemap URLs only present in the previous run.
	Removed []string `json:"removed"`

	// Unchanged is the number of sitemap URLs present in both runs.
	Unchanged int `json:"unchanged"`
}

// RunInfo is the run metadata shown in a DiffResult.
type RunInfo struct {
	ID             string `json:"id"`
	StartedAt      string `json:"started_at"`
	State          string `json:"state"`
	IndexableCount int    `json:"indexable_count"`
}

func newRunInfo(meta database.RunMetadata) RunInfo {
	return RunInfo{
		ID:             meta.ID,
		StartedAt:      meta.StartedAt.Local().Format(historyDateLayout),
		State:          meta.State,
		IndexableCount: meta.IndexableCount,
	}
}

// compareLatest compares the latest run of seed with the previous one, or
// with the run withRunID when set.
func compareLatest(ctx context.Context, db *database.CrawlDB, seed, withRunID string) (*DiffResult, error) {
	history, err := db.GetRunHistory(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no crawl history found for %s", seed)
	}

	current := history[0]
	var previous *database.RunMetadata

	if withRunID != "" {
		for i := range history {
			if history[i].ID == withRunID {
				previous = &history[i]
				break
			}
		}
		if previous == nil {
			return nil, fmt.Errorf("run %s not found for %s", withRunID, seed)
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("run %s is the latest run; choose an earlier one", withRunID)
		}
	} else {
		if len(history) < 2 {
			return nil, fmt.Errorf("at least 2 crawls are required for comparison (found %d)", len(history))
		}
		previous = &history[1]
	}

	diff, err := db.CompareRuns(ctx, previous.ID, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to compare runs: %w", err)
	}

	return &DiffResult{
		Seed:      seed,
		Previous:  newRunInfo(*previous),
		Current:   newRunInfo(current),
		Added:     nonNil(diff.Added),
		Removed:   nonNil(diff.Removed),
		Unchanged: diff.Unchanged,
	}, nil
}

// nonNil keeps JSON output as [] instead of null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// outputDiffJSON outputs the comparison result in JSON format.
func outputDiffJSON(result *DiffResult, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputDiffMarkdown outputs the comparison result in Markdown format.
func outputDiffMarkdown(result *DiffResult, w io.Writer) error {
	md := markdown.NewMarkdown(w)
	md.H1("Sitemap Comparison: " + result.Seed)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run ID", result.Previous.ID, result.Current.ID, "-"},
			{"Date", result.Previous.StartedAt, result.Current.StartedAt, "-"},
			{"State", result.Previous.State, result.Current.State, "-"},
			{
				"Sitemap URLs",
				strconv.Itoa(result.Previous.IndexableCount),
				strconv.Itoa(result.Current.IndexableCount),
				formatDelta(result.Current.IndexableCount - result.Previous.IndexableCount),
			},
		},
	})
	md.PlainText("")

	if len(result.Added) > 0 {
		md.H2("Added URLs (" + strconv.Itoa(len(result.Added)) + ")")
		md.PlainText("")
		md.BulletList(result.Added...)
		md.PlainText("")
	}
	if len(result.Removed) > 0 {
		md.H2("Removed URLs (" + strconv.Itoa(len(result.Removed)) + ")")
		md.PlainText("")
		md.BulletList(result.Removed...)
		md.PlainText("")
	}
	if len(result.Added) == 0 && len(result.Removed) == 0 {
		md.Note("No sitemap URLs were added or removed.")
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*%d URLs unchanged*", result.Unchanged)

	return md.Build()
}

// outputDiffText outputs the comparison result in human-readable text format.
func outputDiffText(result *DiffResult, w io.Writer) error {
	fmt.Fprintf(w, "Sitemap Comparison: %s\n", result.Seed)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\nPrevious crawl: %s (%s, %s)\n", result.Previous.StartedAt, result.Previous.State, result.Previous.ID)
	fmt.Fprintf(w, "Current crawl:  %s (%s, %s)\n", result.Current.StartedAt, result.Current.State, result.Current.ID)
	fmt.Fprintf(w, "\nSitemap URLs: %d -> %d (%s)\n",
		result.Previous.IndexableCount,
		result.Current.IndexableCount,
		formatDelta(result.Current.IndexableCount-result.Previous.IndexableCount))

	if len(result.Added) > 0 {
		fmt.Fprintf(w, "\nAdded URLs (%d):\n", len(result.Added))
		for _, loc := range result.Added {
			fmt.Fprintf(w, "  [+] %s\n", loc)
		}
	}

	if len(result.Removed) > 0 {
		fmt.Fprintf(w, "\nRemoved URLs (%d):\n", len(result.Removed))
		for _, loc := range result.Removed {
			fmt.Fprintf(w, "  [-] %s\n", loc)
		}
	}

	fmt.Fprintf(w, "\nUnchanged: %d URLs\n", result.Unchanged)
	return nil
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
