package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemapgen/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "sitemapgen.db"

// ErrRunWithoutID is returned by SaveRun for a run with an empty ID.
var ErrRunWithoutID = errors.New("run has no ID")

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CrawlDB provides SQLite-based storage for crawl runs.
//
// Design decision: We use a single database file for all seeds rather
// than one file per site. This keeps `diff --list-seeds` a single query.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the path of the database file.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per finished crawl
	CREATE TABLE IF NOT EXISTS runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		seed TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		state TEXT NOT NULL,
		error TEXT,
		page_count INTEGER NOT NULL DEFAULT 0,
		indexable_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);

	-- One row per fetched page of a run
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		loc TEXT NOT NULL,
		lastmod TEXT,
		changefreq TEXT,
		priority REAL,
		indexable INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		status_code INTEGER,
		UNIQUE(run_id, loc)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished crawl run and its pages in one transaction.
func (cdb *CrawlDB) SaveRun(ctx context.Context, run *model.CrawlRun) (err error) {
	if run == nil || run.ID == "" {
		return ErrRunWithoutID
	}

	runJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // Original error takes precedence
		}
	}()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, seed, started_at, finished_at, state, error, page_count, indexable_count, failure_count, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seed,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.State,
		run.Error,
		len(run.Items),
		len(run.IndexableItems()),
		len(run.Failures),
		string(runJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, loc, lastmod, changefreq, priority, indexable, depth, status_code)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, loc) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range run.Items {
		var lastmod, priority any
		if item.HasLastMod() {
			lastmod = formatTime(*item.LastMod)
		}
		if item.Priority.Valid {
			priority = item.Priority.Value
		}
		if _, err = stmt.ExecContext(ctx,
			run.ID,
			item.Loc,
			lastmod,
			string(item.ChangeFreq),
			priority,
			item.Indexable,
			item.Depth,
			item.Response.StatusCode,
		); err != nil {
			return fmt.Errorf("failed to insert page %s: %w", item.Loc, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil, nil when no such run exists.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*model.CrawlRun, error) {
	var runJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT run_json FROM runs WHERE id = ?`, id).Scan(&runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeRun(runJSON)
}

// GetLatestRun retrieves the most recent run of seed.
// It returns nil, nil when the seed was never crawled.
func (cdb *CrawlDB) GetLatestRun(ctx context.Context, seed string) (*model.CrawlRun, error) {
	query := `
	SELECT run_json FROM runs
	WHERE seed = ?
	ORDER BY seq DESC
	LIMIT 1
	`

	var runJSON string
	err := cdb.db.QueryRowContext(ctx, query, seed).Scan(&runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return decodeRun(runJSON)
}

func decodeRun(runJSON string) (*model.CrawlRun, error) {
	var run model.CrawlRun
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	return &run, nil
}

// ListSeeds returns every seed that has at least one stored run.
func (cdb *CrawlDB) ListSeeds(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT seed FROM runs ORDER BY seed`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []string
	for rows.Next() {
		var seed string
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("failed to scan seed: %w", err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, rows.Err()
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying history without loading the full run.
type RunMetadata struct {
	// ID is the run ID.
	ID string

	// Seed is the crawled seed URL.
	Seed string

	// StartedAt is when the crawl started.
	StartedAt time.Time

	// FinishedAt is when the crawl finished.
	FinishedAt time.Time

	// State is the terminal crawl state.
	State string

	// PageCount is the number of fetched pages.
	PageCount int

	// IndexableCount is the number of pages that went into the sitemap.
	IndexableCount int

	// FailureCount is the number of failed fetches.
	FailureCount int
}

// GetRunHistory retrieves run metadata for seed, newest first.
func (cdb *CrawlDB) GetRunHistory(ctx context.Context, seed string) ([]RunMetadata, error) {
	query := `
	SELECT id, seed, started_at, finished_at, state, page_count, indexable_count, failure_count
	FROM runs
	WHERE seed = ?
	ORDER BY seq DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var startedAt, finishedAt string

		if err := rows.Scan(
			&meta.ID,
			&meta.Seed,
			&startedAt,
			&finishedAt,
			&meta.State,
			&meta.PageCount,
			&meta.IndexableCount,
			&meta.FailureCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}

		meta.StartedAt = parseTimestamp(startedAt)
		meta.FinishedAt = parseTimestamp(finishedAt)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// RunDiff is the difference between the sitemap URLs of two runs.
type RunDiff struct {
	// OldRunID is the earlier run.
	OldRunID string

	// NewRunID is the later run.
	NewRunID string

	// Added are indexable URLs present only in the new run, sorted.
	Added []string

	// Removed are indexable URLs present only in the old run, sorted.
	Removed []string

	// Unchanged is the number of indexable URLs present in both runs.
	Unchanged int
}

// HasChanges reports whether any URL was added or removed.
func (d *RunDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// CompareRuns computes the sitemap difference from oldID to newID.
func (cdb *CrawlDB) CompareRuns(ctx context.Context, oldID, newID string) (*RunDiff, error) {
	added, err := cdb.locsExcept(ctx, newID, oldID)
	if err != nil {
		return nil, err
	}
	removed, err := cdb.locsExcept(ctx, oldID, newID)
	if err != nil {
		return nil, err
	}

	query := `
	SELECT COUNT(*) FROM pages a
	JOIN pages b ON a.loc = b.loc
	WHERE a.run_id = ? AND b.run_id = ? AND a.indexable = 1 AND b.indexable = 1
	`
	var unchanged int
	if err := cdb.db.QueryRowContext(ctx, query, oldID, newID).Scan(&unchanged); err != nil {
		return nil, fmt.Errorf("failed to count unchanged pages: %w", err)
	}

	return &RunDiff{
		OldRunID:  oldID,
		NewRunID:  newID,
		Added:     added,
		Removed:   removed,
		Unchanged: unchanged,
	}, nil
}

// locsExcept returns the indexable locs of run a that are not indexable in run b.
func (cdb *CrawlDB) locsExcept(ctx context.Context, a, b string) ([]string, error) {
	query := `
	SELECT loc FROM pages WHERE run_id = ? AND indexable = 1
	EXCEPT
	SELECT loc FROM pages WHERE run_id = ? AND indexable = 1
	ORDER BY loc
	`

	rows, err := cdb.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to compare runs: %w", err)
	}
	defer rows.Close()

	var locs []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("failed to scan loc: %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// DeleteRun removes a run and its pages. Deleting an unknown ID is not an error.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id string) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE run_id = ?`, id); err != nil {
		_ = tx.Rollback() //nolint:errcheck // Original error takes precedence
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		_ = tx.Rollback() //nolint:errcheck // Original error takes precedence
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
