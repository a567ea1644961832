package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitecrawl/internal/dedup"
	"github.com/nao1215/sitecrawl/internal/model"
)

// FileName is the database file name inside the database directory.
const FileName = "sitecrawl.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB stores crawl runs and their pages.
//
// Design decision: We use a single database file for all seeds rather than
// one file per site. Runs of different seeds are independent rows, and one
// file keeps listing and backup simple.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
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

// Open opens or creates the history database in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no history at %s: run a crawl with --save first", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	// modernc.org/sqlite takes the open mode in the DSN: rwc may create
	// the file, rw requires it to exist.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per crawl of one seed
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		started TEXT NOT NULL,
		finished TEXT,
		stats TEXT,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);

	-- Page records emitted by a run
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		depth INTEGER NOT NULL,
		discovered_from TEXT,
		text_hash TEXT NOT NULL,
		text_len INTEGER NOT NULL,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// Run is a stored crawl run.
type Run struct {
	ID       int64
	Seed     string
	Started  time.Time
	Finished time.Time

	// Stats is the final snapshot; zero until the run is finished.
	Stats model.CrawlStats

	// Pages is the number of stored page records.
	Pages int

	// Error is set when the run ended early.
	Error string
}

// Done reports whether FinishRun was called for the run.
func (r *Run) Done() bool {
	return !r.Finished.IsZero()
}

// BeginRun creates a run for seed and returns its ID.
func (h *HistoryDB) BeginRun(ctx context.Context, seed string, started time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (seed, started) VALUES (?, ?)`,
		seed, formatTimestamp(started),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to begin run: %w", err)
	}
	return result.LastInsertId()
}

// SavePage stores one page record of a run.
// Saving the same URL twice in a run replaces the earlier row.
func (h *HistoryDB) SavePage(ctx context.Context, runID int64, rec model.PageRecord) error {
	var parent sql.NullString
	if !rec.IsSeed() {
		parent = sql.NullString{String: rec.Parent(), Valid: true}
	}

	query := `
	INSERT INTO pages (run_id, url, title, depth, discovered_from, text_hash, text_len)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		title = excluded.title,
		depth = excluded.depth,
		discovered_from = excluded.discovered_from,
		text_hash = excluded.text_hash,
		text_len = excluded.text_len
	`

	_, err := h.db.ExecContext(ctx, query,
		runID,
		rec.URL,
		rec.Title,
		rec.Depth,
		parent,
		dedup.ContentHash(rec.Text),
		len(rec.Text),
	)
	if err != nil {
		return fmt.Errorf("failed to save page %s: %w", rec.URL, err)
	}
	return nil
}

// FinishRun records the final stats of a run. errMsg is empty for a run
// that completed.
func (h *HistoryDB) FinishRun(ctx context.Context, runID int64, stats model.CrawlStats, finished time.Time, errMsg string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to serialize stats: %w", err)
	}

	result, err := h.db.ExecContext(ctx,
		`UPDATE runs SET finished = ?, stats = ?, error = ? WHERE id = ?`,
		formatTimestamp(finished), string(statsJSON), errMsg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `
	SELECT r.id, r.seed, r.started, r.finished, r.stats, r.error,
		(SELECT COUNT(*) FROM pages p WHERE p.run_id = r.id)
	FROM runs r
`

// GetRun returns one run.
func (h *HistoryDB) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := h.db.QueryRowContext(ctx, runColumns+` WHERE r.id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. An empty seed lists runs of
// every seed; limit <= 0 means no limit.
func (h *HistoryDB) ListRuns(ctx context.Context, seed string, limit int) ([]Run, error) {
	query := runColumns + ` WHERE 1=1`
	args := make([]any, 0, 2)

	if seed != "" {
		query += ` AND r.seed = ?`
		args = append(args, seed)
	}
	query += ` ORDER BY r.id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListSeeds returns every seed with at least one run, sorted.
func (h *HistoryDB) ListSeeds(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT seed FROM runs ORDER BY seed`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}
	defer rows.Close()

	seeds := make([]string, 0)
	for rows.Next() {
		var seed string
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("failed to scan seed: %w", err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, rows.Err()
}

// StoredPage is a page row without its text.
type StoredPage struct {
	URL            string
	Title          string
	Depth          int
	DiscoveredFrom string
	TextHash       string
	TextLen        int
}

// Pages returns the pages of a run in the order they were emitted.
func (h *HistoryDB) Pages(ctx context.Context, runID int64) ([]StoredPage, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT url, title, depth, discovered_from, text_hash, text_len
	FROM pages
	WHERE run_id = ?
	ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	pages := make([]StoredPage, 0)
	for rows.Next() {
		var p StoredPage
		var parent sql.NullString
		if err := rows.Scan(&p.URL, &p.Title, &p.Depth, &parent, &p.TextHash, &p.TextLen); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.DiscoveredFrom = parent.String
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// RunDiff lists how the pages of a newer run differ from an older run.
// All lists are sorted.
type RunDiff struct {
	OldRun  int64    `json:"old_run"`
	NewRun  int64    `json:"new_run"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`

	// Changed are URLs present in both runs whose text differs.
	Changed []string `json:"changed"`

	// Unchanged counts URLs present in both runs with the same text.
	Unchanged int `json:"unchanged"`
}

// Empty reports whether the two runs have the same pages and text.
func (d *RunDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares the pages of two runs.
func (h *HistoryDB) Diff(ctx context.Context, oldRunID, newRunID int64) (*RunDiff, error) {
	for _, id := range []int64{oldRunID, newRunID} {
		if _, err := h.GetRun(ctx, id); err != nil {
			return nil, err
		}
	}

	oldPages, err := h.pageHashes(ctx, oldRunID)
	if err != nil {
		return nil, err
	}
	newPages, err := h.pageHashes(ctx, newRunID)
	if err != nil {
		return nil, err
	}

	diff := &RunDiff{
		OldRun:  oldRunID,
		NewRun:  newRunID,
		Added:   make([]string, 0),
		Removed: make([]string, 0),
		Changed: make([]string, 0),
	}
	for url, hash := range newPages {
		oldHash, ok := oldPages[url]
		switch {
		case !ok:
			diff.Added = append(diff.Added, url)
		case oldHash != hash:
			diff.Changed = append(diff.Changed, url)
		default:
			diff.Unchanged++
		}
	}
	for url := range oldPages {
		if _, ok := newPages[url]; !ok {
			diff.Removed = append(diff.Removed, url)
		}
	}

	slices.Sort(diff.Added)
	slices.Sort(diff.Removed)
	slices.Sort(diff.Changed)
	return diff, nil
}

// DiffLatest compares the two most recent runs of seed. It returns nil
// when the seed has fewer than two runs.
func (h *HistoryDB) DiffLatest(ctx context.Context, seed string) (*RunDiff, error) {
	runs, err := h.ListRuns(ctx, seed, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, nil
	}
	return h.Diff(ctx, runs[1].ID, runs[0].ID)
}

func (h *HistoryDB) pageHashes(ctx context.Context, runID int64) (map[string]string, error) {
	pages, err := h.Pages(ctx, runID)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(pages))
	for _, p := range pages {
		hashes[p.URL] = p.TextHash
	}
	return hashes, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var started string
	var finished, stats sql.NullString

	if err := row.Scan(&run.ID, &run.Seed, &started, &finished, &stats, &run.Error, &run.Pages); err != nil {
		return nil, err
	}

	run.Started = parseTimestamp(started)
	if finished.Valid {
		run.Finished = parseTimestamp(finished.String)
	}
	if stats.Valid && stats.String != "" {
		if err := json.Unmarshal([]byte(stats.String), &run.Stats); err != nil {
			return nil, fmt.Errorf("failed to parse stats of run %d: %w", run.ID, err)
		}
	}
	return &run, nil
}

// formatTimestamp stores times in UTC with nanoseconds so that ordering by
// text matches ordering by time.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
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
