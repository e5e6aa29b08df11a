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

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/linkcheck/internal/model"
)

// DBFileName is the name of the history database file.
const DBFileName = "linkcheck.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// HistoryDB provides SQLite-based storage for run history.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
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
// With CreateIfNotExists false, a missing database is an error.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	var dsn string
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
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

	if err := hdb.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		documents INTEGER NOT NULL,
		reference_count INTEGER NOT NULL,
		ignored INTEGER NOT NULL,
		remote_probes INTEGER NOT NULL,
		broken_count INTEGER NOT NULL,
		digest TEXT,
		steps TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root ON runs(root, started_at);

	CREATE TABLE IF NOT EXISTS broken_links (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		document TEXT NOT NULL,
		line TEXT NOT NULL,
		UNIQUE(run_id, document, line)
	);

	CREATE INDEX IF NOT EXISTS idx_broken_run ON broken_links(run_id);
	`
	_, err := h.db.ExecContext(ctx, schema)
	return err
}

// SaveRun records run and its broken references. A run without an ID is
// assigned a new UUID, which is written back to run.ID.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to serialize steps: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // Rollback after Commit is a no-op

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, root, started_at, duration_ns, documents, reference_count,
		ignored, remote_probes, broken_count, digest, steps)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Root,
		run.StartedAt.UTC().Format(timeLayout),
		int64(run.Duration),
		run.Documents,
		run.References,
		run.Ignored,
		run.RemoteProbes,
		run.Report.BrokenCount(),
		run.Digest,
		string(steps),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, doc := range run.Report.Documents() {
		for _, line := range run.Report.Lines(doc) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO broken_links (run_id, document, line) VALUES (?, ?, ?)`,
				run.ID, doc, line,
			); err != nil {
				return fmt.Errorf("failed to save broken link: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunMetadata is the stored summary of a run without its report.
type RunMetadata struct {
	ID           string
	Root         string
	StartedAt    time.Time
	Duration     time.Duration
	Documents    int
	References   int
	Ignored      int
	RemoteProbes int
	BrokenCount  int
	Digest       string
}

const metadataColumns = `id, root, started_at, duration_ns, documents, reference_count,
	ignored, remote_probes, broken_count, digest`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (RunMetadata, error) {
	var meta RunMetadata
	var startedAt string
	var durationNS int64
	var digest sql.NullString

	if err := row.Scan(
		&meta.ID,
		&meta.Root,
		&startedAt,
		&durationNS,
		&meta.Documents,
		&meta.References,
		&meta.Ignored,
		&meta.RemoteProbes,
		&meta.BrokenCount,
		&digest,
	); err != nil {
		return RunMetadata{}, err
	}

	meta.StartedAt = parseTimestamp(startedAt)
	meta.Duration = time.Duration(durationNS)
	meta.Digest = digest.String
	return meta, nil
}

// LatestRuns returns up to limit runs for root, newest first.
// A non-positive limit returns all runs.
func (h *HistoryDB) LatestRuns(ctx context.Context, root string, limit int) ([]RunMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM runs
	WHERE root = ?
	ORDER BY started_at DESC, rowid DESC`
	args := []any{root}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetRun loads a run and its report by ID.
func (h *HistoryDB) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+metadataColumns+`, steps FROM runs WHERE id = ?`, id)

	var meta RunMetadata
	var startedAt string
	var durationNS int64
	var digest, steps sql.NullString
	err := row.Scan(
		&meta.ID,
		&meta.Root,
		&startedAt,
		&durationNS,
		&meta.Documents,
		&meta.References,
		&meta.Ignored,
		&meta.RemoteProbes,
		&meta.BrokenCount,
		&digest,
		&steps,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run := &model.Run{
		ID:           meta.ID,
		Root:         meta.Root,
		StartedAt:    parseTimestamp(startedAt),
		Duration:     time.Duration(durationNS),
		Documents:    meta.Documents,
		References:   meta.References,
		Ignored:      meta.Ignored,
		RemoteProbes: meta.RemoteProbes,
		Digest:       digest.String,
		Report:       model.NewLinkReport(),
	}
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &run.Steps); err != nil {
			return nil, fmt.Errorf("failed to parse steps: %w", err)
		}
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT document, line FROM broken_links WHERE run_id = ? ORDER BY document, line`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query broken links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc, line string
		if err := rows.Scan(&doc, &line); err != nil {
			return nil, fmt.Errorf("failed to scan broken link: %w", err)
		}
		run.Report.Broken[doc] = append(run.Report.Broken[doc], line)
	}
	return run, rows.Err()
}

// ListRoots returns every root with recorded runs, sorted.
func (h *HistoryDB) ListRoots(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT root FROM runs ORDER BY root`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

// parseTimestamp parses a stored timestamp, returning the zero time for
// unparsable values.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
