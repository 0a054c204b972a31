// Package store persists processing outcomes in a sqlite ledger keyed by
// document fingerprint. The ledger lets batch runs skip inputs that were
// already processed and keeps boundary detection results across restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"stmtsep/internal/types"
)

// Outcome is the terminal state of a processed document.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeQuarantine Outcome = "quarantine"
)

// Record is one ledger row.
type Record struct {
	Fingerprint     string
	InputPath       string
	RunID           string
	Outcome         Outcome
	DetectionMethod types.Source
	Statements      int
	Detail          string
	CompletedAt     time.Time
}

// Ledger is the sqlite-backed processing history.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		fingerprint TEXT PRIMARY KEY,
		input_path TEXT NOT NULL,
		run_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detection_method TEXT NOT NULL,
		statements INTEGER NOT NULL,
		detail TEXT,
		completed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(completed_at);

	CREATE TABLE IF NOT EXISTS boundaries (
		fingerprint TEXT NOT NULL,
		total_pages INTEGER NOT NULL,
		detection_method TEXT NOT NULL,
		boundaries_json TEXT NOT NULL,
		saved_at DATETIME NOT NULL,
		PRIMARY KEY (fingerprint, total_pages)
	);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record upserts the outcome for a fingerprint. Reprocessing a document
// replaces its previous row.
func (l *Ledger) Record(r Record) error {
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(`
		INSERT INTO runs (fingerprint, input_path, run_id, outcome, detection_method, statements, detail, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			input_path = excluded.input_path,
			run_id = excluded.run_id,
			outcome = excluded.outcome,
			detection_method = excluded.detection_method,
			statements = excluded.statements,
			detail = excluded.detail,
			completed_at = excluded.completed_at`,
		r.Fingerprint, r.InputPath, r.RunID, string(r.Outcome), string(r.DetectionMethod),
		r.Statements, r.Detail, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Lookup returns the recorded outcome for a fingerprint, if any.
func (l *Ledger) Lookup(fingerprint string) (*Record, error) {
	row := l.db.QueryRow(`
		SELECT fingerprint, input_path, run_id, outcome, detection_method, statements, detail, completed_at
		FROM runs WHERE fingerprint = ?`, fingerprint)

	var r Record
	var outcome, method string
	err := row.Scan(&r.Fingerprint, &r.InputPath, &r.RunID, &outcome, &method,
		&r.Statements, &r.Detail, &r.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	r.Outcome = Outcome(outcome)
	r.DetectionMethod = types.Source(method)
	return &r, nil
}

// SaveBoundaries persists a detected boundary set for reuse across runs.
func (l *Ledger) SaveBoundaries(fingerprint string, totalPages int, set types.BoundarySet) error {
	data, err := json.Marshal(set.Boundaries)
	if err != nil {
		return fmt.Errorf("failed to marshal boundaries: %w", err)
	}
	_, err = l.db.Exec(`
		INSERT INTO boundaries (fingerprint, total_pages, detection_method, boundaries_json, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, total_pages) DO UPDATE SET
			detection_method = excluded.detection_method,
			boundaries_json = excluded.boundaries_json,
			saved_at = excluded.saved_at`,
		fingerprint, totalPages, string(set.DetectionMethod), string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save boundaries: %w", err)
	}
	return nil
}

// LoadBoundaries returns the persisted boundary set for a document, if any.
func (l *Ledger) LoadBoundaries(fingerprint string, totalPages int) (types.BoundarySet, bool, error) {
	row := l.db.QueryRow(`
		SELECT detection_method, boundaries_json
		FROM boundaries WHERE fingerprint = ? AND total_pages = ?`, fingerprint, totalPages)

	var method, data string
	err := row.Scan(&method, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.BoundarySet{}, false, nil
	}
	if err != nil {
		return types.BoundarySet{}, false, fmt.Errorf("failed to load boundaries: %w", err)
	}

	var boundaries []types.Boundary
	if err := json.Unmarshal([]byte(data), &boundaries); err != nil {
		return types.BoundarySet{}, false, fmt.Errorf("failed to decode boundaries: %w", err)
	}
	return types.BoundarySet{Boundaries: boundaries, DetectionMethod: types.Source(method)}, true, nil
}

// Counts returns the number of recorded runs per outcome.
func (l *Ledger) Counts() (success, quarantined int, err error) {
	rows, err := l.db.Query(`SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return 0, 0, err
		}
		switch Outcome(outcome) {
		case OutcomeSuccess:
			success = n
		case OutcomeQuarantine:
			quarantined = n
		}
	}
	return success, quarantined, rows.Err()
}
