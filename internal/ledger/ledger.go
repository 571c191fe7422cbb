// Package ledger records the outcome of every candidate a run processes in a
// local SQLite file, so interrupted runs can be resumed and failures
// inspected afterwards.
package ledger

import (
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Outcome is the result of one candidate.
type Outcome string

const (
	OK      Outcome = "ok"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
)

// Record is one ledger row.
type Record struct {
	Variant  string
	Kernel   string
	Position int
	Index    int64
	Outcome  Outcome
	ErrKind  string
	Message  string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	started_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE TABLE IF NOT EXISTS outcomes (
	id           INTEGER PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(run_id),
	variant      TEXT NOT NULL,
	kernel       TEXT NOT NULL,
	position     INTEGER NOT NULL,
	sample_index INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	error_kind   TEXT,
	message      TEXT,
	recorded_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS outcomes_by_kernel ON outcomes (variant, kernel, outcome);
`

// Ledger is safe for concurrent use; writes are serialized on one
// connection.
type Ledger struct {
	mu    sync.Mutex
	conn  *sqlite.Conn
	runID string
}

// Open opens or creates the ledger at path and registers runID.
func Open(path, runID string) (*Ledger, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	for _, p := range []string{"PRAGMA synchronous = NORMAL", "PRAGMA journal_mode = WAL"} {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ledger %s: %w", p, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create ledger tables: %w", err)
	}
	if err := sqlitex.Execute(conn, `INSERT OR IGNORE INTO runs (run_id) VALUES (?)`, &sqlitex.ExecOptions{Args: []any{runID}}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register run %s: %w", runID, err)
	}
	return &Ledger{conn: conn, runID: runID}, nil
}

func (l *Ledger) RunID() string { return l.runID }

// Record appends r under the ledger's run.
func (l *Ledger) Record(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := sqlitex.Execute(l.conn,
		`INSERT INTO outcomes (run_id, variant, kernel, position, sample_index, outcome, error_kind, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{l.runID, r.Variant, r.Kernel, int64(r.Position), r.Index, string(r.Outcome), r.ErrKind, r.Message}})
	if err != nil {
		return fmt.Errorf("record outcome of %s/%s #%d: %w", r.Variant, r.Kernel, r.Position, err)
	}
	return nil
}

// Completed returns the sample indices of a variant's kernel that any run
// has generated successfully.
func (l *Ledger) Completed(variant, kernel string) (map[int64]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int64]bool)
	err := sqlitex.Execute(l.conn,
		`SELECT DISTINCT sample_index FROM outcomes WHERE variant = ? AND kernel = ? AND outcome = ?`,
		&sqlitex.ExecOptions{
			Args: []any{variant, kernel, string(OK)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out[stmt.ColumnInt64(0)] = true
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("query completed samples of %s/%s: %w", variant, kernel, err)
	}
	return out, nil
}

// Summary counts this run's outcomes.
func (l *Ledger) Summary() (map[Outcome]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Outcome]int)
	err := sqlitex.Execute(l.conn,
		`SELECT outcome, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY outcome`,
		&sqlitex.ExecOptions{
			Args: []any{l.runID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out[Outcome(stmt.ColumnText(0))] = stmt.ColumnInt(1)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("summarize run %s: %w", l.runID, err)
	}
	return out, nil
}

// Failures lists this run's failed candidates in the order they were
// recorded.
func (l *Ledger) Failures() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	err := sqlitex.Execute(l.conn,
		`SELECT variant, kernel, position, sample_index, error_kind, message FROM outcomes
		 WHERE run_id = ? AND outcome = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{l.runID, string(Failed)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Record{
					Variant:  stmt.ColumnText(0),
					Kernel:   stmt.ColumnText(1),
					Position: stmt.ColumnInt(2),
					Index:    stmt.ColumnInt64(3),
					Outcome:  Failed,
					ErrKind:  stmt.ColumnText(4),
					Message:  stmt.ColumnText(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("list failures of run %s: %w", l.runID, err)
	}
	return out, nil
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Close()
}
