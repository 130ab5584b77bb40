package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shaker/internal/report"
)

// Run is one recorded pass.
type Run struct {
	PassID       string
	CreatedAt    time.Time
	Input        string
	Entries      []string
	ModulesIn    int
	ModulesOut   int
	PartsKept    int
	PartsDropped int
	EdgesDropped int
	SourceBytes  int
	DurationMs   int64
}

// RunModule is one retained module of a recorded pass.
type RunModule struct {
	PassID       string
	Path         string
	Full         bool
	DeferredOnly bool
	LiveBindings []string
	Bytes        int
	Hash         string
}

// RunRepository provides operations on the runs tables
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save records a pass report. input names the graph or source root the pass
// read.
func (r *RunRepository) Save(rep *report.Report, input string) error {
	entries, err := json.Marshal(rep.Entries)
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	full, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	err = r.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (
				pass_id, created_at, input, entries_json,
				modules_in, modules_out, parts_kept, parts_dropped, edges_dropped,
				source_bytes, duration_ms, report_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rep.PassID,
			rep.GeneratedAt.UTC().Format(time.RFC3339),
			input,
			string(entries),
			rep.Summary.ModulesIn,
			rep.Summary.ModulesOut,
			rep.Summary.PartsKept,
			rep.Summary.PartsDropped,
			rep.Summary.EdgesDropped,
			rep.Summary.SourceBytes,
			rep.Summary.DurationMs,
			string(full),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for _, m := range rep.Modules {
			live, err := json.Marshal(m.LiveBindings)
			if err != nil {
				return fmt.Errorf("failed to encode live bindings: %w", err)
			}
			if _, err := tx.Exec(`
				INSERT INTO run_modules (pass_id, path, full, deferred_only, live_bindings, bytes, hash)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, rep.PassID, m.Path, m.Full, m.DeferredOnly, string(live), m.Bytes, m.Hash); err != nil {
				return fmt.Errorf("failed to insert run module: %w", err)
			}
		}

		for i, d := range rep.Diagnostics {
			if _, err := tx.Exec(`
				INSERT INTO run_diagnostics (pass_id, seq, code, module, specifier, name, message)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, rep.PassID, i, d.Code, d.Module, d.Specifier, d.Name, d.Message); err != nil {
				return fmt.Errorf("failed to insert diagnostic: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.db.logger.Debug("Run recorded", "pass", rep.PassID, "modules", len(rep.Modules))
	return nil
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	query := `
		SELECT pass_id, created_at, input, entries_json,
			modules_in, modules_out, parts_kept, parts_dropped, edges_dropped,
			source_bytes, duration_ms
		FROM runs
		ORDER BY created_at DESC, rowid DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with passID, or nil when none exists.
func (r *RunRepository) Get(passID string) (*Run, error) {
	row := r.db.conn.QueryRow(`
		SELECT pass_id, created_at, input, entries_json,
			modules_in, modules_out, parts_kept, parts_dropped, edges_dropped,
			source_bytes, duration_ms
		FROM runs
		WHERE pass_id = ?
	`, passID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// Report returns the full report stored for passID, or nil when none exists.
func (r *RunRepository) Report(passID string) (*report.Report, error) {
	var data string
	err := r.db.conn.QueryRow("SELECT report_json FROM runs WHERE pass_id = ?", passID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var rep report.Report
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		return nil, fmt.Errorf("invalid stored report: %w", err)
	}
	return &rep, nil
}

// Modules returns the retained modules of a run in path order.
func (r *RunRepository) Modules(passID string) ([]*RunModule, error) {
	rows, err := r.db.conn.Query(`
		SELECT pass_id, path, full, deferred_only, live_bindings, bytes, hash
		FROM run_modules
		WHERE pass_id = ?
		ORDER BY path
	`, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run modules: %w", err)
	}
	defer rows.Close()
	return scanRunModules(rows)
}

// ModuleHistory returns every recorded state of one module, newest run first.
func (r *RunRepository) ModuleHistory(path string) ([]*RunModule, error) {
	rows, err := r.db.conn.Query(`
		SELECT m.pass_id, m.path, m.full, m.deferred_only, m.live_bindings, m.bytes, m.hash
		FROM run_modules m
		JOIN runs r ON r.pass_id = m.pass_id
		WHERE m.path = ?
		ORDER BY r.created_at DESC, r.rowid DESC
	`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get module history: %w", err)
	}
	defer rows.Close()
	return scanRunModules(rows)
}

// Diagnostics returns the diagnostics of a run in recorded order.
func (r *RunRepository) Diagnostics(passID string) ([]report.DiagnosticReport, error) {
	rows, err := r.db.conn.Query(`
		SELECT code, module, COALESCE(specifier, ''), COALESCE(name, ''), message
		FROM run_diagnostics
		WHERE pass_id = ?
		ORDER BY seq
	`, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnostics: %w", err)
	}
	defer rows.Close()

	var out []report.DiagnosticReport
	for rows.Next() {
		var d report.DiagnosticReport
		if err := rows.Scan(&d.Code, &d.Module, &d.Specifier, &d.Name, &d.Message); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagnostics: %w", err)
	}
	return out, nil
}

// Prune deletes all but the newest keep runs and returns how many were
// removed.
func (r *RunRepository) Prune(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var removed int64
	err := r.db.WithTx(func(tx *sql.Tx) error {
		const stale = `pass_id NOT IN (SELECT pass_id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?)`
		for _, table := range []string{"run_modules", "run_diagnostics"} {
			if _, err := tx.Exec("DELETE FROM "+table+" WHERE "+stale, keep); err != nil {
				return err
			}
		}
		res, err := tx.Exec("DELETE FROM runs WHERE "+stale, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var createdAt, entries string
	err := row.Scan(
		&run.PassID,
		&createdAt,
		&run.Input,
		&entries,
		&run.ModulesIn,
		&run.ModulesOut,
		&run.PartsKept,
		&run.PartsDropped,
		&run.EdgesDropped,
		&run.SourceBytes,
		&run.DurationMs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at format: %w", err)
	}
	if err := json.Unmarshal([]byte(entries), &run.Entries); err != nil {
		return nil, fmt.Errorf("invalid entries: %w", err)
	}
	return &run, nil
}

func scanRunModules(rows *sql.Rows) ([]*RunModule, error) {
	var modules []*RunModule
	for rows.Next() {
		var m RunModule
		var live string
		var hash sql.NullString
		if err := rows.Scan(&m.PassID, &m.Path, &m.Full, &m.DeferredOnly, &live, &m.Bytes, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan run module: %w", err)
		}
		if err := json.Unmarshal([]byte(live), &m.LiveBindings); err != nil {
			return nil, fmt.Errorf("invalid live bindings: %w", err)
		}
		m.Hash = hash.String
		modules = append(modules, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run modules: %w", err)
	}
	return modules, nil
}
