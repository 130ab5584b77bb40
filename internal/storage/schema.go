package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 2

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createRunsTable(tx); err != nil {
			return err
		}
		if err := createRunModulesTable(tx); err != nil {
			return err
		}
		if err := createRunDiagnosticsTable(tx); err != nil {
			return err
		}
		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	db.logger.Info("Running database migrations", "from_version", version, "to_version", currentSchemaVersion)

	if version < 2 {
		if err := db.migrateToV2(); err != nil {
			return err
		}
	}
	return nil
}

// migrateToV2 adds the per-run diagnostics table.
func (db *DB) migrateToV2() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createRunDiagnosticsTable(tx); err != nil {
			return err
		}
		return setSchemaVersion(tx, 2)
	})
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.conn.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createSchemaVersionTable creates the schema_version tracking table
func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createRunsTable creates the runs table, one row per pass
func createRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			pass_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			input TEXT NOT NULL,
			entries_json TEXT NOT NULL,
			modules_in INTEGER NOT NULL,
			modules_out INTEGER NOT NULL,
			parts_kept INTEGER NOT NULL,
			parts_dropped INTEGER NOT NULL,
			edges_dropped INTEGER NOT NULL,
			source_bytes INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			report_json TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`)
	return err
}

// createRunModulesTable creates the run_modules table
func createRunModulesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS run_modules (
			pass_id TEXT NOT NULL,
			path TEXT NOT NULL,
			full INTEGER NOT NULL,
			deferred_only INTEGER NOT NULL,
			live_bindings TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			hash TEXT,
			PRIMARY KEY (pass_id, path),
			FOREIGN KEY (pass_id) REFERENCES runs(pass_id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_run_modules_path ON run_modules(path)`)
	return err
}

// createRunDiagnosticsTable creates the run_diagnostics table
func createRunDiagnosticsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS run_diagnostics (
			pass_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			code TEXT NOT NULL,
			module TEXT NOT NULL,
			specifier TEXT,
			name TEXT,
			message TEXT NOT NULL,
			PRIMARY KEY (pass_id, seq),
			FOREIGN KEY (pass_id) REFERENCES runs(pass_id) ON DELETE CASCADE
		)
	`)
	return err
}
