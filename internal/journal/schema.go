package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// ErrSchemaMismatch is returned when an existing database does not carry the
// journal tables and columns.
var ErrSchemaMismatch = errors.New("journal schema mismatch")

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS requests (
		request_id TEXT PRIMARY KEY,
		api_version INTEGER NOT NULL,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		payload TEXT,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		UNIQUE(request_id, api_version)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_requests_end_time ON requests(end_time);`,

	`CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL REFERENCES requests(request_id) ON DELETE CASCADE,
		stream_type TEXT NOT NULL, -- stdout, stderr, event
		time_stamp INTEGER NOT NULL,
		raw_line TEXT,
		json_payload TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_logs_request_id ON logs(request_id);`,

	`CREATE TABLE IF NOT EXISTS servers (
		server_id TEXT PRIMARY KEY,
		server_capabilities TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS containers (
		container_id TEXT PRIMARY KEY,
		container_path TEXT NOT NULL,
		container_apps TEXT
	);`,
}

// expectedColumns lists, per table, the columns the journal reads and writes.
var expectedColumns = map[string][]string{
	"requests":   {"request_id", "api_version", "origin", "destination", "payload", "start_time", "end_time"},
	"logs":       {"id", "request_id", "stream_type", "time_stamp", "raw_line", "json_payload"},
	"servers":    {"server_id", "server_capabilities"},
	"containers": {"container_id", "container_path", "container_apps"},
}

// ensureSchema creates every table when none exist and otherwise verifies the
// existing layout.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	present, err := existingTables(ctx, db)
	if err != nil {
		return err
	}

	switch {
	case len(present) == 0:
		return createSchema(ctx, db)
	case len(present) != len(expectedColumns):
		return fmt.Errorf("%w: found tables %v", ErrSchemaMismatch, present)
	}

	for table, want := range expectedColumns {
		have, err := tableColumns(ctx, db, table)
		if err != nil {
			return err
		}

		for _, col := range want {
			if !slices.Contains(have, col) {
				return fmt.Errorf("%w: table %s lacks column %s", ErrSchemaMismatch, table, col)
			}
		}
	}

	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range createStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create journal schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	return nil
}

func existingTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('requests', 'logs', 'servers', 'containers') ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("inspect journal schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	// table is one of the fixed names in expectedColumns.
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info('"+table+"')")
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		cols = append(cols, name)
	}

	return cols, rows.Err()
}
