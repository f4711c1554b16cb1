package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		items INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		completed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS item_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		name TEXT NOT NULL,
		run INTEGER NOT NULL,
		state INTEGER NOT NULL,
		error TEXT,
		display TEXT,
		duration_ms INTEGER NOT NULL,
		log TEXT,
		finished_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_item_runs_run_id ON item_runs(run_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
