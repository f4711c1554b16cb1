package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aristath/nodemanager/internal/engine"
)

// StartRun records the start of a run and returns its ID. IDs sort by start time.
func (s *SQLiteStore) StartRun(ctx context.Context, operation string, items int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, operation, items, started_at)
		VALUES (?, ?, ?, ?)
	`, id, operation, items, now.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordItem stores one finished item run.
func (s *SQLiteStore) RecordItem(ctx context.Context, runID string, record engine.ItemRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_runs (run_id, item_id, name, run, state, error, display, duration_ms, log, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, record.ItemID, record.Name, record.Run, int(record.State), record.Err, record.Display,
		record.Duration.Milliseconds(), record.Log, record.At.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert item %s: %w", record.Name, err)
	}
	return nil
}

// FinishRun stores the outcome of a run. A run can finish more than once
// when items are restarted; the last summary wins.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, summary engine.Summary) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, items = ?, completed = ?, failed = ?, cancelled = ?, success = ?
		WHERE id = ?
	`, time.Now().UnixNano(), summary.Items, summary.Completed, summary.Failed, summary.Cancelled, summary.Success, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all of them.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, items, started_at, finished_at, completed, failed, cancelled, success
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, operation, items, started_at, finished_at, completed, failed, cancelled, success
		FROM runs
		WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListItems returns the item records of a run in the order they finished.
func (s *SQLiteStore) ListItems(ctx context.Context, runID string) ([]engine.ItemRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, name, run, state, error, display, duration_ms, log, finished_at
		FROM item_runs
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var records []engine.ItemRecord
	for rows.Next() {
		var (
			r          engine.ItemRecord
			state      int
			errStr     sql.NullString
			display    sql.NullString
			logText    sql.NullString
			durationMS int64
			at         int64
		)
		if err := rows.Scan(&r.ItemID, &r.Name, &r.Run, &state, &errStr, &display, &durationMS, &logText, &at); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		r.State = engine.State(state)
		r.Err = errStr.String
		r.Display = display.String
		r.Log = logText.String
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.At = time.Unix(0, at)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&run.ID, &run.Operation, &run.Items, &started, &finished,
		&run.Summary.Completed, &run.Summary.Failed, &run.Summary.Cancelled, &run.Summary.Success)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Summary.Items = run.Items
	run.StartedAt = time.Unix(0, started)
	if finished.Valid {
		run.FinishedAt = time.Unix(0, finished.Int64)
	}
	return &run, nil
}
