package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/castlebay/importsvc/internal/core"
)

// RunStatusRolledBack marks runs whose products were deleted again.
const RunStatusRolledBack = "rolled_back"

// RunEntry is one row of import history.
type RunEntry struct {
	ImportID   string           `json:"import_id"`
	FileName   string           `json:"file_name"`
	Stats      core.ImportStats `json:"stats"`
	Status     string           `json:"status"`
	DurationMs int64            `json:"duration_ms"`
	CreatedAt  time.Time        `json:"created_at"`
}

// RecordRun stores the summary of a finished import run.
func (s *Store) RecordRun(ctx context.Context, run core.RunSummary) error {
	importUUID, err := uuid.Parse(run.ImportID)
	if err != nil {
		return fmt.Errorf("invalid import ID %q: %w", run.ImportID, err)
	}

	const query = `
		INSERT INTO import_runs
			(id, owner_id, file_name, total_rows, processed_rows, success_rows,
			 error_rows, warning_rows, skipped_rows, status, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, query,
		importUUID,
		run.OwnerID,
		toPgText(run.FileName),
		run.Stats.Total,
		run.Stats.Processed,
		run.Stats.Success,
		run.Stats.Errors,
		run.Stats.Warnings,
		run.Stats.Skipped,
		string(run.Status),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordFailedRows stores the rejected rows of a run for later export.
func (s *Store) RecordFailedRows(ctx context.Context, importID string, rows []core.FailedRow) error {
	if len(rows) == 0 {
		return nil
	}

	importUUID, err := uuid.Parse(importID)
	if err != nil {
		return fmt.Errorf("invalid import ID %q: %w", importID, err)
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO import_failed_rows (import_id, line_number, reason, row_data)
		VALUES ($1, $2, $3, $4)`
	for _, row := range rows {
		batch.Queue(query, importUUID, row.Line, row.Reason, row.Data)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("record failed row: %w", err)
		}
	}
	return nil
}

// History returns an owner's import runs, newest first.
func (s *Store) History(ctx context.Context, ownerID uuid.UUID, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, file_name, total_rows, processed_rows, success_rows,
		       error_rows, warning_rows, skipped_rows, status, duration_ms, created_at
		FROM import_runs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]RunEntry, 0, limit)
	for rows.Next() {
		var (
			id       uuid.UUID
			fileName *string
			e        RunEntry
		)
		err := rows.Scan(&id, &fileName,
			&e.Stats.Total, &e.Stats.Processed, &e.Stats.Success,
			&e.Stats.Errors, &e.Stats.Warnings, &e.Stats.Skipped,
			&e.Status, &e.DurationMs, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.ImportID = id.String()
		if fileName != nil {
			e.FileName = *fileName
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return entries, nil
}

// FailedRows returns the rejected rows stored for a run, in file order.
func (s *Store) FailedRows(ctx context.Context, importID string) ([]core.FailedRow, error) {
	importUUID, err := uuid.Parse(importID)
	if err != nil {
		return nil, fmt.Errorf("invalid import ID %q: %w", importID, err)
	}

	const query = `
		SELECT line_number, reason, row_data
		FROM import_failed_rows
		WHERE import_id = $1
		ORDER BY line_number`

	rows, err := s.pool.Query(ctx, query, importUUID)
	if err != nil {
		return nil, fmt.Errorf("query failed rows: %w", err)
	}
	defer rows.Close()

	var out []core.FailedRow
	for rows.Next() {
		var fr core.FailedRow
		if err := rows.Scan(&fr.Line, &fr.Reason, &fr.Data); err != nil {
			return nil, fmt.Errorf("scan failed row: %w", err)
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed rows: %w", err)
	}
	return out, nil
}

// RollbackResult reports the outcome of undoing an import.
type RollbackResult struct {
	ImportID    string `json:"import_id"`
	RowsDeleted int64  `json:"rows_deleted"`
}

// RollbackImport deletes every product a run inserted and marks the run
// rolled back, atomically. A run can only be rolled back once.
func (s *Store) RollbackImport(ctx context.Context, ownerID uuid.UUID, importID string) (RollbackResult, error) {
	result := RollbackResult{ImportID: importID}

	importUUID, err := uuid.Parse(importID)
	if err != nil {
		return result, fmt.Errorf("invalid import ID %q: %w", importID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin rollback: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM import_runs WHERE id = $1 AND owner_id = $2 FOR UPDATE`,
		importUUID, ownerID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return result, fmt.Errorf("import not found: %s", importID)
	}
	if err != nil {
		return result, fmt.Errorf("lookup run: %w", err)
	}
	if status == RunStatusRolledBack {
		return result, fmt.Errorf("import already rolled back")
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM products WHERE import_id = $1 AND owner_id = $2`,
		importUUID, ownerID,
	)
	if err != nil {
		return result, fmt.Errorf("delete products: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE import_runs SET status = $1 WHERE id = $2`,
		RunStatusRolledBack, importUUID,
	)
	if err != nil {
		return result, fmt.Errorf("mark rolled back: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit rollback: %w", err)
	}

	result.RowsDeleted = tag.RowsAffected()
	return result, nil
}
