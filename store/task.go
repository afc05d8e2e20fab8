package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/subvoxlabs/transcribe-api/task"
)

// InsertPendingTask persists a new Task row in status=pending. It also
// enforces the concurrency gate (§4.1 step 4/5, (I2)): the insert fails
// with task.ErrConflict if the owner already has a task in {pending,
// processing}. Two concurrent admissions for the same owner take the
// same pg_advisory_xact_lock before reading, so the second one blocks
// until the first commits or rolls back and then observes existing>0 --
// closing the check-then-insert race that a plain SELECT then INSERT
// would leave open under READ COMMITTED.
func (g *Gateway) InsertPendingTask(ctx context.Context, t *task.Task) error {
	ownerKey := t.UserID
	if ownerKey == "" {
		ownerKey = t.AnonID
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerKey); err != nil {
		return fmt.Errorf("store: concurrency gate lock: %w", err)
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM tasks
		WHERE ((user_id = $1 AND user_id <> '') OR (anon_id = $2 AND anon_id <> ''))
		AND status IN ('pending', 'processing')
	`, t.UserID, t.AnonID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("store: concurrency gate check: %w", err)
	}
	if existing > 0 {
		return task.ErrConflict
	}

	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("store: marshal params: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, user_id, anon_id, source_type, task_type, is_trial, priority,
			source_url, params, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', now(), now())
	`, t.ID, t.UserID, t.AnonID, t.SourceType, t.TaskType, t.IsTrial, t.Priority,
		t.SourceURL, params)
	if err != nil {
		return fmt.Errorf("store: insert task: %w", err)
	}

	return tx.Commit()
}

// MarkProcessing performs the conditional pending->processing transition
// from §4.3 step 1. ok=false means another worker already picked the job
// up (at-least-once delivery); the caller must abort silently.
func (g *Gateway) MarkProcessing(ctx context.Context, id uuid.UUID) (ok bool, err error) {
	res, err := g.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("store: mark processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkSucceeded performs the terminal processing->succeeded transition
// from §4.3 step 7. cost_minutes is write-once per (I3).
func (g *Gateway) MarkSucceeded(ctx context.Context, id uuid.UUID, durationSec float64, costMinutes int, engine string) error {
	res, err := g.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'succeeded', duration_sec = $2, cost_minutes = $3,
			engine = $4, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, durationSec, costMinutes, engine)
	if err != nil {
		return fmt.Errorf("store: mark succeeded: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// MarkFailed performs the terminal transition to failed for a task that is
// still pending or processing. The sweeper (I) does not call it: it uses
// SweepStuckTasks, which scopes a similar update by staleness instead of
// task id.
func (g *Gateway) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	res, err := g.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'failed', error = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("store: mark failed: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// SweepStuckTasks implements §4.7: fail every task stuck in processing
// past the timeout, in one batch update, and returns how many were
// touched (for the sweeper's metric/log line).
func (g *Gateway) SweepStuckTasks(ctx context.Context, olderThanMinutes int) (int64, error) {
	res, err := g.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'failed', error = 'task timeout', updated_at = now()
		WHERE status = 'processing' AND updated_at < now() - ($1 || ' minutes')::interval
	`, olderThanMinutes)
	if err != nil {
		return 0, fmt.Errorf("store: sweep stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// PendingTaskIDs returns tasks still in status=pending, used by the
// in-process dispatcher's startup recovery step (§4.2, Open Question 1).
func (g *Gateway) PendingTaskIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT id FROM tasks WHERE status = 'pending'`)
	if err != nil {
		return nil, fmt.Errorf("store: pending task ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTask loads a task by id, for GET /tasks/{id} and for workers
// re-reading the authoritative row on pickup (§4.2: "workers re-read the
// authoritative row from A on pickup").
func (g *Gateway) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, user_id, anon_id, source_type, task_type, is_trial, priority,
			source_url, params, status, engine, duration_sec, cost_minutes, error,
			created_at, updated_at
		FROM tasks WHERE id = $1
	`, id)
	return scanTask(row)
}

func scanTask(row *sql.Row) (*task.Task, error) {
	var t task.Task
	var paramsRaw []byte
	var engine, errMsg sql.NullString
	var durationSec sql.NullFloat64
	var costMinutes sql.NullInt64

	err := row.Scan(&t.ID, &t.UserID, &t.AnonID, &t.SourceType, &t.TaskType, &t.IsTrial,
		&t.Priority, &t.SourceURL, &paramsRaw, &t.Status, &engine, &durationSec,
		&costMinutes, &errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan task: %w", err)
	}

	t.Engine = engine.String
	t.DurationSec = durationSec.Float64
	t.CostMinutes = int(costMinutes.Int64)
	t.Error = errMsg.String
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &t.Params); err != nil {
			return nil, fmt.Errorf("store: unmarshal params: %w", err)
		}
	}
	return &t, nil
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
