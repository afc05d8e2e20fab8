package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Job is one row of the durable dispatcher queue (H, queue mode), per
// §4.2: a priority envelope wrapping a task id. Workers re-read the
// authoritative Task row on pickup, so the envelope itself carries
// nothing beyond the id and retry bookkeeping.
type Job struct {
	ID       int64
	TaskID   uuid.UUID
	Attempts int
}

// EnqueueJob inserts a new queue row. priorityRank follows §4.2's
// "numerically, paid < free in smaller is more urgent" convention: 0 for
// paid, 1 for free.
func (g *Gateway) EnqueueJob(ctx context.Context, taskID uuid.UUID, priorityRank int) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO dispatch_jobs (task_id, priority_rank, attempts, available_at, created_at)
		VALUES ($1, $2, 0, now(), now())
	`, taskID, priorityRank)
	if err != nil {
		return fmt.Errorf("store: enqueue job: %w", err)
	}
	return nil
}

// ClaimNextJob atomically claims the highest-priority, earliest-eligible
// queued job with SELECT ... FOR UPDATE SKIP LOCKED, so concurrent
// workers never block on each other and never double-claim a row. The
// claiming transaction commits immediately; execution happens outside
// any lock, per §5's "suspension during a provider call must not hold
// any storage lock".
func (g *Gateway) ClaimNextJob(ctx context.Context) (*Job, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var j Job
	err = tx.QueryRowContext(ctx, `
		SELECT id, task_id, attempts FROM dispatch_jobs
		WHERE available_at <= now()
		ORDER BY priority_rank ASC, available_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&j.ID, &j.TaskID, &j.Attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim next job: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE dispatch_jobs SET locked_at = now() WHERE id = $1
	`, j.ID); err != nil {
		return nil, fmt.Errorf("store: mark job locked: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit job claim: %w", err)
	}
	return &j, nil
}

// CompleteJob removes a job row after its task finished executing
// (regardless of the task's own succeeded/failed outcome -- only engine
// errors that are retriable per §4.3's failure table call RetryJob
// instead).
func (g *Gateway) CompleteJob(ctx context.Context, jobID int64) error {
	_, err := g.db.ExecContext(ctx, `DELETE FROM dispatch_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("store: complete job: %w", err)
	}
	return nil
}

// RetryJob implements §4.2's "up to 3 attempts, exponential backoff
// starting at 5s": the caller passes the computed delay; once attempts
// exceeds the budget the caller should call FailJob instead.
func (g *Gateway) RetryJob(ctx context.Context, jobID int64, delaySeconds int) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE dispatch_jobs
		SET attempts = attempts + 1, available_at = now() + ($2 || ' seconds')::interval, locked_at = NULL
		WHERE id = $1
	`, jobID, delaySeconds)
	if err != nil {
		return fmt.Errorf("store: retry job: %w", err)
	}
	return nil
}

// FailJob drops a job that exhausted its retry budget; the task itself
// is marked failed separately by the executor/caller.
func (g *Gateway) FailJob(ctx context.Context, jobID int64) error {
	return g.CompleteJob(ctx, jobID)
}

// QueueDepth reports pending job counts by priority rank, for the
// dispatcher_queue_depth gauge.
func (g *Gateway) QueueDepth(ctx context.Context) (map[int]int64, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT priority_rank, count(*) FROM dispatch_jobs GROUP BY priority_rank
	`)
	if err != nil {
		return nil, fmt.Errorf("store: queue depth: %w", err)
	}
	defer rows.Close()

	depths := map[int]int64{}
	for rows.Next() {
		var rank int
		var n int64
		if err := rows.Scan(&rank, &n); err != nil {
			return nil, err
		}
		depths[rank] = n
	}
	return depths, rows.Err()
}
