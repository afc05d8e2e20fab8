package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/subvoxlabs/transcribe-api/task"
)

// ListTasksFilter scopes GET /tasks (§6): owner is mandatory (callers
// only ever see their own tasks), status optionally narrows by state, and
// cursor/limit page through results ordered by created_at descending.
type ListTasksFilter struct {
	UserID string
	AnonID string
	Status task.Status // empty means any status

	Cursor time.Time // zero means "from the most recent"
	Limit  int
}

// ListTasks returns up to filter.Limit tasks plus the cursor value to
// pass back for the next page (zero time when there are no more rows).
func (g *Gateway) ListTasks(ctx context.Context, filter ListTasksFilter) ([]*task.Task, time.Time, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, user_id, anon_id, source_type, task_type, is_trial, priority,
			source_url, params, status, engine, duration_sec, cost_minutes, error,
			created_at, updated_at
		FROM tasks
		WHERE ((user_id = $1 AND user_id <> '') OR (anon_id = $2 AND anon_id <> ''))
	`
	args := []interface{}{filter.UserID, filter.AnonID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.Cursor.IsZero() {
		args = append(args, filter.Cursor)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, time.Time{}, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	var nextCursor time.Time
	if len(tasks) == limit {
		nextCursor = tasks[len(tasks)-1].CreatedAt
	}
	return tasks, nextCursor, nil
}

func scanTaskRow(rows *sql.Rows) (*task.Task, error) {
	var t task.Task
	var paramsRaw []byte
	var engine, errMsg sql.NullString
	var durationSec sql.NullFloat64
	var costMinutes sql.NullInt64

	err := rows.Scan(&t.ID, &t.UserID, &t.AnonID, &t.SourceType, &t.TaskType, &t.IsTrial,
		&t.Priority, &t.SourceURL, &paramsRaw, &t.Status, &engine, &durationSec,
		&costMinutes, &errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan task row: %w", err)
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
