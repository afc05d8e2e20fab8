package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/subvoxlabs/transcribe-api/task"
)

var listColumns = []string{
	"id", "user_id", "anon_id", "source_type", "task_type", "is_trial", "priority",
	"source_url", "params", "status", "engine", "duration_sec", "cost_minutes", "error",
	"created_at", "updated_at",
}

func TestListTasks_ReturnsRowsNoNextPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := New(db)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT id, user_id, anon_id.*FROM tasks`).
		WithArgs("u1", "", 50).
		WillReturnRows(sqlmock.NewRows(listColumns).
			AddRow(id, "u1", "", "upload", "transcription", false, "paid",
				"https://example.com/a.mp4", []byte(`{}`), "succeeded", "sync-stt", 1.5, 2, "",
				now, now))

	tasks, next, err := g.ListTasks(context.Background(), ListTasksFilter{UserID: "u1", Limit: 50})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, task.StatusSucceeded, tasks[0].Status)
	require.True(t, next.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTasks_FullPageReturnsNextCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := New(db)
	now := time.Now()

	rows := sqlmock.NewRows(listColumns)
	for i := 0; i < 2; i++ {
		rows.AddRow(uuid.New(), "", "anon-1", "upload", "transcription", true, "free",
			"https://example.com/a.mp4", []byte(`{}`), "pending", "", nil, nil, "",
			now.Add(-time.Duration(i)*time.Minute), now)
	}

	mock.ExpectQuery(`SELECT id, user_id, anon_id.*FROM tasks`).
		WithArgs("", "anon-1", 2).
		WillReturnRows(rows)

	tasks, next, err := g.ListTasks(context.Background(), ListTasksFilter{AnonID: "anon-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.False(t, next.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTasks_StatusAndCursorFilterApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := New(db)
	cursor := time.Now()

	mock.ExpectQuery(`SELECT id, user_id, anon_id.*FROM tasks`).
		WithArgs("u1", "", "failed", cursor, 50).
		WillReturnRows(sqlmock.NewRows(listColumns))

	tasks, next, err := g.ListTasks(context.Background(), ListTasksFilter{
		UserID: "u1",
		Status: task.StatusFailed,
		Cursor: cursor,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 0)
	require.True(t, next.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
