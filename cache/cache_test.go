package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/subvoxlabs/transcribe-api/task"
)

type fakeStore struct {
	inserted  int
	conflict  bool
	tasksByID map[uuid.UUID]*task.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasksByID: map[uuid.UUID]*task.Task{}}
}

func (f *fakeStore) InsertPendingTask(ctx context.Context, t *task.Task) error {
	if f.conflict {
		return task.ErrConflict
	}
	f.inserted++
	f.tasksByID[t.ID] = t
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return f.tasksByID[id], nil
}

func (f *fakeStore) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) { return true, nil }

func (f *fakeStore) MarkSucceeded(ctx context.Context, id uuid.UUID, durationSec float64, costMinutes int, engine string) error {
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error { return nil }

func (f *fakeStore) UpsertTranscript(ctx context.Context, tr *task.Transcript) error { return nil }

func TestGatedStore_SecondInsertForSameOwnerRejectedLocally(t *testing.T) {
	fs := newFakeStore()
	g := NewGatedStore(fs)

	t1 := &task.Task{ID: task.NewID(), UserID: "u1"}
	require.NoError(t, g.InsertPendingTask(context.Background(), t1))
	require.Equal(t, 1, fs.inserted)

	t2 := &task.Task{ID: task.NewID(), UserID: "u1"}
	err := g.InsertPendingTask(context.Background(), t2)
	require.ErrorIs(t, err, task.ErrConflict)
	require.Equal(t, 1, fs.inserted, "second insert must not reach the wrapped store")
}

func TestGatedStore_DifferentOwnersBothAdmitted(t *testing.T) {
	fs := newFakeStore()
	g := NewGatedStore(fs)

	require.NoError(t, g.InsertPendingTask(context.Background(), &task.Task{ID: task.NewID(), UserID: "u1"}))
	require.NoError(t, g.InsertPendingTask(context.Background(), &task.Task{ID: task.NewID(), UserID: "u2"}))
	require.Equal(t, 2, fs.inserted)
}

func TestGatedStore_MarkSucceededClearsFastPath(t *testing.T) {
	fs := newFakeStore()
	g := NewGatedStore(fs)

	t1 := &task.Task{ID: task.NewID(), UserID: "u1"}
	require.NoError(t, g.InsertPendingTask(context.Background(), t1))
	require.NoError(t, g.MarkSucceeded(context.Background(), t1.ID, 60, 1, "sync-stt"))

	t2 := &task.Task{ID: task.NewID(), UserID: "u1"}
	require.NoError(t, g.InsertPendingTask(context.Background(), t2))
	require.Equal(t, 2, fs.inserted)
}

func TestGatedStore_MarkFailedClearsFastPath(t *testing.T) {
	fs := newFakeStore()
	g := NewGatedStore(fs)

	t1 := &task.Task{ID: task.NewID(), UserID: "u1"}
	require.NoError(t, g.InsertPendingTask(context.Background(), t1))
	require.NoError(t, g.MarkFailed(context.Background(), t1.ID, "boom"))

	t2 := &task.Task{ID: task.NewID(), UserID: "u1"}
	require.NoError(t, g.InsertPendingTask(context.Background(), t2))
	require.Equal(t, 2, fs.inserted)
}
