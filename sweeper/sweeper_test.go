package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	swept    int64
	err      error
	callSeen int
}

func (f *fakeStore) SweepStuckTasks(ctx context.Context, olderThanMinutes int) (int64, error) {
	f.callSeen++
	if f.err != nil {
		return 0, f.err
	}
	return f.swept, nil
}

func TestSweeper_StartRunsImmediatelyAtBoot(t *testing.T) {
	fs := &fakeStore{swept: 2}
	s := New(fs, 10)

	stop, err := s.Start(context.Background(), "@every 1h")
	require.NoError(t, err)
	defer stop()

	require.Equal(t, 1, fs.callSeen)
}

func TestSweeper_StartRegistersRecurringCadence(t *testing.T) {
	fs := &fakeStore{swept: 0}
	s := New(fs, 10)

	// robfig/cron rounds @every intervals below one second up to one
	// second, so the third call (boot plus two ticks) lands within ~2s.
	stop, err := s.Start(context.Background(), "@every 1s")
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool { return fs.callSeen >= 3 }, 3*time.Second, 5*time.Millisecond)
}

func TestSweeper_RunOnce_SwallowsStoreErrors(t *testing.T) {
	fs := &fakeStore{err: errors.New("db down")}
	s := New(fs, 10)

	require.NotPanics(t, func() { s.runOnce(context.Background()) })
}

func TestSweeper_Start_InvalidCronExpressionReturnsError(t *testing.T) {
	fs := &fakeStore{}
	s := New(fs, 10)

	_, err := s.Start(context.Background(), "not a cron expression")
	require.Error(t, err)
}
