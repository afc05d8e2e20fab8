package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subvoxlabs/transcribe-api/task"
)

type fakeStore struct {
	balance      task.Balance
	deductOK     bool
	usedTrial    bool
	recordCalled bool
	bindCalled   bool
}

func (f *fakeStore) GetBalance(ctx context.Context, userID string) (task.Balance, error) {
	return f.balance, nil
}
func (f *fakeStore) DeductBalance(ctx context.Context, userID string, minutes float64) (bool, error) {
	return f.deductOK, nil
}
func (f *fakeStore) AddBalance(ctx context.Context, userID string, minutes float64) error {
	f.balance.MinutesBalance += minutes
	return nil
}
func (f *fakeStore) HasUsedTrial(ctx context.Context, userID, anonID string) (bool, error) {
	return f.usedTrial, nil
}
func (f *fakeStore) RecordTrial(ctx context.Context, userID, anonID string) error {
	f.recordCalled = true
	return nil
}
func (f *fakeStore) BindTrialToUser(ctx context.Context, userID, anonID string) error {
	f.bindCalled = true
	return nil
}
func (f *fakeStore) EnsureAnonToken(ctx context.Context, anonID, ipHash, uaHash string) error {
	return nil
}

func TestHasBalance(t *testing.T) {
	fs := &fakeStore{balance: task.Balance{MinutesBalance: 0}}
	l := New(fs)
	ok, err := l.HasBalance(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, ok)

	fs.balance.MinutesBalance = 0.01
	ok, err = l.HasBalance(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeduct_ShortfallStillReturnsOkFalseNoError(t *testing.T) {
	fs := &fakeStore{deductOK: false}
	l := New(fs)
	ok, err := l.Deduct(context.Background(), "req1", "u1", 10)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordTrial_DelegatesToStore(t *testing.T) {
	fs := &fakeStore{}
	l := New(fs)
	require.NoError(t, l.RecordTrial(context.Background(), "", "anon-1"))
	require.True(t, fs.recordCalled)
}

func TestBindTrialToUser(t *testing.T) {
	fs := &fakeStore{}
	l := New(fs)
	require.NoError(t, l.BindTrialToUser(context.Background(), "u1", "anon-1"))
	require.True(t, fs.bindCalled)
}
