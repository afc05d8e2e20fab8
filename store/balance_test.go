package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDeductBalance_SufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT minutes_balance FROM balances WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"minutes_balance"}).AddRow(10.0))
	mock.ExpectExec(`UPDATE balances SET minutes_balance = minutes_balance - \$2`).
		WithArgs("u1", 7.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := g.DeductBalance(context.Background(), "u1", 7.0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeductBalance_InsufficientFunds_NoMutation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT minutes_balance FROM balances WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"minutes_balance"}).AddRow(3.0))
	mock.ExpectRollback()

	ok, err := g.DeductBalance(context.Background(), "u1", 7.0)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeductBalance_RaceLosesOptimisticGuard(t *testing.T) {
	// Simulates the second of two concurrent deduct(user, 7) calls against
	// balance=10 (scenario 5 in §8): the row read sees enough balance, but
	// the conditional UPDATE affects zero rows because a concurrent
	// transaction already spent it between the SELECT and the UPDATE.
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT minutes_balance FROM balances WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"minutes_balance"}).AddRow(10.0))
	mock.ExpectExec(`UPDATE balances SET minutes_balance = minutes_balance - \$2`).
		WithArgs("u1", 7.0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := g.DeductBalance(context.Background(), "u1", 7.0)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddBalance_InsertOrUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	g := New(db)

	mock.ExpectExec(`INSERT INTO balances`).
		WithArgs("u1", 30.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = g.AddBalance(context.Background(), "u1", 30.0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
