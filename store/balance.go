package store

import (
	"context"
	"fmt"

	"github.com/subvoxlabs/transcribe-api/task"
)

// GetBalance loads the balance row for userID, for admission's balance
// gate (§4.1 step 3). A missing row reads as zero rather than ErrNotFound:
// a Balance is conceptually created with zero on registration (§3), and
// callers here only care about the number.
func (g *Gateway) GetBalance(ctx context.Context, userID string) (task.Balance, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT minutes_balance, updated_at FROM balances WHERE user_id = $1
	`, userID)

	var b task.Balance
	b.UserID = userID
	if err := row.Scan(&b.MinutesBalance, &b.UpdatedAt); err != nil {
		if err := translateNotFound(err); err == ErrNotFound {
			return b, nil
		} else {
			return task.Balance{}, err
		}
	}
	return b, nil
}

// DeductBalance implements E's deduct(user_id, minutes): an atomic,
// optimistically-guarded debit. It loads the row FOR UPDATE inside a
// transaction (grounded on checkout.go's prepaid-balance credit flow in
// Livepeer-FrameWorks-monorepo/api_billing), requires
// balance.minutes >= minutes, and only commits the decrement when that
// holds -- otherwise it rolls back and reports ok=false without mutating
// anything. This is what makes (P4) hold under concurrent callers: two
// overlapping deductions serialize on the row lock, so the second one
// re-reads the already-decremented balance before deciding.
func (g *Gateway) DeductBalance(ctx context.Context, userID string, minutes float64) (ok bool, err error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current float64
	err = tx.QueryRowContext(ctx, `
		SELECT minutes_balance FROM balances WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&current)
	if err != nil {
		return false, translateNotFound(err)
	}

	if current < minutes {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE balances SET minutes_balance = minutes_balance - $2, updated_at = now()
		WHERE user_id = $1 AND minutes_balance >= $2
	`, userID, minutes)
	if err != nil {
		return false, fmt.Errorf("store: deduct balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit deduct: %w", err)
	}
	return true, nil
}

// AddBalance implements E's add(user_id, minutes): insert-or-update,
// creating a zero-based row if one doesn't exist yet.
func (g *Gateway) AddBalance(ctx context.Context, userID string, minutes float64) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, minutes_balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			minutes_balance = balances.minutes_balance + EXCLUDED.minutes_balance,
			updated_at = now()
	`, userID, minutes)
	if err != nil {
		return fmt.Errorf("store: add balance: %w", err)
	}
	return nil
}
