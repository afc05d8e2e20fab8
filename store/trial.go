package store

import (
	"context"
	"fmt"
)

// HasUsedTrial implements E's check_trial(user_id?, anon_id?): true iff a
// TrialUsage row exists for the user, or the anon token has
// used_trial=true.
func (g *Gateway) HasUsedTrial(ctx context.Context, userID, anonID string) (bool, error) {
	if userID != "" {
		var n int
		err := g.db.QueryRowContext(ctx, `
			SELECT count(*) FROM trial_usages WHERE user_id = $1
		`, userID).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("store: check user trial: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	if anonID != "" {
		var used bool
		err := g.db.QueryRowContext(ctx, `
			SELECT used_trial FROM anon_tokens WHERE anon_id = $1
		`, anonID).Scan(&used)
		if err != nil {
			if translateNotFound(err) == ErrNotFound {
				return false, nil
			}
			return false, fmt.Errorf("store: check anon trial: %w", err)
		}
		return used, nil
	}
	return false, nil
}

// RecordTrial implements E's record_trial: append a TrialUsage row and
// flip AnonToken.used_trial (monotonic false->true) via upsert.
func (g *Gateway) RecordTrial(ctx context.Context, userID, anonID string) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trial_usages (user_id, anon_id, used_at) VALUES ($1, $2, now())
	`, userID, anonID)
	if err != nil {
		return fmt.Errorf("store: insert trial usage: %w", err)
	}

	if anonID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO anon_tokens (anon_id, used_trial) VALUES ($1, true)
			ON CONFLICT (anon_id) DO UPDATE SET used_trial = true
		`, anonID)
		if err != nil {
			return fmt.Errorf("store: upsert anon token: %w", err)
		}
	}

	return tx.Commit()
}

// BindTrialToUser implements E's bind_trial_to_user: on signup of a trial
// user, attribute prior anonymous TrialUsage rows to the new user id.
func (g *Gateway) BindTrialToUser(ctx context.Context, userID, anonID string) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE trial_usages SET user_id = $1 WHERE anon_id = $2 AND user_id = ''
	`, userID, anonID)
	if err != nil {
		return fmt.Errorf("store: bind trial to user: %w", err)
	}
	return nil
}

// EnsureAnonToken creates the AnonToken row on first trial admission if
// one doesn't already exist, recording the ip/ua hashes for later abuse
// analysis (not enforced here; out of scope per §1).
func (g *Gateway) EnsureAnonToken(ctx context.Context, anonID, ipHash, uaHash string) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO anon_tokens (anon_id, ip_hash, ua_hash, used_trial)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (anon_id) DO NOTHING
	`, anonID, ipHash, uaHash)
	if err != nil {
		return fmt.Errorf("store: ensure anon token: %w", err)
	}
	return nil
}
