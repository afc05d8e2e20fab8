package store

import (
	"context"
	"fmt"
)

// ClaimWebhookEvent backs §7's "already-processed events (idempotency
// duplicates) return 200 without reprocessing": it inserts eventID into a
// UNIQUE-keyed table and reports whether this call was the first to claim
// it. A duplicate delivery of the same provider/subscription webhook
// therefore short-circuits before any side effect runs.
func (g *Gateway) ClaimWebhookEvent(ctx context.Context, source, eventID string) (firstClaim bool, err error) {
	res, err := g.db.ExecContext(ctx, `
		INSERT INTO webhook_events (source, event_id, received_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source, event_id) DO NOTHING
	`, source, eventID)
	if err != nil {
		return false, fmt.Errorf("store: claim webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
