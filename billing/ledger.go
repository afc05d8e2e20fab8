// Package billing is the Billing Ledger (E): atomic balance deduction,
// trial-usage recording, and trial-binding on signup, per §4.6. It is a
// thin policy layer over store.Gateway's atomic primitives, the same way
// the teacher keeps retry/circuit behavior in the adapter rather than a
// cross-cutting interceptor (§9).
package billing

import (
	"context"
	"fmt"

	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/metrics"
	"github.com/subvoxlabs/transcribe-api/task"
)

type Store interface {
	GetBalance(ctx context.Context, userID string) (task.Balance, error)
	DeductBalance(ctx context.Context, userID string, minutes float64) (bool, error)
	AddBalance(ctx context.Context, userID string, minutes float64) error
	HasUsedTrial(ctx context.Context, userID, anonID string) (bool, error)
	RecordTrial(ctx context.Context, userID, anonID string) error
	BindTrialToUser(ctx context.Context, userID, anonID string) error
	EnsureAnonToken(ctx context.Context, anonID, ipHash, uaHash string) error
}

type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Deduct implements §4.6's deduct(user_id, minutes). The Executor (G)
// calls this at settle time; per §4.3 step 6 and Open Question 3, a
// failed deduction is logged and the task still succeeds -- it never
// rolls back completed work.
func (l *Ledger) Deduct(ctx context.Context, requestID, userID string, minutes float64) (ok bool, err error) {
	ok, err = l.store.DeductBalance(ctx, userID, minutes)
	metrics.Metrics.BillingDeductions.WithLabelValues(fmt.Sprintf("%v", ok)).Inc()
	if err != nil {
		return false, fmt.Errorf("billing: deduct: %w", err)
	}
	if !ok {
		log.Log(requestID, "balance deduction shortfall, work already delivered",
			"user_id", userID, "minutes", minutes)
	}
	return ok, nil
}

// Add implements §4.6's add(user_id, minutes), invoked from the
// subscription-event webhook on invoice.paid.
func (l *Ledger) Add(ctx context.Context, userID string, minutes float64) error {
	return l.store.AddBalance(ctx, userID, minutes)
}

// HasBalance is the admission-time balance gate (§4.1 step 3): any
// positive balance is sufficient to admit, since the final cost isn't
// known until settle time.
func (l *Ledger) HasBalance(ctx context.Context, userID string) (bool, error) {
	b, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("billing: get balance: %w", err)
	}
	return b.MinutesBalance > 0, nil
}

// CheckTrial implements §4.6's check_trial(user_id?, anon_id?).
func (l *Ledger) CheckTrial(ctx context.Context, userID, anonID string) (bool, error) {
	return l.store.HasUsedTrial(ctx, userID, anonID)
}

// RecordTrial implements §4.6's record_trial(user_id?, anon_id?),
// incrementing the trials-consumed counter for observability.
func (l *Ledger) RecordTrial(ctx context.Context, userID, anonID string) error {
	if err := l.store.RecordTrial(ctx, userID, anonID); err != nil {
		return fmt.Errorf("billing: record trial: %w", err)
	}
	metrics.Metrics.TrialsConsumed.Inc()
	return nil
}

// BindTrialToUser implements §4.6's bind_trial_to_user(user_id, anon_id).
func (l *Ledger) BindTrialToUser(ctx context.Context, userID, anonID string) error {
	return l.store.BindTrialToUser(ctx, userID, anonID)
}

// EnsureAnonToken creates the AnonToken on first trial admission.
func (l *Ledger) EnsureAnonToken(ctx context.Context, anonID, ipHash, uaHash string) error {
	return l.store.EnsureAnonToken(ctx, anonID, ipHash, uaHash)
}
