// Package cache provides the in-process dedupe fast-path for the
// concurrency gate (§4.1 step 4/I2): before Admission ever reaches the
// Storage Gateway, GatedStore checks a local in-flight owner set so a
// flood of duplicate requests from the same caller never needs a round
// trip to Postgres to be rejected. Grounded on log/logger.go's use of
// patrickmn/go-cache as a short-TTL lookaside cache.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/subvoxlabs/transcribe-api/task"
)

// safetyNetTTL bounds how long a fast-path entry can outlive its task in
// the (should-never-happen) case a terminal transition's cache-clear is
// missed, so a stuck local entry can't wedge an owner out forever.
const safetyNetTTL = 30 * time.Minute

// GatedStore wraps a task.Store with the local fast-path. It implements
// task.Store itself, so it drops into NewAdmission/NewExecutor wiring
// unchanged.
type GatedStore struct {
	task.Store
	byOwner *gocache.Cache
	byTask  *gocache.Cache
}

// NewGatedStore wraps next with the fast-path cache.
func NewGatedStore(next task.Store) *GatedStore {
	return &GatedStore{
		Store:   next,
		byOwner: gocache.New(safetyNetTTL, 5*time.Minute),
		byTask:  gocache.New(safetyNetTTL, 5*time.Minute),
	}
}

// InsertPendingTask rejects a duplicate admission locally when the
// fast-path already knows the owner has a task in flight; otherwise it
// delegates to the wrapped store (which still enforces the gate
// authoritatively) and records the owner on success.
func (g *GatedStore) InsertPendingTask(ctx context.Context, t *task.Task) error {
	ownerKey := t.Owner().OwnerKey()
	if _, found := g.byOwner.Get(ownerKey); found {
		return task.ErrConflict
	}

	if err := g.Store.InsertPendingTask(ctx, t); err != nil {
		return err
	}

	g.byOwner.SetDefault(ownerKey, t.ID)
	g.byTask.SetDefault(t.ID.String(), ownerKey)
	return nil
}

// MarkSucceeded clears the fast-path entry once the task leaves the
// in-flight set, so the owner can admit a new task immediately.
func (g *GatedStore) MarkSucceeded(ctx context.Context, id uuid.UUID, durationSec float64, costMinutes int, engine string) error {
	if err := g.Store.MarkSucceeded(ctx, id, durationSec, costMinutes, engine); err != nil {
		return err
	}
	g.release(id)
	return nil
}

// MarkFailed clears the fast-path entry the same way MarkSucceeded does.
func (g *GatedStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	if err := g.Store.MarkFailed(ctx, id, errMsg); err != nil {
		return err
	}
	g.release(id)
	return nil
}

func (g *GatedStore) release(id uuid.UUID) {
	if ownerKey, found := g.byTask.Get(id.String()); found {
		g.byOwner.Delete(ownerKey.(string))
	}
	g.byTask.Delete(id.String())
}
