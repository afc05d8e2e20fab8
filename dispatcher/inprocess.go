// Package dispatcher implements the Dispatcher (H): two interchangeable
// modes behind the same Enqueue contract, per §4.2. InProcess is the
// development/single-node mode, grounded on the worker-pool shape in
// other_examples' media-tools-api worker package (buffered channel +
// fixed goroutine pool); Queue (queue.go) is the production mode.
package dispatcher

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/task"
)

// Runner executes one task end to end. task.Executor satisfies this.
type Runner interface {
	Run(ctx context.Context, requestID string, taskID uuid.UUID) error
}

// PendingLister supports the in-process mode's startup recovery step.
type PendingLister interface {
	PendingTaskIDs(ctx context.Context) ([]uuid.UUID, error)
}

// InProcess is the in-process cooperative runner of §4.2: no
// persistence, no priority (FIFO), a fixed pool of goroutines draining a
// buffered channel. Crashes drop whatever is still queued -- the sweeper
// (§4.7) is the only safety net for jobs that were already picked up, and
// Recover below closes the gap for jobs still sitting in `pending` at
// boot, which the spec calls out as a known hole in the source system.
type InProcess struct {
	runner  Runner
	jobs    chan uuid.UUID
	workers int
	wg      sync.WaitGroup
}

// NewInProcess builds an InProcess dispatcher with the given worker count
// and queue depth (queueSize should track config.MaxJobsInFlight).
func NewInProcess(runner Runner, workers, queueSize int) *InProcess {
	return &InProcess{
		runner:  runner,
		jobs:    make(chan uuid.UUID, queueSize),
		workers: workers,
	}
}

// Start launches the worker goroutines. On ctx cancellation each worker
// exits after the job it is currently running; jobs still buffered in
// the channel are not run.
func (d *InProcess) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until every worker has exited (after the jobs channel is
// closed and drained).
func (d *InProcess) Wait() {
	d.wg.Wait()
}

// Stop closes the intake channel so workers exit once the backlog drains.
func (d *InProcess) Stop() {
	close(d.jobs)
}

func (d *InProcess) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case id, ok := <-d.jobs:
			if !ok {
				return
			}
			requestID := "dispatch-" + id.String()
			if err := d.runner.Run(ctx, requestID, id); err != nil {
				log.LogError(requestID, "in-process worker run failed", err, "task_id", id)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Enqueue schedules id onto the next tick of the local runner: FIFO
// order, no priority, per §4.2's in-process contract. While the buffer
// is full it blocks until a worker frees a slot or ctx is done.
func (d *InProcess) Enqueue(ctx context.Context, t *task.Task) error {
	select {
	case d.jobs <- t.ID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recover implements the startup recovery step §4.2 says is missing from
// the source and should be closed: re-enqueue (not fail) every task still
// observed in status=pending at boot, since an in-process crash drops
// whatever was sitting in the channel without ever touching the row.
func (d *InProcess) Recover(ctx context.Context, lister PendingLister) error {
	ids, err := lister.PendingTaskIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		select {
		case d.jobs <- id:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(ids) > 0 {
		log.LogNoRequestID("in-process dispatcher recovered pending tasks at boot", "count", len(ids))
	}
	return nil
}
