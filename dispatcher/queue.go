package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/metrics"
	"github.com/subvoxlabs/transcribe-api/store"
	"github.com/subvoxlabs/transcribe-api/task"
)

// QueueStore is the subset of the Storage Gateway the durable queue
// dispatcher needs: a priority envelope table, independent of the tasks
// table itself (store/jobs.go).
type QueueStore interface {
	EnqueueJob(ctx context.Context, taskID uuid.UUID, priorityRank int) error
	ClaimNextJob(ctx context.Context) (*store.Job, error)
	CompleteJob(ctx context.Context, jobID int64) error
	RetryJob(ctx context.Context, jobID int64, delaySeconds int) error
	FailJob(ctx context.Context, jobID int64) error
	QueueDepth(ctx context.Context) (map[int]int64, error)
}

const (
	priorityRankPaid = 0
	priorityRankFree = 1

	// maxAttempts and baseBackoff implement §4.2's "up to 3 attempts,
	// exponential backoff starting at 5s".
	maxAttempts = 3
	baseBackoff = 5 * time.Second
)

func priorityRank(p task.Priority) int {
	if p == task.PriorityPaid {
		return priorityRankPaid
	}
	return priorityRankFree
}

func backoffFor(attempt int) time.Duration {
	d := baseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Queue is the durable priority-queue dispatcher mode, preferred for
// production per §4.2. Claiming uses store.ClaimNextJob's SELECT ... FOR
// UPDATE SKIP LOCKED, so any number of Queue instances can Consume
// concurrently against the same Postgres table without double-picking a
// row; at-least-once delivery is resolved by the Task state machine's
// conditional updates (§4.3 step 1), not by the queue itself.
type Queue struct {
	store        QueueStore
	taskStore    TaskReader
	runner       Runner
	pollInterval time.Duration
}

// TaskReader lets Queue re-read the authoritative task row before
// running it, per §4.2: "workers re-read the authoritative row from A on
// pickup."
type TaskReader interface {
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
}

func NewQueue(store QueueStore, taskStore TaskReader, runner Runner, pollInterval time.Duration) *Queue {
	return &Queue{store: store, taskStore: taskStore, runner: runner, pollInterval: pollInterval}
}

// Enqueue inserts a new job envelope, mapping task priority to the
// queue's two numeric ranks (paid=high=0, free=low=1).
func (q *Queue) Enqueue(ctx context.Context, t *task.Task) error {
	return q.store.EnqueueJob(ctx, t.ID, priorityRank(t.Priority))
}

// Consume runs one polling worker until ctx is cancelled. Multiple
// workers may call Consume concurrently; SKIP LOCKED keeps them from
// colliding on the same row.
func (q *Queue) Consume(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainOnce(ctx)
		}
	}
}

// drainOnce claims and runs jobs until the queue is empty, so a single
// tick can burn through a backlog instead of processing one job every
// pollInterval.
func (q *Queue) drainOnce(ctx context.Context) {
	for {
		job, err := q.store.ClaimNextJob(ctx)
		if err != nil {
			log.LogNoRequestID("dispatcher queue claim failed", "err", err.Error())
			return
		}
		if job == nil {
			return
		}
		q.runOne(ctx, job)
	}
}

func (q *Queue) runOne(ctx context.Context, job *store.Job) {
	requestID := "dispatch-" + job.TaskID.String()

	if _, err := q.taskStore.GetTask(ctx, job.TaskID); err != nil {
		log.LogError(requestID, "dispatcher queue could not reload task, dropping job", err, "task_id", job.TaskID)
		_ = q.store.FailJob(ctx, job.ID)
		return
	}

	runErr := q.runner.Run(ctx, requestID, job.TaskID)
	if runErr == nil {
		_ = q.store.CompleteJob(ctx, job.ID)
		return
	}

	// Run only returns an error for retriable engine/internal faults
	// (§4.3's failure table); everything else was already settled as a
	// task-status transition inside Run.
	if job.Attempts+1 >= maxAttempts {
		log.LogError(requestID, "dispatcher queue exhausted retry budget", runErr, "task_id", job.TaskID, "attempts", job.Attempts+1)
		_ = q.store.FailJob(ctx, job.ID)
		return
	}

	delay := backoffFor(job.Attempts)
	log.LogError(requestID, "dispatcher queue scheduling retry", runErr, "task_id", job.TaskID, "attempt", job.Attempts+1, "delay", delay)
	if err := q.store.RetryJob(ctx, job.ID, int(delay.Seconds())); err != nil {
		log.LogError(requestID, "dispatcher queue failed to schedule retry", err, "task_id", job.TaskID)
	}
}

// ReportQueueDepth samples QueueStore.QueueDepth into the
// dispatcher_queue_depth gauge. Call periodically; cmd/server calls it
// from its own ticker at the dispatch poll interval.
func (q *Queue) ReportQueueDepth(ctx context.Context) {
	depths, err := q.store.QueueDepth(ctx)
	if err != nil {
		log.LogNoRequestID("dispatcher queue depth sample failed", "err", err.Error())
		return
	}
	metrics.Metrics.QueueDepth.WithLabelValues("paid").Set(float64(depths[priorityRankPaid]))
	metrics.Metrics.QueueDepth.WithLabelValues("free").Set(float64(depths[priorityRankFree]))
}
