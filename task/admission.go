package task

import (
	"context"
	"errors"

	"github.com/google/uuid"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
	"github.com/subvoxlabs/transcribe-api/metrics"
)

// ErrConflict is returned by Store.InsertPendingTask when the owner
// already has a task in {pending, processing} (§4.1's concurrency gate,
// (I2)). Defined here rather than in package store so both store and
// task can reference the same sentinel without an import cycle (store
// already imports task for the Task type).
var ErrConflict = errors.New("task: owner already has an in-flight task")

// Store is the subset of the Storage Gateway (A) that Admission and the
// Executor need. Defined here, not imported from package store, so that
// task stays the dependency-free leaf the rest of the engine wires
// against (store and billing both already import task; task importing
// either back would cycle).
type Store interface {
	InsertPendingTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, durationSec float64, costMinutes int, engine string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	UpsertTranscript(ctx context.Context, tr *Transcript) error
}

// Ledger is the subset of the Billing Ledger (E) that Admission and the
// Executor need.
type Ledger interface {
	CheckTrial(ctx context.Context, userID, anonID string) (bool, error)
	HasBalance(ctx context.Context, userID string) (bool, error)
	RecordTrial(ctx context.Context, userID, anonID string) error
	EnsureAnonToken(ctx context.Context, anonID, ipHash, uaHash string) error
	Deduct(ctx context.Context, requestID, userID string, minutes float64) (bool, error)
}

// DurationLookup resolves a source URL's duration in seconds, for the
// trial duration gate against youtube sources (§4.1 step 2). It is
// intentionally narrower than providers.PlatformMetadata's full result so
// this package doesn't need to import providers.
type DurationLookup interface {
	LookupDurationSeconds(ctx context.Context, sourceURL string) (float64, error)
}

// Dispatcher is the subset of the Dispatcher (H) that Admission needs:
// hand off a freshly-persisted pending task for execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, t *Task) error
}

// Admission implements Task Admission (F), §4.1.
type Admission struct {
	store           Store
	ledger          Ledger
	durationLookup  DurationLookup
	dispatcher      Dispatcher
	trialMaxSeconds float64
}

func NewAdmission(store Store, ledger Ledger, durationLookup DurationLookup, dispatcher Dispatcher, trialMaxDurationMinutes int) *Admission {
	return &Admission{
		store:           store,
		ledger:          ledger,
		durationLookup:  durationLookup,
		dispatcher:      dispatcher,
		trialMaxSeconds: float64(trialMaxDurationMinutes) * 60,
	}
}

// CreateTaskRequest is the input to createTask, per §4.1.
type CreateTaskRequest struct {
	SourceType SourceType
	SourceURL  string
	SizeBytes  int64
	IsTrial    *bool
	Params     map[string]string

	// IPHash/UAHash back AnonToken creation; out of scope for this
	// package to derive from a raw request (§1 excludes the HTTP
	// surface), so callers supply them pre-hashed.
	IPHash string
	UAHash string
}

// CreateTaskResult is createTask's success output.
type CreateTaskResult struct {
	TaskID            uuid.UUID
	Status            Status
	RetryAfterSeconds int
}

// CreateTask implements createTask(request, caller) -> {task_id,
// status=pending, retry_after}, §4.1's six steps, each failing closed.
func (a *Admission) CreateTask(ctx context.Context, req CreateTaskRequest, caller Caller, retryAfterSeconds int) (*CreateTaskResult, error) {
	if req.SourceURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "source_url is required", nil)
	}

	// Step 1: determine trial flag. Tie-break: explicit is_trial=true
	// from an authenticated caller still takes the trial path (free
	// priority, balance skipped), per §4.1's tie-break rule.
	explicitTrial := req.IsTrial != nil && *req.IsTrial
	effectiveTrial := explicitTrial || !caller.Authenticated

	if !caller.Authenticated && caller.AnonID == "" {
		return nil, xerrors.New(xerrors.CodeUnauthorized, "anonymous callers must present anon_id", nil)
	}

	if effectiveTrial {
		if err := a.checkTrialGate(ctx, req, caller); err != nil {
			return nil, err
		}
	} else {
		ok, err := a.ledger.HasBalance(ctx, caller.UserID)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInternalError, "balance lookup failed", err)
		}
		if !ok {
			return nil, xerrors.New(xerrors.CodeInsufficientBalance, "balance is zero", nil)
		}
	}

	priority := PriorityFree
	if caller.Authenticated && !effectiveTrial {
		priority = PriorityPaid
	}

	t := &Task{
		ID:         NewID(),
		UserID:     caller.UserID,
		AnonID:     caller.AnonID,
		SourceType: req.SourceType,
		TaskType:   "transcription",
		IsTrial:    effectiveTrial,
		Priority:   priority,
		SourceURL:  req.SourceURL,
		Params:     req.Params,
		Status:     StatusPending,
	}

	// Steps 4+5: the concurrency gate and the insert happen atomically
	// inside the store, closing the race the spec's "Atomicity note"
	// calls out.
	if err := a.store.InsertPendingTask(ctx, t); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, xerrors.New(xerrors.CodeConflict, "owner already has an in-flight task", nil)
		}
		return nil, xerrors.New(xerrors.CodeInternalError, "failed to persist task", err)
	}

	if effectiveTrial && caller.AnonID != "" {
		if err := a.ledger.EnsureAnonToken(ctx, caller.AnonID, req.IPHash, req.UAHash); err != nil {
			return nil, xerrors.New(xerrors.CodeInternalError, "failed to ensure anon token", err)
		}
	}

	// Step 6: dispatch.
	if err := a.dispatcher.Enqueue(ctx, t); err != nil {
		return nil, xerrors.New(xerrors.CodeInternalError, "failed to enqueue task", err)
	}

	metrics.Metrics.Admitted.WithLabelValues(string(priority), string(req.SourceType)).Inc()
	metrics.Metrics.InFlight.Inc()

	return &CreateTaskResult{TaskID: t.ID, Status: StatusPending, RetryAfterSeconds: retryAfterSeconds}, nil
}

func (a *Admission) checkTrialGate(ctx context.Context, req CreateTaskRequest, caller Caller) error {
	used, err := a.ledger.CheckTrial(ctx, caller.UserID, caller.AnonID)
	if err != nil {
		return xerrors.New(xerrors.CodeInternalError, "trial check failed", err)
	}
	if used {
		return xerrors.New(xerrors.CodeTrialExhausted, "trial already consumed", nil)
	}

	if req.SourceType != SourceYouTube {
		return nil
	}

	durationSeconds, err := a.durationLookup.LookupDurationSeconds(ctx, req.SourceURL)
	if err != nil {
		// The duration lookup is best-effort, but its failure is never
		// treated as permission to admit optimistically (§4.1 step 2).
		return xerrors.New(xerrors.CodeInvalidInput, "failed to resolve video duration", err)
	}
	if durationSeconds > a.trialMaxSeconds {
		return xerrors.New(xerrors.CodeDurationExceeded, "video exceeds trial duration cap", nil)
	}
	return nil
}

