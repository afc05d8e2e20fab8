package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/subvoxlabs/transcribe-api/store"
	"github.com/subvoxlabs/transcribe-api/task"
)

// Admitter is the narrow view of Task Admission (F) the handlers need.
type Admitter interface {
	CreateTask(ctx context.Context, req task.CreateTaskRequest, caller task.Caller, retryAfterSeconds int) (*task.CreateTaskResult, error)
}

// TaskStore backs GET /tasks/{id} and GET /tasks.
type TaskStore interface {
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
	ListTasks(ctx context.Context, filter store.ListTasksFilter) ([]*task.Task, time.Time, error)
}

// TranscriptStore backs the result payload of GET /tasks/{id} for a
// succeeded task.
type TranscriptStore interface {
	GetTranscript(ctx context.Context, taskID uuid.UUID) (*task.Transcript, error)
}

// WebhookStore backs §7's idempotent webhook processing.
type WebhookStore interface {
	ClaimWebhookEvent(ctx context.Context, source, eventID string) (firstClaim bool, err error)
}

// BillingAdder is the narrow view of the Billing Ledger (E) the
// subscription-event webhook needs.
type BillingAdder interface {
	Add(ctx context.Context, userID string, minutes float64) error
}

// Collection holds every dependency the HTTP surface needs, the same
// shape as the teacher's DMSAPIHandlersCollection/CatalystAPIHandlersCollection.
type Collection struct {
	admission   Admitter
	tasks       TaskStore
	transcripts TranscriptStore
	webhooks    WebhookStore
	billing     BillingAdder

	pollIntervalSeconds int

	syncSTTWebhookSecret         string
	autoTranscriptWebhookSecret string
	subscriptionWebhookSecret    string
}

func New(
	admission Admitter,
	tasks TaskStore,
	transcripts TranscriptStore,
	webhooks WebhookStore,
	billing BillingAdder,
	pollIntervalSeconds int,
	syncSTTWebhookSecret, autoTranscriptWebhookSecret, subscriptionWebhookSecret string,
) *Collection {
	return &Collection{
		admission:                    admission,
		tasks:                        tasks,
		transcripts:                  transcripts,
		webhooks:                     webhooks,
		billing:                      billing,
		pollIntervalSeconds:          pollIntervalSeconds,
		syncSTTWebhookSecret:         syncSTTWebhookSecret,
		autoTranscriptWebhookSecret:  autoTranscriptWebhookSecret,
		subscriptionWebhookSecret:    subscriptionWebhookSecret,
	}
}

// Ok is a liveness probe, mirroring the teacher's trivial Ok() handler.
func (c *Collection) Ok() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		_, _ = io.WriteString(w, "OK")
	}
}
