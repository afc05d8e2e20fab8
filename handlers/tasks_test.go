package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/subvoxlabs/transcribe-api/store"
	"github.com/subvoxlabs/transcribe-api/task"
)

type fakeAdmitter struct {
	result *task.CreateTaskResult
	err    error
	gotReq task.CreateTaskRequest
}

func (f *fakeAdmitter) CreateTask(ctx context.Context, req task.CreateTaskRequest, caller task.Caller, retryAfterSeconds int) (*task.CreateTaskResult, error) {
	f.gotReq = req
	return f.result, f.err
}

type fakeTaskStore struct {
	task *task.Task
	err  error
	list []*task.Task
}

func (f *fakeTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return f.task, f.err
}
func (f *fakeTaskStore) ListTasks(ctx context.Context, filter store.ListTasksFilter) ([]*task.Task, time.Time, error) {
	return f.list, time.Time{}, f.err
}

type fakeTranscriptStore struct {
	transcript *task.Transcript
	err        error
}

func (f *fakeTranscriptStore) GetTranscript(ctx context.Context, taskID uuid.UUID) (*task.Transcript, error) {
	return f.transcript, f.err
}

type fakeWebhookStore struct {
	firstClaim bool
	err        error
}

func (f *fakeWebhookStore) ClaimWebhookEvent(ctx context.Context, source, eventID string) (bool, error) {
	return f.firstClaim, f.err
}

type fakeBillingAdder struct {
	added map[string]float64
	err   error
}

func (f *fakeBillingAdder) Add(ctx context.Context, userID string, minutes float64) error {
	if f.added == nil {
		f.added = map[string]float64{}
	}
	f.added[userID] += minutes
	return f.err
}

func newCollection(admitter Admitter, tasks TaskStore, transcripts TranscriptStore, webhooks WebhookStore, billing BillingAdder) *Collection {
	return New(admitter, tasks, transcripts, webhooks, billing, 5, "stt-secret", "auto-secret", "sub-secret")
}

func TestCreateTask_ValidRequestReturns202(t *testing.T) {
	admitter := &fakeAdmitter{result: &task.CreateTaskResult{TaskID: uuid.New(), Status: task.StatusPending, RetryAfterSeconds: 5}}
	c := newCollection(admitter, &fakeTaskStore{}, &fakeTranscriptStore{}, &fakeWebhookStore{}, &fakeBillingAdder{})

	body := bytes.NewBufferString(`{"source_type":"upload","source_url":"https://example.com/a.mp4"}`)
	req := httptest.NewRequest(http.MethodPost, "/tasks", body)
	req.Header.Set("X-Anon-Id", "anon-1")
	w := httptest.NewRecorder()

	c.CreateTask()(w, req, nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "https://example.com/a.mp4", admitter.gotReq.SourceURL)
	require.NotEmpty(t, admitter.gotReq.IPHash)
}

func TestCreateTask_MissingAnonIDRejected(t *testing.T) {
	c := newCollection(&fakeAdmitter{}, &fakeTaskStore{}, &fakeTranscriptStore{}, &fakeWebhookStore{}, &fakeBillingAdder{})

	body := bytes.NewBufferString(`{"source_type":"upload","source_url":"https://example.com/a.mp4"}`)
	req := httptest.NewRequest(http.MethodPost, "/tasks", body)
	w := httptest.NewRecorder()

	c.CreateTask()(w, req, nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateTask_InvalidSchemaRejected(t *testing.T) {
	c := newCollection(&fakeAdmitter{}, &fakeTaskStore{}, &fakeTranscriptStore{}, &fakeWebhookStore{}, &fakeBillingAdder{})

	body := bytes.NewBufferString(`{"source_type":"carrier-pigeon"}`)
	req := httptest.NewRequest(http.MethodPost, "/tasks", body)
	req.Header.Set("X-Anon-Id", "anon-1")
	w := httptest.NewRecorder()

	c.CreateTask()(w, req, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTask_ForbiddenForDifferentOwner(t *testing.T) {
	owned := &task.Task{ID: uuid.New(), AnonID: "anon-other", Status: task.StatusPending}
	c := newCollection(&fakeAdmitter{}, &fakeTaskStore{task: owned}, &fakeTranscriptStore{}, &fakeWebhookStore{}, &fakeBillingAdder{})

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+owned.ID.String(), nil)
	req.Header.Set("X-Anon-Id", "anon-1")
	w := httptest.NewRecorder()

	c.GetTask()(w, req, httprouter.Params{{Key: "id", Value: owned.ID.String()}})

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetTask_NotFound(t *testing.T) {
	c := newCollection(&fakeAdmitter{}, &fakeTaskStore{err: store.ErrNotFound}, &fakeTranscriptStore{}, &fakeWebhookStore{}, &fakeBillingAdder{})

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/tasks/"+id.String(), nil)
	req.Header.Set("X-Anon-Id", "anon-1")
	w := httptest.NewRecorder()

	c.GetTask()(w, req, httprouter.Params{{Key: "id", Value: id.String()}})

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTask_SucceededIncludesResult(t *testing.T) {
	owned := &task.Task{ID: uuid.New(), AnonID: "anon-1", Status: task.StatusSucceeded}
	transcript := &task.Transcript{TaskID: owned.ID, Segments: []task.Segment{{Text: "hi"}}, SRTURL: "https://cdn/a.srt"}
	c := newCollection(&fakeAdmitter{}, &fakeTaskStore{task: owned}, &fakeTranscriptStore{transcript: transcript}, &fakeWebhookStore{}, &fakeBillingAdder{})

	req := httptest.NewRequest(http.MethodGet, "/tasks/"+owned.ID.String(), nil)
	req.Header.Set("X-Anon-Id", "anon-1")
	w := httptest.NewRecorder()

	c.GetTask()(w, req, httprouter.Params{{Key: "id", Value: owned.ID.String()}})

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "https://cdn/a.srt")
}

func TestListTasks_ReturnsOK(t *testing.T) {
	list := []*task.Task{{ID: uuid.New(), AnonID: "anon-1", Status: task.StatusPending}}
	c := newCollection(&fakeAdmitter{}, &fakeTaskStore{list: list}, &fakeTranscriptStore{}, &fakeWebhookStore{}, &fakeBillingAdder{})

	req := httptest.NewRequest(http.MethodGet, "/tasks?status=pending&limit=10", nil)
	req.Header.Set("X-Anon-Id", "anon-1")
	w := httptest.NewRecorder()

	c.ListTasks()(w, req, nil)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestListTasks_InvalidCursorRejected(t *testing.T) {
	c := newCollection(&fakeAdmitter{}, &fakeTaskStore{}, &fakeTranscriptStore{}, &fakeWebhookStore{}, &fakeBillingAdder{})

	req := httptest.NewRequest(http.MethodGet, "/tasks?cursor=not-a-time", nil)
	req.Header.Set("X-Anon-Id", "anon-1")
	w := httptest.NewRecorder()

	c.ListTasks()(w, req, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
