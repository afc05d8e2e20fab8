package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
	"github.com/subvoxlabs/transcribe-api/requests"
	"github.com/subvoxlabs/transcribe-api/store"
	"github.com/subvoxlabs/transcribe-api/task"
)

type createTaskBody struct {
	SourceType string            `json:"source_type"`
	SourceURL  string            `json:"source_url"`
	SizeBytes  int64             `json:"size_bytes"`
	IsTrial    *bool             `json:"is_trial,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

type createTaskResponse struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	RetryAfter int    `json:"retry_after"`
}

// CreateTask implements POST /tasks, §6: "admission; returns {task_id,
// status, retry_after}."
func (c *Collection) CreateTask() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(r)

		caller, err := callerFromRequest(r)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.AsTaskError(err))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInvalidInput, "cannot read request body", err))
			return
		}

		result, err := compiledSchemas["CreateTask"].Validate(gojsonschema.NewBytesLoader(payload))
		if err != nil || !result.Valid() {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInvalidInput, "invalid request payload", nil))
			return
		}

		var body createTaskBody
		if err := json.Unmarshal(payload, &body); err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInvalidInput, "invalid request payload", err))
			return
		}

		req := task.CreateTaskRequest{
			SourceType: task.SourceType(body.SourceType),
			SourceURL:  body.SourceURL,
			SizeBytes:  body.SizeBytes,
			IsTrial:    body.IsTrial,
			Params:     body.Params,
			IPHash:     hashIdentifier(r.RemoteAddr),
			UAHash:     hashIdentifier(r.UserAgent()),
		}

		res, err := c.admission.CreateTask(r.Context(), req, caller, c.pollIntervalSeconds)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.AsTaskError(err))
			return
		}

		writeJSON(w, http.StatusAccepted, createTaskResponse{
			TaskID:     res.TaskID.String(),
			Status:     string(res.Status),
			RetryAfter: res.RetryAfterSeconds,
		})
	}
}

type taskResponse struct {
	TaskID      string            `json:"task_id"`
	Status      string            `json:"status"`
	SourceType  string            `json:"source_type"`
	Engine      string            `json:"engine,omitempty"`
	DurationSec float64           `json:"duration_sec,omitempty"`
	CostMinutes int               `json:"cost_minutes,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Result      *taskResultSchema `json:"result,omitempty"`
}

type taskResultSchema struct {
	Segments []segmentSchema `json:"segments"`
	SRTURL   string          `json:"srt_url"`
	VTTURL   string          `json:"vtt_url"`
}

type segmentSchema struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// GetTask implements GET /tasks/{id}, §6: "state + result if succeeded."
func (c *Collection) GetTask() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestId(r)

		caller, err := callerFromRequest(r)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.AsTaskError(err))
			return
		}

		id, err := uuid.Parse(ps.ByName("id"))
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInvalidInput, "invalid task id", err))
			return
		}

		t, err := c.tasks.GetTask(r.Context(), id)
		if err != nil {
			if err == store.ErrNotFound {
				xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeNotFound, "task not found", nil))
				return
			}
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInternalError, "failed to load task", err))
			return
		}

		if t.Owner().OwnerKey() != caller.OwnerKey() {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeForbidden, "task belongs to a different caller", nil))
			return
		}

		resp := taskResponse{
			TaskID:      t.ID.String(),
			Status:      string(t.Status),
			SourceType:  string(t.SourceType),
			Engine:      t.Engine,
			DurationSec: t.DurationSec,
			CostMinutes: t.CostMinutes,
			Error:       t.Error,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		}

		if t.Status == task.StatusSucceeded {
			tr, err := c.transcripts.GetTranscript(r.Context(), id)
			if err != nil && err != store.ErrNotFound {
				xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInternalError, "failed to load transcript", err))
				return
			}
			if tr != nil {
				segments := make([]segmentSchema, 0, len(tr.Segments))
				for _, s := range tr.Segments {
					segments = append(segments, segmentSchema{Start: s.Start, End: s.End, Text: s.Text, Speaker: s.Speaker})
				}
				resp.Result = &taskResultSchema{Segments: segments, SRTURL: tr.SRTURL, VTTURL: tr.VTTURL}
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

type listTasksResponse struct {
	Tasks      []taskResponse `json:"tasks"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListTasks implements GET /tasks, §6: "listing filtered by status,
// paginated by cursor = created_at."
func (c *Collection) ListTasks() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(r)

		caller, err := callerFromRequest(r)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.AsTaskError(err))
			return
		}

		q := r.URL.Query()
		filter := store.ListTasksFilter{
			UserID: caller.UserID,
			AnonID: caller.AnonID,
			Status: task.Status(q.Get("status")),
		}
		if limitStr := q.Get("limit"); limitStr != "" {
			if n, err := strconv.Atoi(limitStr); err == nil {
				filter.Limit = n
			}
		}
		if cursorStr := q.Get("cursor"); cursorStr != "" {
			cursor, err := time.Parse(time.RFC3339Nano, cursorStr)
			if err != nil {
				xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInvalidInput, "invalid cursor", err))
				return
			}
			filter.Cursor = cursor
		}

		tasks, nextCursor, err := c.tasks.ListTasks(r.Context(), filter)
		if err != nil {
			xerrors.WriteTaskError(w, requestID, xerrors.New(xerrors.CodeInternalError, "failed to list tasks", err))
			return
		}

		resp := listTasksResponse{Tasks: make([]taskResponse, 0, len(tasks))}
		for _, t := range tasks {
			resp.Tasks = append(resp.Tasks, taskResponse{
				TaskID:      t.ID.String(),
				Status:      string(t.Status),
				SourceType:  string(t.SourceType),
				Engine:      t.Engine,
				DurationSec: t.DurationSec,
				CostMinutes: t.CostMinutes,
				Error:       t.Error,
				CreatedAt:   t.CreatedAt,
				UpdatedAt:   t.UpdatedAt,
			})
		}
		if !nextCursor.IsZero() {
			resp.NextCursor = nextCursor.Format(time.RFC3339Nano)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// hashIdentifier hashes a raw remote-addr/user-agent value for AnonToken
// abuse-analysis fields, never storing either in the clear.
func hashIdentifier(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
