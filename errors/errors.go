// Package errors holds the stable error-code taxonomy (§7) and the HTTP
// writers used by the handlers layer. Grounded on
// livepeer-catalyst-api/errors, including its Unretriable wrapper, which
// here marks execution failures the dispatcher should not retry.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/subvoxlabs/transcribe-api/log"
)

// Code is one of the stable, user-surfaced error codes from §7.
type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeTrialExhausted      Code = "TRIAL_EXHAUSTED"
	CodeDurationExceeded    Code = "DURATION_EXCEEDED"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeConflict            Code = "CONFLICT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeEngineError         Code = "ENGINE_ERROR"
	CodeInternalError       Code = "INTERNAL_ERROR"
)

var statusForCode = map[Code]int{
	CodeInvalidInput:        http.StatusBadRequest,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeForbidden:           http.StatusForbidden,
	CodeTrialExhausted:      http.StatusForbidden,
	CodeDurationExceeded:    http.StatusForbidden,
	CodeInsufficientBalance: http.StatusForbidden,
	CodeConflict:            http.StatusConflict,
	CodeNotFound:            http.StatusNotFound,
	CodeEngineError:         http.StatusInternalServerError,
	CodeInternalError:       http.StatusInternalServerError,
}

// TaskError is a domain error carrying one of the stable codes. Admission
// (F) and the Executor (G) both return these; handlers translate Code to
// an HTTP status via WriteTaskError.
type TaskError struct {
	Code    Code
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TaskError) Unwrap() error { return e.Err }

func New(code Code, message string, err error) *TaskError {
	return &TaskError{Code: code, Message: message, Err: err}
}

// AsTaskError extracts a *TaskError from err, defaulting to INTERNAL_ERROR
// when err doesn't carry a code of its own.
func AsTaskError(err error) *TaskError {
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return &TaskError{Code: CodeInternalError, Message: "internal error", Err: err}
}

// StatusFor returns the HTTP status that should be surfaced for code.
func StatusFor(code Code) int {
	if s, ok := statusForCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteTaskError writes a JSON error body and logs it, the way
// writeHttpError does in the teacher's errors package.
func WriteTaskError(w http.ResponseWriter, requestID string, err *TaskError) {
	status := StatusFor(err.Code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]string{
		"code":  string(err.Code),
		"error": err.Message,
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.LogError(requestID, "error writing HTTP error body", encErr)
	}
	log.Log(requestID, "request failed", "code", err.Code, "status", status, "error", err.Error())
}

// Unretriable wraps an error to signal that the dispatcher must not retry
// the job that produced it — the failure reflects a property of the task
// itself, not transient provider flakiness.
type UnretriableError struct{ error }

func Unretriable(err error) error {
	if err == nil {
		return nil
	}
	return UnretriableError{err}
}

func (e UnretriableError) Unwrap() error { return e.error }

// IsUnretriable reports whether err (or anything it wraps) was marked
// Unretriable.
func IsUnretriable(err error) bool {
	var u UnretriableError
	return errors.As(err, &u)
}
