package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func TestLogRequest_PassesThroughNormalResponse(t *testing.T) {
	handler := LogRequest()(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	w := httptest.NewRecorder()

	handler(w, req, nil)

	require.Equal(t, http.StatusCreated, w.Code)
}

func TestLogRequest_RecoversPanic(t *testing.T) {
	handler := LogRequest()(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	w := httptest.NewRecorder()

	require.NotPanics(t, func() {
		handler(w, req, nil)
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestResponseWriter_WriteHeaderIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)

	require.Equal(t, http.StatusTeapot, rw.status)
	require.Equal(t, http.StatusTeapot, rec.Code)
}
