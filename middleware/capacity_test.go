package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func TestCapacity_Gate_AllowsUnderCap(t *testing.T) {
	c := NewCapacity(2)
	called := false
	handler := c.Gate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	w := httptest.NewRecorder()
	handler(w, req, nil)

	require.True(t, called)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCapacity_Gate_RejectsOverCap(t *testing.T) {
	c := NewCapacity(1)

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := c.Gate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		w := httptest.NewRecorder()
		blocking(w, req, nil)
	}()
	<-started

	rejecting := c.Gate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	w := httptest.NewRecorder()
	rejecting(w, req, nil)

	require.Equal(t, http.StatusTooManyRequests, w.Code)

	close(release)
	wg.Wait()
}

func TestCapacity_Gate_ZeroMeansUnbounded(t *testing.T) {
	c := NewCapacity(0)
	handler := c.Gate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	w := httptest.NewRecorder()
	handler(w, req, nil)

	require.Equal(t, http.StatusOK, w.Code)
}
