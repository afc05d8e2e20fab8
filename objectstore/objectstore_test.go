package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutArtifact_SuccessReturnsPublicURL(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(server.URL, "https://cdn.example.com")
	url, err := s.PutArtifact(context.Background(), "transcripts/t1/output.srt", []byte("1\nhi\n"), "application/x-subrip")

	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/transcripts/t1/output.srt", url)
	require.Equal(t, "application/x-subrip", gotContentType)
	require.Equal(t, "1\nhi\n", string(gotBody))
}

func TestPutArtifact_ClientErrorIsPermanent(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := New(server.URL, "https://cdn.example.com")
	_, err := s.PutArtifact(context.Background(), "key", []byte("data"), "text/plain")

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestPutArtifact_ServerErrorRetriesThenFails(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := New(server.URL, "https://cdn.example.com")
	_, err := s.PutArtifact(context.Background(), "key", []byte("data"), "text/plain")

	require.Error(t, err)
	require.Greater(t, attempts, 1)
}
