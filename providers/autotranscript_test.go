package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeContent_PlainString(t *testing.T) {
	chunks, err := decodeContent(json.RawMessage(`"hello world"`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "hello world", chunks[0].Text)
}

func TestDecodeContent_EmptyString(t *testing.T) {
	chunks, err := decodeContent(json.RawMessage(`""`))
	require.NoError(t, err)
	require.Nil(t, chunks)
}

func TestDecodeContent_ChunkArray(t *testing.T) {
	chunks, err := decodeContent(json.RawMessage(`[{"text":"hi","offset_ms":1000,"duration_ms":500,"lang":"en"}]`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "hi", chunks[0].Text)
	require.Equal(t, 1.0, chunks[0].Start)
	require.Equal(t, 1.5, chunks[0].End)
}

func TestAutoTranscript_Fetch_SyncOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": "hello",
			"lang":    "en",
		})
	}))
	defer server.Close()

	a := NewAutoTranscript(server.URL, "key-1", 5, 10*time.Millisecond)
	result, err := a.Fetch(context.Background(), "req-1", "https://example.com/v.mp4", ModeNative, "")

	require.NoError(t, err)
	require.Equal(t, "en", result.Language)
	require.False(t, result.IsGenerated)
}

func TestAutoTranscript_Fetch_NativeNotFoundReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	a := NewAutoTranscript(server.URL, "key-1", 5, 10*time.Millisecond)
	result, err := a.Fetch(context.Background(), "req-1", "https://example.com/v.mp4", ModeNative, "")

	require.NoError(t, err)
	require.Nil(t, result)
}

func TestAutoTranscript_Fetch_GenerateNotFoundIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	a := NewAutoTranscript(server.URL, "key-1", 5, 10*time.Millisecond)
	_, err := a.Fetch(context.Background(), "req-1", "https://example.com/v.mp4", ModeGenerate, "")

	require.Error(t, err)
}

func TestAutoTranscript_Fetch_AsyncPolling(t *testing.T) {
	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet && r.URL.Path == "/v1/transcript" {
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "job-1", "status": "active"})
			return
		}
		polls++
		if polls < 2 {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "active"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": "done text", "lang": "en"})
	}))
	defer server.Close()

	a := NewAutoTranscript(server.URL, "key-1", 5, 5*time.Millisecond)
	result, err := a.Fetch(context.Background(), "req-1", "https://example.com/v.mp4", ModeAuto, "")

	require.NoError(t, err)
	require.True(t, result.IsGenerated)
	require.Len(t, result.Chunks, 1)
	require.Equal(t, "done text", result.Chunks[0].Text)
}

func TestAutoTranscript_Fetch_PollTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/transcript" {
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "job-1"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "active"})
	}))
	defer server.Close()

	a := NewAutoTranscript(server.URL, "key-1", 2, 2*time.Millisecond)
	_, err := a.Fetch(context.Background(), "req-1", "https://example.com/v.mp4", ModeAuto, "")

	require.Error(t, err)
}
