package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestExtractSegments_PrefersUtterances(t *testing.T) {
	payload := sttResponse{}
	payload.Results.Utterances = []sttUtterance{
		{Start: 0, End: 1, Transcript: "hello", Speaker: intPtr(0)},
		{Start: 1.2, End: 2, Transcript: "world", Speaker: intPtr(1)},
	}

	segments := ExtractSegments(payload)
	require.Len(t, segments, 2)
	require.Equal(t, "hello", segments[0].Text)
	require.Equal(t, "Speaker 0", segments[0].Speaker)
}

func TestExtractSegments_FallsBackToWordStream(t *testing.T) {
	payload := sttResponse{}
	payload.Results.Channels = []sttChannel{{
		Alternatives: []sttAlternative{{
			Words: []sttWord{
				{PunctuatedWord: "Hello,", Start: 0, End: 0.5, Speaker: intPtr(0)},
				{PunctuatedWord: "world.", Start: 0.6, End: 1.0, Speaker: intPtr(0)},
				{PunctuatedWord: "Next", Start: 3.0, End: 3.4, Speaker: intPtr(0)},
			},
		}},
	}}

	segments := ExtractSegments(payload)
	require.Len(t, segments, 2)
	require.Equal(t, "Hello, world.", segments[0].Text)
	require.Equal(t, "Next", segments[1].Text)
}

func TestExtractSegments_SpeakerChangeSplitsWordStream(t *testing.T) {
	payload := sttResponse{}
	payload.Results.Channels = []sttChannel{{
		Alternatives: []sttAlternative{{
			Words: []sttWord{
				{Word: "hi", Start: 0, End: 0.3, Speaker: intPtr(0)},
				{Word: "there", Start: 0.4, End: 0.8, Speaker: intPtr(1)},
			},
		}},
	}}

	segments := ExtractSegments(payload)
	require.Len(t, segments, 2)
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := []byte("s3cr3t")
	body := []byte(`{"event":"done"}`)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	require.True(t, VerifyWebhookSignature(secret, body, sig))
	require.False(t, VerifyWebhookSignature(secret, body, "deadbeef"))
	require.False(t, VerifyWebhookSignature(secret, []byte("tampered"), sig))
}

func TestSyncSTT_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/listen", r.URL.Path)
		require.Equal(t, "Token key-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"metadata": map[string]float64{"duration": 42.5},
			"results": map[string]interface{}{
				"utterances": []map[string]interface{}{
					{"start": 0, "end": 1, "transcript": "hi"},
				},
			},
		})
	}))
	defer server.Close()

	s := NewSyncSTT(server.URL, "key-123")
	result, err := s.Transcribe(context.Background(), "https://example.com/a.mp4", "", "en")

	require.NoError(t, err)
	require.Equal(t, 42.5, result.DurationSec)
	require.Len(t, result.Segments, 1)
	require.True(t, result.IsGenerated)
}

func TestSyncSTT_Transcribe_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewSyncSTT(server.URL, "key-123")
	_, err := s.Transcribe(context.Background(), "https://example.com/a.mp4", "", "")
	require.Error(t, err)
}
