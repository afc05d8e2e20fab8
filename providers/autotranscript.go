package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
	"github.com/subvoxlabs/transcribe-api/log"
)

// AutoTranscript talks to the third-party "auto-transcript" service
// (§4.4.1, §6): GET /v1/transcript, with async jobs surfaced as a 202
// + jobId that must be polled.
type AutoTranscript struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	maxPollAttempts int
	pollInterval    time.Duration
}

func NewAutoTranscript(baseURL, apiKey string, maxPollAttempts int, pollInterval time.Duration) *AutoTranscript {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 1 * time.Second
	client.Logger = nil

	return &AutoTranscript{
		baseURL:         baseURL,
		apiKey:          apiKey,
		httpClient:      client.StandardClient(),
		maxPollAttempts: maxPollAttempts,
		pollInterval:    pollInterval,
	}
}

type transcriptEnvelope struct {
	JobID         string          `json:"jobId"`
	Status        string          `json:"status"`
	Content       json.RawMessage `json:"content"`
	Lang          string          `json:"lang"`
	AvailableLang []string        `json:"availableLangs"`
}

// decodeContent unmarshals the `content` field, which is either a plain
// string or a chunk array, per §4.4.1's wire shape.
func decodeContent(raw json.RawMessage) ([]Chunk, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []Chunk{{Text: asString}}, nil
	}

	var asChunks []struct {
		Text       string  `json:"text"`
		OffsetMs   float64 `json:"offset_ms"`
		DurationMs float64 `json:"duration_ms"`
		Lang       string  `json:"lang"`
	}
	if err := json.Unmarshal(raw, &asChunks); err != nil {
		return nil, fmt.Errorf("providers: decode auto-transcript content: %w", err)
	}

	chunks := make([]Chunk, 0, len(asChunks))
	for _, c := range asChunks {
		chunks = append(chunks, Chunk{
			Text:     c.Text,
			Start:    c.OffsetMs / 1000,
			End:      (c.OffsetMs + c.DurationMs) / 1000,
			Language: c.Lang,
		})
	}
	return chunks, nil
}

// Fetch runs the request in the given mode (§4.4.1). It returns
// (nil, nil) for a native-mode "not found" response, per spec: "a 'not
// found' response yields null (caller treats as absent)".
func (a *AutoTranscript) Fetch(ctx context.Context, requestID, sourceURL string, mode Mode, lang string) (*FetchResult, error) {
	q := url.Values{}
	q.Set("url", sourceURL)
	q.Set("mode", string(mode))
	if lang != "" {
		q.Set("lang", lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/transcript?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("providers: build auto-transcript request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: auto-transcript request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var env transcriptEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("providers: decode auto-transcript response: %w", err)
		}
		chunks, err := decodeContent(env.Content)
		if err != nil {
			return nil, err
		}
		if mode == ModeNative && chunks == nil {
			return nil, nil
		}
		return &FetchResult{
			Chunks:      chunks,
			Language:    env.Lang,
			DurationSec: lastChunkEnd(chunks),
			// Synchronous 200 responses are never the async-generation
			// path; is_generated is true only for an explicit `generate`
			// request or a job that actually went through the async
			// poller (see poll, below), per §4.4.1.
			IsGenerated: mode == ModeGenerate,
		}, nil

	case http.StatusAccepted:
		var env transcriptEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("providers: decode auto-transcript job response: %w", err)
		}
		log.Log(requestID, "auto-transcript job queued", "job_id", env.JobID, "mode", mode)
		return a.poll(ctx, requestID, env.JobID)

	case http.StatusNotFound:
		if mode == ModeNative {
			return nil, nil
		}
		return nil, xerrors.New(xerrors.CodeEngineError, "auto-transcript provider returned not found", nil)

	default:
		return nil, xerrors.New(xerrors.CodeEngineError,
			fmt.Sprintf("auto-transcript provider returned status %d", resp.StatusCode), nil)
	}
}

// FetchResult carries the caller-facing outcome of Fetch, including
// whether the async path was taken -- is_generated is always true for an
// async job, per §4.4.1.
type FetchResult struct {
	Chunks      []Chunk
	Language    string
	DurationSec float64
	IsGenerated bool
}

// lastChunkEnd approximates total duration as the last chunk's end
// offset; the auto-transcript wire format (§4.4.1) carries no separate
// duration field.
func lastChunkEnd(chunks []Chunk) float64 {
	var max float64
	for _, c := range chunks {
		if c.End > max {
			max = c.End
		}
	}
	return max
}

// poll implements the polling state machine of §4.4.1: terminal when the
// response carries a `content` field, intermediate while status=active,
// capped at maxPollAttempts (~10 minutes total with the default
// interval). Timeout is fatal and maps to a non-retriable ENGINE_ERROR.
func (a *AutoTranscript) poll(ctx context.Context, requestID, jobID string) (*FetchResult, error) {
	// WithMaxRetries counts retries after the first call, so maxPollAttempts
	// polls in total means maxPollAttempts-1 retries.
	retries := a.maxPollAttempts - 1
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(a.pollInterval), uint64(retries))
	bo = backoff.WithContext(bo, ctx)

	var result *FetchResult
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/v1/transcript/%s", a.baseURL, jobID), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+a.apiKey)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var env transcriptEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return backoff.Permanent(fmt.Errorf("providers: decode poll response: %w", err))
		}

		if env.Status == "active" || len(env.Content) == 0 {
			log.Log(requestID, "auto-transcript job still active", "job_id", jobID, "attempt", attempt)
			return fmt.Errorf("job %s still active", jobID)
		}

		chunks, err := decodeContent(env.Content)
		if err != nil {
			return backoff.Permanent(err)
		}
		result = &FetchResult{Chunks: chunks, Language: env.Lang, DurationSec: lastChunkEnd(chunks), IsGenerated: true}
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return nil, xerrors.New(xerrors.CodeEngineError, "auto-transcript job timed out", err)
	}
	return result, nil
}
