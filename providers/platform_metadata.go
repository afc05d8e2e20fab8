package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
)

// PlatformMetadata resolves a platform video id to duration/title/thumbnail
// (§6), used by Task Admission's trial duration gate for youtube sources.
// The lookup is best-effort at the HTTP layer (retryablehttp retries
// transient failures); admission treats any unresolved lookup as
// INVALID_INPUT rather than admitting optimistically (§4.1 step 2).
type PlatformMetadata struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewPlatformMetadata(baseURL, apiKey string) *PlatformMetadata {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 1 * time.Second
	client.Logger = nil

	return &PlatformMetadata{baseURL: baseURL, apiKey: apiKey, httpClient: client.StandardClient()}
}

type VideoMetadata struct {
	DurationSeconds float64
	Title           string
	Thumbnail       string
}

type videoMetadataEnvelope struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Title           string  `json:"title"`
	Thumbnail       string  `json:"thumbnail"`
}

// Lookup resolves sourceURL's duration/title/thumbnail. A non-nil error
// here is always treated as a failed lookup by the caller -- there is no
// partial-success case.
func (p *PlatformMetadata) Lookup(ctx context.Context, sourceURL string) (*VideoMetadata, error) {
	q := url.Values{}
	q.Set("url", sourceURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/metadata?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("providers: build platform-metadata request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: platform-metadata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.New(xerrors.CodeInvalidInput,
			fmt.Sprintf("platform metadata lookup returned status %d", resp.StatusCode), nil)
	}

	var env videoMetadataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("providers: decode platform-metadata response: %w", err)
	}

	return &VideoMetadata{
		DurationSeconds: env.DurationSeconds,
		Title:           env.Title,
		Thumbnail:       env.Thumbnail,
	}, nil
}

// LookupDurationSeconds satisfies task.DurationLookup, the narrow view
// of this adapter the trial duration gate actually needs.
func (p *PlatformMetadata) LookupDurationSeconds(ctx context.Context, sourceURL string) (float64, error) {
	meta, err := p.Lookup(ctx, sourceURL)
	if err != nil {
		return 0, err
	}
	return meta.DurationSeconds, nil
}
