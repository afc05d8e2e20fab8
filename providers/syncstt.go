package providers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
	"github.com/subvoxlabs/transcribe-api/task"
)

// SyncSTT talks to the synchronous speech-to-text service (§4.4.2, §6):
// POST /v1/listen with diarization and punctuation requested.
type SyncSTT struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewSyncSTT(baseURL, apiKey string) *SyncSTT {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &SyncSTT{baseURL: baseURL, apiKey: apiKey, httpClient: client.StandardClient()}
}

type sttWord struct {
	Word            string  `json:"word"`
	PunctuatedWord  string  `json:"punctuated_word"`
	Start           float64 `json:"start"`
	End             float64 `json:"end"`
	Speaker         *int    `json:"speaker"`
}

type sttAlternative struct {
	Words []sttWord `json:"words"`
}

type sttChannel struct {
	Alternatives []sttAlternative `json:"alternatives"`
}

type sttUtterance struct {
	Start    float64  `json:"start"`
	End      float64  `json:"end"`
	Transcript string `json:"transcript"`
	Speaker  *int     `json:"speaker"`
}

type sttResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels   []sttChannel   `json:"channels"`
		Utterances []sttUtterance `json:"utterances"`
	} `json:"results"`
}

// Transcribe runs diarize=true, detect_language=true, punctuate=true,
// utterances=true against sourceURL, per §4.4.2.
func (s *SyncSTT) Transcribe(ctx context.Context, sourceURL, model, language string) (*TranscriptResult, error) {
	q := url.Values{}
	if model != "" {
		q.Set("model", model)
	}
	q.Set("diarize", "true")
	q.Set("detect_language", "true")
	q.Set("punctuate", "true")
	q.Set("utterances", "true")
	if language != "" {
		q.Set("language", language)
	}

	body, err := json.Marshal(map[string]string{"url": sourceURL})
	if err != nil {
		return nil, fmt.Errorf("providers: marshal sync-stt body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/listen?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers: build sync-stt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: sync-stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.New(xerrors.CodeEngineError,
			fmt.Sprintf("sync-stt provider returned status %d", resp.StatusCode), nil)
	}

	var payload sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("providers: decode sync-stt response: %w", err)
	}

	return &TranscriptResult{
		Segments:    ExtractSegments(payload),
		DurationSec: payload.Metadata.Duration,
		IsGenerated: true,
	}, nil
}

// ExtractSegments implements §4.4.2's segment extraction priority:
// prefer provider-grouped utterances; otherwise walk the word stream and
// split on speaker change or a >1.0s gap.
func ExtractSegments(payload sttResponse) []task.Segment {
	if len(payload.Results.Utterances) > 0 {
		segments := make([]task.Segment, 0, len(payload.Results.Utterances))
		for _, u := range payload.Results.Utterances {
			segments = append(segments, task.Segment{
				Start:   u.Start,
				End:     u.End,
				Text:    u.Transcript,
				Speaker: speakerLabel(u.Speaker),
			})
		}
		return segments
	}

	var words []sttWord
	for _, ch := range payload.Results.Channels {
		for _, alt := range ch.Alternatives {
			words = append(words, alt.Words...)
		}
	}
	return segmentFromWords(words)
}

const maxWordGapSeconds = 1.0

func segmentFromWords(words []sttWord) []task.Segment {
	var segments []task.Segment
	var cur *task.Segment
	var curSpeaker *int
	var curWords []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = joinWords(curWords)
		segments = append(segments, *cur)
		cur = nil
		curWords = nil
	}

	for _, w := range words {
		speakerChanged := cur != nil && !samePointer(curSpeaker, w.Speaker)
		gapTooLarge := cur != nil && w.Start-cur.End > maxWordGapSeconds

		if cur == nil || speakerChanged || gapTooLarge {
			flush()
			cur = &task.Segment{Start: w.Start, Speaker: speakerLabel(w.Speaker)}
			curSpeaker = w.Speaker
		}
		cur.End = w.End
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		curWords = append(curWords, text)
	}
	flush()
	return segments
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

func samePointer(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func speakerLabel(speaker *int) string {
	if speaker == nil {
		return ""
	}
	return "Speaker " + strconv.Itoa(*speaker)
}

// VerifyWebhookSignature checks the `dg-signature` HMAC-SHA256 header the
// sync-STT provider sends on async webhook callbacks (§6), using a
// constant-time comparison as the spec mandates.
func VerifyWebhookSignature(secret, body []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	decoded := make([]byte, len(expected))
	n, err := hex.Decode(decoded, []byte(signatureHex))
	if err != nil || n != len(expected) {
		return false
	}
	return hmac.Equal(expected, decoded[:n])
}
