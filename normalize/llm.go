package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/providers"
	"github.com/subvoxlabs/transcribe-api/task"
)

const (
	mergeTemperature     = 0.1
	translateTemperature = 0.3
	llmMaxRetries        = 3
	llmInitialBackoff    = 1 * time.Second
	llmBackoffMult       = 2
	llmMaxTokens         = 8192
)

// LLM wraps the Anthropic chat-completion endpoint for the optional
// merge/translate pass of §4.4.4, retried with the same
// attempt-count-and-doubling backoff apresai-podcaster's ClaudeGenerator
// uses around Messages.New.
type LLM struct {
	client anthropic.Client
	model  string
}

func NewLLM(apiKey, model string) *LLM {
	var client anthropic.Client
	if apiKey != "" {
		client = anthropic.NewClient(option.WithAPIKey(apiKey))
	} else {
		client = anthropic.NewClient()
	}
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	return &LLM{client: client, model: model}
}

type llmFragment struct {
	I  int     `json:"i"`
	S  float64 `json:"s"`
	E  float64 `json:"e"`
	T  string  `json:"t"`
	SP string  `json:"sp"`
}

type llmSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

type llmSegmentResponse struct {
	Segments []llmSegment `json:"segments"`
}

const mergeSystemPrompt = `You merge transcript fragments into complete sentences.
Rules:
- Merge fragments into complete sentences by semantics and punctuation.
- Preserve time ordering; a merged segment's start is its first fragment's start, its end is its last fragment's end.
- Never merge fragments across a speaker boundary.
- Respond with JSON only: {"segments":[{"start":0,"end":0,"text":"","speaker":""}]}`

const translateSystemPrompt = `You translate transcript segments into %s.
Rules:
- Preserve timestamps and speakers exactly; only rewrite text.
- If the source text is already in the target language, return it unchanged.
- Respond with JSON only: {"segments":[{"start":0,"end":0,"text":"","speaker":""}]}`

// Merge sends chunks to the LLM for semantic merge. On any failure
// (network, empty, or unparsable response) it returns nil and the caller
// falls back to the rule-based merge, per §4.4.4's failure-recovery
// policy for merge mode.
func (l *LLM) Merge(ctx context.Context, requestID string, chunks []providers.Chunk) []task.Segment {
	fragments := make([]llmFragment, 0, len(chunks))
	for i, c := range chunks {
		fragments = append(fragments, llmFragment{I: i, S: c.Start, E: c.End, T: c.Text, SP: c.Speaker})
	}
	segments, err := l.call(ctx, mergeSystemPrompt, mergeTemperature, fragments)
	if err != nil {
		log.Log(requestID, "llm merge failed, falling back to rule-based merge", "error", err)
		return nil
	}
	return segments
}

// Translate sends segments to the LLM for a translation pass. Unlike
// Merge, there is no fallback here: §4.4.4 requires the task to fail
// when translation cannot be performed.
func (l *LLM) Translate(ctx context.Context, targetLang string, segments []task.Segment) ([]task.Segment, error) {
	fragments := make([]llmFragment, 0, len(segments))
	for i, s := range segments {
		fragments = append(fragments, llmFragment{I: i, S: s.Start, E: s.End, T: s.Text, SP: s.Speaker})
	}
	prompt := fmt.Sprintf(translateSystemPrompt, targetLang)
	out, err := l.call(ctx, prompt, translateTemperature, fragments)
	if err != nil {
		return nil, fmt.Errorf("normalize: llm translate: %w", err)
	}
	return out, nil
}

func (l *LLM) call(ctx context.Context, systemPrompt string, temperature float64, fragments []llmFragment) ([]task.Segment, error) {
	body, err := json.Marshal(fragments)
	if err != nil {
		return nil, fmt.Errorf("normalize: marshal llm fragments: %w", err)
	}

	backoff := llmInitialBackoff
	var lastErr error

	for attempt := 1; attempt <= llmMaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		message, err := l.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(l.model),
			MaxTokens:   llmMaxTokens,
			Temperature: anthropic.Float(temperature),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(string(body))),
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("llm request (attempt %d/%d): %w", attempt, llmMaxRetries, err)
			if !l.sleepBackoff(ctx, attempt, &backoff) {
				return nil, lastErr
			}
			continue
		}

		text := extractText(message)
		if strings.TrimSpace(text) == "" {
			lastErr = fmt.Errorf("empty llm response (attempt %d/%d)", attempt, llmMaxRetries)
			if !l.sleepBackoff(ctx, attempt, &backoff) {
				return nil, lastErr
			}
			continue
		}

		segments, err := parseSegmentResponse(text)
		if err != nil {
			lastErr = fmt.Errorf("parse llm response (attempt %d/%d): %w", attempt, llmMaxRetries, err)
			if !l.sleepBackoff(ctx, attempt, &backoff) {
				return nil, lastErr
			}
			continue
		}
		return segments, nil
	}
	return nil, lastErr
}

func (l *LLM) sleepBackoff(ctx context.Context, attempt int, backoff *time.Duration) bool {
	if attempt >= llmMaxRetries {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff *= llmBackoffMult
	return true
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

func parseSegmentResponse(text string) ([]task.Segment, error) {
	text = stripMarkdownFences(text)

	var env llmSegmentResponse
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, err
	}
	if len(env.Segments) == 0 {
		return nil, fmt.Errorf("llm response contained no segments")
	}

	out := make([]task.Segment, 0, len(env.Segments))
	for _, s := range env.Segments {
		out = append(out, task.Segment{Start: s.Start, End: s.End, Text: s.Text, Speaker: s.Speaker})
	}
	return out, nil
}

func stripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
