package normalize

import (
	"context"

	"github.com/subvoxlabs/transcribe-api/providers"
	"github.com/subvoxlabs/transcribe-api/task"
)

// Normalizer is the composed entry point the Task Executor calls: always
// falls back to the rule-based merge of §4.4.3, optionally preceded by
// an LLM pass per §4.4.4 when an LLM client is configured.
type Normalizer struct {
	llm *LLM
}

func New(llm *LLM) *Normalizer {
	return &Normalizer{llm: llm}
}

func (n *Normalizer) HasLLM() bool {
	return n.llm != nil
}

// Merge produces sentence-level segments from raw chunks, trying the LLM
// first (if configured) and falling back to the deterministic rule-based
// merge on any LLM failure.
func (n *Normalizer) Merge(ctx context.Context, requestID string, chunks []providers.Chunk) []task.Segment {
	if n.llm != nil {
		if segments := n.llm.Merge(ctx, requestID, chunks); segments != nil {
			return segments
		}
	}
	return MergeChunks(chunks)
}

// Translate rewrites segment text into targetLang via the LLM. There is
// no rule-based fallback: §4.4.4 requires the task to fail outright when
// translation cannot be performed.
func (n *Normalizer) Translate(ctx context.Context, targetLang string, segments []task.Segment) ([]task.Segment, error) {
	return n.llm.Translate(ctx, targetLang, segments)
}

// MergeFragments adapts Merge to task.Fragment, the task-native shape
// the Executor works with.
func (n *Normalizer) MergeFragments(ctx context.Context, requestID string, fragments []task.Fragment) []task.Segment {
	return n.Merge(ctx, requestID, fragmentsToChunks(fragments))
}

// MergeRuleBased applies only the deterministic rule-based merge,
// skipping the LLM even when one is configured -- used for the native
// (non-generated) auto-transcript path, which is never billable and
// never needs AI assistance.
func (n *Normalizer) MergeRuleBased(fragments []task.Fragment) []task.Segment {
	return MergeChunks(fragmentsToChunks(fragments))
}

func fragmentsToChunks(fragments []task.Fragment) []providers.Chunk {
	chunks := make([]providers.Chunk, len(fragments))
	for i, f := range fragments {
		chunks[i] = providers.Chunk{Text: f.Text, Start: f.Start, End: f.End, Speaker: f.Speaker, Language: f.Language}
	}
	return chunks
}
