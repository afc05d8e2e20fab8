package providers

import (
	"context"

	"github.com/subvoxlabs/transcribe-api/task"
)

// FetchForExecutor adapts AutoTranscript to task.YouTubeProvider: always
// requests mode=auto (§9.2's deterministic youtube routing) and converts
// the wire-level Chunk slice into task.Fragment so the task package
// never needs to import providers.
func (a *AutoTranscript) FetchForExecutor(ctx context.Context, requestID, sourceURL, lang string) ([]task.Fragment, string, float64, bool, error) {
	result, err := a.Fetch(ctx, requestID, sourceURL, ModeAuto, lang)
	if err != nil {
		return nil, "", 0, false, err
	}
	if result == nil {
		return nil, "", 0, false, nil
	}

	fragments := make([]task.Fragment, 0, len(result.Chunks))
	for _, c := range result.Chunks {
		fragments = append(fragments, task.Fragment{Text: c.Text, Start: c.Start, End: c.End, Speaker: c.Speaker, Language: c.Language})
	}
	return fragments, result.Language, result.DurationSec, result.IsGenerated, nil
}

// TranscribeForExecutor adapts SyncSTT to task.SyncSTTProvider.
func (s *SyncSTT) TranscribeForExecutor(ctx context.Context, sourceURL, language string) ([]task.Segment, float64, error) {
	result, err := s.Transcribe(ctx, sourceURL, "", language)
	if err != nil {
		return nil, 0, err
	}
	return result.Segments, result.DurationSec, nil
}
