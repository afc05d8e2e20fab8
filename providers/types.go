// Package providers implements the Provider Adapters (B): a uniform
// TranscriptResult from each external transcription service. Grounded on
// livepeer-catalyst-api/clients: HTTP clients built on
// hashicorp/go-retryablehttp (clients/callback_client.go) and poll loops
// built on cenkalti/backoff/v4 (clients/mediaconvert.go's
// coreAwsTranscode).
package providers

import "github.com/subvoxlabs/transcribe-api/task"

// Mode selects how the Auto-Transcript Provider resolves a request, per
// §4.4.1.
type Mode string

const (
	ModeNative   Mode = "native"
	ModeGenerate Mode = "generate"
	ModeAuto     Mode = "auto"
)

// TranscriptResult is the shape SyncSTT.Transcribe returns. The
// auto-transcript adapter returns FetchResult (chunks rather than
// segments) instead.
type TranscriptResult struct {
	Segments    []task.Segment
	DurationSec float64
	Language    string
	IsGenerated bool
}

// Chunk is a fragmentary sub-word unit as emitted by the auto-transcript
// provider's chunk-array response shape (§4.4.1) or derived from a word
// stream (§4.4.2). It is the common input type to the Segment Normalizer.
type Chunk struct {
	Text     string
	Start    float64
	End      float64
	Speaker  string
	Language string
}
