package task

import (
	"context"
	"fmt"
	"math"

	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
	"github.com/subvoxlabs/transcribe-api/log"
	"github.com/subvoxlabs/transcribe-api/metrics"
)

// YouTubeProvider is the narrow view of the Auto-Transcript Provider (B)
// the Executor needs for the youtube route, §4.3 step 2.
type YouTubeProvider interface {
	FetchForExecutor(ctx context.Context, requestID, sourceURL, lang string) (fragments []Fragment, language string, durationSec float64, isGenerated bool, err error)
}

// SyncSTTProvider is the narrow view of the Sync STT Provider (B) the
// Executor needs for the upload/url route.
type SyncSTTProvider interface {
	TranscribeForExecutor(ctx context.Context, sourceURL, language string) (segments []Segment, durationSec float64, err error)
}

// Normalizer is the narrow view of the Segment Normalizer (C) the
// Executor needs, §4.4.3/§4.4.4.
type Normalizer interface {
	HasLLM() bool
	MergeFragments(ctx context.Context, requestID string, fragments []Fragment) []Segment
	MergeRuleBased(fragments []Fragment) []Segment
	Translate(ctx context.Context, targetLang string, segments []Segment) ([]Segment, error)
}

// SubtitleFormatter is the narrow view of the Subtitle Formatter (D).
type SubtitleFormatter interface {
	FormatSRT(segments []Segment) string
	FormatVTT(segments []Segment) string
}

// ArtifactStore persists rendered subtitle/raw artifacts and returns
// their public URLs, the one function of the (out-of-scope, per §1)
// object store the Executor actually calls.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
}

// Executor drives a single task through its state machine, per §4.3.
type Executor struct {
	store      Store
	ledger     Ledger
	youtube    YouTubeProvider
	syncSTT    SyncSTTProvider
	normalizer Normalizer
	subtitles  SubtitleFormatter
	artifacts  ArtifactStore
}

func NewExecutor(store Store, ledger Ledger, youtube YouTubeProvider, syncSTT SyncSTTProvider, normalizer Normalizer, subtitles SubtitleFormatter, artifacts ArtifactStore) *Executor {
	return &Executor{
		store:      store,
		ledger:     ledger,
		youtube:    youtube,
		syncSTT:    syncSTT,
		normalizer: normalizer,
		subtitles:  subtitles,
		artifacts:  artifacts,
	}
}

// Run executes the full pipeline for taskID, per §4.3's numbered steps.
// It returns nil when another worker already picked the task up (aborting
// silently) and when execution failed with an unretriable error (the task
// is marked failed). A returned error is either a store failure around
// the status transitions or a retriable execution error; in the latter
// case the task has already been marked failed.
func (e *Executor) Run(ctx context.Context, requestID string, taskID uuid.UUID) error {
	// Step 1: pending -> processing.
	ok, err := e.store.MarkProcessing(ctx, taskID)
	if err != nil {
		return fmt.Errorf("task: mark processing: %w", err)
	}
	if !ok {
		log.Log(requestID, "task already picked up by another worker, aborting", "task_id", taskID)
		return nil
	}

	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("task: reload task: %w", err)
	}

	startedAt := time.Now()
	result, execErr := e.execute(ctx, requestID, t)
	metrics.ObserveExecution(string(t.SourceType), startedAt)

	if execErr != nil {
		te := xerrors.AsTaskError(execErr)
		if markErr := e.store.MarkFailed(ctx, taskID, te.Error()); markErr != nil {
			return fmt.Errorf("task: mark failed after execution error: %w", markErr)
		}
		metrics.Metrics.Failed.WithLabelValues(string(te.Code)).Inc()
		metrics.Metrics.InFlight.Dec()
		log.LogError(requestID, "task execution failed", execErr, "task_id", taskID)
		if xerrors.IsUnretriable(execErr) {
			return nil
		}
		return execErr
	}

	if err := e.store.MarkSucceeded(ctx, taskID, result.durationSec, result.costMinutes, result.engine); err != nil {
		return fmt.Errorf("task: mark succeeded: %w", err)
	}
	metrics.Metrics.Completed.WithLabelValues(result.engine).Inc()
	metrics.Metrics.InFlight.Dec()
	return nil
}

type executionResult struct {
	durationSec float64
	costMinutes int
	engine      string
}

func (e *Executor) execute(ctx context.Context, requestID string, t *Task) (*executionResult, error) {
	var (
		segments    []Segment
		durationSec float64
		costMinutes int
		engine      string
	)

	switch t.SourceType {
	case SourceYouTube:
		lang := t.Params["language"]
		fragments, _, dur, isGenerated, err := e.youtube.FetchForExecutor(ctx, requestID, t.SourceURL, lang)
		if err != nil {
			metrics.Metrics.ProviderCallErrors.WithLabelValues("auto-transcript").Inc()
			return nil, xerrors.Unretriable(xerrors.New(xerrors.CodeEngineError, "auto-transcript provider failed", err))
		}
		durationSec = dur
		engine = "auto-transcript"

		if isGenerated {
			costMinutes = int(math.Ceil(durationSec / 60))
			if e.normalizer.HasLLM() {
				segments = e.normalizer.MergeFragments(ctx, requestID, fragments)
			} else {
				segments = e.normalizer.MergeRuleBased(fragments)
			}
		} else {
			costMinutes = 0
			segments = e.normalizer.MergeRuleBased(fragments)
		}

	case SourceUpload, SourceURL:
		segs, dur, err := e.syncSTT.TranscribeForExecutor(ctx, t.SourceURL, t.Params["language"])
		if err != nil {
			metrics.Metrics.ProviderCallErrors.WithLabelValues("sync-stt").Inc()
			return nil, xerrors.Unretriable(xerrors.New(xerrors.CodeEngineError, "sync-stt provider failed", err))
		}
		segments = segs
		durationSec = dur
		costMinutes = int(math.Ceil(durationSec / 60))
		engine = "sync-stt"

		if lang := t.Params["language"]; lang != "" && e.normalizer.HasLLM() {
			translated, err := e.normalizer.Translate(ctx, lang, segments)
			if err != nil {
				// §4.4.4: translation has no correct fallback, so the
				// task fails outright.
				return nil, xerrors.Unretriable(xerrors.New(xerrors.CodeEngineError, "translation failed", err))
			}
			segments = translated
		}

	default:
		return nil, xerrors.Unretriable(xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("unsupported source_type %q", t.SourceType), nil))
	}

	if err := e.persistTranscript(ctx, t.ID, segments); err != nil {
		// Persistence failures are retriable per §4.3's failure table.
		return nil, xerrors.New(xerrors.CodeInternalError, "failed to persist transcript", err)
	}

	if err := e.settle(ctx, requestID, t, costMinutes); err != nil {
		return nil, err
	}

	return &executionResult{durationSec: durationSec, costMinutes: costMinutes, engine: engine}, nil
}

// persistTranscript uploads SRT and VTT concurrently -- the two artifacts
// are independent per §5's "fan-out for independent artifact uploads" --
// then upserts the transcript row once both URLs are known.
func (e *Executor) persistTranscript(ctx context.Context, taskID uuid.UUID, segments []Segment) error {
	srt := e.subtitles.FormatSRT(segments)
	vtt := e.subtitles.FormatVTT(segments)

	var srtURL, vttURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := e.artifacts.PutArtifact(gctx, fmt.Sprintf("transcripts/%s/output.srt", taskID), []byte(srt), "application/x-subrip")
		if err != nil {
			return fmt.Errorf("put srt artifact: %w", err)
		}
		srtURL = url
		return nil
	})
	g.Go(func() error {
		url, err := e.artifacts.PutArtifact(gctx, fmt.Sprintf("transcripts/%s/output.vtt", taskID), []byte(vtt), "text/vtt")
		if err != nil {
			return fmt.Errorf("put vtt artifact: %w", err)
		}
		vttURL = url
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return e.store.UpsertTranscript(ctx, &Transcript{
		TaskID:   taskID,
		Segments: segments,
		SRTURL:   srtURL,
		VTTURL:   vttURL,
	})
}

// settle implements §4.3 step 6: record trial usage, or deduct balance
// for an authenticated non-zero-cost task. A deduction shortfall is
// logged, never rolled back -- the work is already delivered.
func (e *Executor) settle(ctx context.Context, requestID string, t *Task, costMinutes int) error {
	if t.IsTrial {
		if err := e.ledger.RecordTrial(ctx, t.UserID, t.AnonID); err != nil {
			return xerrors.Unretriable(xerrors.New(xerrors.CodeInternalError, "failed to record trial usage", err))
		}
		return nil
	}

	if t.UserID != "" && costMinutes > 0 {
		ok, err := e.ledger.Deduct(ctx, requestID, t.UserID, float64(costMinutes))
		if err != nil {
			return xerrors.Unretriable(xerrors.New(xerrors.CodeInternalError, "balance deduction failed", err))
		}
		if !ok {
			log.Log(requestID, "balance deduction shortfall at settle, task still succeeds",
				"task_id", t.ID, "user_id", t.UserID, "cost_minutes", costMinutes)
		}
	}
	return nil
}
