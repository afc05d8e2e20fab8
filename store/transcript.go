package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/subvoxlabs/transcribe-api/task"
)

// UpsertTranscript writes the transcript row keyed on task_id, per §4.3
// step 5. Writing a task_id that already has a row overwrites that row
// instead of failing.
func (g *Gateway) UpsertTranscript(ctx context.Context, tr *task.Transcript) error {
	segments, err := json.Marshal(tr.Segments)
	if err != nil {
		return fmt.Errorf("store: marshal segments: %w", err)
	}

	_, err = g.db.ExecContext(ctx, `
		INSERT INTO transcripts (task_id, segments, language, raw_payload, srt_url, vtt_url, raw_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (task_id) DO UPDATE SET
			segments = EXCLUDED.segments,
			language = EXCLUDED.language,
			raw_payload = EXCLUDED.raw_payload,
			srt_url = EXCLUDED.srt_url,
			vtt_url = EXCLUDED.vtt_url,
			raw_url = EXCLUDED.raw_url
	`, tr.TaskID, segments, tr.Language, tr.RawPayload, tr.SRTURL, tr.VTTURL, tr.RawURL)
	if err != nil {
		return fmt.Errorf("store: upsert transcript: %w", err)
	}
	return nil
}

func (g *Gateway) GetTranscript(ctx context.Context, taskID uuid.UUID) (*task.Transcript, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT task_id, segments, language, raw_payload, srt_url, vtt_url, raw_url, created_at
		FROM transcripts WHERE task_id = $1
	`, taskID)

	var tr task.Transcript
	var segmentsRaw []byte
	if err := row.Scan(&tr.TaskID, &segmentsRaw, &tr.Language, &tr.RawPayload,
		&tr.SRTURL, &tr.VTTURL, &tr.RawURL, &tr.CreatedAt); err != nil {
		return nil, translateNotFound(err)
	}
	if err := json.Unmarshal(segmentsRaw, &tr.Segments); err != nil {
		return nil, fmt.Errorf("store: unmarshal segments: %w", err)
	}
	return &tr, nil
}
