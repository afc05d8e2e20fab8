// Package task defines the core entities of §3 and drives the task
// lifecycle (Admission F, Executor G) described in §4.1 and §4.3.
package task

import (
	"time"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourceUpload  SourceType = "upload"
	SourceURL     SourceType = "url"
	SourceYouTube SourceType = "youtube"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

type Priority string

const (
	PriorityPaid Priority = "paid"
	PriorityFree Priority = "free"
)

// Caller is the explicit identity value threaded through admission and
// access-check layers, per §9's redesign flag against ambient
// "current user" request context.
type Caller struct {
	UserID        string
	AnonID        string
	Authenticated bool
}

func (c Caller) OwnerKey() string {
	if c.UserID != "" {
		return "user:" + c.UserID
	}
	return "anon:" + c.AnonID
}

// Task is a single transcription request, per §3.
type Task struct {
	ID       uuid.UUID
	UserID   string // empty when owned by an anonymous trial caller
	AnonID   string // empty when owned by an authenticated user

	SourceType SourceType
	TaskType   string // always "transcription"
	IsTrial    bool
	Priority   Priority

	SourceURL string
	Params    map[string]string

	Status Status
	Engine string

	DurationSec float64
	CostMinutes int
	Error       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Task) Owner() Caller {
	return Caller{UserID: t.UserID, AnonID: t.AnonID, Authenticated: t.UserID != ""}
}

// Segment is a (start, end, text, speaker) tuple, per the GLOSSARY.
type Segment struct {
	Start   float64
	End     float64
	Text    string
	Speaker string // empty means unknown/unset
}

// Fragment is a sub-word chunk as emitted by a provider adapter before
// normalization, per §4.4.1's chunk wire shape. It mirrors
// providers.Chunk structurally; defined here instead so the Executor can
// depend on it without importing providers (providers already imports
// task).
type Fragment struct {
	Text     string
	Start    float64
	End      float64
	Speaker  string
	Language string
}

// Transcript is 1:1 with a succeeded Task.
type Transcript struct {
	TaskID      uuid.UUID
	Segments    []Segment
	Language    string
	RawPayload  []byte
	SRTURL      string
	VTTURL      string
	RawURL      string
	CreatedAt   time.Time
}

// Balance is one row per user, per §3.
type Balance struct {
	UserID         string
	MinutesBalance float64
	UpdatedAt      time.Time
}

// AnonToken tracks trial eligibility for unauthenticated callers.
type AnonToken struct {
	AnonID    string
	IPHash    string
	UAHash    string
	UsedTrial bool
}

// TrialUsage is an append-only audit row.
type TrialUsage struct {
	ID     int64
	AnonID string
	UserID string
	UsedAt time.Time
}

func NewID() uuid.UUID {
	return uuid.New()
}
