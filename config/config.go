// Package config centralizes the environment-driven knobs for the task
// engine in a Cli struct with sane defaults (Default), loaded once at
// process start by cmd/server via peterbourgon/ff.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"time"

	"github.com/peterbourgon/ff/v3"
)

// DispatchMode selects how the Dispatcher (H) hands jobs to workers.
type DispatchMode string

const (
	DispatchQueue     DispatchMode = "queue"
	DispatchInProcess DispatchMode = "inprocess"
)

// Cli holds every environment-configurable option for the service. Field
// names match the §6 environment variable names in spirit; Load binds them
// to flags/env the way cmd/http-server binds catalyst-api's flags.
type Cli struct {
	HTTPAddress string

	PostgresURL string

	TrialMaxDurationMinutes int
	TaskPollIntervalSeconds int
	TaskTimeoutMinutes      int

	AutoTranscriptMaxPollAttempts int
	AutoTranscriptPollInterval    time.Duration
	AutoTranscriptBaseURL         string
	AutoTranscriptAPIKey          string

	SyncSTTBaseURL    string
	SyncSTTAPIKey     string
	SyncSTTWebhookKey string

	AutoTranscriptWebhookKey string
	SubscriptionWebhookKey   string

	PlatformMetadataBaseURL string
	PlatformMetadataAPIKey  string

	LLMEnabled bool
	LLMAPIKey  string
	LLMModel   string

	QueueEnabled         bool
	DispatchPollInterval time.Duration

	ObjectStoreBaseURL   string
	ObjectStorePublicURL string

	SweepInterval time.Duration

	MaxJobsInFlight int
}

// Default returns the documented defaults from §6 of the specification.
func Default() Cli {
	return Cli{
		HTTPAddress: "0.0.0.0:8080",

		TrialMaxDurationMinutes: 30,
		TaskPollIntervalSeconds: 5,
		TaskTimeoutMinutes:      10,

		AutoTranscriptMaxPollAttempts: 120,
		AutoTranscriptPollInterval:    5 * time.Second,

		LLMModel: "claude-sonnet-4-5-20250929",

		QueueEnabled:         false,
		DispatchPollInterval: 2 * time.Second,

		SweepInterval: 5 * time.Minute,

		MaxJobsInFlight: 64,
	}
}

// Load parses flags/environment into a Cli, starting from Default().
// Grounded on cmd/http-server/http-server.go's use of peterbourgon/ff to
// layer flags over environment variables with a common prefix.
func Load(args []string) (Cli, error) {
	cfg := Default()

	fs := flag.NewFlagSet("transcribe-api", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddress, "http-addr", cfg.HTTPAddress, "address to listen for HTTP requests on")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "Postgres connection string for the storage gateway")

	fs.IntVar(&cfg.TrialMaxDurationMinutes, "trial-max-duration-minutes", cfg.TrialMaxDurationMinutes, "maximum source duration admitted for a trial task")
	fs.IntVar(&cfg.TaskPollIntervalSeconds, "task-poll-interval-seconds", cfg.TaskPollIntervalSeconds, "interval advertised to clients for polling task status")
	fs.IntVar(&cfg.TaskTimeoutMinutes, "task-timeout-minutes", cfg.TaskTimeoutMinutes, "sweeper threshold for stuck processing tasks")

	fs.IntVar(&cfg.AutoTranscriptMaxPollAttempts, "auto-transcript-max-poll-attempts", cfg.AutoTranscriptMaxPollAttempts, "maximum polls for an async auto-transcript job")
	fs.DurationVar(&cfg.AutoTranscriptPollInterval, "auto-transcript-poll-interval", cfg.AutoTranscriptPollInterval, "base interval between auto-transcript polls")
	fs.StringVar(&cfg.AutoTranscriptBaseURL, "auto-transcript-base-url", cfg.AutoTranscriptBaseURL, "base URL of the auto-transcript provider")
	fs.StringVar(&cfg.AutoTranscriptAPIKey, "auto-transcript-api-key", cfg.AutoTranscriptAPIKey, "API key for the auto-transcript provider")

	fs.StringVar(&cfg.SyncSTTBaseURL, "sync-stt-base-url", cfg.SyncSTTBaseURL, "base URL of the synchronous STT provider")
	fs.StringVar(&cfg.SyncSTTAPIKey, "sync-stt-api-key", cfg.SyncSTTAPIKey, "API key for the synchronous STT provider")
	fs.StringVar(&cfg.SyncSTTWebhookKey, "sync-stt-webhook-key", cfg.SyncSTTWebhookKey, "HMAC secret used to verify the STT webhook signature")
	fs.StringVar(&cfg.AutoTranscriptWebhookKey, "auto-transcript-webhook-key", cfg.AutoTranscriptWebhookKey, "HMAC secret used to verify the auto-transcript webhook signature")
	fs.StringVar(&cfg.SubscriptionWebhookKey, "subscription-webhook-key", cfg.SubscriptionWebhookKey, "HMAC secret used to verify subscription-event webhook signatures")

	fs.StringVar(&cfg.PlatformMetadataBaseURL, "platform-metadata-base-url", cfg.PlatformMetadataBaseURL, "base URL of the platform metadata provider")
	fs.StringVar(&cfg.PlatformMetadataAPIKey, "platform-metadata-api-key", cfg.PlatformMetadataAPIKey, "API key for the platform metadata provider")

	fs.BoolVar(&cfg.LLMEnabled, "llm-enabled", cfg.LLMEnabled, "enable LLM-assisted segment merge/translate")
	fs.StringVar(&cfg.LLMAPIKey, "llm-api-key", cfg.LLMAPIKey, "API key for the LLM provider")
	fs.StringVar(&cfg.LLMModel, "llm-model", cfg.LLMModel, "model identifier for the LLM provider")

	fs.BoolVar(&cfg.QueueEnabled, "queue-enabled", cfg.QueueEnabled, "select the durable queue dispatcher instead of the in-process runner")
	fs.DurationVar(&cfg.DispatchPollInterval, "dispatch-poll-interval", cfg.DispatchPollInterval, "polling cadence of the durable queue dispatcher")

	fs.StringVar(&cfg.ObjectStoreBaseURL, "object-store-base-url", cfg.ObjectStoreBaseURL, "base URL the object store accepts artifact PUTs at")
	fs.StringVar(&cfg.ObjectStorePublicURL, "object-store-public-url", cfg.ObjectStorePublicURL, "base URL artifacts are publicly readable from")

	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "cadence of the stuck-task sweeper")

	fs.IntVar(&cfg.MaxJobsInFlight, "max-jobs-in-flight", cfg.MaxJobsInFlight, "soft cap on concurrently processing tasks per worker")

	err := ff.Parse(fs, args, ff.WithEnvVarPrefix("TRANSCRIBE"))
	return cfg, err
}

func (c Cli) DispatchMode() DispatchMode {
	if c.QueueEnabled {
		return DispatchQueue
	}
	return DispatchInProcess
}

// RandomTrailer generates a short random hex suffix, used for request IDs
// (requests.GetRequestId). Mirrors catalyst-api's config.RandomTrailer.
func RandomTrailer(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
