// Command server is the composition root for the task engine: it wires
// the Storage Gateway, Billing Ledger, Provider Adapters, Segment
// Normalizer, Subtitle Formatter, object store, Task Admission/Executor,
// Dispatcher, Stuck-Task Sweeper and HTTP surface together, mirroring
// livepeer-catalyst-api/cmd/http-server's single-file composition-root
// style.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subvoxlabs/transcribe-api/billing"
	"github.com/subvoxlabs/transcribe-api/cache"
	"github.com/subvoxlabs/transcribe-api/config"
	"github.com/subvoxlabs/transcribe-api/dispatcher"
	"github.com/subvoxlabs/transcribe-api/handlers"
	"github.com/subvoxlabs/transcribe-api/middleware"
	"github.com/subvoxlabs/transcribe-api/normalize"
	"github.com/subvoxlabs/transcribe-api/objectstore"
	"github.com/subvoxlabs/transcribe-api/providers"
	"github.com/subvoxlabs/transcribe-api/store"
	"github.com/subvoxlabs/transcribe-api/subtitles"
	"github.com/subvoxlabs/transcribe-api/sweeper"
	"github.com/subvoxlabs/transcribe-api/task"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	gateway, err := store.Open(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open storage gateway: %v", err)
	}

	// GatedStore wraps the Postgres-backed gateway with the in-process
	// concurrency-gate fast path; it satisfies task.Store only, so the
	// rest of the wiring below takes gateway directly.
	gatedStore := cache.NewGatedStore(gateway)

	ledger := billing.New(gateway)
	platformMetadata := providers.NewPlatformMetadata(cfg.PlatformMetadataBaseURL, cfg.PlatformMetadataAPIKey)
	autoTranscript := providers.NewAutoTranscript(cfg.AutoTranscriptBaseURL, cfg.AutoTranscriptAPIKey, cfg.AutoTranscriptMaxPollAttempts, cfg.AutoTranscriptPollInterval)
	syncSTT := providers.NewSyncSTT(cfg.SyncSTTBaseURL, cfg.SyncSTTAPIKey)

	var llm *normalize.LLM
	if cfg.LLMEnabled {
		llm = normalize.NewLLM(cfg.LLMAPIKey, cfg.LLMModel)
	}
	normalizer := normalize.New(llm)

	formatter := subtitles.NewFormatter()
	artifacts := objectstore.New(cfg.ObjectStoreBaseURL, cfg.ObjectStorePublicURL)

	executor := task.NewExecutor(gatedStore, ledger, autoTranscript, syncSTT, normalizer, formatter, artifacts)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var dispatch task.Dispatcher
	switch cfg.DispatchMode() {
	case config.DispatchQueue:
		queue := dispatcher.NewQueue(gateway, gateway, executor, cfg.DispatchPollInterval)
		go queue.Consume(ctx)
		go reportQueueDepth(ctx, queue, cfg.DispatchPollInterval)
		dispatch = queue
	default:
		inProcess := dispatcher.NewInProcess(executor, cfg.MaxJobsInFlight, cfg.MaxJobsInFlight*4)
		inProcess.Start(ctx)
		if err := inProcess.Recover(ctx, gateway); err != nil {
			log.Printf("in-process dispatcher recovery failed: %v", err)
		}
		dispatch = inProcess
	}

	admission := task.NewAdmission(gatedStore, ledger, platformMetadata, dispatch, cfg.TrialMaxDurationMinutes)

	stuckSweeper := sweeper.New(gateway, cfg.TaskTimeoutMinutes)
	stopSweeper, err := stuckSweeper.Start(ctx, fmt.Sprintf("@every %s", cfg.SweepInterval))
	if err != nil {
		log.Fatalf("failed to start sweeper: %v", err)
	}
	defer stopSweeper()

	handlerCollection := handlers.New(
		admission, gateway, gateway, gateway, ledger,
		cfg.TaskPollIntervalSeconds,
		cfg.SyncSTTWebhookKey, cfg.AutoTranscriptWebhookKey, cfg.SubscriptionWebhookKey,
	)

	router := buildRouter(handlerCollection, cfg)

	server := &http.Server{Addr: cfg.HTTPAddress, Handler: router}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Println("listening on", cfg.HTTPAddress, "dispatch mode", cfg.DispatchMode())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func buildRouter(h *handlers.Collection, cfg config.Cli) *httprouter.Router {
	capacity := middleware.NewCapacity(cfg.MaxJobsInFlight)

	wrap := func(next httprouter.Handle) httprouter.Handle {
		return middleware.AllowCORS()(middleware.LogRequest()(capacity.Gate(next)))
	}

	router := httprouter.New()
	router.GET("/ok", wrap(h.Ok()))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	router.POST("/tasks", wrap(h.CreateTask()))
	router.GET("/tasks/:id", wrap(h.GetTask()))
	router.GET("/tasks", wrap(h.ListTasks()))

	router.POST("/webhooks/auto-transcript", wrap(h.AutoTranscriptWebhook()))
	router.POST("/webhooks/stt", wrap(h.SyncSTTWebhook()))
	router.POST("/webhooks/subscription", wrap(h.SubscriptionWebhook()))

	return router
}

// reportQueueDepth samples the durable queue's depth gauge on the same
// cadence the queue itself polls for work.
func reportQueueDepth(ctx context.Context, queue *dispatcher.Queue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queue.ReportQueueDepth(ctx)
		}
	}
}
