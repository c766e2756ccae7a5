package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/labtrace/labtrace/pkg/admin"
	"github.com/labtrace/labtrace/pkg/api"
	"github.com/labtrace/labtrace/pkg/chat"
	"github.com/labtrace/labtrace/pkg/config"
	"github.com/labtrace/labtrace/pkg/database"
	"github.com/labtrace/labtrace/pkg/ingest"
	"github.com/labtrace/labtrace/pkg/insight"
	"github.com/labtrace/labtrace/pkg/jobs"
	"github.com/labtrace/labtrace/pkg/llm"
	"github.com/labtrace/labtrace/pkg/mapping"
	"github.com/labtrace/labtrace/pkg/masking"
	"github.com/labtrace/labtrace/pkg/schema"
	"github.com/labtrace/labtrace/pkg/session"
	"github.com/labtrace/labtrace/pkg/sse"
	"github.com/labtrace/labtrace/pkg/storage"
	"github.com/labtrace/labtrace/pkg/store"
	"github.com/labtrace/labtrace/pkg/toolloop"
	"github.com/labtrace/labtrace/pkg/version"
	"github.com/labtrace/labtrace/pkg/vision"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	slog.Info("starting labtrace", "version", version.Full())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The request-scoped connection relies on Postgres row-level security
	// to keep one user's patients out of another's queries; the admin
	// connection is granted BYPASSRLS for backend infrastructure that must
	// see every patient's rows (ingestion, mapping, the review queue).
	userDB, err := database.NewClient(ctx, cfg.DatabaseDSN, cfg.DatabaseMaxConn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer userDB.Close()

	adminDB, err := database.NewClient(ctx, cfg.AdminDatabaseDSN, cfg.DatabaseMaxConn)
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()

	userStore := store.New(userDB.Pool)
	adminStore := store.New(adminDB.Pool)

	snapshots := schema.New(adminDB.Pool)

	sseRegistry := sse.NewRegistry()
	sessions := session.NewManager(cfg.SessionTTL, cfg.MaxConversationMessages, sseRegistry.Detach)
	sseRegistry.SetMessageIDLookup(sessions.CurrentMessageID)
	go sessions.Run(ctx, cfg.SessionSweepInterval)

	jobMetrics := jobs.NewMetrics()
	jobManager := jobs.NewManager(cfg.JobTTL, jobMetrics)

	contentStore, err := storage.NewFileStore(cfg.ContentStoreDir)
	if err != nil {
		return fmt.Errorf("open content store: %w", err)
	}

	visionProvider, err := buildVisionProvider(cfg)
	if err != nil {
		return fmt.Errorf("build vision provider: %w", err)
	}

	llmProvider, apiKey := llmProviderFor(cfg)
	llmClient, err := llm.New(llmProvider, apiKey, llm.DefaultRetryPolicy)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	thresholds := mapping.Thresholds{
		AutoAccept:            cfg.AutoAcceptThreshold,
		QueueLower:            cfg.QueueLowerThreshold,
		BackfillMinOccurrence: float64(cfg.BackfillMinOccurrence),
	}
	mapper := mapping.NewApplier(adminStore, llmClient, cfg.ChatModel, thresholds)

	masker := masking.NewService()

	pipeline := ingest.New(cfg, adminStore, contentStore, visionProvider, jobManager, mapper, masker, slog.Default())

	dispatcher := toolloop.NewDispatcher(userStore, snapshots.Current)
	orchestrator := chat.New(cfg, sessions, sseRegistry, llmClient, dispatcher, snapshots, userStore, masker, slog.Default())

	// insight.Generator reads straight through adminStore without a
	// per-request scope argument, so every caller (pkg/api) must verify
	// patient ownership under RLS before invoking it.
	insightGen := insight.New(adminStore, llmClient, cfg.InsightModel)

	adminSvc := admin.New(adminStore, mapper)

	server := api.NewServer(cfg, userStore, userStore.Users, adminStore.Reports, pipeline, jobManager, orchestrator, insightGen, adminSvc, snapshots)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 5m", jobManager.Sweep); err != nil {
		return fmt.Errorf("schedule job sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("labtrace listening", "addr", cfg.HTTPAddr)
		if err := server.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func llmProviderFor(cfg *config.Config) (llm.Provider, string) {
	if cfg.AnthropicAPIKey != "" {
		return llm.ProviderAnthropic, cfg.AnthropicAPIKey
	}
	return llm.ProviderOpenAI, cfg.OpenAIAPIKey
}

// buildVisionProvider wires the primary vision backend plus a fallback to
// the other configured provider, mirroring C4/C5's two-provider contract.
func buildVisionProvider(cfg *config.Config) (vision.Provider, error) {
	retry := vision.RetryPolicy{
		MaxAttempts: cfg.VisionMaxAttempts,
		BaseDelay:   cfg.VisionBaseBackoff,
		MaxDelay:    vision.DefaultRetryPolicy.MaxDelay,
		JitterFrac:  vision.DefaultRetryPolicy.JitterFrac,
	}
	anthropic := vision.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.OCRModel, retry)
	openai := vision.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OCRModel, retry)

	switch cfg.PrimaryVisionProvider {
	case config.VisionProviderAnthropic:
		return vision.NewFallbackProvider(anthropic, openai), nil
	case config.VisionProviderOpenAI:
		return vision.NewFallbackProvider(openai, anthropic), nil
	default:
		return nil, fmt.Errorf("unknown vision provider: %s", cfg.PrimaryVisionProvider)
	}
}
