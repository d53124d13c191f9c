package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportcore/internal/analytics"
	"supportcore/internal/assignment"
	"supportcore/internal/autoclose"
	"supportcore/internal/config"
	"supportcore/internal/counter"
	"supportcore/internal/database"
	"supportcore/internal/email"
	"supportcore/internal/embeddings"
	"supportcore/internal/handlers"
	"supportcore/internal/k8s"
	"supportcore/internal/openai"
	"supportcore/internal/resolution"
	"supportcore/internal/retrieval"
	"supportcore/internal/server"
	"supportcore/internal/vip"

	"github.com/rs/zerolog"
)

// waitForTunnel waits for the SSH tunnel to the platform database when WAIT_FOR_TUNNEL is set
func waitForTunnel(logger *zerolog.Logger) {
	if os.Getenv("WAIT_FOR_TUNNEL") != "true" {
		return
	}

	tunnelReadyFile := "/shared/tunnel-ready"
	maxWait := 60 * time.Second
	checkInterval := 1 * time.Second

	logger.Info().Msg("Waiting for SSH tunnel to be ready...")

	start := time.Now()
	for {
		if _, err := os.Stat(tunnelReadyFile); err == nil {
			logger.Info().Msg("SSH tunnel is ready, proceeding with database connection")
			return
		}

		if time.Since(start) > maxWait {
			logger.Warn().Msg("Timed out waiting for SSH tunnel, proceeding anyway")
			return
		}

		time.Sleep(checkInterval)
	}
}

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	waitForTunnel(&logger)

	writeClient, err := database.NewWriteClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Helpdesk database connection failed")
	}
	defer func() { _ = writeClient.Close() }()
	logger.Info().Msg("Database connection established successfully")

	recorder := newRecorder(ctx, writeClient, logger)

	llm, err := openai.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("OpenAI client initialization failed")
	}
	if service, ok := recorder.(*analytics.Service); ok {
		llm.SetUsageRecorder(service)
	}
	logger.Info().
		Str("provider", llm.GetProviderName()).
		Str("gpt_model", llm.GetGPTModel()).
		Str("embedding_model", llm.GetEmbeddingModel()).
		Msg("LLM provider ready")

	conversations := database.NewConversationStore(writeClient)
	mailboxes := database.NewMailboxStore(writeClient)
	team := database.NewTeamStore(writeClient)

	counters := counter.Open(ctx, cfg.RedisAddr, logger)
	router := assignment.NewRouter(conversations, team, counters, cfg.RedisKeyPrefix, recorder, logger)
	engine := resolution.NewEngine(conversations, llm, recorder, logger)
	policy := autoclose.NewPolicy(mailboxes, newDispatcher(cfg, logger), recorder, logger)
	customers := newCustomerStore(cfg, logger)
	notifier := newNotifier(cfg, conversations, mailboxes, team, customers, recorder, logger)

	embedder := embeddings.NewCachedProvider(llm, time.Duration(cfg.EmbeddingCacheTTLMinutes)*time.Minute)
	assembler := retrieval.NewAssembler(database.NewRetrievalStore(writeClient), conversations, embedder, cfg.SimilarityThreshold, logger)

	deps := server.Dependencies{
		DB: writeClient.GetDB(),
		Automations: handlers.Automations{
			Router:     router,
			Resolution: engine,
			AutoClose:  policy,
			Vip:        notifier,
		},
		Assembler: assembler,
	}
	if customers != nil {
		deps.Platform = customers
	}
	if service, ok := recorder.(*analytics.Service); ok {
		deps.Analytics = service
	}

	srv := server.New(cfg, deps, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}

// newRecorder returns the analytics service, or a no-op recorder when its tables cannot be created
func newRecorder(ctx context.Context, writeClient *database.WriteClient, logger zerolog.Logger) analytics.Recorder {
	service, err := analytics.NewService(ctx, writeClient, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Analytics disabled")
		return analytics.Noop{}
	}
	return service
}

// newDispatcher returns the Kubernetes job dispatcher when configured; nil runs mailboxes inline
func newDispatcher(cfg *config.Config, logger zerolog.Logger) autoclose.Dispatcher {
	if cfg.AutoCloseDispatch != config.DispatchKubernetes {
		return nil
	}

	client, err := k8s.NewClient(cfg.K8sNamespace, cfg.WorkerImage)
	if err != nil {
		logger.Warn().Err(err).Msg("Kubernetes dispatch unavailable, closing mailboxes inline")
		return nil
	}
	logger.Info().Str("namespace", cfg.K8sNamespace).Msg("Auto-close mailboxes dispatched as Kubernetes jobs")
	return client
}

// newCustomerStore opens the read-only platform store; nil when it is not configured or unreachable
func newCustomerStore(cfg *config.Config, logger zerolog.Logger) *database.CustomerStore {
	if cfg.PlatformDatabaseURL == "" {
		logger.Warn().Msg("PLATFORM_DATABASE_URL not set, VIP notifications disabled")
		return nil
	}
	platformDB, err := database.NewReadOnly(cfg.PlatformDatabaseURL, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Platform database unavailable, VIP notifications disabled")
		return nil
	}
	return database.NewCustomerStore(platformDB, time.Duration(cfg.CustomerCacheTTLMinutes)*time.Minute)
}

// newNotifier wires the VIP notifier; it is disabled without a platform store or SendGrid key
func newNotifier(cfg *config.Config, conversations *database.ConversationStore, mailboxes *database.MailboxStore, team *database.TeamStore, platform *database.CustomerStore, recorder analytics.Recorder, logger zerolog.Logger) *vip.Notifier {
	opts := vip.Options{Enabled: cfg.VipEmailsEnabled, BaseURL: cfg.AppBaseURL}

	var customers vip.CustomerStore
	if platform == nil {
		opts.Enabled = false
	} else {
		customers = platform
	}

	var sender vip.Sender
	if transport, err := email.NewTransport(cfg.SendGridAPIKey, cfg.NotificationFromEmail, cfg.NotificationFromName); err != nil {
		logger.Warn().Err(err).Msg("VIP notifications disabled")
		opts.Enabled = false
	} else {
		sender = transport
	}

	return vip.NewNotifier(conversations, mailboxes, team, customers, sender, recorder, opts, logger)
}
