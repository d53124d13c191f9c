package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportcore/internal/analytics"
	"supportcore/internal/autoclose"
	"supportcore/internal/config"
	"supportcore/internal/database"
	"supportcore/internal/k8s"

	"github.com/rs/zerolog"
)

func main() {
	mailboxID := flag.Int64("mailbox", 0, "Close inactive conversations of a single mailbox and exit")
	runOnce := flag.Bool("once", false, "Run one auto-close pass over all mailboxes and exit (default: false, runs on a schedule)")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.SetupLogger().With().Str("service", "auto-close").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writeClient, err := database.NewWriteClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Helpdesk database connection failed")
	}
	defer func() { _ = writeClient.Close() }()

	var recorder analytics.Recorder = analytics.Noop{}
	if service, err := analytics.NewService(ctx, writeClient, logger); err != nil {
		logger.Warn().Err(err).Msg("Analytics disabled")
	} else {
		recorder = service
	}

	mailboxes := database.NewMailboxStore(writeClient)

	// Per-mailbox jobs always close inline
	if *mailboxID > 0 {
		policy := autoclose.NewPolicy(mailboxes, nil, recorder, logger)
		if err := closeMailbox(ctx, policy, *mailboxID, logger); err != nil {
			logger.Error().Err(err).Int64("mailbox_id", *mailboxID).Msg("Auto-close failed")
			os.Exit(1)
		}
		return
	}

	policy := autoclose.NewPolicy(mailboxes, newDispatcher(cfg, logger), recorder, logger)

	runPass(ctx, policy, logger)
	if *runOnce {
		logger.Info().Msg("One-time run completed. Exiting.")
		return
	}

	runScheduled(ctx, policy, scheduleInterval(cfg.AutoCloseIntervalHours), logger)
}

func scheduleInterval(hours int) time.Duration {
	if hours <= 0 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}

// runScheduled runs a pass every interval until ctx is cancelled
func runScheduled(ctx context.Context, policy *autoclose.Policy, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Time("next_run", time.Now().Add(interval)).Msg("Auto-close scheduler started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Received shutdown signal, stopping scheduler")
			return
		case <-ticker.C:
			runPass(ctx, policy, logger)
			logger.Info().Time("next_run", time.Now().Add(interval)).Msg("Auto-close pass finished")
		}
	}
}

func runPass(ctx context.Context, policy *autoclose.Policy, logger zerolog.Logger) {
	report, err := policy.Run(ctx, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Auto-close pass failed")
		return
	}
	logger.Info().
		Int("processed", report.Processed).
		Int("dispatched", report.Dispatched).
		Msg(report.Message)
}

func closeMailbox(ctx context.Context, policy *autoclose.Policy, mailboxID int64, logger zerolog.Logger) error {
	report, err := policy.CloseMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}
	logger.Info().
		Int64("mailbox_id", mailboxID).
		Int("closed", report.ConversationsClosed).
		Msg(report.Status)
	return nil
}

// newDispatcher launches per-mailbox jobs when Kubernetes dispatch is configured
func newDispatcher(cfg *config.Config, logger zerolog.Logger) autoclose.Dispatcher {
	if cfg.AutoCloseDispatch != config.DispatchKubernetes {
		return nil
	}
	client, err := k8s.NewClient(cfg.K8sNamespace, cfg.WorkerImage)
	if err != nil {
		logger.Warn().Err(err).Msg("Kubernetes dispatch unavailable, closing mailboxes inline")
		return nil
	}
	return client
}
