package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"telegram-bot-platform/internal/config"
	"telegram-bot-platform/internal/domain/ports/adapter"
	aiAdapters "telegram-bot-platform/internal/infra/adapters/ai"
	tele "telegram-bot-platform/internal/infra/adapters/telegram"
	pg "telegram-bot-platform/internal/infra/db/postgres"
	"telegram-bot-platform/internal/infra/metrics"
	red "telegram-bot-platform/internal/infra/redis"
	"telegram-bot-platform/internal/infra/sched"
	"telegram-bot-platform/internal/infra/web"
	"telegram-bot-platform/internal/infra/worker"
	"telegram-bot-platform/internal/usecase"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run Telegram polling, the processing worker, the admin API and the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	log.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	if cfg.Database.Migrate {
		if err := pg.ApplyMigrations(cfg.Database.URL, log); err != nil {
			return err
		}
	}

	s, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	ai, err := buildAI(ctx, cfg.AI)
	if err != nil {
		return err
	}

	var limiter adapter.RateLimiter
	if s.redis != nil && cfg.Bot.RatePerMin > 0 {
		limiter = red.NewRateLimiter(s.redis)
	}
	ingestUC := usecase.NewIngestUseCase(s.messages, s.processing, s.tm, s.queue, limiter, usecase.RateLimit{
		PerWindow: cfg.Bot.RatePerMin,
		Window:    time.Minute,
		Key:       red.ChatMessageKey,
	}, log)

	bot, err := tele.NewBotAdapter(&cfg.Bot, ingestUC, log)
	if err != nil {
		return err
	}

	pool := worker.NewPool(cfg.Worker.Concurrency, log)
	processor := worker.NewMessageProcessingWorker(
		s.processing, s.messages, s.tm, s.queue, ai, bot,
		worker.OptionsFromConfig(cfg.Worker, cfg.AI), log,
	)

	recoveryUC := s.recovery(log)
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	api := web.NewServer(usecase.NewMessageProcessingUseCase(s.processing, log), recoveryUC, auth, log)

	sweeper := sched.NewRecoverySweeper(recoveryUC, s.queue, cfg.Recovery, cfg.Queue, log)
	sweeper.ReportStats = func() { pg.ReportPoolStats(s.pool) }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.StartPolling(gctx) })
	g.Go(func() error {
		pool.Start(gctx)
		processor.Start(gctx, pool)
		pool.Stop()
		return nil
	})
	g.Go(func() error { return api.Run(gctx, fmt.Sprintf(":%d", cfg.Admin.Port)) })
	g.Go(func() error { return sweeper.Run(gctx) })

	err = g.Wait()
	log.Info().Err(err).Msg("shutdown complete")
	return err
}

// buildAI wires every provider with a key behind the model router and the concurrency cap.
func buildAI(ctx context.Context, cfg config.AIConfig) (adapter.AIServiceAdapter, error) {
	byProvider := map[string]adapter.AIServiceAdapter{}
	if cfg.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.MaxOutputTokens, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = oa
	}
	if cfg.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.DefaultModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = gm
	}
	if len(byProvider) == 0 {
		return nil, fmt.Errorf("no AI provider configured: set ai.openai_key or ai.gemini_key")
	}
	multi := aiAdapters.NewMultiAIAdapter(cfg.Provider, byProvider, cfg.Models)
	return aiAdapters.NewLimitedAI(multi, cfg.MaxConcurrent), nil
}
