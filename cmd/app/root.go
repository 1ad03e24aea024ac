package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"telegram-bot-platform/internal/config"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/domain/ports/repository"
	pg "telegram-bot-platform/internal/infra/db/postgres"
	"telegram-bot-platform/internal/infra/logging"
	red "telegram-bot-platform/internal/infra/redis"
	"telegram-bot-platform/internal/usecase"
)

type rootOptions struct {
	configPath string
	dev        bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "app",
		Short:         "Telegram bot platform: ingestion, message processing worker and admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "developer mode (console logs)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newRetryCmd(opts),
		newRetryFailedCmd(opts),
		newAdminTokenCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath, o.dev)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log, cfg.Runtime.Dev), nil
}

// store bundles the persistence side shared by every command.
type store struct {
	pool       *pgxpool.Pool
	redis      *red.Client
	processing repository.MessageProcessingRepository
	messages   repository.MessageRepository
	tm         repository.TransactionManager
	queue      queue.JobQueue
}

func openStore(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*store, error) {
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	s := &store{
		pool:       pool,
		processing: pg.NewMessageProcessingRepo(pool),
		messages:   pg.NewMessageRepo(pool),
		tm:         pg.NewTxManager(pool),
	}

	if cfg.Redis.URL != "" {
		s.redis, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	switch cfg.Queue.Driver {
	case "redis":
		s.queue = red.NewJobQueue(s.redis)
	default:
		s.queue = pg.NewJobQueue(pool)
	}
	log.Info().Str("queue_driver", cfg.Queue.Driver).Bool("redis", s.redis != nil).Msg("store ready")
	return s, nil
}

func (s *store) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.pool.Close()
}

func (s *store) recovery(log *zerolog.Logger) usecase.ProcessingRecoveryUseCase {
	return usecase.NewProcessingRecoveryUseCase(s.processing, s.queue, log)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			return pg.ApplyMigrations(cfg.Database.URL, log)
		},
	}
}

func newRetryCmd(opts *rootOptions) *cobra.Command {
	var byUserMessage bool
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-trigger one message processing record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid id %q", args[0])
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			s, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer s.Close()

			if byUserMessage {
				err = s.recovery(log).RetryByUserMessageID(ctx, id)
			} else {
				err = s.recovery(log).RetryByID(ctx, id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "retry triggered")
			return nil
		},
	}
	cmd.Flags().BoolVar(&byUserMessage, "user-message", false, "treat <id> as a user message id")
	return cmd
}

func newRetryFailedCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "retry-failed",
		Short: "Re-trigger FAILED message processing records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			s, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.recovery(log).RetryFailed(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d: %v\n", res.RetriedCount, res.MessageIDs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max records to retry")
	return cmd
}
