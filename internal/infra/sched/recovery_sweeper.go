package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"telegram-bot-platform/internal/config"
	"telegram-bot-platform/internal/infra/metrics"
	"telegram-bot-platform/internal/usecase"
)

const poolStatsInterval = 30 * time.Second

// StaleJobExpirer is the maintenance side of a job queue backend.
type StaleJobExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RecoverySweeper periodically re-triggers failed processing and releases
// queue jobs whose worker vanished.
type RecoverySweeper struct {
	recovery usecase.ProcessingRecoveryUseCase
	queue    StaleJobExpirer
	recCfg   config.RecoveryConfig
	queueCfg config.QueueConfig
	// ReportStats, when set, runs every 30s (DB pool gauges).
	ReportStats func()
	log         *zerolog.Logger
}

func NewRecoverySweeper(
	recovery usecase.ProcessingRecoveryUseCase,
	queue StaleJobExpirer,
	recCfg config.RecoveryConfig,
	queueCfg config.QueueConfig,
	logger *zerolog.Logger,
) *RecoverySweeper {
	l := logger.With().Str("component", "RecoverySweeper").Logger()
	return &RecoverySweeper{
		recovery: recovery,
		queue:    queue,
		recCfg:   recCfg,
		queueCfg: queueCfg,
		log:      &l,
	}
}

// SweepFailed re-triggers up to batch_limit FAILED records.
func (s *RecoverySweeper) SweepFailed(ctx context.Context) {
	res, err := s.recovery.RetryFailed(ctx, s.recCfg.BatchLimit)
	if err != nil {
		metrics.IncRecoverySweep("error")
		s.log.Error().Err(err).Msg("recovery sweep failed")
		return
	}
	metrics.IncRecoverySweep("ok")
	if res.RetriedCount > 0 {
		s.log.Info().Int("retried", res.RetriedCount).Ints64("user_message_ids", res.MessageIDs).Msg("recovery sweep re-triggered failed processing")
	}
}

// ExpireStale fails jobs stuck active longer than queue.stale_after.
func (s *RecoverySweeper) ExpireStale(ctx context.Context) {
	n, err := s.queue.ExpireStale(ctx, s.queueCfg.StaleAfter)
	if err != nil {
		s.log.Error().Err(err).Msg("stale job expiry failed")
		return
	}
	if n > 0 {
		s.log.Warn().Int64("expired", n).Dur("stale_after", s.queueCfg.StaleAfter).Msg("expired stale queue jobs")
	}
}

// Run schedules the jobs and blocks until ctx is done.
func (s *RecoverySweeper) Run(ctx context.Context) error {
	sch, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&zerologAdapter{log: s.log}),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if s.recCfg.Enabled {
		if err := s.add(sch, "recovery-sweep", gocron.CronJob(s.recCfg.Cron, false), func() { s.SweepFailed(ctx) }); err != nil {
			_ = sch.Shutdown()
			return err
		}
	}
	if err := s.add(sch, "queue-expire-stale", gocron.CronJob(s.queueCfg.ExpireCron, false), func() { s.ExpireStale(ctx) }); err != nil {
		_ = sch.Shutdown()
		return err
	}
	if s.ReportStats != nil {
		if err := s.add(sch, "db-pool-stats", gocron.DurationJob(poolStatsInterval), s.ReportStats); err != nil {
			_ = sch.Shutdown()
			return err
		}
	}

	sch.Start()
	s.log.Info().Bool("recovery_enabled", s.recCfg.Enabled).Msg("scheduler started")
	<-ctx.Done()
	if err := sch.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	s.log.Info().Msg("scheduler stopped")
	return nil
}

func (s *RecoverySweeper) add(sch gocron.Scheduler, name string, def gocron.JobDefinition, fn func()) error {
	job, err := sch.NewJob(def, gocron.NewTask(fn), gocron.WithName(name), gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	if next, err := job.NextRun(); err == nil {
		s.log.Debug().Str("job", name).Time("next_run", next).Msg("job scheduled")
	}
	return nil
}
