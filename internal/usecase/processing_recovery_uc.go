package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ ProcessingRecoveryUseCase = (*processingRecoveryUC)(nil)

// RetryResult summarises a batch retry.
type RetryResult struct {
	RetriedCount int     `json:"retriedCount"`
	MessageIDs   []int64 `json:"messageIds"`
}

// ProcessingRecoveryUseCase re-triggers failed processing. It never changes a
// record itself: the Worker owns every transition.
type ProcessingRecoveryUseCase interface {
	RetryFailed(ctx context.Context, limit int) (*RetryResult, error)
	RetryByID(ctx context.Context, id int64) error
	RetryByUserMessageID(ctx context.Context, userMessageID int64) error
}

type processingRecoveryUC struct {
	repo  repository.MessageProcessingRepository
	queue queue.JobQueueClient
	log   *zerolog.Logger
}

func NewProcessingRecoveryUseCase(repo repository.MessageProcessingRepository, q queue.JobQueueClient, logger *zerolog.Logger) *processingRecoveryUC {
	return &processingRecoveryUC{repo: repo, queue: q, log: logger}
}

func (uc *processingRecoveryUC) RetryFailed(ctx context.Context, limit int) (*RetryResult, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}
	failed, err := uc.repo.FindFailed(ctx, repository.NoTX, limit)
	if err != nil {
		return nil, err
	}

	res := &RetryResult{MessageIDs: make([]int64, 0, len(failed))}
	for _, p := range failed {
		if err := uc.RetryByUserMessageID(ctx, p.UserMessageID); err != nil {
			uc.log.Error().Err(err).
				Int64("processing_id", p.ID).
				Int64("user_message_id", p.UserMessageID).
				Msg("failed to retry message processing")
			continue
		}
		res.RetriedCount++
		res.MessageIDs = append(res.MessageIDs, p.UserMessageID)
	}
	uc.log.Info().Int("found", len(failed)).Int("retried", res.RetriedCount).Msg("retry of failed message processing finished")
	return res, nil
}

func (uc *processingRecoveryUC) RetryByID(ctx context.Context, id int64) error {
	p, err := uc.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("message processing with id %d not found: %w", id, err)
		}
		return err
	}
	return uc.RetryByUserMessageID(ctx, p.UserMessageID)
}

func (uc *processingRecoveryUC) RetryByUserMessageID(ctx context.Context, userMessageID int64) error {
	p, err := uc.repo.FindByUserMessageID(ctx, repository.NoTX, userMessageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("message processing for user message %d not found: %w", userMessageID, err)
		}
		return err
	}
	if p.Status == model.ProcessingStatusTerminal {
		return fmt.Errorf("%w: %d", domain.ErrTerminalRetry, userMessageID)
	}

	if err := publishTrigger(ctx, uc.queue, userMessageID); err != nil {
		return err
	}
	uc.log.Info().
		Int64("user_message_id", userMessageID).
		Str("prior_status", string(p.Status)).
		Msg("message processing retry triggered")
	return nil
}

// publishTrigger enqueues the processing job for a user message. Ingestion and
// retries share the singleton key, so a retry while a job is in flight is absorbed.
func publishTrigger(ctx context.Context, q queue.JobQueueClient, userMessageID int64) error {
	payload := model.MessageProcessingTriggerPayload{UserMessageID: userMessageID}
	opts := queue.PublishOptions{SingletonKey: model.ProcessingSingletonKey(userMessageID)}
	if err := q.Publish(ctx, model.MessageProcessingJobName, payload, opts); err != nil {
		return fmt.Errorf("publish processing trigger for user message %d: %w", userMessageID, err)
	}
	return nil
}
