package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/adapter"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ IngestUseCase = (*ingestUC)(nil)

// IncomingMessage is a user text message as received from Telegram.
type IncomingMessage struct {
	BotID             int64
	ChatID            int64
	TelegramMessageID int64
	TelegramUpdateID  int64
	Text              string
}

type IngestResult struct {
	Processing *model.MessageProcessing
	// Duplicate is set when the update was already ingested; nothing new was stored or published.
	Duplicate bool
}

// IngestUseCase stores an inbound message with its RECEIVED processing record
// and publishes the first processing trigger.
type IngestUseCase interface {
	Ingest(ctx context.Context, in IncomingMessage) (*IngestResult, error)
}

// RateLimit is a per-chat inbound message budget. A zero PerWindow disables it.
type RateLimit struct {
	PerWindow int
	Window    time.Duration
	Key       func(botID, chatID int64) string
}

type ingestUC struct {
	messages   repository.MessageRepository
	processing repository.MessageProcessingRepository
	tm         repository.TransactionManager
	queue      queue.JobQueueClient
	limiter    adapter.RateLimiter
	limit      RateLimit
	log        *zerolog.Logger
}

// NewIngestUseCase wires ingestion. limiter may be nil.
func NewIngestUseCase(
	messages repository.MessageRepository,
	processing repository.MessageProcessingRepository,
	tm repository.TransactionManager,
	q queue.JobQueueClient,
	limiter adapter.RateLimiter,
	limit RateLimit,
	logger *zerolog.Logger,
) *ingestUC {
	return &ingestUC{
		messages:   messages,
		processing: processing,
		tm:         tm,
		queue:      q,
		limiter:    limiter,
		limit:      limit,
		log:        logger,
	}
}

func (uc *ingestUC) Ingest(ctx context.Context, in IncomingMessage) (*IngestResult, error) {
	if in.TelegramUpdateID != 0 {
		existing, err := uc.processing.FindByTelegramUpdateID(ctx, repository.NoTX, in.TelegramUpdateID)
		switch {
		case err == nil:
			uc.log.Debug().Int64("update_id", in.TelegramUpdateID).Int64("processing_id", existing.ID).Msg("duplicate telegram update skipped")
			return &IngestResult{Processing: existing, Duplicate: true}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	if uc.limiter != nil && uc.limit.PerWindow > 0 && uc.limit.Key != nil {
		ok, err := uc.limiter.Allow(ctx, uc.limit.Key(in.BotID, in.ChatID), uc.limit.PerWindow, uc.limit.Window)
		if err != nil {
			// fail open: losing the limiter must not drop user messages
			uc.log.Warn().Err(err).Int64("chat_id", in.ChatID).Msg("rate limiter unavailable")
		} else if !ok {
			return nil, fmt.Errorf("%w: chat %d", domain.ErrRateLimited, in.ChatID)
		}
	}

	var p *model.MessageProcessing
	err := uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		msg, err := model.NewUserMessage(in.BotID, in.ChatID, in.Text, in.TelegramMessageID)
		if err != nil {
			return err
		}
		if err := uc.messages.Save(ctx, tx, msg); err != nil {
			return err
		}

		p, err = model.NewMessageProcessing(msg.ID)
		if err != nil {
			return err
		}
		if in.TelegramUpdateID != 0 {
			if err := p.SetTelegramUpdateID(in.TelegramUpdateID); err != nil {
				return err
			}
		}
		if err := p.SetTelegramIncomingMessageID(in.TelegramMessageID); err != nil {
			return err
		}
		return uc.processing.Save(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	if err := publishTrigger(ctx, uc.queue, p.UserMessageID); err != nil {
		// The record stays RECEIVED and can be re-triggered by id.
		uc.log.Error().Err(err).Int64("processing_id", p.ID).Int64("user_message_id", p.UserMessageID).Msg("failed to publish first processing trigger")
		return nil, err
	}
	uc.log.Info().Int64("processing_id", p.ID).Int64("user_message_id", p.UserMessageID).Int64("chat_id", in.ChatID).Msg("message received")
	return &IngestResult{Processing: p}, nil
}
