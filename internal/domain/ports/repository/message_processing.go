package repository

import (
	"context"

	"telegram-bot-platform/internal/domain/model"
)

// ProcessingQuery narrows FindAll. Zero values mean "no constraint".
type ProcessingQuery struct {
	Statuses      []model.ProcessingStatus
	UserMessageID *int64
	Skip          int
	Take          int
}

// -----------------------------
// Message processing
// -----------------------------

type MessageProcessingRepository interface {
	// Save inserts a record without ID (assigning it) or updates an existing one.
	Save(ctx context.Context, tx Tx, p *model.MessageProcessing) error
	FindAll(ctx context.Context, tx Tx, q ProcessingQuery) ([]*model.MessageProcessing, error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.MessageProcessing, error)
	FindByUserMessageID(ctx context.Context, tx Tx, userMessageID int64) (*model.MessageProcessing, error)
	FindByTelegramUpdateID(ctx context.Context, tx Tx, updateID int64) (*model.MessageProcessing, error)
	// FindFailed returns up to limit FAILED records, least recently updated first.
	FindFailed(ctx context.Context, tx Tx, limit int) ([]*model.MessageProcessing, error)
}
