package repository

import (
	"context"

	"telegram-bot-platform/internal/domain/model"
)

// -----------------------------
// Messages
// -----------------------------

type MessageRepository interface {
	Save(ctx context.Context, tx Tx, m *model.Message) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Message, error)
	// ListRecentByChat returns up to limit messages of a chat with ID < beforeID, oldest first.
	ListRecentByChat(ctx context.Context, tx Tx, botID, chatID, beforeID int64, limit int) ([]*model.Message, error)
}
