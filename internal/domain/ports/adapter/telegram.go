// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

type SendMessageParams struct {
	ChatID           int64
	Text             string
	ReplyToMessageID int64 // Telegram message id; 0 = not a reply
}

// TelegramSender delivers bot replies and returns the Telegram id of the sent message.
type TelegramSender interface {
	SendMessage(ctx context.Context, p SendMessageParams) (int64, error)
}
