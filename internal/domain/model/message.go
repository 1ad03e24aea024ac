package model

import (
	"fmt"
	"strings"
	"time"

	"telegram-bot-platform/internal/domain"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one stored chat message, inbound from a user or generated by the assistant.
type Message struct {
	ID                int64
	BotID             int64
	ChatID            int64
	Role              MessageRole
	Text              string
	TelegramMessageID *int64
	ReplyToID         *int64 // our id of the message this one answers
	CreatedAt         time.Time
}

func NewUserMessage(botID, chatID int64, text string, telegramMessageID int64) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message text", domain.ErrInvalidArgument)
	}
	if chatID == 0 {
		return nil, fmt.Errorf("%w: chat id is required", domain.ErrInvalidArgument)
	}
	return &Message{
		BotID:             botID,
		ChatID:            chatID,
		Role:              MessageRoleUser,
		Text:              text,
		TelegramMessageID: &telegramMessageID,
		CreatedAt:         time.Now(),
	}, nil
}

// NewAssistantReply builds the response to a stored user message.
func NewAssistantReply(userMsg *Message, text string) *Message {
	replyTo := userMsg.ID
	return &Message{
		BotID:     userMsg.BotID,
		ChatID:    userMsg.ChatID,
		Role:      MessageRoleAssistant,
		Text:      text,
		ReplyToID: &replyTo,
		CreatedAt: time.Now(),
	}
}
