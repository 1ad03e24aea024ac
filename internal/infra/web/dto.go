package web

import (
	"strconv"
	"time"

	"telegram-bot-platform/internal/domain/model"
)

// ProcessingResponse is the admin view of a processing record. The Telegram
// update id and price travel as strings so clients never lose precision.
type ProcessingResponse struct {
	ID                        int64      `json:"id"`
	UserMessageID             int64      `json:"userMessageId"`
	Status                    string     `json:"status"`
	Attempts                  int        `json:"attempts"`
	LastError                 *string    `json:"lastError"`
	LastErrorAt               *time.Time `json:"lastErrorAt"`
	TerminalReason            *string    `json:"terminalReason"`
	ResponseMessageID         *int64     `json:"responseMessageId"`
	TelegramIncomingMessageID *int64     `json:"telegramIncomingMessageId"`
	TelegramOutgoingMessageID *int64     `json:"telegramOutgoingMessageId"`
	TelegramUpdateID          *string    `json:"telegramUpdateId"`
	ResponseGeneratedAt       *time.Time `json:"responseGeneratedAt"`
	ResponseSentAt            *time.Time `json:"responseSentAt"`
	Price                     string     `json:"price"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// FailedProcessingResponse is the compact row of the failed list.
type FailedProcessingResponse struct {
	ID            int64      `json:"id"`
	UserMessageID int64      `json:"userMessageId"`
	Status        string     `json:"status"`
	LastError     *string    `json:"lastError"`
	LastErrorAt   *time.Time `json:"lastErrorAt"`
	Attempts      int        `json:"attempts"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type successBody struct {
	Success bool `json:"success"`
}

type errorBody struct {
	Error string `json:"error"`
}

func toProcessingResponse(p *model.MessageProcessing) ProcessingResponse {
	out := ProcessingResponse{
		ID:                        p.ID,
		UserMessageID:             p.UserMessageID,
		Status:                    string(p.Status),
		Attempts:                  p.Attempts,
		LastError:                 p.LastError,
		LastErrorAt:               p.LastErrorAt,
		TerminalReason:            p.TerminalReason,
		ResponseMessageID:         p.ResponseMessageID,
		TelegramIncomingMessageID: p.TelegramIncomingMessageID,
		TelegramOutgoingMessageID: p.TelegramOutgoingMessageID,
		ResponseGeneratedAt:       p.ResponseGeneratedAt,
		ResponseSentAt:            p.ResponseSentAt,
		Price:                     p.Price.String(),
		CreatedAt:                 p.CreatedAt,
		UpdatedAt:                 p.UpdatedAt,
	}
	if p.TelegramUpdateID != nil {
		s := strconv.FormatInt(*p.TelegramUpdateID, 10)
		out.TelegramUpdateID = &s
	}
	return out
}

func toProcessingResponses(ps []*model.MessageProcessing) []ProcessingResponse {
	out := make([]ProcessingResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProcessingResponse(p))
	}
	return out
}

func toFailedResponses(ps []*model.MessageProcessing) []FailedProcessingResponse {
	out := make([]FailedProcessingResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, FailedProcessingResponse{
			ID:            p.ID,
			UserMessageID: p.UserMessageID,
			Status:        string(p.Status),
			LastError:     p.LastError,
			LastErrorAt:   p.LastErrorAt,
			Attempts:      p.Attempts,
			CreatedAt:     p.CreatedAt,
		})
	}
	return out
}
