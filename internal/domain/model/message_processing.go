package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-bot-platform/internal/domain"
)

type ProcessingStatus string

const (
	ProcessingStatusReceived   ProcessingStatus = "RECEIVED"
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusCompleted  ProcessingStatus = "COMPLETED"
	ProcessingStatusFailed     ProcessingStatus = "FAILED"
	ProcessingStatusTerminal   ProcessingStatus = "TERMINAL"
)

// ParseProcessingStatus accepts a status name in any letter case.
func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	st := ProcessingStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown processing status %q", domain.ErrInvalidArgument, s)
	}
	return st, nil
}

func (s ProcessingStatus) Valid() bool {
	switch s {
	case ProcessingStatusReceived, ProcessingStatusProcessing, ProcessingStatusCompleted,
		ProcessingStatusFailed, ProcessingStatusTerminal:
		return true
	}
	return false
}

// Final reports whether no transition leaves this status.
func (s ProcessingStatus) Final() bool {
	return s == ProcessingStatusCompleted || s == ProcessingStatusTerminal
}

// MessageProcessing tracks one inbound user message from receipt to delivered reply.
// A loaded value is owned by its holder; persist changes through the repository.
type MessageProcessing struct {
	ID                        int64
	UserMessageID             int64
	Status                    ProcessingStatus
	Attempts                  int
	LastError                 *string
	LastErrorAt               *time.Time
	TerminalReason            *string
	ResponseMessageID         *int64
	TelegramIncomingMessageID *int64
	TelegramOutgoingMessageID *int64
	TelegramUpdateID          *int64
	ResponseGeneratedAt       *time.Time
	ResponseSentAt            *time.Time
	Price                     decimal.Decimal
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// NewMessageProcessing creates a RECEIVED record for the given user message.
func NewMessageProcessing(userMessageID int64) (*MessageProcessing, error) {
	if userMessageID <= 0 {
		return nil, fmt.Errorf("%w: user message id must be positive", domain.ErrInvalidArgument)
	}
	now := time.Now()
	return &MessageProcessing{
		UserMessageID: userMessageID,
		Status:        ProcessingStatusReceived,
		Price:         decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (p *MessageProcessing) IsFinal() bool { return p.Status.Final() }

// NeedsResponse is true until an assistant reply has been generated and stored.
func (p *MessageProcessing) NeedsResponse() bool {
	return p.ResponseMessageID == nil || p.ResponseGeneratedAt == nil
}

// NeedsDelivery is true until the generated reply has been sent to Telegram.
func (p *MessageProcessing) NeedsDelivery() bool {
	return p.ResponseSentAt == nil
}

func (p *MessageProcessing) MarkProcessing() error {
	if p.Status != ProcessingStatusReceived && p.Status != ProcessingStatusFailed {
		return p.transitionErr(ProcessingStatusProcessing)
	}
	p.Status = ProcessingStatusProcessing
	p.Attempts++
	p.touch()
	return nil
}

func (p *MessageProcessing) MarkFailed(errMsg string) error {
	if p.Status != ProcessingStatusProcessing {
		return p.transitionErr(ProcessingStatusFailed)
	}
	now := time.Now()
	p.Status = ProcessingStatusFailed
	p.LastError = &errMsg
	p.LastErrorAt = &now
	p.Attempts++
	p.touch()
	return nil
}

// MarkTerminal closes the record for good; the reason is required.
func (p *MessageProcessing) MarkTerminal(reason string) error {
	if p.Status != ProcessingStatusFailed && p.Status != ProcessingStatusProcessing {
		return p.transitionErr(ProcessingStatusTerminal)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: terminal reason is required", domain.ErrInvalidArgument)
	}
	p.Status = ProcessingStatusTerminal
	p.TerminalReason = &reason
	p.touch()
	return nil
}

func (p *MessageProcessing) MarkResponseGenerated(responseMessageID int64) error {
	if p.IsFinal() {
		return p.finalErr("mark response generated")
	}
	now := time.Now()
	p.ResponseMessageID = &responseMessageID
	p.ResponseGeneratedAt = &now
	p.touch()
	return nil
}

func (p *MessageProcessing) MarkResponseSent(telegramOutgoingMessageID int64) error {
	if p.IsFinal() {
		return p.finalErr("mark response sent")
	}
	now := time.Now()
	p.TelegramOutgoingMessageID = &telegramOutgoingMessageID
	p.ResponseSentAt = &now
	p.touch()
	return nil
}

func (p *MessageProcessing) MarkCompleted() error {
	if p.Status != ProcessingStatusProcessing {
		return p.transitionErr(ProcessingStatusCompleted)
	}
	p.Status = ProcessingStatusCompleted
	p.touch()
	return nil
}

func (p *MessageProcessing) SetPrice(price decimal.Decimal) error {
	if p.IsFinal() {
		return p.finalErr("set price")
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", domain.ErrInvalidArgument)
	}
	p.Price = price
	p.touch()
	return nil
}

func (p *MessageProcessing) SetTelegramIncomingMessageID(id int64) error {
	if p.IsFinal() {
		return p.finalErr("set telegram incoming message id")
	}
	p.TelegramIncomingMessageID = &id
	p.touch()
	return nil
}

func (p *MessageProcessing) SetTelegramUpdateID(id int64) error {
	if p.IsFinal() {
		return p.finalErr("set telegram update id")
	}
	p.TelegramUpdateID = &id
	p.touch()
	return nil
}

func (p *MessageProcessing) touch() { p.UpdatedAt = time.Now() }

func (p *MessageProcessing) transitionErr(to ProcessingStatus) error {
	return fmt.Errorf("%w: %s -> %s (user message %d)", domain.ErrInvalidTransition, p.Status, to, p.UserMessageID)
}

func (p *MessageProcessing) finalErr(op string) error {
	return fmt.Errorf("%w: cannot %s in status %s (user message %d)", domain.ErrInvalidTransition, op, p.Status, p.UserMessageID)
}
