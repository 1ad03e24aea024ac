package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/repository"
)

var _ repository.MessageProcessingRepository = (*messageProcessingRepo)(nil)

type messageProcessingRepo struct {
	pool *pgxpool.Pool
}

func NewMessageProcessingRepo(pool *pgxpool.Pool) *messageProcessingRepo {
	return &messageProcessingRepo{pool: pool}
}

const processingColumns = `
id, user_message_id, status, attempts, last_error, last_error_at, terminal_reason,
response_message_id, telegram_incoming_message_id, telegram_outgoing_message_id, telegram_update_id,
response_generated_at, response_sent_at, price::text, created_at, updated_at`

func (r *messageProcessingRepo) Save(ctx context.Context, tx repository.Tx, p *model.MessageProcessing) error {
	if p == nil {
		return domain.ErrInvalidArgument
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if p.ID == 0 {
		const q = `
INSERT INTO message_processing (
  user_message_id, status, attempts, last_error, last_error_at, terminal_reason,
  response_message_id, telegram_incoming_message_id, telegram_outgoing_message_id, telegram_update_id,
  response_generated_at, response_sent_at, price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::numeric,$14,$15)
RETURNING id;`
		row, err := pickRow(ctx, r.pool, tx, q,
			p.UserMessageID, string(p.Status), p.Attempts, p.LastError, p.LastErrorAt, p.TerminalReason,
			p.ResponseMessageID, p.TelegramIncomingMessageID, p.TelegramOutgoingMessageID, p.TelegramUpdateID,
			p.ResponseGeneratedAt, p.ResponseSentAt, p.Price.String(), p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}
		if err := row.Scan(&p.ID); err != nil {
			return fmt.Errorf("insert message processing: %w", err)
		}
		return nil
	}

	const q = `
UPDATE message_processing SET
  status = $2,
  attempts = $3,
  last_error = $4,
  last_error_at = $5,
  terminal_reason = $6,
  response_message_id = $7,
  telegram_incoming_message_id = $8,
  telegram_outgoing_message_id = $9,
  telegram_update_id = $10,
  response_generated_at = $11,
  response_sent_at = $12,
  price = $13::numeric,
  updated_at = $14
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, string(p.Status), p.Attempts, p.LastError, p.LastErrorAt, p.TerminalReason,
		p.ResponseMessageID, p.TelegramIncomingMessageID, p.TelegramOutgoingMessageID, p.TelegramUpdateID,
		p.ResponseGeneratedAt, p.ResponseSentAt, p.Price.String(), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update message processing %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *messageProcessingRepo) FindAll(ctx context.Context, tx repository.Tx, pq repository.ProcessingQuery) ([]*model.MessageProcessing, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(pq.Statuses) > 0 {
		statuses := make([]string, 0, len(pq.Statuses))
		for _, s := range pq.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if pq.UserMessageID != nil {
		args = append(args, *pq.UserMessageID)
		where = append(where, fmt.Sprintf("user_message_id = $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + processingColumns + "\nFROM message_processing")
	if len(where) > 0 {
		sb.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString("\nORDER BY created_at DESC, id DESC")
	if pq.Take > 0 {
		args = append(args, pq.Take)
		fmt.Fprintf(&sb, "\nLIMIT $%d", len(args))
	}
	if pq.Skip > 0 {
		args = append(args, pq.Skip)
		fmt.Fprintf(&sb, "\nOFFSET $%d", len(args))
	}

	return r.list(ctx, tx, sb.String(), args...)
}

func (r *messageProcessingRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.MessageProcessing, error) {
	return r.one(ctx, tx, `SELECT `+processingColumns+` FROM message_processing WHERE id = $1;`, id)
}

// FindByUserMessageID returns the newest record if several ever existed.
func (r *messageProcessingRepo) FindByUserMessageID(ctx context.Context, tx repository.Tx, userMessageID int64) (*model.MessageProcessing, error) {
	return r.one(ctx, tx, `SELECT `+processingColumns+`
FROM message_processing WHERE user_message_id = $1
ORDER BY id DESC LIMIT 1;`, userMessageID)
}

func (r *messageProcessingRepo) FindByTelegramUpdateID(ctx context.Context, tx repository.Tx, updateID int64) (*model.MessageProcessing, error) {
	return r.one(ctx, tx, `SELECT `+processingColumns+` FROM message_processing WHERE telegram_update_id = $1;`, updateID)
}

func (r *messageProcessingRepo) FindFailed(ctx context.Context, tx repository.Tx, limit int) ([]*model.MessageProcessing, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return r.list(ctx, tx, `SELECT `+processingColumns+`
FROM message_processing
WHERE status = $1
ORDER BY updated_at ASC, id ASC
LIMIT $2;`, string(model.ProcessingStatusFailed), limit)
}

func (r *messageProcessingRepo) one(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.MessageProcessing, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanProcessing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *messageProcessingRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.MessageProcessing, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.MessageProcessing, 0)
	for rows.Next() {
		p, err := scanProcessing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProcessing(row pgx.Row) (*model.MessageProcessing, error) {
	var (
		p         model.MessageProcessing
		statusStr string
		priceStr  string
	)
	err := row.Scan(
		&p.ID, &p.UserMessageID, &statusStr, &p.Attempts, &p.LastError, &p.LastErrorAt, &p.TerminalReason,
		&p.ResponseMessageID, &p.TelegramIncomingMessageID, &p.TelegramOutgoingMessageID, &p.TelegramUpdateID,
		&p.ResponseGeneratedAt, &p.ResponseSentAt, &priceStr, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	p.Status = model.ProcessingStatus(statusStr)
	if p.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("%w: price %q: %v", domain.ErrReadDatabaseRow, priceStr, err)
	}
	return &p, nil
}
