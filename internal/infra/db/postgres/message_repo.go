package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/repository"
)

var _ repository.MessageRepository = (*messageRepo)(nil)

type messageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *messageRepo {
	return &messageRepo{pool: pool}
}

// Save inserts new messages. Stored messages are immutable.
func (r *messageRepo) Save(ctx context.Context, tx repository.Tx, m *model.Message) error {
	if m == nil || m.ID != 0 {
		return domain.ErrInvalidArgument
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO messages (bot_id, chat_id, role, text, telegram_message_id, reply_to_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q,
		m.BotID, m.ChatID, string(m.Role), m.Text, m.TelegramMessageID, m.ReplyToID, m.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&m.ID); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Message, error) {
	const q = `
SELECT id, bot_id, chat_id, role, text, telegram_message_id, reply_to_id, created_at
FROM messages WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *messageRepo) ListRecentByChat(ctx context.Context, tx repository.Tx, botID, chatID, beforeID int64, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		return []*model.Message{}, nil
	}
	// newest N first, flipped to chronological order below
	const q = `
SELECT id, bot_id, chat_id, role, text, telegram_message_id, reply_to_id, created_at
FROM messages
WHERE bot_id = $1 AND chat_id = $2 AND id < $3
ORDER BY id DESC
LIMIT $4;`
	rows, err := queryRows(ctx, r.pool, tx, q, botID, chatID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		m       model.Message
		roleStr string
	)
	if err := row.Scan(&m.ID, &m.BotID, &m.ChatID, &roleStr, &m.Text, &m.TelegramMessageID, &m.ReplyToID, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	m.Role = model.MessageRole(roleStr)
	return &m, nil
}
