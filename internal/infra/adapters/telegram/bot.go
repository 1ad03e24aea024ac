package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-bot-platform/internal/config"
	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/ports/adapter"
	"telegram-bot-platform/internal/infra/i18n"
	"telegram-bot-platform/internal/infra/logging"
	"telegram-bot-platform/internal/infra/metrics"
	"telegram-bot-platform/internal/usecase"
)

// maxMessageLen is Telegram's limit for a single text message, in characters.
const maxMessageLen = 4096

var _ adapter.TelegramSender = (*BotAdapter)(nil)

// botAPI is the part of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// BotAdapter polls updates into IngestUseCase and delivers replies for the Worker.
type BotAdapter struct {
	api           botAPI
	botID         int64
	ingest        usecase.IngestUseCase
	updateWorkers int
	pollTimeout   int
	texts         *i18n.Translator
	log           *zerolog.Logger
}

func NewBotAdapter(cfg *config.BotConfig, ingest usecase.IngestUseCase, logger *zerolog.Logger) (*BotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	botID := cfg.ID
	if botID == 0 {
		botID = bot.Self.ID
	}
	a := newBotAdapter(bot, botID, ingest, logger)
	if a.texts, err = i18n.New(cfg.Language); err != nil {
		return nil, err
	}
	a.updateWorkers = cfg.Workers
	a.pollTimeout = cfg.PollTimeout
	logger.Info().Int64("bot_id", botID).Str("username", bot.Self.UserName).Msg("telegram bot authorized")
	return a, nil
}

func newBotAdapter(api botAPI, botID int64, ingest usecase.IngestUseCase, logger *zerolog.Logger) *BotAdapter {
	return &BotAdapter{
		api:           api,
		botID:         botID,
		ingest:        ingest,
		updateWorkers: 5,
		pollTimeout:   60,
		texts:         i18n.Default(),
		log:           logger,
	}
}

// BotID is the tenant id stored with every message of this bot.
func (b *BotAdapter) BotID() int64 { return b.botID }

// StartPolling blocks until ctx is done, fanning updates out to worker goroutines.
func (b *BotAdapter) StartPolling(ctx context.Context) error {
	if b.ingest == nil {
		return errors.New("telegram polling needs an ingest use case")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < b.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := b.handleUpdate(ctx, up); err != nil {
					b.log.Error().Err(err).Int("tg_worker", id).Int("update_id", up.UpdateID).Msg("failed to handle update")
				}
			}
		}(i)
	}

	defer func() {
		b.api.StopReceivingUpdates()
		close(updateChan)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (b *BotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		metrics.IncTelegramUpdate("ignored")
		return nil
	}
	ctx = logging.WithChatID(ctx, msg.Chat.ID)

	if msg.IsCommand() {
		metrics.IncTelegramUpdate("command")
		if msg.Command() == "start" {
			_, err := b.SendMessage(ctx, adapter.SendMessageParams{ChatID: msg.Chat.ID, Text: b.texts.T("welcome")})
			return err
		}
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		metrics.IncTelegramUpdate("unsupported")
		_, err := b.SendMessage(ctx, adapter.SendMessageParams{
			ChatID:           msg.Chat.ID,
			Text:             b.texts.T("unsupported_message"),
			ReplyToMessageID: int64(msg.MessageID),
		})
		return err
	}

	res, err := b.ingest.Ingest(ctx, usecase.IncomingMessage{
		BotID:             b.botID,
		ChatID:            msg.Chat.ID,
		TelegramMessageID: int64(msg.MessageID),
		TelegramUpdateID:  int64(update.UpdateID),
		Text:              msg.Text,
	})
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		metrics.IncTelegramUpdate("rate_limited")
		metrics.IncRateLimitTriggered()
		_, sendErr := b.SendMessage(ctx, adapter.SendMessageParams{
			ChatID:           msg.Chat.ID,
			Text:             b.texts.T("rate_limited"),
			ReplyToMessageID: int64(msg.MessageID),
		})
		return sendErr
	case err != nil:
		metrics.IncTelegramUpdate("error")
		return err
	case res.Duplicate:
		metrics.IncTelegramUpdate("duplicate")
		return nil
	}
	metrics.IncTelegramUpdate("ingested")
	return nil
}

// SendMessage sends text, split into Telegram-sized chunks, and returns the id
// of the first message sent. Only the first chunk is threaded as a reply.
func (b *BotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) (int64, error) {
	var firstID int64
	for i, chunk := range splitText(p.Text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return firstID, err
		}
		m := tgbotapi.NewMessage(p.ChatID, chunk)
		if i == 0 && p.ReplyToMessageID != 0 {
			m.ReplyToMessageID = int(p.ReplyToMessageID)
			m.AllowSendingWithoutReply = true
		}
		sent, err := b.api.Send(m)
		if err != nil {
			metrics.IncTelegramSend("error")
			return firstID, classifySendError(err)
		}
		metrics.IncTelegramSend("ok")
		if i == 0 {
			firstID = int64(sent.MessageID)
		}
	}
	return firstID, nil
}

// classifySendError marks failures that no retry can fix: the bot was blocked
// or removed (403), or Telegram rejected the request itself (400).
func classifySendError(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		switch tgErr.Code {
		case http.StatusForbidden, http.StatusBadRequest:
			return fmt.Errorf("%w: telegram %d: %s", adapter.ErrPermanent, tgErr.Code, tgErr.Message)
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}

// splitText cuts s into pieces of at most limit runes, preferring line breaks.
func splitText(s string, limit int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for utf8.RuneCountInString(s) > limit {
		runes := []rune(s)
		cut := limit
		if nl := strings.LastIndex(string(runes[:limit]), "\n"); nl > 0 {
			cut = utf8.RuneCountInString(string(runes[:limit])[:nl]) + 1
		}
		out = append(out, string(runes[:cut]))
		s = string(runes[cut:])
	}
	return append(out, s)
}
