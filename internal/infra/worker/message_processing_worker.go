package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-bot-platform/internal/config"
	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/adapter"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/domain/ports/repository"
	"telegram-bot-platform/internal/infra/logging"
	"telegram-bot-platform/internal/infra/metrics"
)

const (
	reasonMaxAttempts = "max attempts exceeded"
	finalSaveTimeout  = 5 * time.Second
)

var thousand = decimal.NewFromInt(1000)

// Options tune the Worker. Zero values fall back to config defaults.
type Options struct {
	MaxAttempts      int
	PollInterval     time.Duration
	Model            string
	SystemPrompt     string
	MaxPromptTokens  int
	HistoryLimit     int
	AITimeout        time.Duration
	InputPricePer1K  decimal.Decimal
	OutputPricePer1K decimal.Decimal
}

func OptionsFromConfig(w config.WorkerConfig, ai config.AIConfig) Options {
	in, out := ai.Prices()
	return Options{
		MaxAttempts:      w.MaxAttempts,
		PollInterval:     w.PollInterval,
		Model:            ai.DefaultModel,
		SystemPrompt:     ai.SystemPrompt,
		MaxPromptTokens:  ai.MaxPromptTokens,
		HistoryLimit:     ai.HistoryLimit,
		AITimeout:        ai.Timeout,
		InputPricePer1K:  in,
		OutputPricePer1K: out,
	}
}

// MessageProcessingWorker consumes message-processing trigger jobs and drives
// each record through generation, delivery and completion. Every step reloads
// and persists the record, so a retried job resumes where the last one stopped.
type MessageProcessingWorker struct {
	processing repository.MessageProcessingRepository
	messages   repository.MessageRepository
	tm         repository.TransactionManager
	jobs       queue.JobConsumer
	ai         adapter.AIServiceAdapter
	sender     adapter.TelegramSender
	opts       Options
	log        *zerolog.Logger

	inFlight int32
}

func NewMessageProcessingWorker(
	processing repository.MessageProcessingRepository,
	messages repository.MessageRepository,
	tm repository.TransactionManager,
	jobs queue.JobConsumer,
	ai adapter.AIServiceAdapter,
	sender adapter.TelegramSender,
	opts Options,
	log *zerolog.Logger,
) *MessageProcessingWorker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &MessageProcessingWorker{
		processing: processing,
		messages:   messages,
		tm:         tm,
		jobs:       jobs,
		ai:         ai,
		sender:     sender,
		opts:       opts,
		log:        log,
	}
}

// Start polls the queue until ctx is done. Each tick hands at most one drain
// task per idle pool worker; a drain task processes jobs until the queue is empty.
func (w *MessageProcessingWorker) Start(ctx context.Context, pool *Pool) {
	w.log.Info().Dur("poll_interval", w.opts.PollInterval).Int("max_attempts", w.opts.MaxAttempts).Msg("message processing worker started")
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("message processing worker stopping")
			return
		case <-ticker.C:
			if int(atomic.LoadInt32(&w.inFlight)) >= pool.Size() {
				continue
			}
			atomic.AddInt32(&w.inFlight, 1)
			err := pool.Submit(func(ctx context.Context) error {
				defer atomic.AddInt32(&w.inFlight, -1)
				for ctx.Err() == nil && w.ProcessNext(ctx) {
				}
				return nil
			})
			if err != nil {
				atomic.AddInt32(&w.inFlight, -1)
			}
		}
	}
}

// ProcessNext claims one job and handles it. It reports whether a job was claimed.
func (w *MessageProcessingWorker) ProcessNext(ctx context.Context) bool {
	job, err := w.jobs.Fetch(ctx, model.MessageProcessingJobName)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("failed to fetch processing job")
		}
		return false
	}

	ctx = logging.WithJobID(ctx, job.ID)
	start := time.Now()
	outcome, herr := w.Handle(ctx, job)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
	defer cancel()
	log := logging.With(ctx, w.log)
	if herr != nil {
		if err := w.jobs.Fail(finishCtx, job.ID, herr); err != nil {
			log.Error().Err(err).Msg("failed to mark job failed")
		}
		log.Warn().Err(herr).Str("outcome", outcome).Msg("processing job failed")
	} else {
		if err := w.jobs.Complete(finishCtx, job.ID); err != nil {
			log.Error().Err(err).Msg("failed to mark job completed")
		}
		log.Info().Str("outcome", outcome).Dur("duration", time.Since(start)).Msg("processing job finished")
	}
	metrics.ObserveJob(job.Name, outcome, time.Since(start).Seconds())
	return true
}

// Handle runs one trigger job. The returned outcome labels metrics: completed,
// skipped, terminal, failed or invalid.
func (w *MessageProcessingWorker) Handle(ctx context.Context, job *queue.Job) (string, error) {
	payload, err := model.DecodeTriggerPayload(job.Payload)
	if err != nil {
		return "invalid", err
	}
	ctx = logging.WithUserMessageID(ctx, payload.UserMessageID)
	log := logging.With(ctx, w.log)

	p, err := w.processing.FindByUserMessageID(ctx, repository.NoTX, payload.UserMessageID)
	if err != nil {
		return "invalid", fmt.Errorf("load processing for user message %d: %w", payload.UserMessageID, err)
	}

	if p.IsFinal() {
		log.Debug().Str("status", string(p.Status)).Msg("processing already final, nothing to do")
		return "skipped", nil
	}
	if p.Status == model.ProcessingStatusProcessing {
		// a previous run died mid-flight; account for it before resuming
		if err := p.MarkFailed("processing interrupted"); err != nil {
			return "failed", err
		}
	}
	if p.Status == model.ProcessingStatusFailed && p.Attempts >= w.opts.MaxAttempts {
		if err := p.MarkTerminal(reasonMaxAttempts); err != nil {
			return "failed", err
		}
		if err := w.save(ctx, p); err != nil {
			return "failed", err
		}
		log.Warn().Int("attempts", p.Attempts).Msg("giving up on message processing")
		return "terminal", nil
	}

	if err := p.MarkProcessing(); err != nil {
		return "failed", err
	}
	if err := w.save(ctx, p); err != nil {
		return "failed", err
	}

	if err := w.run(ctx, p); err != nil {
		return w.fail(ctx, p, err)
	}
	return "completed", nil
}

func (w *MessageProcessingWorker) run(ctx context.Context, p *model.MessageProcessing) error {
	if p.NeedsResponse() {
		if err := w.generate(ctx, p); err != nil {
			return err
		}
	}
	if p.NeedsDelivery() {
		if err := w.deliver(ctx, p); err != nil {
			return err
		}
	}
	if err := p.MarkCompleted(); err != nil {
		return err
	}
	return w.save(ctx, p)
}

func (w *MessageProcessingWorker) generate(ctx context.Context, p *model.MessageProcessing) error {
	userMsg, err := w.messages.FindByID(ctx, repository.NoTX, p.UserMessageID)
	if err != nil {
		return fmt.Errorf("load user message: %w", err)
	}
	prompt, err := w.buildPrompt(ctx, userMsg)
	if err != nil {
		return err
	}

	aiCtx := ctx
	if w.opts.AITimeout > 0 {
		var cancel context.CancelFunc
		aiCtx, cancel = context.WithTimeout(ctx, w.opts.AITimeout)
		defer cancel()
	}
	started := time.Now()
	reply, usage, err := w.ai.ChatWithUsage(aiCtx, w.opts.Model, prompt)
	latency := time.Since(started).Milliseconds()
	if err != nil {
		metrics.ObserveChatUsage(w.ai.Provider(), w.opts.Model, 0, 0, 0, latency, false)
		return fmt.Errorf("generate response: %w", err)
	}
	price := w.price(usage)
	cost, _ := price.Float64()
	metrics.ObserveChatUsage(w.ai.Provider(), w.opts.Model, usage.PromptTokens, usage.CompletionTokens, cost, latency, true)

	snapshot := *p
	err = w.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		answer := model.NewAssistantReply(userMsg, reply)
		if err := w.messages.Save(ctx, tx, answer); err != nil {
			return err
		}
		if err := p.SetPrice(price); err != nil {
			return err
		}
		if err := p.MarkResponseGenerated(answer.ID); err != nil {
			return err
		}
		return w.processing.Save(ctx, tx, p)
	})
	if err != nil {
		*p = snapshot
		return fmt.Errorf("store response: %w", err)
	}
	return nil
}

// buildPrompt assembles system prompt, chat history and the user message, then
// drops the oldest history until the prompt fits the token budget.
func (w *MessageProcessingWorker) buildPrompt(ctx context.Context, userMsg *model.Message) ([]adapter.Message, error) {
	var history []*model.Message
	if w.opts.HistoryLimit > 0 {
		var err error
		history, err = w.messages.ListRecentByChat(ctx, repository.NoTX, userMsg.BotID, userMsg.ChatID, userMsg.ID, w.opts.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("load chat history: %w", err)
		}
	}

	assemble := func(h []*model.Message) []adapter.Message {
		out := make([]adapter.Message, 0, len(h)+2)
		if w.opts.SystemPrompt != "" {
			out = append(out, adapter.Message{Role: "system", Content: w.opts.SystemPrompt})
		}
		for _, m := range h {
			out = append(out, adapter.Message{Role: string(m.Role), Content: m.Text})
		}
		return append(out, adapter.Message{Role: string(model.MessageRoleUser), Content: userMsg.Text})
	}

	msgs := assemble(history)
	if w.opts.MaxPromptTokens <= 0 {
		return msgs, nil
	}
	dropped := 0
	for len(history) > 0 {
		n, err := w.ai.CountTokens(ctx, w.opts.Model, msgs)
		if err != nil {
			return nil, fmt.Errorf("count prompt tokens: %w", err)
		}
		if n <= w.opts.MaxPromptTokens {
			break
		}
		history = history[1:]
		dropped++
		msgs = assemble(history)
	}
	if dropped > 0 {
		metrics.AddHistoryTrimmed(w.ai.Provider(), w.opts.Model, dropped)
	}
	return msgs, nil
}

func (w *MessageProcessingWorker) price(u adapter.Usage) decimal.Decimal {
	in := decimal.NewFromInt(int64(u.PromptTokens)).Mul(w.opts.InputPricePer1K)
	out := decimal.NewFromInt(int64(u.CompletionTokens)).Mul(w.opts.OutputPricePer1K)
	return in.Add(out).Div(thousand)
}

func (w *MessageProcessingWorker) deliver(ctx context.Context, p *model.MessageProcessing) error {
	userMsg, err := w.messages.FindByID(ctx, repository.NoTX, p.UserMessageID)
	if err != nil {
		return fmt.Errorf("load user message: %w", err)
	}
	answer, err := w.messages.FindByID(ctx, repository.NoTX, *p.ResponseMessageID)
	if err != nil {
		return fmt.Errorf("load response message: %w", err)
	}

	params := adapter.SendMessageParams{ChatID: userMsg.ChatID, Text: answer.Text}
	if userMsg.TelegramMessageID != nil {
		params.ReplyToMessageID = *userMsg.TelegramMessageID
	}
	sentID, err := w.sender.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("deliver response: %w", err)
	}
	if err := p.MarkResponseSent(sentID); err != nil {
		return err
	}
	return w.save(ctx, p)
}

// fail records a failed run. Permanent adapter errors end the record in TERMINAL.
func (w *MessageProcessingWorker) fail(ctx context.Context, p *model.MessageProcessing, cause error) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
	defer cancel()

	outcome := "failed"
	var err error
	if errors.Is(cause, adapter.ErrPermanent) {
		outcome = "terminal"
		err = p.MarkTerminal(cause.Error())
	} else {
		err = p.MarkFailed(cause.Error())
	}
	if err != nil {
		return outcome, errors.Join(cause, err)
	}
	if err := w.save(ctx, p); err != nil {
		return outcome, errors.Join(cause, err)
	}
	return outcome, cause
}

func (w *MessageProcessingWorker) save(ctx context.Context, p *model.MessageProcessing) error {
	if err := w.processing.Save(ctx, repository.NoTX, p); err != nil {
		return fmt.Errorf("save processing %d: %w", p.ID, err)
	}
	metrics.IncTransition(string(p.Status))
	return nil
}
