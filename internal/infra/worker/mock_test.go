//go:build !integration

package worker

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/adapter"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/domain/ports/repository"
)

// --- processing repo ---

type fakeProcessingRepo struct {
	mu      sync.Mutex
	byUser  map[int64]*model.MessageProcessing
	nextID  int64
	saves   int
	saveErr error
}

func newFakeProcessingRepo() *fakeProcessingRepo {
	return &fakeProcessingRepo{byUser: map[int64]*model.MessageProcessing{}, nextID: 1}
}

func (r *fakeProcessingRepo) put(p *model.MessageProcessing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	}
	cp := *p
	r.byUser[p.UserMessageID] = &cp
}

func (r *fakeProcessingRepo) get(userMessageID int64) *model.MessageProcessing {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.byUser[userMessageID]
	return &cp
}

func (r *fakeProcessingRepo) Save(_ context.Context, _ repository.Tx, p *model.MessageProcessing) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.put(p)
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return nil
}

func (r *fakeProcessingRepo) FindAll(context.Context, repository.Tx, repository.ProcessingQuery) ([]*model.MessageProcessing, error) {
	return nil, errors.New("not used")
}

func (r *fakeProcessingRepo) FindByID(_ context.Context, _ repository.Tx, id int64) (*model.MessageProcessing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byUser {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeProcessingRepo) FindByUserMessageID(_ context.Context, _ repository.Tx, userMessageID int64) (*model.MessageProcessing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[userMessageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProcessingRepo) FindByTelegramUpdateID(context.Context, repository.Tx, int64) (*model.MessageProcessing, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeProcessingRepo) FindFailed(context.Context, repository.Tx, int) ([]*model.MessageProcessing, error) {
	return nil, errors.New("not used")
}

// --- message repo ---

type fakeMessageRepo struct {
	mu      sync.Mutex
	byID    map[int64]*model.Message
	nextID  int64
	saveErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{byID: map[int64]*model.Message{}, nextID: 1}
}

func (r *fakeMessageRepo) Save(_ context.Context, _ repository.Tx, m *model.Message) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextID
	r.nextID++
	cp := *m
	r.byID[m.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) FindByID(_ context.Context, _ repository.Tx, id int64) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) ListRecentByChat(_ context.Context, _ repository.Tx, botID, chatID, beforeID int64, limit int) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.byID {
		if m.BotID == botID && m.ChatID == chatID && m.ID < beforeID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// --- tx manager ---

type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// --- queue ---

type fakeConsumer struct {
	mu        sync.Mutex
	pending   []*queue.Job
	completed []string
	failed    map[string]error
}

func newFakeConsumer(jobs ...*queue.Job) *fakeConsumer {
	return &fakeConsumer{pending: jobs, failed: map[string]error{}}
}

func (c *fakeConsumer) Fetch(_ context.Context, name string) (*queue.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, j := range c.pending {
		if j.Name == name {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return j, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *fakeConsumer) Complete(_ context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, jobID)
	return nil
}

func (c *fakeConsumer) Fail(_ context.Context, jobID string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[jobID] = cause
	return nil
}

// --- AI ---

type fakeAI struct {
	mu        sync.Mutex
	reply     string
	usage     adapter.Usage
	err       error
	calls     int
	lastInput []adapter.Message

	// tokensPerMessage drives CountTokens; 0 counts every prompt as 1 token.
	tokensPerMessage int
}

func (a *fakeAI) Provider() string { return "fake" }

func (a *fakeAI) CountTokens(_ context.Context, _ string, msgs []adapter.Message) (int, error) {
	if a.tokensPerMessage == 0 {
		return 1, nil
	}
	return len(msgs) * a.tokensPerMessage, nil
}

func (a *fakeAI) ChatWithUsage(_ context.Context, _ string, msgs []adapter.Message) (string, adapter.Usage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastInput = msgs
	if a.err != nil {
		return "", adapter.Usage{}, a.err
	}
	return a.reply, a.usage, nil
}

// --- telegram ---

type fakeSender struct {
	mu     sync.Mutex
	errs   []error // consumed one per call
	nextID int64
	sent   []adapter.SendMessageParams
}

func (s *fakeSender) SendMessage(_ context.Context, p adapter.SendMessageParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	s.sent = append(s.sent, p)
	s.nextID++
	return s.nextID, nil
}

func triggerJob(id string, userMessageID int64) *queue.Job {
	return &queue.Job{
		ID:           id,
		Name:         model.MessageProcessingJobName,
		Payload:      []byte(`{"userMessageId":` + strconv.FormatInt(userMessageID, 10) + `}`),
		SingletonKey: model.ProcessingSingletonKey(userMessageID),
		CreatedAt:    time.Now(),
	}
}
