//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- In-memory MessageProcessingRepository ----

type MockProcessingRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.MessageProcessing

	// Hooks override the in-memory behaviour when set.
	FindFailedFunc          func(ctx context.Context, limit int) ([]*model.MessageProcessing, error)
	FindByUserMessageIDFunc func(ctx context.Context, userMessageID int64) (*model.MessageProcessing, error)

	LastQuery       repository.ProcessingQuery
	LastFailedLimit int
	SaveErr         error
	SaveCalls       int
}

var _ repository.MessageProcessingRepository = (*MockProcessingRepo)(nil)

func NewMockProcessingRepo() *MockProcessingRepo {
	return &MockProcessingRepo{byID: make(map[int64]*model.MessageProcessing)}
}

// Put stores a copy of p, assigning an id when it has none.
func (m *MockProcessingRepo) Put(p *model.MessageProcessing) *model.MessageProcessing {
	_ = m.Save(context.Background(), nil, p)
	return p
}

func (m *MockProcessingRepo) Save(_ context.Context, _ repository.Tx, p *model.MessageProcessing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	} else if _, ok := m.byID[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *MockProcessingRepo) FindAll(_ context.Context, _ repository.Tx, q repository.ProcessingQuery) ([]*model.MessageProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastQuery = q
	var out []*model.MessageProcessing
	for _, p := range m.sorted() {
		if len(q.Statuses) > 0 && !hasStatus(q.Statuses, p.Status) {
			continue
		}
		if q.UserMessageID != nil && p.UserMessageID != *q.UserMessageID {
			continue
		}
		out = append(out, p)
	}
	if q.Skip >= len(out) {
		return []*model.MessageProcessing{}, nil
	}
	out = out[q.Skip:]
	if q.Take > 0 && q.Take < len(out) {
		out = out[:q.Take]
	}
	return out, nil
}

func (m *MockProcessingRepo) FindByID(_ context.Context, _ repository.Tx, id int64) (*model.MessageProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProcessingRepo) FindByUserMessageID(ctx context.Context, _ repository.Tx, userMessageID int64) (*model.MessageProcessing, error) {
	if m.FindByUserMessageIDFunc != nil {
		return m.FindByUserMessageIDFunc(ctx, userMessageID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sorted() {
		if p.UserMessageID == userMessageID {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockProcessingRepo) FindByTelegramUpdateID(_ context.Context, _ repository.Tx, updateID int64) (*model.MessageProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sorted() {
		if p.TelegramUpdateID != nil && *p.TelegramUpdateID == updateID {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockProcessingRepo) FindFailed(ctx context.Context, _ repository.Tx, limit int) ([]*model.MessageProcessing, error) {
	m.mu.Lock()
	m.LastFailedLimit = limit
	m.mu.Unlock()
	if m.FindFailedFunc != nil {
		return m.FindFailedFunc(ctx, limit)
	}
	failed, _ := m.FindAll(ctx, nil, repository.ProcessingQuery{
		Statuses: []model.ProcessingStatus{model.ProcessingStatusFailed},
		Take:     limit,
	})
	return failed, nil
}

// sorted returns copies ordered by id. Caller holds the lock.
func (m *MockProcessingRepo) sorted() []*model.MessageProcessing {
	out := make([]*model.MessageProcessing, 0, len(m.byID))
	for _, p := range m.byID {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasStatus(list []model.ProcessingStatus, s model.ProcessingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ---- In-memory MessageRepository ----

type MockMessageRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.Message
}

var _ repository.MessageRepository = (*MockMessageRepo)(nil)

func NewMockMessageRepo() *MockMessageRepo {
	return &MockMessageRepo{byID: make(map[int64]*model.Message)}
}

func (m *MockMessageRepo) Save(_ context.Context, _ repository.Tx, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	cp := *msg
	m.byID[msg.ID] = &cp
	return nil
}

func (m *MockMessageRepo) FindByID(_ context.Context, _ repository.Tx, id int64) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *MockMessageRepo) ListRecentByChat(_ context.Context, _ repository.Tx, botID, chatID, beforeID int64, limit int) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Message
	for id := beforeID - 1; id > 0 && len(out) < limit; id-- {
		if msg, ok := m.byID[id]; ok && msg.BotID == botID && msg.ChatID == chatID {
			cp := *msg
			out = append([]*model.Message{&cp}, out...)
		}
	}
	return out, nil
}

func (m *MockMessageRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// ---- TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Job queue ----

type PublishCall struct {
	Name    string
	Payload any
	Opts    queue.PublishOptions
}

// MockJobQueue records every publish and applies singleton admission the way
// the real backends do. Admitted counts jobs that actually entered the queue.
type MockJobQueue struct {
	mu       sync.Mutex
	Calls    []PublishCall
	Admitted int
	inFlight map[string]bool

	// PublishErrFor fails publishes whose payload carries this user message id.
	PublishErrFor map[int64]error
	PublishErr    error
}

var _ queue.JobQueueClient = (*MockJobQueue)(nil)

func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{inFlight: map[string]bool{}, PublishErrFor: map[int64]error{}}
}

func (q *MockJobQueue) Publish(_ context.Context, name string, payload any, opts queue.PublishOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.PublishErr != nil {
		return q.PublishErr
	}
	if p, ok := payload.(model.MessageProcessingTriggerPayload); ok {
		if err := q.PublishErrFor[p.UserMessageID]; err != nil {
			return err
		}
	}
	q.Calls = append(q.Calls, PublishCall{Name: name, Payload: payload, Opts: opts})
	if opts.SingletonKey != "" && q.inFlight[opts.SingletonKey] {
		return nil
	}
	q.inFlight[opts.SingletonKey] = true
	q.Admitted++
	return nil
}

func (q *MockJobQueue) CallCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Calls)
}

// ---- Rate limiter ----

type MockRateLimiter struct {
	Allowed bool
	Err     error
	Keys    []string
}

func (r *MockRateLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	r.Keys = append(r.Keys, key)
	return r.Allowed, r.Err
}
