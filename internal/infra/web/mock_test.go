//go:build !integration

package web

import (
	"context"
	"fmt"
	"sync"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/usecase"
)

// --- Mock use cases ---

type mockProcessingUC struct {
	mu        sync.Mutex
	items     map[int64]*model.MessageProcessing
	err       error
	gotFilter *usecase.ProcessingFilter
	gotPage   *usecase.Pagination
	gotLimit  int
}

func newMockProcessingUC(items ...*model.MessageProcessing) *mockProcessingUC {
	m := &mockProcessingUC{items: map[int64]*model.MessageProcessing{}}
	for _, p := range items {
		m.items[p.ID] = p
	}
	return m
}

func (m *mockProcessingUC) FindAll(_ context.Context, f *usecase.ProcessingFilter, p *usecase.Pagination) ([]*model.MessageProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotFilter, m.gotPage = f, p
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.MessageProcessing
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockProcessingUC) FindByID(_ context.Context, id int64) (*model.MessageProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.items[id], nil
}

func (m *mockProcessingUC) FindFailed(_ context.Context, limit int) ([]*model.MessageProcessing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotLimit = limit
	var out []*model.MessageProcessing
	for _, it := range m.items {
		if it.Status == model.ProcessingStatusFailed {
			out = append(out, it)
		}
	}
	return out, nil
}

type mockRecoveryUC struct {
	mu       sync.Mutex
	records  map[int64]*model.MessageProcessing
	retried  []int64
	result   *usecase.RetryResult
	gotLimit int
}

func (m *mockRecoveryUC) RetryFailed(_ context.Context, limit int) (*usecase.RetryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotLimit = limit
	return m.result, nil
}

func (m *mockRecoveryUC) RetryByID(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return fmt.Errorf("message processing with id %d not found: %w", id, domain.ErrNotFound)
	}
	if p.Status == model.ProcessingStatusTerminal {
		return fmt.Errorf("%w: %d", domain.ErrTerminalRetry, p.UserMessageID)
	}
	m.retried = append(m.retried, id)
	return nil
}

func (m *mockRecoveryUC) RetryByUserMessageID(context.Context, int64) error {
	return nil
}
