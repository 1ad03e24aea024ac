package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/repository"
)

const defaultFailedLimit = 100

// Compile-time check
var _ MessageProcessingUseCase = (*messageProcessingUC)(nil)

// ProcessingFilter narrows FindAll. Empty fields do not constrain.
type ProcessingFilter struct {
	Statuses      []model.ProcessingStatus
	UserMessageID *int64
}

// Pagination is 1-based. A zero Limit disables paging.
type Pagination struct {
	Page  int
	Limit int
}

// MessageProcessingUseCase is the read facade over processing records.
type MessageProcessingUseCase interface {
	FindAll(ctx context.Context, filter *ProcessingFilter, page *Pagination) ([]*model.MessageProcessing, error)
	// FindByID returns (nil, nil) when the record does not exist.
	FindByID(ctx context.Context, id int64) (*model.MessageProcessing, error)
	FindFailed(ctx context.Context, limit int) ([]*model.MessageProcessing, error)
}

type messageProcessingUC struct {
	repo repository.MessageProcessingRepository
	log  *zerolog.Logger
}

func NewMessageProcessingUseCase(repo repository.MessageProcessingRepository, logger *zerolog.Logger) *messageProcessingUC {
	return &messageProcessingUC{repo: repo, log: logger}
}

func (uc *messageProcessingUC) FindAll(ctx context.Context, filter *ProcessingFilter, page *Pagination) ([]*model.MessageProcessing, error) {
	var q repository.ProcessingQuery
	if filter != nil {
		q.Statuses = filter.Statuses
		q.UserMessageID = filter.UserMessageID
	}
	if page != nil && page.Limit > 0 {
		p := page.Page
		if p < 1 {
			p = 1
		}
		q.Skip = (p - 1) * page.Limit
		q.Take = page.Limit
	}
	return uc.repo.FindAll(ctx, repository.NoTX, q)
}

func (uc *messageProcessingUC) FindByID(ctx context.Context, id int64) (*model.MessageProcessing, error) {
	p, err := uc.repo.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (uc *messageProcessingUC) FindFailed(ctx context.Context, limit int) ([]*model.MessageProcessing, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}
	return uc.repo.FindFailed(ctx, repository.NoTX, limit)
}
