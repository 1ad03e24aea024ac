//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/usecase"
)

func record(userMessageID int64, status model.ProcessingStatus) *model.MessageProcessing {
	p := &model.MessageProcessing{UserMessageID: userMessageID, Status: status, Attempts: 1}
	if status == model.ProcessingStatusTerminal {
		reason := "max attempts exceeded"
		p.TerminalReason = &reason
	}
	return p
}

func newRecoveryUC(repo *MockProcessingRepo, q *MockJobQueue) usecase.ProcessingRecoveryUseCase {
	return usecase.NewProcessingRecoveryUseCase(repo, q, newTestLogger())
}

func TestProcessingRecovery_RetryFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("should publish one trigger per failed record", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		repo.Put(record(10, model.ProcessingStatusFailed))
		repo.Put(record(11, model.ProcessingStatusFailed))
		repo.Put(record(12, model.ProcessingStatusCompleted))
		q := NewMockJobQueue()

		res, err := newRecoveryUC(repo, q).RetryFailed(ctx, 0)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if repo.LastFailedLimit != 100 {
			t.Errorf("expected default limit 100, got %d", repo.LastFailedLimit)
		}
		if res.RetriedCount != 2 || len(res.MessageIDs) != 2 || res.MessageIDs[0] != 10 || res.MessageIDs[1] != 11 {
			t.Fatalf("unexpected result %+v", res)
		}
		if len(q.Calls) != 2 {
			t.Fatalf("expected 2 publishes, got %d", len(q.Calls))
		}
		for i, want := range []int64{10, 11} {
			c := q.Calls[i]
			if c.Name != model.MessageProcessingJobName {
				t.Errorf("unexpected job name %q", c.Name)
			}
			if p := c.Payload.(model.MessageProcessingTriggerPayload); p.UserMessageID != want {
				t.Errorf("expected payload for %d, got %+v", want, p)
			}
			if c.Opts.SingletonKey != model.ProcessingSingletonKey(want) {
				t.Errorf("unexpected singleton key %q", c.Opts.SingletonKey)
			}
		}
	})

	t.Run("should not mutate the records it retries", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		p := repo.Put(record(10, model.ProcessingStatusFailed))
		_, _ = newRecoveryUC(repo, NewMockJobQueue()).RetryFailed(ctx, 10)
		if repo.SaveCalls != 1 {
			t.Errorf("recovery must not save records, saw %d saves", repo.SaveCalls-1)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.ProcessingStatusFailed || got.Attempts != 1 {
			t.Errorf("record changed: %s/%d", got.Status, got.Attempts)
		}
	})

	t.Run("should skip records that fail and keep going", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		for id := int64(1); id <= 5; id++ {
			repo.Put(record(id, model.ProcessingStatusFailed))
		}
		q := NewMockJobQueue()
		q.PublishErrFor[3] = domain.ErrQueueUnavailable

		res, err := newRecoveryUC(repo, q).RetryFailed(ctx, 100)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.RetriedCount != 4 {
			t.Errorf("expected 4 retried, got %d", res.RetriedCount)
		}
		want := []int64{1, 2, 4, 5}
		for i, id := range want {
			if res.MessageIDs[i] != id {
				t.Errorf("expected message ids %v, got %v", want, res.MessageIDs)
				break
			}
		}
	})

	t.Run("should count a record that turned terminal as not retried", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		repo.Put(record(1, model.ProcessingStatusFailed))
		repo.Put(record(2, model.ProcessingStatusFailed))
		// The worker may give up on a record between FindFailed and the reload.
		repo.FindByUserMessageIDFunc = func(_ context.Context, id int64) (*model.MessageProcessing, error) {
			if id == 2 {
				return record(2, model.ProcessingStatusTerminal), nil
			}
			return record(id, model.ProcessingStatusFailed), nil
		}
		q := NewMockJobQueue()
		res, err := newRecoveryUC(repo, q).RetryFailed(ctx, 100)
		if err != nil {
			t.Fatal(err)
		}
		if res.RetriedCount != 1 || res.MessageIDs[0] != 1 || q.CallCount() != 1 {
			t.Errorf("unexpected result %+v with %d publishes", res, q.CallCount())
		}
	})

	t.Run("should return the FindFailed error", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		boom := errors.New("db down")
		repo.FindFailedFunc = func(context.Context, int) ([]*model.MessageProcessing, error) { return nil, boom }
		q := NewMockJobQueue()
		if _, err := newRecoveryUC(repo, q).RetryFailed(ctx, 5); !errors.Is(err, boom) {
			t.Errorf("expected db error, got %v", err)
		}
		if q.CallCount() != 0 {
			t.Error("expected no publish")
		}
	})

	t.Run("should return an empty result when nothing failed", func(t *testing.T) {
		res, err := newRecoveryUC(NewMockProcessingRepo(), NewMockJobQueue()).RetryFailed(ctx, 100)
		if err != nil || res.RetriedCount != 0 || res.MessageIDs == nil || len(res.MessageIDs) != 0 {
			t.Errorf("unexpected result %+v (%v)", res, err)
		}
	})
}

func TestProcessingRecovery_RetryByUserMessageID(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse terminal records without publishing", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		repo.Put(record(7, model.ProcessingStatusTerminal))
		q := NewMockJobQueue()

		err := newRecoveryUC(repo, q).RetryByUserMessageID(ctx, 7)
		if !errors.Is(err, domain.ErrTerminalRetry) {
			t.Fatalf("expected ErrTerminalRetry, got %v", err)
		}
		if err.Error() != "cannot retry terminal message processing: 7" {
			t.Errorf("unexpected message %q", err.Error())
		}
		if q.CallCount() != 0 {
			t.Error("terminal retry must never publish")
		}
	})

	t.Run("should publish for every non-terminal status", func(t *testing.T) {
		statuses := []model.ProcessingStatus{
			model.ProcessingStatusReceived,
			model.ProcessingStatusProcessing,
			model.ProcessingStatusFailed,
			model.ProcessingStatusCompleted,
		}
		for i, st := range statuses {
			repo := NewMockProcessingRepo()
			id := int64(100 + i)
			repo.Put(record(id, st))
			q := NewMockJobQueue()
			if err := newRecoveryUC(repo, q).RetryByUserMessageID(ctx, id); err != nil {
				t.Errorf("%s: expected no error, got %v", st, err)
			}
			if q.CallCount() != 1 {
				t.Errorf("%s: expected one publish, got %d", st, q.CallCount())
			}
		}
	})

	t.Run("should mention the user message id when not found", func(t *testing.T) {
		q := NewMockJobQueue()
		err := newRecoveryUC(NewMockProcessingRepo(), q).RetryByUserMessageID(ctx, 999)
		if !errors.Is(err, domain.ErrNotFound) || !strings.Contains(err.Error(), "999") {
			t.Errorf("expected not found error mentioning 999, got %v", err)
		}
		if q.CallCount() != 0 {
			t.Error("expected no publish")
		}
	})

	t.Run("should propagate publish errors", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		repo.Put(record(8, model.ProcessingStatusFailed))
		q := NewMockJobQueue()
		q.PublishErr = domain.ErrQueueUnavailable
		if err := newRecoveryUC(repo, q).RetryByUserMessageID(ctx, 8); !errors.Is(err, domain.ErrQueueUnavailable) {
			t.Errorf("expected queue error, got %v", err)
		}
	})

	t.Run("should use the same singleton key for concurrent retries", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		repo.Put(record(42, model.ProcessingStatusFailed))
		q := NewMockJobQueue()
		uc := newRecoveryUC(repo, q)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := uc.RetryByUserMessageID(ctx, 42); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if q.CallCount() != 8 {
			t.Fatalf("expected 8 publish calls, got %d", q.CallCount())
		}
		for _, c := range q.Calls {
			if c.Opts.SingletonKey != "message-processing:42" {
				t.Errorf("unexpected singleton key %q", c.Opts.SingletonKey)
			}
		}
		if q.Admitted != 1 {
			t.Errorf("expected the queue to admit a single job, got %d", q.Admitted)
		}
	})
}

func TestProcessingRecovery_RetryByID(t *testing.T) {
	ctx := context.Background()

	t.Run("should delegate to the record's user message", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		p := repo.Put(record(10, model.ProcessingStatusFailed))
		q := NewMockJobQueue()
		if err := newRecoveryUC(repo, q).RetryByID(ctx, p.ID); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if q.CallCount() != 1 || q.Calls[0].Opts.SingletonKey != "message-processing:10" {
			t.Errorf("unexpected publishes %+v", q.Calls)
		}
	})

	t.Run("should report a missing id", func(t *testing.T) {
		q := NewMockJobQueue()
		err := newRecoveryUC(NewMockProcessingRepo(), q).RetryByID(ctx, 5)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if !strings.Contains(err.Error(), "not found") || !strings.Contains(err.Error(), "5") {
			t.Errorf("unexpected message %q", err.Error())
		}
		if q.CallCount() != 0 {
			t.Error("expected no publish")
		}
	})

	t.Run("should refuse a terminal record by id", func(t *testing.T) {
		repo := NewMockProcessingRepo()
		p := repo.Put(record(7, model.ProcessingStatusTerminal))
		if err := newRecoveryUC(repo, NewMockJobQueue()).RetryByID(ctx, p.ID); !errors.Is(err, domain.ErrTerminalRetry) {
			t.Errorf("expected ErrTerminalRetry, got %v", err)
		}
	})
}
