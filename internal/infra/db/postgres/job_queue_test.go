//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/model"
	"telegram-bot-platform/internal/domain/ports/queue"
)

func TestJobQueue_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	q := NewJobQueue(testPool)
	payload := model.MessageProcessingTriggerPayload{UserMessageID: 10}
	opts := queue.PublishOptions{SingletonKey: model.ProcessingSingletonKey(10)}

	t.Run("should admit one job per singleton key while in flight", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 3; i++ {
			if err := q.Publish(ctx, model.MessageProcessingJobName, payload, opts); err != nil {
				t.Fatalf("publish %d: %v", i, err)
			}
		}
		job, err := q.Fetch(ctx, model.MessageProcessingJobName)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		decoded, err := model.DecodeTriggerPayload(job.Payload)
		if err != nil || decoded.UserMessageID != 10 {
			t.Errorf("unexpected payload %s (%v)", job.Payload, err)
		}
		if _, err := q.Fetch(ctx, model.MessageProcessingJobName); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected a single job, got %v", err)
		}

		// still active: publish is a no-op
		_ = q.Publish(ctx, model.MessageProcessingJobName, payload, opts)
		if _, err := q.Fetch(ctx, model.MessageProcessingJobName); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected dedup while active, got %v", err)
		}

		if err := q.Complete(ctx, job.ID); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if err := q.Publish(ctx, model.MessageProcessingJobName, payload, opts); err != nil {
			t.Fatalf("publish after completion: %v", err)
		}
		if _, err := q.Fetch(ctx, model.MessageProcessingJobName); err != nil {
			t.Errorf("expected a new job after completion, got %v", err)
		}
	})

	t.Run("should release the key on failure and expiry", func(t *testing.T) {
		cleanup(t)
		_ = q.Publish(ctx, model.MessageProcessingJobName, payload, opts)
		job, _ := q.Fetch(ctx, model.MessageProcessingJobName)
		if err := q.Fail(ctx, job.ID, errors.New("boom")); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if err := q.Fail(ctx, job.ID, errors.New("again")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for finished job, got %v", err)
		}

		_ = q.Publish(ctx, model.MessageProcessingJobName, payload, opts)
		if _, err := q.Fetch(ctx, model.MessageProcessingJobName); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		n, err := q.ExpireStale(ctx, -time.Second)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 expired job, got %d (%v)", n, err)
		}
		if err := q.Publish(ctx, model.MessageProcessingJobName, payload, opts); err != nil {
			t.Fatalf("publish after expiry: %v", err)
		}
		if _, err := q.Fetch(ctx, model.MessageProcessingJobName); err != nil {
			t.Errorf("expected job after expiry, got %v", err)
		}
	})
}
