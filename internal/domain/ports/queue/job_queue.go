package queue

import (
	"context"
	"time"
)

// PublishOptions controls how a job is admitted to the queue.
type PublishOptions struct {
	// SingletonKey, when set, admits at most one created/active job per
	// (name, key). A second publish while one is in flight is a silent no-op.
	SingletonKey string
}

type Job struct {
	ID           string
	Name         string
	Payload      []byte
	SingletonKey string
	CreatedAt    time.Time
}

// JobQueueClient is the publish side used by use cases.
type JobQueueClient interface {
	Publish(ctx context.Context, name string, payload any, opts PublishOptions) error
}

// JobConsumer is the Worker side. Fetch returns domain.ErrNotFound when no job is ready.
type JobConsumer interface {
	Fetch(ctx context.Context, name string) (*Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, cause error) error
}

// JobQueue is implemented by every backend.
type JobQueue interface {
	JobQueueClient
	JobConsumer
	// ExpireStale fails jobs that stayed active longer than olderThan and
	// returns how many were expired, releasing their singleton keys.
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
