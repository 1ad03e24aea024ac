package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/infra/metrics"
)

var _ queue.JobQueue = (*jobQueue)(nil)

// jobQueue keeps trigger jobs in the jobs table. A partial unique index over
// (name, singleton_key) for created/active rows provides singleton admission.
type jobQueue struct {
	pool *pgxpool.Pool
}

func NewJobQueue(pool *pgxpool.Pool) *jobQueue {
	return &jobQueue{pool: pool}
}

func (q *jobQueue) Publish(ctx context.Context, name string, payload any, opts queue.PublishOptions) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		metrics.IncJobPublished(name, "error")
		return fmt.Errorf("%w: marshal job payload: %v", domain.ErrInvalidArgument, err)
	}
	var singleton *string
	if opts.SingletonKey != "" {
		singleton = &opts.SingletonKey
	}

	const sql = `
INSERT INTO jobs (id, name, payload, singleton_key)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (name, singleton_key)
  WHERE singleton_key IS NOT NULL AND state IN ('created', 'active')
DO NOTHING;`
	tag, err := q.pool.Exec(ctx, sql, ulid.Make().String(), name, string(raw), singleton)
	if err != nil {
		metrics.IncJobPublished(name, "error")
		return fmt.Errorf("%w: publish %s: %v", domain.ErrQueueUnavailable, name, err)
	}
	if tag.RowsAffected() == 0 {
		metrics.IncJobPublished(name, "deduplicated")
		return nil
	}
	metrics.IncJobPublished(name, "created")
	return nil
}

// Fetch claims the oldest created job of the given name. Concurrent workers
// never receive the same job thanks to SKIP LOCKED.
func (q *jobQueue) Fetch(ctx context.Context, name string) (*queue.Job, error) {
	const sql = `
UPDATE jobs SET state = 'active', started_at = now()
WHERE id = (
  SELECT id FROM jobs
  WHERE name = $1 AND state = 'created'
  ORDER BY created_at, id
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING id, name, payload, COALESCE(singleton_key, ''), created_at;`

	var (
		job     queue.Job
		payload []byte
	)
	err := q.pool.QueryRow(ctx, sql, name).Scan(&job.ID, &job.Name, &payload, &job.SingletonKey, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrQueueUnavailable, name, err)
	}
	job.Payload = payload
	return &job, nil
}

func (q *jobQueue) Complete(ctx context.Context, jobID string) error {
	const sql = `UPDATE jobs SET state = 'completed', completed_at = now() WHERE id = $1 AND state = 'active';`
	return q.finish(ctx, sql, jobID)
}

func (q *jobQueue) Fail(ctx context.Context, jobID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	const sql = `UPDATE jobs SET state = 'failed', last_error = $2, completed_at = now() WHERE id = $1 AND state = 'active';`
	return q.finish(ctx, sql, jobID, msg)
}

func (q *jobQueue) finish(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := q.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *jobQueue) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const sql = `
UPDATE jobs SET state = 'failed', last_error = 'expired while active', completed_at = now()
WHERE state = 'active' AND started_at < $1;`
	tag, err := q.pool.Exec(ctx, sql, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("%w: expire stale jobs: %v", domain.ErrQueueUnavailable, err)
	}
	n := tag.RowsAffected()
	metrics.AddJobsExpired("postgres", n)
	return n, nil
}
