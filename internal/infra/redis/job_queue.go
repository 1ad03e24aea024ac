package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"

	"telegram-bot-platform/internal/domain"
	"telegram-bot-platform/internal/domain/ports/queue"
	"telegram-bot-platform/internal/infra/metrics"
)

const (
	keyPending   = "queue:pending:"   // list per job name, LPUSH in / RPOP out
	keyActive    = "queue:active"     // zset of active job ids scored by start time
	keyJob       = "queue:job:"       // hash per job
	keySingleton = "queue:singleton:" // job id holding a singleton key

	failedRetention = 24 * time.Hour
)

var luaPublish = redis.NewScript(`
if ARGV[4] ~= "" then
	if not redis.call("SET", KEYS[1], ARGV[1], "NX") then
		return 0
	end
end
redis.call("HSET", KEYS[2], "name", ARGV[2], "payload", ARGV[3], "singleton", ARGV[4], "created_at", ARGV[5])
redis.call("LPUSH", KEYS[3], ARGV[1])
return 1`)

var luaFetch = redis.NewScript(`
local id = redis.call("RPOP", KEYS[1])
if not id then
	return false
end
redis.call("ZADD", KEYS[2], ARGV[1], id)
local h = redis.call("HMGET", ARGV[2] .. id, "name", "payload", "singleton", "created_at")
return {id, h[1], h[2], h[3], h[4]}`)

var luaFinish = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
	return 0
end
local s = redis.call("HGET", KEYS[2], "singleton")
if s and s ~= "" then
	local sk = ARGV[2] .. s
	if redis.call("GET", sk) == ARGV[1] then
		redis.call("DEL", sk)
	end
end
if ARGV[3] == "" then
	redis.call("DEL", KEYS[2])
else
	redis.call("HSET", KEYS[2], "state", "failed", "last_error", ARGV[3])
	redis.call("EXPIRE", KEYS[2], ARGV[4])
end
return 1`)

var _ queue.JobQueue = (*JobQueue)(nil)

// JobQueue is the Redis backend. Every state change runs in a Lua script so
// singleton admission and release are atomic.
type JobQueue struct {
	cli *redis.Client
}

func NewJobQueue(c *Client) *JobQueue {
	return &JobQueue{cli: c.cli}
}

func (q *JobQueue) Publish(ctx context.Context, name string, payload any, opts queue.PublishOptions) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		metrics.IncJobPublished(name, "error")
		return fmt.Errorf("%w: marshal job payload: %v", domain.ErrInvalidArgument, err)
	}
	id := ulid.Make().String()
	keys := []string{keySingleton + opts.SingletonKey, keyJob + id, keyPending + name}
	created, err := luaPublish.Run(ctx, q.cli, keys,
		id, name, string(raw), opts.SingletonKey, time.Now().UnixMilli()).Int()
	if err != nil {
		metrics.IncJobPublished(name, "error")
		return fmt.Errorf("%w: publish %s: %v", domain.ErrQueueUnavailable, name, err)
	}
	if created == 0 {
		metrics.IncJobPublished(name, "deduplicated")
		return nil
	}
	metrics.IncJobPublished(name, "created")
	return nil
}

func (q *JobQueue) Fetch(ctx context.Context, name string) (*queue.Job, error) {
	res, err := luaFetch.Run(ctx, q.cli, []string{keyPending + name, keyActive},
		time.Now().UnixMilli(), keyJob).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrQueueUnavailable, name, err)
	}
	if len(res) != 5 {
		return nil, fmt.Errorf("%w: unexpected fetch reply of %d items", domain.ErrQueueUnavailable, len(res))
	}
	job := &queue.Job{
		ID:           str(res[0]),
		Name:         str(res[1]),
		Payload:      []byte(str(res[2])),
		SingletonKey: str(res[3]),
	}
	if ms, err := strconv.ParseInt(str(res[4]), 10, 64); err == nil {
		job.CreatedAt = time.UnixMilli(ms)
	}
	return job, nil
}

func (q *JobQueue) Complete(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, "")
}

func (q *JobQueue) Fail(ctx context.Context, jobID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return q.finish(ctx, jobID, msg)
}

func (q *JobQueue) finish(ctx context.Context, jobID, failure string) error {
	done, err := luaFinish.Run(ctx, q.cli, []string{keyActive, keyJob + jobID},
		jobID, keySingleton, failure, int(failedRetention.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	if done == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *JobQueue) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	max := strconv.FormatInt(time.Now().Add(-olderThan).UnixMilli(), 10)
	ids, err := q.cli.ZRangeByScore(ctx, keyActive, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: list active jobs: %v", domain.ErrQueueUnavailable, err)
	}
	var n int64
	for _, id := range ids {
		err := q.finish(ctx, id, "expired while active")
		if errors.Is(err, domain.ErrNotFound) {
			continue // finished concurrently
		}
		if err != nil {
			metrics.AddJobsExpired("redis", n)
			return n, err
		}
		n++
	}
	metrics.AddJobsExpired("redis", n)
	return n, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
