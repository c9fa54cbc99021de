package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	coreq "github.com/petrijr/stepwise/internal/taskqueue"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a single sorted set with key:
//
//	<prefix>tasks
//
// Members are JSON-encoded Task structs scored by their NotBefore time, so
// delayed retries stay invisible until they are due.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// claimLua pops the earliest member whose score is <= ARGV[1].
var claimLua = redis.NewScript(`
local key = KEYS[1]
local now = ARGV[1]

local items = redis.call('ZRANGEBYSCORE', key, '-inf', now, 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZREM', key, items[1])
return items[1]
`)

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "stepwise:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "stepwise:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "tasks",
		pollInterval: 50 * time.Millisecond,
	}
}

// Ensure RedisQueue implements Queue.
var _ coreq.Queue = (*RedisQueue)(nil)

// Enqueue adds a task scored by its NotBefore time (ZADD).
func (q *RedisQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = t.EnqueuedAt
	}
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(notBefore.UnixNano()), Member: data}).Err()
}

// Dequeue polls until a due task is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		select {
		case <-tmr.C:
		default:
		}
	}
	defer tmr.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := strconv.FormatInt(time.Now().UnixNano(), 10)
		res, err := claimLua.Run(ctx, q.client, []string{q.key}, now).Text()
		if err == nil {
			return coreq.DecodeTask([]byte(res))
		}
		if !errors.Is(err, redis.Nil) {
			return nil, err
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

// Len returns the approximate number of tasks queued (ZCARD).
func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		slog.Warn("redis_queue_len_failed", slog.String("error", err.Error()))
		return 0
	}
	return int(n)
}
