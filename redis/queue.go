package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/stepwise"

	rqueue "github.com/petrijr/stepwise/redis/internal/taskqueue"
)

// NewQueue returns a durable Redis-backed task queue.
func NewQueue(client *redis.Client, prefix string) stepwise.Queue {
	return rqueue.NewRedisQueue(client, prefix)
}
