package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/stepwise"
	"github.com/petrijr/stepwise/internal/persistence"

	rstore "github.com/petrijr/stepwise/redis/internal/persistence"
	rqueue "github.com/petrijr/stepwise/redis/internal/taskqueue"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "stepwise:"

// NewRuntime returns a Runtime that keeps submission jobs, achievements and
// queued tasks in Redis under prefix (DefaultPrefix when empty).
func NewRuntime(client *redis.Client, prefix string, svcs stepwise.Services, cfg stepwise.Config) (*stepwise.Runtime, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	p := persistence.Persistence{
		Jobs: rstore.NewRedisJobStore(client, prefix),
		KV:   rstore.NewRedisKVStore(client, prefix),
	}
	return stepwise.NewRuntime(p, rqueue.NewRedisQueue(client, prefix), svcs, cfg)
}
