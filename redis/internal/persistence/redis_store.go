package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	corep "github.com/petrijr/stepwise/internal/persistence"
	"github.com/petrijr/stepwise/pkg/api"
)

// RedisJobStore is a JobStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>job:<id>              => gob-encoded api.SubmissionJob
//	<prefix>session:<sessionID>   => job id (one per session)
//	<prefix>idx:jobs              => ZSET of job ids scored by creation time
//	<prefix>idx:flow:<flow>       => SET of job ids for a given flow
type RedisJobStore struct {
	client *redis.Client
	prefix string
}

var _ corep.JobStore = (*RedisJobStore)(nil)

// NewRedisJobStore creates a RedisJobStore.
// prefix is optional but recommended (e.g. "stepwise:").
func NewRedisJobStore(client *redis.Client, prefix string) *RedisJobStore {
	if prefix == "" {
		prefix = "stepwise:"
	}
	return &RedisJobStore{client: client, prefix: prefix}
}

func (r *RedisJobStore) keyJob(id string) string {
	return r.prefix + "job:" + id
}

func (r *RedisJobStore) keySession(sessionID string) string {
	return r.prefix + "session:" + sessionID
}

func (r *RedisJobStore) keyAll() string {
	return r.prefix + "idx:jobs"
}

func (r *RedisJobStore) keyFlow(flow string) string {
	return r.prefix + "idx:flow:" + flow
}

func (r *RedisJobStore) SaveJob(ctx context.Context, job *api.SubmissionJob) error {
	data, err := corep.EncodeValue(*job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	// The session key is the uniqueness guard.
	ok, err := r.client.SetNX(ctx, r.keySession(job.SessionID), job.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return corep.ErrDuplicateSession
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keyJob(job.ID), data, 0)
	pipe.ZAdd(ctx, r.keyAll(), redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
	pipe.SAdd(ctx, r.keyFlow(job.Flow), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		_ = r.client.Del(ctx, r.keySession(job.SessionID)).Err()
		return err
	}
	return nil
}

func (r *RedisJobStore) UpdateJob(ctx context.Context, job *api.SubmissionJob) error {
	data, err := corep.EncodeValue(*job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	// XX: only overwrite an existing job.
	ok, err := r.client.SetXX(ctx, r.keyJob(job.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return corep.ErrJobNotFound
	}
	return nil
}

func (r *RedisJobStore) GetJob(ctx context.Context, id string) (*api.SubmissionJob, error) {
	data, err := r.client.Get(ctx, r.keyJob(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, corep.ErrJobNotFound
		}
		return nil, err
	}
	return decodeJob(data)
}

func (r *RedisJobStore) GetJobBySession(ctx context.Context, sessionID string) (*api.SubmissionJob, error) {
	id, err := r.client.Get(ctx, r.keySession(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, corep.ErrJobNotFound
		}
		return nil, err
	}
	return r.GetJob(ctx, id)
}

func (r *RedisJobStore) ListJobs(ctx context.Context, filter corep.JobFilter) ([]*api.SubmissionJob, error) {
	ids, err := r.client.ZRange(ctx, r.keyAll(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.keyJob(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var jobs []*api.SubmissionJob
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		if filter.SessionID != "" && job.SessionID != filter.SessionID {
			continue
		}
		if filter.Flow != "" && job.Flow != filter.Flow {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func decodeJob(data []byte) (*api.SubmissionJob, error) {
	job, err := corep.DecodeValue[api.SubmissionJob](data)
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, corep.ErrJobNotFound
	}
	return &job, nil
}

// RedisKVStore stores opaque values under <prefix>kv:<key>.
type RedisKVStore struct {
	client *redis.Client
	prefix string
}

var _ corep.KVStore = (*RedisKVStore)(nil)

func NewRedisKVStore(client *redis.Client, prefix string) *RedisKVStore {
	if prefix == "" {
		prefix = "stepwise:"
	}
	return &RedisKVStore{client: client, prefix: prefix}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+"kv:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, corep.ErrKeyNotFound
	}
	return v, err
}

func (r *RedisKVStore) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+"kv:"+key, value, 0).Err()
}
