package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/stepwise"
	"github.com/petrijr/stepwise/internal/persistence"

	mstore "github.com/petrijr/stepwise/mongo/internal/persistence"
	mqueue "github.com/petrijr/stepwise/mongo/internal/taskqueue"
)

// NewRuntime returns a Runtime that keeps submission jobs, achievements and
// queued tasks in the dbName database ("stepwise" when empty).
func NewRuntime(ctx context.Context, client *mongo.Client, dbName string, svcs stepwise.Services, cfg stepwise.Config) (*stepwise.Runtime, error) {
	jobs, err := mstore.NewMongoJobStore(ctx, client, dbName, "")
	if err != nil {
		return nil, err
	}
	p := persistence.Persistence{
		Jobs: jobs,
		KV:   mstore.NewMongoKVStore(client, dbName, ""),
	}
	return stepwise.NewRuntime(p, mqueue.NewMongoQueue(client, dbName, ""), svcs, cfg)
}
