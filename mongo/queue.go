package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/stepwise"

	mqueue "github.com/petrijr/stepwise/mongo/internal/taskqueue"
)

// NewQueue returns a durable MongoDB-backed task queue.
func NewQueue(client *mongo.Client, dbName, collName string) stepwise.Queue {
	return mqueue.NewMongoQueue(client, dbName, collName)
}
