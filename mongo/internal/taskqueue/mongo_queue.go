package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	coreq "github.com/petrijr/stepwise/internal/taskqueue"
)

// MongoQueue implements Queue on top of MongoDB.
//
// Collection schema:
//
//	{
//	  _id:        string,    // task ID
//	  job_id:     string,
//	  payload:    []byte,    // taskqueue.EncodeTask output
//	  not_before: int64,     // unix nanoseconds
//	  created_at: time.Time,
//	}
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "stepwise", collName to "submission_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "stepwise"
	}
	if collName == "" {
		collName = "submission_tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

// Ensure MongoQueue implements Queue.
var _ coreq.Queue = (*MongoQueue)(nil)

type mongoQueueDoc struct {
	ID        string    `bson:"_id"`
	JobID     string    `bson:"job_id"`
	Payload   []byte    `bson:"payload"`
	NotBefore int64     `bson:"not_before"`
	CreatedAt time.Time `bson:"created_at"`
}

// Enqueue inserts a document for the given Task.
func (q *MongoQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	nb := t.NotBefore
	if nb.IsZero() {
		nb = t.EnqueuedAt
	}
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	// A retried task keeps its ID; replace the previous document if any.
	_, err = q.coll.ReplaceOne(ctx,
		bson.M{"_id": t.ID},
		mongoQueueDoc{
			ID:        t.ID,
			JobID:     t.JobID,
			Payload:   data,
			NotBefore: nb.UnixNano(),
			CreatedAt: time.Now().UTC(),
		},
		options.Replace().SetUpsert(true),
	)
	return err
}

// Dequeue blocks (via polling) until a due task is available or ctx is
// cancelled. Claiming deletes the document.
func (q *MongoQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	// Reusable timer for polling when no tasks are available.
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

		filter := bson.M{"not_before": bson.M{"$lte": time.Now().UnixNano()}}
		opts := options.FindOneAndDelete().
			SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "created_at", Value: 1}})

		var doc mongoQueueDoc
		err := q.coll.FindOneAndDelete(ctx, filter, opts).Decode(&doc)
		if err == nil {
			return coreq.DecodeTask(doc.Payload)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
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

// Len returns an approximate number of queued tasks.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		slog.Warn("mongo_queue_len_failed", slog.String("error", err.Error()))
		return 0
	}
	return int(n)
}
