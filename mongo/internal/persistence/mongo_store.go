package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	corep "github.com/petrijr/stepwise/internal/persistence"
	"github.com/petrijr/stepwise/pkg/api"
)

// MongoJobStore is a JobStore keeping one document per submission job.
// A unique index on session_id enforces one job per session.
type MongoJobStore struct {
	coll *mongo.Collection
}

// Ensure it implements JobStore.
var _ corep.JobStore = (*MongoJobStore)(nil)

// NewMongoJobStore creates a Mongo-backed job store and its indexes.
// dbName defaults to "stepwise" if empty, collName defaults to "submission_jobs".
func NewMongoJobStore(ctx context.Context, client *mongo.Client, dbName, collName string) (*MongoJobStore, error) {
	if dbName == "" {
		dbName = "stepwise"
	}
	if collName == "" {
		collName = "submission_jobs"
	}
	coll := client.Database(dbName).Collection(collName)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoJobStore{coll: coll}, nil
}

type mongoJobDoc struct {
	ID        string `bson:"_id"`
	SessionID string `bson:"session_id"`
	Flow      string `bson:"flow"`
	Payload   []byte `bson:"payload,omitempty"`
	Calls     []byte `bson:"calls,omitempty"`
	// CallStates maps call name to state.
	CallStates map[string]string `bson:"call_states,omitempty"`
	ResultID   string            `bson:"result_id,omitempty"`
	CreatedAt  int64             `bson:"created_at"`
	UpdatedAt  int64             `bson:"updated_at"`
}

func toDoc(job *api.SubmissionJob) (mongoJobDoc, error) {
	payload, err := corep.EncodeValue(job.Payload)
	if err != nil {
		return mongoJobDoc{}, err
	}
	calls, err := corep.EncodeValue(job.Calls)
	if err != nil {
		return mongoJobDoc{}, err
	}
	states := make(map[string]string, len(job.Calls))
	for _, c := range job.Calls {
		states[string(c.Name)] = string(c.State)
	}
	return mongoJobDoc{
		ID:         job.ID,
		SessionID:  job.SessionID,
		Flow:       job.Flow,
		Payload:    payload,
		Calls:      calls,
		CallStates: states,
		ResultID:   job.ResultID,
		CreatedAt:  job.CreatedAt.UnixNano(),
		UpdatedAt:  job.UpdatedAt.UnixNano(),
	}, nil
}

func fromDoc(doc mongoJobDoc) (*api.SubmissionJob, error) {
	payload, err := corep.DecodeValue[api.SubmissionPayload](doc.Payload)
	if err != nil {
		return nil, err
	}
	calls, err := corep.DecodeValue[[]api.CallResult](doc.Calls)
	if err != nil {
		return nil, err
	}
	return &api.SubmissionJob{
		ID:        doc.ID,
		SessionID: doc.SessionID,
		Flow:      doc.Flow,
		Payload:   payload,
		Calls:     calls,
		ResultID:  doc.ResultID,
		CreatedAt: time.Unix(0, doc.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, doc.UpdatedAt).UTC(),
	}, nil
}

func (s *MongoJobStore) SaveJob(ctx context.Context, job *api.SubmissionJob) error {
	doc, err := toDoc(job)
	if err != nil {
		return err
	}
	_, err = s.coll.InsertOne(ctx, doc)
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			// _id collisions stay plain errors.
			if e.Code == 11000 && strings.Contains(e.Message, "session_id") {
				return corep.ErrDuplicateSession
			}
		}
	}
	return err
}

func (s *MongoJobStore) UpdateJob(ctx context.Context, job *api.SubmissionJob) error {
	doc, err := toDoc(job)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"flow":        doc.Flow,
			"payload":     doc.Payload,
			"calls":       doc.Calls,
			"call_states": doc.CallStates,
			"result_id":   doc.ResultID,
			"updated_at":  doc.UpdatedAt,
		},
	}
	res, err := s.coll.UpdateByID(ctx, job.ID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return corep.ErrJobNotFound
	}
	return nil
}

func (s *MongoJobStore) findOne(ctx context.Context, filter bson.M) (*api.SubmissionJob, error) {
	var doc mongoJobDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, corep.ErrJobNotFound
		}
		return nil, err
	}
	return fromDoc(doc)
}

func (s *MongoJobStore) GetJob(ctx context.Context, id string) (*api.SubmissionJob, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoJobStore) GetJobBySession(ctx context.Context, sessionID string) (*api.SubmissionJob, error) {
	return s.findOne(ctx, bson.M{"session_id": sessionID})
}

func (s *MongoJobStore) ListJobs(ctx context.Context, filter corep.JobFilter) ([]*api.SubmissionJob, error) {
	bfilter := bson.M{}
	if filter.SessionID != "" {
		bfilter["session_id"] = filter.SessionID
	}
	if filter.Flow != "" {
		bfilter["flow"] = filter.Flow
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var jobs []*api.SubmissionJob
	for cur.Next(ctx) {
		var doc mongoJobDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		job, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// MongoKVStore keeps opaque values in a {_id, value} collection.
type MongoKVStore struct {
	coll *mongo.Collection
}

var _ corep.KVStore = (*MongoKVStore)(nil)

// NewMongoKVStore creates a KV store. collName defaults to "kv".
func NewMongoKVStore(client *mongo.Client, dbName, collName string) *MongoKVStore {
	if dbName == "" {
		dbName = "stepwise"
	}
	if collName == "" {
		collName = "kv"
	}
	return &MongoKVStore{coll: client.Database(dbName).Collection(collName)}
}

type kvDoc struct {
	Key       string `bson:"_id"`
	Value     []byte `bson:"value"`
	UpdatedAt int64  `bson:"updated_at"`
}

func (s *MongoKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc kvDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, corep.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Value, nil
}

func (s *MongoKVStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.coll.UpdateByID(ctx, key,
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UnixNano()}},
		options.Update().SetUpsert(true),
	)
	return err
}
