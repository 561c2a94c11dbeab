package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

// MongoRemote adapts one MongoDB collection to the Remote contract. The
// document id is a client-generated UUID stored under _id so the same
// records round-trip through the local cache unchanged.
type MongoRemote[T Record] struct {
	coll      *mongo.Collection
	newRecord func() T
}

// NewMongoRemote builds a MongoRemote over the named collection.
func NewMongoRemote[T Record](db *mongo.Database, name string, newRecord func() T) *MongoRemote[T] {
	return &MongoRemote[T]{coll: db.Collection(name), newRecord: newRecord}
}

// List returns every document in the collection.
func (r *MongoRemote[T]) List(ctx context.Context) ([]T, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]T, 0)
	for cursor.Next(ctx) {
		rec := r.newRecord()
		if err := cursor.Decode(rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// FindByID fetches a single document by id.
func (r *MongoRemote[T]) FindByID(ctx context.Context, id string) (T, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByField fetches the first document matching field = value.
func (r *MongoRemote[T]) FindByField(ctx context.Context, field, value string) (T, error) {
	return r.findOne(ctx, bson.M{field: value})
}

func (r *MongoRemote[T]) findOne(ctx context.Context, filter bson.M) (T, error) {
	rec := r.newRecord()
	err := r.coll.FindOne(ctx, filter).Decode(rec)
	if err != nil {
		var zero T
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return zero, err
	}
	return rec, nil
}

// Create inserts the record, assigning an id when absent.
func (r *MongoRemote[T]) Create(ctx context.Context, rec T) (T, error) {
	if rec.RecordID() == "" {
		rec.SetRecordID(uuid.NewString())
	}
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// Update applies a $set of the given fields and returns the stored document.
func (r *MongoRemote[T]) Update(ctx context.Context, id string, fields map[string]any) (T, error) {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		var zero T
		return zero, err
	}
	if res.MatchedCount == 0 {
		var zero T
		return zero, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return r.FindByID(ctx, id)
}

// Delete removes the document. Deleting an absent document is a no-op.
func (r *MongoRemote[T]) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Watch opens a change stream and invokes onChange per event. The stream
// runs until the returned stop function is called. Deployments without
// change stream support (standalone servers) report an error and the
// caller degrades to pull-only refresh.
func (r *MongoRemote[T]) Watch(ctx context.Context, onChange func()) (func(), error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := r.coll.Watch(streamCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer stream.Close(streamCtx)
		for stream.Next(streamCtx) {
			onChange()
		}
	}()

	return cancel, nil
}
