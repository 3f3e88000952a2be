// Package mongotask is a MongoDB-backed taskstore.Store, demonstrating that
// persistence is an implementation choice (§1): the wire JSON
// representation of a Task is stored verbatim as a document field rather
// than mapped field-by-field into BSON, so the store never drifts from the
// envelope the rest of the system already agrees on.
package mongotask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/a2a-runtime/taskstore"
	"goa.design/a2a-runtime/types"
)

// taskDocument is the MongoDB document shape. Payload holds the task's
// canonical JSON encoding; ID is duplicated into _id for indexed lookup.
type taskDocument struct {
	ID      string `bson:"_id"`
	Payload []byte `bson:"payload"`
}

// Store is a MongoDB implementation of taskstore.Store.
type Store struct {
	collection *mongo.Collection
}

var _ taskstore.Store = (*Store)(nil)

// New constructs a Store using the given collection. The collection should
// belong to a connected mongo.Client.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// Get implements taskstore.Store.
func (s *Store) Get(ctx context.Context, id string) (*types.Task, bool, error) {
	var doc taskDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("mongotask: get %q: %w", id, err)
	}
	var task types.Task
	if err := json.Unmarshal(doc.Payload, &task); err != nil {
		return nil, false, fmt.Errorf("mongotask: decode %q: %w", id, err)
	}
	return &task, true, nil
}

// Put implements taskstore.Store.
func (s *Store) Put(ctx context.Context, task *types.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("mongotask: encode %q: %w", task.ID, err)
	}
	doc := taskDocument{ID: task.ID, Payload: payload}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": task.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongotask: put %q: %w", task.ID, err)
	}
	return nil
}

// Delete implements taskstore.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongotask: delete %q: %w", id, err)
	}
	return nil
}
