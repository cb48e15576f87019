package pagekit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps the page document in a MongoDB collection under the
// fixed _id pageDocumentKey, so the unique _id index enforces the singleton.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	// Nested documents must decode as maps, not ordered bson.D slices,
	// so Load can hand them to encoding/json.
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := s.adoptLegacy(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("adopt page document: %w", err)
	}
	return s, nil
}

func singletonFilter() bson.D {
	return bson.D{{Key: "_id", Value: pageDocumentKey}}
}

// adoptLegacy moves a page document saved under a generated ObjectId (the
// layout older deployments used) to the fixed _id. Extra documents are left
// alone and ignored.
func (s *MongoStore) adoptLegacy(ctx context.Context) error {
	err := s.coll.FindOne(ctx, singletonFilter()).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	var legacy bson.M
	err = s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: pageDocumentKey}}}},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&legacy)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		return err
	}
	oldID := legacy["_id"]
	legacy["_id"] = pageDocumentKey
	if _, err := s.coll.InsertOne(ctx, legacy); err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}
	_, err = s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oldID}})
	return err
}

// Ping checks that the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// Load returns the page document as JSON.
func (s *MongoStore) Load(ctx context.Context) (json.RawMessage, bool, error) {
	var doc bson.M
	err := s.coll.FindOne(ctx, singletonFilter()).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	delete(doc, "_id")
	delete(doc, "__v")
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("encode stored document: %w", err)
	}
	return raw, true, nil
}

// Save upserts the page document.
func (s *MongoStore) Save(ctx context.Context, p PageData) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, singletonFilter(), p, opts)
	// Two concurrent upserts of a missing document can both try to insert;
	// the loser sees a duplicate key and its retry becomes a replace.
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.coll.ReplaceOne(ctx, singletonFilter(), p, opts)
	}
	return err
}
