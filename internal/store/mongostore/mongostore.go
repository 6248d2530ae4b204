// Package mongostore implements the candle store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rickgao/candlefeed/internal/model"
)

// ErrDuplicate is returned when a document with the same dt already exists.
var ErrDuplicate = errors.New("duplicate candle open time")

// IndexName is the name of the unique dt index.
const IndexName = "dt_-1"

// DefaultConnectTimeout bounds the initial connection and ping.
const DefaultConnectTimeout = 10 * time.Second

// record is the stored document layout.
type record struct {
	Candle []float64 `bson:"candle"`
	DT     time.Time `bson:"dt"`
}

func toRecord(doc model.Document) record {
	return record{Candle: doc.Candle, DT: doc.DT.UTC()}
}

// indexModel describes the unique descending index on dt.
func indexModel() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "dt", Value: -1}},
		Options: options.Index().SetUnique(true).SetName(IndexName),
	}
}

// Store writes candle documents to MongoDB.
type Store struct {
	client *mongo.Client
}

// Connect dials MongoDB at uri and verifies the connection.
func Connect(ctx context.Context, uri string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) collection(dest model.Destination) *mongo.Collection {
	return s.client.Database(dest.Database).Collection(dest.Collection)
}

// EnsureIndex creates the unique dt index. Creating an existing identical index is a no-op.
func (s *Store) EnsureIndex(ctx context.Context, dest model.Destination) error {
	if _, err := s.collection(dest).Indexes().CreateOne(ctx, indexModel()); err != nil {
		return fmt.Errorf("create index on %s: %w", dest, err)
	}
	return nil
}

// Insert writes one candle document.
func (s *Store) Insert(ctx context.Context, dest model.Destination, doc model.Document) error {
	_, err := s.collection(dest).InsertOne(ctx, toRecord(doc))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s at %s", ErrDuplicate, dest, doc.DT.UTC().Format(time.RFC3339))
		}
		return fmt.Errorf("insert into %s: %w", dest, err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
