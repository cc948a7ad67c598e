package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

type mongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func init() {
	Register("mongo", createMongoStore)
}

func createMongoStore(args interface{}) (Store, error) {
	config := &mongoConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.URI == "" {
		return nil, fmt.Errorf("mongo store uri is required")
	}
	if config.Database == "" {
		config.Database = "mcollab"
	}
	if config.Collection == "" {
		config.Collection = "documents"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &mongoStore{
		client: client,
		coll:   client.Database(config.Database).Collection(config.Collection),
	}, nil
}

func (s *mongoStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	if err := validateKey(docID); err != nil {
		return nil, err
	}
	var snap model.Snapshot
	err := s.coll.FindOne(ctx, bson.M{"_id": docID}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *mongoStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if err := validateKey(snap.DocumentID); err != nil {
		return err
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": snap.DocumentID}, snap, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
