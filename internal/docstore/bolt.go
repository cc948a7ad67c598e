package docstore

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

var boltBucket = []byte("documents")

type boltConfig struct {
	Path string `json:"path"`
}

type boltStore struct {
	db *bolt.DB
}

func init() {
	Register("bolt", createBoltStore)
}

func createBoltStore(args interface{}) (Store, error) {
	config := &boltConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Path == "" {
		return nil, fmt.Errorf("bolt store path is required")
	}
	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	_ = ctx
	if err := validateKey(docID); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(docID))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, appErr.ErrNotFound
	}
	return decodeSnapshot(docID, raw)
}

func (s *boltStore) Save(ctx context.Context, snap *model.Snapshot) error {
	_ = ctx
	if err := validateKey(snap.DocumentID); err != nil {
		return err
	}
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(snap.DocumentID), raw)
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
