package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

type redisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type redisStore struct {
	client *redis.Client
	prefix string
}

func init() {
	Register("redis", createRedisStore)
}

func createRedisStore(args interface{}) (Store, error) {
	config := &redisConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Addr == "" {
		return nil, fmt.Errorf("redis store addr is required")
	}
	if config.Prefix == "" {
		config.Prefix = "mcollab:doc:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &redisStore{client: client, prefix: config.Prefix}, nil
}

func (s *redisStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	if err := validateKey(docID); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.prefix+docID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(docID, raw)
}

func (s *redisStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if err := validateKey(snap.DocumentID); err != nil {
		return err
	}
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+snap.DocumentID, raw, 0).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
