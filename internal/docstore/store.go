// Package docstore persists document snapshots keyed by document ID. It is the
// only part of the server that touches long-term storage.
package docstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/xxxsen/mcollab/internal/config"
	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

// Store loads and saves snapshots. Load returns appErr.ErrNotFound for a
// document that was never saved. Save overwrites whatever is stored.
type Store interface {
	Load(ctx context.Context, docID string) (*model.Snapshot, error)
	Save(ctx context.Context, snap *model.Snapshot) error
	Close() error
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.StoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
	st, err := factory(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init %s store: %w", key, err)
	}
	if cfg.CacheSize > 0 {
		st = WrapLRU(st, cfg.CacheSize, cfg.CacheTTL())
	}
	return st, nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}

func encodeSnapshot(snap *model.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func decodeSnapshot(docID string, raw []byte) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", docID, err)
	}
	if snap.DocumentID == "" {
		snap.DocumentID = docID
	}
	return snap, nil
}

func validateKey(docID string) error {
	if strings.TrimSpace(docID) == "" {
		return fmt.Errorf("empty document id: %w", appErr.ErrInvalid)
	}
	return nil
}
