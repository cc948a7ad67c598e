package docstore

import (
	"context"
	"sync"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

type memoryStore struct {
	mu   sync.RWMutex
	docs map[string]model.Snapshot
}

func init() {
	Register("memory", func(args interface{}) (Store, error) {
		return NewMemory(), nil
	})
}

// NewMemory returns a process-local store. Contents vanish on restart.
func NewMemory() Store {
	return &memoryStore{docs: make(map[string]model.Snapshot)}
}

func (s *memoryStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	if err := validateKey(docID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	snap, ok := s.docs[docID]
	s.mu.RUnlock()
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &snap, nil
}

func (s *memoryStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if err := validateKey(snap.DocumentID); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[snap.DocumentID] = *snap
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
