package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mcollab/internal/model"
)

// WrapLRU puts a read-through, write-through snapshot cache in front of st so
// rehydrating a recently evicted document skips the backend.
func WrapLRU(st Store, size int, ttl time.Duration) Store {
	if st == nil || size <= 0 || ttl <= 0 {
		return st
	}
	return &lruStore{
		next:  st,
		cache: expirable.NewLRU[string, model.Snapshot](size, nil, ttl),
	}
}

type lruStore struct {
	next  Store
	cache *expirable.LRU[string, model.Snapshot]

	mu sync.Mutex
	// epoch advances on every successful save; a backend read that started
	// before a save completed must not repopulate the cache.
	epoch uint64
}

func (l *lruStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	l.mu.Lock()
	cached, ok := l.cache.Get(docID)
	epoch := l.epoch
	l.mu.Unlock()
	if ok {
		logutil.GetLogger(ctx).Debug("snapshot cache hit", zap.String("doc_id", docID))
		return &cached, nil
	}
	snap, err := l.next.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch != epoch {
		if newer, ok := l.cache.Get(docID); ok && newer.Version >= snap.Version {
			return &newer, nil
		}
		return snap, nil
	}
	l.store(docID, *snap)
	return snap, nil
}

func (l *lruStore) Save(ctx context.Context, snap *model.Snapshot) error {
	if err := l.next.Save(ctx, snap); err != nil {
		return err
	}
	l.mu.Lock()
	l.epoch++
	l.store(snap.DocumentID, *snap)
	l.mu.Unlock()
	return nil
}

// store caches snap unless a newer version is already held. Callers hold mu.
func (l *lruStore) store(docID string, snap model.Snapshot) {
	if cur, ok := l.cache.Peek(docID); ok && cur.Version > snap.Version {
		return
	}
	l.cache.Add(docID, snap)
}

func (l *lruStore) Close() error {
	l.mu.Lock()
	l.cache.Purge()
	l.mu.Unlock()
	return l.next.Close()
}
