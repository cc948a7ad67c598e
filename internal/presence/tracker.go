// Package presence keeps the ephemeral cursor position of every session in a
// document. Nothing here is ever persisted.
package presence

import (
	"sort"
	"sync"

	"github.com/xxxsen/mcollab/internal/model"
)

type Tracker struct {
	docID   string
	mu      sync.RWMutex
	entries map[string]model.PresenceEntry
}

func NewTracker(docID string) *Tracker {
	return &Tracker{docID: docID, entries: make(map[string]model.PresenceEntry)}
}

func (t *Tracker) Update(entry model.PresenceEntry) model.PresenceEntry {
	entry.DocumentID = t.docID
	t.mu.Lock()
	t.entries[entry.SessionID] = entry
	t.mu.Unlock()
	return entry
}

func (t *Tracker) Remove(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[sessionID]; !ok {
		return false
	}
	delete(t.entries, sessionID)
	return true
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// List returns all entries ordered by session ID.
func (t *Tracker) List() []model.PresenceEntry {
	t.mu.RLock()
	out := make([]model.PresenceEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
