package session

import (
	"context"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mcollab/internal/model"
)

// Registry is the room of one document: the set of sessions joined to it.
type Registry struct {
	docID    string
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(docID string) *Registry {
	return &Registry{docID: docID, sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
}

func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *Registry) Has(sessionID string) bool {
	_, ok := r.Get(sessionID)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Broadcast sends ev to every member except exceptID. Send failures are
// logged and skipped; a closed or slow member never blocks the others.
func (r *Registry) Broadcast(ctx context.Context, ev model.Event, exceptID string) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == exceptID {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	sent := 0
	for _, s := range targets {
		if err := s.Send(ctx, ev); err != nil {
			logutil.GetLogger(ctx).Debug("drop event for session",
				zap.String("doc_id", r.docID),
				zap.String("session_id", s.ID()),
				zap.String("event", ev.Type),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}
