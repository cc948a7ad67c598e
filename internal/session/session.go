package session

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

// SendFunc delivers one event to the client behind a session. It is owned by
// the transport and must not block for long.
type SendFunc func(ctx context.Context, ev model.Event) error

// Session is one client connection as seen by the sync core. The core only
// ever talks to the connection through Send.
type Session struct {
	id     string
	send   SendFunc
	closed atomic.Bool
}

func New(send SendFunc) *Session {
	return NewWithID(uuid.NewString(), send)
}

func NewWithID(id string, send SendFunc) *Session {
	return &Session{id: id, send: send}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Send(ctx context.Context, ev model.Event) error {
	if s.closed.Load() {
		return appErr.ErrClosed
	}
	return s.send(ctx, ev)
}

// Close marks the session closed; later sends are refused without touching
// the connection.
func (s *Session) Close() {
	s.closed.Store(true)
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}
