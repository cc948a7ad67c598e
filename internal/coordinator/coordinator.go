// Package coordinator keeps every open document converged across the sessions
// editing it. Each document is owned by one goroutine (its room) which
// serialises merges, presence updates, broadcasts and persistence for that
// document; rooms for different documents never share a lock. The coordinator
// itself only holds the map from document ID to room.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/mcollab/internal/docstore"
	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
	"github.com/xxxsen/mcollab/internal/session"
)

const (
	DefaultDebounce    = 2 * time.Second
	DefaultLoadTimeout = 5 * time.Second

	saveTimeout = 30 * time.Second
	opsBuffer   = 64
)

var errRoomAbsent = errors.New("room not resident")

type Options struct {
	// Debounce is the quiet period after the last accepted change before the
	// document is written to the store.
	Debounce time.Duration
	// LoadTimeout bounds how long joiners and readers wait for the initial
	// store read.
	LoadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = DefaultLoadTimeout
	}
	return o
}

type Stats struct {
	Documents int
	Sessions  int
}

type Coordinator struct {
	store docstore.Store
	opts  Options

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
	wg     sync.WaitGroup
}

func New(store docstore.Store, opts Options) *Coordinator {
	return &Coordinator{
		store: store,
		opts:  opts.withDefaults(),
		rooms: make(map[string]*room),
	}
}

// Join adds sess to the document's room and sends it the current snapshot.
// The first join of an unloaded document reads it from the store; concurrent
// joiners wait for that single read. A load that fails or exceeds the load
// timeout is returned as appErr.ErrLoadFailed / appErr.ErrLoadTimeout and the
// caller may simply retry; an ID the store rejects fails with appErr.ErrInvalid.
func (c *Coordinator) Join(ctx context.Context, sess *session.Session, docID string) error {
	if docID == "" || sess == nil {
		return appErr.ErrInvalid
	}
	res, err := c.submit(ctx, docID, true, &request{kind: opJoin, sess: sess, sessionID: sess.ID()})
	if err != nil {
		return err
	}
	return res.err
}

// Leave removes the session and its cursor from the document. When the room
// becomes empty any unsaved content is flushed before the room is unloaded.
func (c *Coordinator) Leave(ctx context.Context, sessionID, docID string) error {
	res, err := c.submit(ctx, docID, false, &request{kind: opLeave, sessionID: sessionID})
	if errors.Is(err, errRoomAbsent) {
		return appErr.ErrNotJoined
	}
	if err != nil {
		return err
	}
	return res.err
}

// Change merges req into the document. Accepted changes are broadcast to every
// other member of the room and restart the persistence debounce. Stale
// changes are dropped silently; the sender is corrected by the next broadcast.
func (c *Coordinator) Change(ctx context.Context, req model.ChangeRequest) (bool, error) {
	res, err := c.submit(ctx, req.DocumentID, false, &request{kind: opChange, sessionID: req.OriginSessionID, change: req})
	if errors.Is(err, errRoomAbsent) {
		return false, appErr.ErrNotJoined
	}
	if err != nil {
		return false, err
	}
	return res.accepted, res.err
}

// UpdatePresence records the session's cursor and broadcasts it to the rest
// of the room. Presence never triggers persistence.
func (c *Coordinator) UpdatePresence(ctx context.Context, sessionID, docID string, cursor model.Cursor) error {
	res, err := c.submit(ctx, docID, false, &request{kind: opPresence, sessionID: sessionID, cursor: cursor})
	if errors.Is(err, errRoomAbsent) {
		return appErr.ErrNotJoined
	}
	if err != nil {
		return err
	}
	return res.err
}

// Disconnect leaves every document in docIDs on behalf of a closed connection.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string, docIDs []string) {
	for _, docID := range docIDs {
		err := c.Leave(ctx, sessionID, docID)
		if err == nil || errors.Is(err, appErr.ErrNotJoined) || errors.Is(err, appErr.ErrClosed) {
			continue
		}
		logutil.GetLogger(ctx).Warn("leave on disconnect failed",
			zap.String("doc_id", docID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Snapshot returns the current state of a document without joining it. The
// read goes through the document's room so it shares any load already in
// flight and never races a save; a room brought up only for the read unloads
// again once it has answered.
func (c *Coordinator) Snapshot(ctx context.Context, docID string) (*model.DocumentState, error) {
	if docID == "" {
		return nil, appErr.ErrInvalid
	}
	res, err := c.submit(ctx, docID, true, &request{kind: opSnapshot})
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	state := res.state
	return &state, nil
}

// Presence lists the cursors currently known for a document. Documents that
// are not resident have no presence.
func (c *Coordinator) Presence(ctx context.Context, docID string) ([]model.PresenceEntry, error) {
	res, err := c.submit(ctx, docID, false, &request{kind: opPresenceList})
	if errors.Is(err, errRoomAbsent) {
		return []model.PresenceEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return res.entries, res.err
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{Documents: len(c.rooms)}
	for _, r := range c.rooms {
		st.Sessions += r.members.Len()
	}
	return st
}

// Close refuses new work, flushes every dirty document and stops all rooms.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	rooms := make([]*room, 0, len(c.rooms))
	for _, r := range c.rooms {
		r.pending++
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range rooms {
		g.Go(func() error {
			req := newRequest(&request{kind: opShutdown, ctx: gctx})
			r.ops <- req
			select {
			case res := <-req.reply:
				if res.err != nil {
					return fmt.Errorf("flush %s: %w", r.id, res.err)
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// acquire returns the room for docID, creating it when create is set. The
// returned room will not exit before it has dequeued the caller's request.
func (c *Coordinator) acquire(docID string, create bool) (*room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, appErr.ErrClosed
	}
	r, ok := c.rooms[docID]
	if !ok {
		if !create {
			return nil, errRoomAbsent
		}
		r = newRoom(c, docID)
		c.rooms[docID] = r
		c.wg.Add(1)
		go r.run()
	}
	r.pending++
	return r, nil
}

// submit hands req to the document's room and waits for its reply. Once
// handed over the request is always processed, even if ctx ends first.
func (c *Coordinator) submit(ctx context.Context, docID string, create bool, req *request) (result, error) {
	if docID == "" {
		return result{}, appErr.ErrInvalid
	}
	r, err := c.acquire(docID, create)
	if err != nil {
		return result{}, err
	}
	req = newRequest(req)
	r.ops <- req
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// evict removes r from the map if nobody is about to hand it work.
func (c *Coordinator) evict(r *room) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.pending > 0 {
		return false
	}
	if c.rooms[r.id] == r {
		delete(c.rooms, r.id)
	}
	return true
}

func (c *Coordinator) dequeued(r *room) {
	c.mu.Lock()
	r.pending--
	c.mu.Unlock()
}

func (c *Coordinator) resident(docID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[docID]
	return ok
}
