package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mcollab/internal/merge"
	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
	"github.com/xxxsen/mcollab/internal/pkg/timeutil"
	"github.com/xxxsen/mcollab/internal/presence"
	"github.com/xxxsen/mcollab/internal/session"
)

type roomState int

const (
	stateUnloaded roomState = iota
	stateLoading
	stateActive
	stateIdle
)

func (s roomState) String() string {
	switch s {
	case stateUnloaded:
		return "unloaded"
	case stateLoading:
		return "loading"
	case stateActive:
		return "active"
	case stateIdle:
		return "idle"
	}
	return "unknown"
}

type opKind int

const (
	opJoin opKind = iota + 1
	opLeave
	opChange
	opPresence
	opSnapshot
	opPresenceList
	opShutdown
)

type request struct {
	kind      opKind
	ctx       context.Context
	sess      *session.Session
	sessionID string
	change    model.ChangeRequest
	cursor    model.Cursor
	reply     chan result
}

type result struct {
	accepted bool
	state    model.DocumentState
	entries  []model.PresenceEntry
	err      error
}

func newRequest(req *request) *request {
	if req.ctx == nil {
		req.ctx = context.Background()
	}
	req.reply = make(chan result, 1)
	return req
}

type loadResult struct {
	seq  int
	snap *model.Snapshot
	err  error
}

type saveResult struct {
	version int64
	err     error
}

// room owns one document. Everything below ops is touched only by run.
type room struct {
	id  string
	c   *Coordinator
	ops chan *request
	// pending counts requests handed to ops but not yet dequeued; guarded by c.mu.
	pending int

	ctx      context.Context
	log      *zap.Logger
	state    roomState
	doc      model.DocumentState
	members  *session.Registry
	presence *presence.Tracker

	waiters     []*request
	loadSeq     int
	loadCh      chan loadResult
	loadCancel  context.CancelFunc
	loadTimer   *time.Timer
	loadTimeout <-chan time.Time

	dirty      bool
	flushTimer *time.Timer
	flushC     <-chan time.Time
	saving     bool
	saveQueued bool
	saveCh     chan saveResult
	retry      *backoff.ExponentialBackOff
	retryTimer *time.Timer
	retryC     <-chan time.Time

	shutdown bool
}

func newRoom(c *Coordinator, docID string) *room {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = c.opts.Debounce
	retry.MaxElapsedTime = 0
	retry.Reset()
	return &room{
		id:       docID,
		c:        c,
		ops:      make(chan *request, opsBuffer),
		ctx:      context.Background(),
		log:      logutil.GetLogger(context.Background()).With(zap.String("doc_id", docID)),
		state:    stateUnloaded,
		doc:      model.NewDocumentState(docID),
		members:  session.NewRegistry(docID),
		presence: presence.NewTracker(docID),
		retry:    retry,
	}
}

func (r *room) run() {
	defer r.c.wg.Done()
	defer r.stopTimers()
	for {
		select {
		case req := <-r.ops:
			r.c.dequeued(r)
			r.handle(req)
		case res := <-r.loadCh:
			r.onLoaded(res)
		case <-r.loadTimeout:
			r.onLoadTimeout()
		case <-r.flushC:
			r.flushTimer, r.flushC = nil, nil
			if r.dirty {
				r.flush()
			}
		case res := <-r.saveCh:
			r.onSaved(res)
		case <-r.retryC:
			r.retryTimer, r.retryC = nil, nil
			if r.dirty && !r.saving {
				r.log.Info("retry save of idle document", zap.Int64("version", r.doc.Version))
				r.flush()
			}
		}
		if r.settle() {
			r.log.Debug("document unloaded", zap.Stringer("from", r.state))
			return
		}
	}
}

func (r *room) handle(req *request) {
	if r.shutdown {
		req.reply <- result{err: appErr.ErrClosed}
		return
	}
	switch req.kind {
	case opJoin:
		r.handleJoin(req)
	case opLeave:
		req.reply <- result{err: r.handleLeave(req.sessionID)}
	case opChange:
		accepted, err := r.handleChange(req.change)
		req.reply <- result{accepted: accepted, err: err}
	case opPresence:
		req.reply <- result{err: r.handlePresence(req.sessionID, req.cursor)}
	case opSnapshot:
		r.handleSnapshot(req)
	case opPresenceList:
		req.reply <- result{entries: r.presence.List()}
	case opShutdown:
		req.reply <- result{err: r.handleShutdown(req.ctx)}
	default:
		req.reply <- result{err: fmt.Errorf("unknown op %d: %w", req.kind, appErr.ErrInvalid)}
	}
}

func (r *room) handleJoin(req *request) {
	if r.wait(req) {
		return
	}
	req.reply <- result{err: r.admit(req.sess)}
}

func (r *room) handleSnapshot(req *request) {
	if r.wait(req) {
		return
	}
	req.reply <- result{state: r.doc}
}

// wait parks req until the document is loaded, starting the load if nobody
// has yet. It reports false when the document is already resident.
func (r *room) wait(req *request) bool {
	switch r.state {
	case stateUnloaded:
		r.waiters = append(r.waiters, req)
		r.startLoad()
		return true
	case stateLoading:
		r.waiters = append(r.waiters, req)
		return true
	}
	return false
}

// admit registers sess and brings it up to date: the snapshot first, then
// every cursor already in the room.
func (r *room) admit(sess *session.Session) error {
	if err := sess.Send(r.ctx, model.SnapshotEvent(r.doc)); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}
	for _, entry := range r.presence.List() {
		if entry.SessionID == sess.ID() {
			continue
		}
		if err := sess.Send(r.ctx, model.PresenceEvent(entry)); err != nil {
			return fmt.Errorf("send presence: %w", err)
		}
	}
	r.members.Add(sess)
	if r.state == stateIdle {
		r.log.Debug("document active again")
	}
	r.state = stateActive
	return nil
}

func (r *room) handleLeave(sessionID string) error {
	for i, j := range r.waiters {
		if j.kind == opJoin && j.sessionID == sessionID {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			j.reply <- result{err: appErr.ErrClosed}
			return nil
		}
	}
	if !r.members.Remove(sessionID) {
		return appErr.ErrNotJoined
	}
	r.presence.Remove(sessionID)
	r.members.Broadcast(r.ctx, model.PresenceRemovedEvent(r.id, sessionID), sessionID)
	return nil
}

func (r *room) handleChange(req model.ChangeRequest) (bool, error) {
	if !r.members.Has(req.OriginSessionID) {
		return false, appErr.ErrNotJoined
	}
	next, accepted := merge.Merge(r.doc, req)
	if !accepted {
		r.log.Debug("stale change dropped",
			zap.String("session_id", req.OriginSessionID),
			zap.Int64("client_ts", req.ClientTimestamp),
			zap.Int64("last_ts", r.doc.LastWriteTimestamp),
		)
		return false, nil
	}
	r.doc = next
	r.members.Broadcast(r.ctx, model.ChangeEvent(r.doc), req.OriginSessionID)
	r.dirty = true
	r.resetFlushTimer()
	return true, nil
}

func (r *room) handlePresence(sessionID string, cursor model.Cursor) error {
	if !r.members.Has(sessionID) {
		return appErr.ErrNotJoined
	}
	entry := r.presence.Update(model.PresenceEntry{
		SessionID: sessionID,
		Cursor:    cursor,
		UpdatedAt: timeutil.NowMilli(),
	})
	r.members.Broadcast(r.ctx, model.PresenceEvent(entry), sessionID)
	return nil
}

// handleShutdown waits for an in-flight save, then writes whatever is still
// dirty. Later requests are answered with ErrClosed until the room drains.
func (r *room) handleShutdown(ctx context.Context) error {
	r.shutdown = true
	r.stopTimers()
	r.failWaiters(appErr.ErrClosed)
	if r.saving {
		select {
		case res := <-r.saveCh:
			r.onSaved(res)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !r.dirty {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := r.c.store.Save(saveCtx, r.doc.ToSnapshot(timeutil.NowUnix())); err != nil {
		r.log.Error("final save failed", zap.Int64("version", r.doc.Version), zap.Error(err))
		return err
	}
	r.dirty = false
	return nil
}

func (r *room) startLoad() {
	r.state = stateLoading
	r.loadSeq++
	seq := r.loadSeq
	ctx, cancel := context.WithTimeout(context.Background(), r.c.opts.LoadTimeout)
	ch := make(chan loadResult, 1)
	r.loadCh = ch
	r.loadCancel = cancel
	r.loadTimer = time.NewTimer(r.c.opts.LoadTimeout)
	r.loadTimeout = r.loadTimer.C
	go func() {
		snap, err := r.c.store.Load(ctx, r.id)
		ch <- loadResult{seq: seq, snap: snap, err: err}
	}()
}

func (r *room) endLoad() {
	if r.loadCancel != nil {
		r.loadCancel()
	}
	if r.loadTimer != nil {
		r.loadTimer.Stop()
	}
	r.loadCh, r.loadCancel, r.loadTimer, r.loadTimeout = nil, nil, nil, nil
}

func (r *room) onLoaded(res loadResult) {
	if res.seq != r.loadSeq || r.state != stateLoading {
		return
	}
	r.endLoad()
	switch {
	case res.err == nil:
		r.doc = model.StateFromSnapshot(res.snap)
		r.doc.ID = r.id
	case appErr.IsNotFound(res.err):
		r.doc = model.NewDocumentState(r.id)
	case errors.Is(res.err, appErr.ErrInvalid):
		r.loadFailed(appErr.ErrInvalid, res.err)
		return
	case errors.Is(res.err, context.DeadlineExceeded):
		r.loadFailed(appErr.ErrLoadTimeout, res.err)
		return
	default:
		r.loadFailed(appErr.ErrLoadFailed, res.err)
		return
	}
	r.log.Debug("document loaded", zap.Int64("version", r.doc.Version), zap.Int("waiters", len(r.waiters)))
	// admit moves the room to active once a joiner is registered.
	r.state = stateIdle
	waiters := r.waiters
	r.waiters = nil
	for _, w := range waiters {
		if w.kind == opSnapshot {
			w.reply <- result{state: r.doc}
			continue
		}
		w.reply <- result{err: r.admit(w.sess)}
	}
}

func (r *room) onLoadTimeout() {
	if r.state != stateLoading {
		return
	}
	r.endLoad()
	r.loadFailed(appErr.ErrLoadTimeout, context.DeadlineExceeded)
}

func (r *room) loadFailed(kind error, cause error) {
	r.log.Error("load document failed", zap.Int("waiters", len(r.waiters)), zap.Error(cause))
	r.state = stateUnloaded
	r.doc = model.NewDocumentState(r.id)
	r.failWaiters(fmt.Errorf("load %s: %w", r.id, kind))
}

func (r *room) failWaiters(err error) {
	for _, w := range r.waiters {
		w.reply <- result{err: err}
	}
	r.waiters = nil
}

func (r *room) resetFlushTimer() {
	if r.flushTimer != nil {
		r.flushTimer.Stop()
	}
	r.flushTimer = time.NewTimer(r.c.opts.Debounce)
	r.flushC = r.flushTimer.C
}

// flush starts an asynchronous save of the current state. Saves never
// overlap; asking while one is running queues exactly one more.
func (r *room) flush() {
	if r.saving {
		r.saveQueued = true
		return
	}
	snap := r.doc.ToSnapshot(timeutil.NowUnix())
	ch := make(chan saveResult, 1)
	r.saving = true
	r.saveCh = ch
	store := r.c.store
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		ch <- saveResult{version: snap.Version, err: store.Save(ctx, snap)}
	}()
}

func (r *room) onSaved(res saveResult) {
	r.saving = false
	r.saveCh = nil
	if res.err != nil {
		r.log.Error("save document failed", zap.Int64("version", res.version), zap.Error(res.err))
		if r.members.Len() == 0 && !r.shutdown && r.retryC == nil {
			delay := r.retry.NextBackOff()
			if delay == backoff.Stop {
				delay = r.retry.MaxInterval
			}
			r.retryTimer = time.NewTimer(delay)
			r.retryC = r.retryTimer.C
		}
	} else {
		r.retry.Reset()
		if res.version == r.doc.Version {
			r.dirty = false
		}
		r.log.Debug("document saved", zap.Int64("version", res.version))
	}
	if r.saveQueued {
		r.saveQueued = false
		if r.dirty && !r.shutdown {
			r.flush()
		}
	}
}

// settle runs after every event and reports whether the room may stop. A
// room without members goes idle, flushes what it still holds, and unloads
// once clean.
func (r *room) settle() bool {
	if r.shutdown {
		return r.c.evict(r)
	}
	if r.state == stateLoading || len(r.waiters) > 0 || r.members.Len() > 0 {
		return false
	}
	if r.state == stateActive {
		r.state = stateIdle
	}
	if r.dirty {
		if r.flushC == nil && r.retryC == nil && !r.saving {
			r.flush()
		}
		return false
	}
	if r.saving {
		return false
	}
	return r.c.evict(r)
}

func (r *room) stopTimers() {
	if r.flushTimer != nil {
		r.flushTimer.Stop()
	}
	if r.retryTimer != nil {
		r.retryTimer.Stop()
	}
	r.flushTimer, r.flushC = nil, nil
	r.retryTimer, r.retryC = nil, nil
	r.endLoad()
}
