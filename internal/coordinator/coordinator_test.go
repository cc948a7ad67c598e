package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mcollab/internal/docstore"
	"github.com/xxxsen/mcollab/internal/model"
	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
	"github.com/xxxsen/mcollab/internal/session"
)

type fakeStore struct {
	mu           sync.Mutex
	docs         map[string]model.Snapshot
	loads        int
	saveAttempts int
	saves        []model.Snapshot
	loadGate     chan struct{}
	loadErr      error
	saveErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]model.Snapshot)}
}

func (f *fakeStore) Load(ctx context.Context, docID string) (*model.Snapshot, error) {
	f.mu.Lock()
	f.loads++
	gate := f.loadGate
	loadErr := f.loadErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if loadErr != nil {
		return nil, loadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.docs[docID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &snap, nil
}

func (f *fakeStore) Save(_ context.Context, snap *model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveAttempts++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.docs[snap.DocumentID] = *snap
	f.saves = append(f.saves, *snap)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) setSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveAttempts
}

func (f *fakeStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeStore) stored(docID string) (model.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.docs[docID]
	return snap, ok
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) send(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofType(typ string) []model.Event {
	var out []model.Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newClient(id string) (*session.Session, *recorder) {
	rec := &recorder{}
	return session.NewWithID(id, rec.send), rec
}

func newTestCoordinator(t *testing.T, st *fakeStore, opts Options) *Coordinator {
	c := New(st, opts)
	t.Cleanup(func() {
		st.setSaveErr(nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func change(docID, origin, content string, ts int64) model.ChangeRequest {
	return model.ChangeRequest{DocumentID: docID, OriginSessionID: origin, ProposedContent: content, ClientTimestamp: ts}
}

func TestTwoSessionsConvergeAndPersist(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: 30 * time.Millisecond, LoadTimeout: time.Second})
	ctx := context.Background()

	a, recA := newClient("a")
	b, recB := newClient("b")
	require.NoError(t, c.Join(ctx, a, "d1"))
	require.NoError(t, c.Join(ctx, b, "d1"))

	snapA := recA.ofType(model.EventSnapshot)
	require.Len(t, snapA, 1)
	require.Equal(t, "", snapA[0].Content)
	require.EqualValues(t, 0, snapA[0].Version)

	ok, err := c.Change(ctx, change("d1", "a", "hello", 100))
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, recA.ofType(model.EventChange))
	gotB := recB.ofType(model.EventChange)
	require.Len(t, gotB, 1)
	require.Equal(t, "hello", gotB[0].Content)
	require.EqualValues(t, 1, gotB[0].Version)

	ok, err = c.Change(ctx, change("d1", "b", "world", 100))
	require.NoError(t, err)
	require.True(t, ok)
	gotA := recA.ofType(model.EventChange)
	require.Len(t, gotA, 1)
	require.Equal(t, "world", gotA[0].Content)
	require.EqualValues(t, 2, gotA[0].Version)

	ok, err = c.Change(ctx, change("d1", "a", "late", 99))
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, recB.ofType(model.EventChange), 1)

	require.Eventually(t, func() bool { return st.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	snap, ok := st.stored("d1")
	require.True(t, ok)
	require.Equal(t, "world", snap.Content)
	require.EqualValues(t, 2, snap.Version)
	require.Equal(t, "b", snap.LastWriterID)

	require.NoError(t, c.Leave(ctx, "a", "d1"))
	require.NoError(t, c.Leave(ctx, "b", "d1"))
	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)

	again, recAgain := newClient("c")
	require.NoError(t, c.Join(ctx, again, "d1"))
	snaps := recAgain.ofType(model.EventSnapshot)
	require.Len(t, snaps, 1)
	require.Equal(t, "world", snaps[0].Content)
	require.EqualValues(t, 2, snaps[0].Version)
}

func TestDebounceCoalescesSaves(t *testing.T) {
	st := newFakeStore()
	debounce := 60 * time.Millisecond
	c := newTestCoordinator(t, st, Options{Debounce: debounce, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	contents := []string{"c0", "c1", "c2", "c3", "c4"}
	for i, content := range contents {
		ok, err := c.Change(ctx, change("d1", "a", content, int64(i+1)))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Eventually(t, func() bool { return st.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * debounce)
	require.Equal(t, 1, st.saveCount())
	snap, _ := st.stored("d1")
	require.Equal(t, "c4", snap.Content)
	require.EqualValues(t, 5, snap.Version)
}

func TestPresenceDoesNotPersist(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: 20 * time.Millisecond, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	require.NoError(t, c.UpdatePresence(ctx, "a", "d1", model.Cursor{Line: 1, Column: 2}))
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 0, st.attempts())
}

func TestIdleFlushHappensBeforeUnload(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: 50 * time.Millisecond, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	_, err := c.Change(ctx, change("d1", "a", "draft", 1))
	require.NoError(t, err)
	require.NoError(t, c.Leave(ctx, "a", "d1"))
	require.True(t, c.resident("d1"))

	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, st.saveCount())
	snap, _ := st.stored("d1")
	require.Equal(t, "draft", snap.Content)
}

func TestCleanRoomUnloadsImmediately(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: time.Hour, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	require.NoError(t, c.Leave(ctx, "a", "d1"))
	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, st.attempts())
}

func TestLoadTimeoutSurfacedToJoiner(t *testing.T) {
	st := newFakeStore()
	st.loadGate = make(chan struct{})
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	a, recA := newClient("a")
	err := c.Join(ctx, a, "d1")
	require.ErrorIs(t, err, appErr.ErrLoadTimeout)
	require.True(t, appErr.IsRetryable(err))
	require.Empty(t, recA.all())

	st.mu.Lock()
	close(st.loadGate)
	st.loadGate = nil
	st.mu.Unlock()

	require.NoError(t, c.Join(ctx, a, "d1"))
	require.Len(t, recA.ofType(model.EventSnapshot), 1)
}

func TestLoadFailureSurfacedToJoiner(t *testing.T) {
	st := newFakeStore()
	st.loadErr = errors.New("disk on fire")
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: time.Second})

	a, _ := newClient("a")
	err := c.Join(context.Background(), a, "d1")
	require.ErrorIs(t, err, appErr.ErrLoadFailed)
	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)
}

func TestQueuedJoinsShareOneLoad(t *testing.T) {
	st := newFakeStore()
	st.docs["d1"] = model.Snapshot{DocumentID: "d1", Content: "seed", Version: 3}
	gate := make(chan struct{})
	st.loadGate = gate
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: 2 * time.Second})
	ctx := context.Background()

	var wg sync.WaitGroup
	recs := make([]*recorder, 3)
	errs := make([]error, 3)
	for i := range recs {
		sess, rec := newClient(string(rune('a' + i)))
		recs[i] = rec
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Join(ctx, sess, "d1")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range recs {
		require.NoError(t, errs[i])
		snaps := recs[i].ofType(model.EventSnapshot)
		require.Len(t, snaps, 1)
		require.Equal(t, "seed", snaps[0].Content)
		require.EqualValues(t, 3, snaps[0].Version)
	}
	require.Equal(t, 1, st.loadCount())
	require.Equal(t, 3, c.Stats().Sessions)
}

func TestLeaveWhileLoadingDropsJoin(t *testing.T) {
	st := newFakeStore()
	gate := make(chan struct{})
	st.loadGate = gate
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: 2 * time.Second})
	ctx := context.Background()

	a, recA := newClient("a")
	done := make(chan error, 1)
	go func() { done <- c.Join(ctx, a, "d1") }()
	require.Eventually(t, func() bool { return st.loadCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Leave(ctx, "a", "d1"))
	require.ErrorIs(t, <-done, appErr.ErrClosed)
	close(gate)
	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)
	require.Empty(t, recA.all())
}

func TestSaveErrorRetriedOnNextChange(t *testing.T) {
	st := newFakeStore()
	st.setSaveErr(errors.New("store down"))
	c := newTestCoordinator(t, st, Options{Debounce: 20 * time.Millisecond, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	_, err := c.Change(ctx, change("d1", "a", "one", 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return st.attempts() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, st.attempts())

	st.setSaveErr(nil)
	_, err = c.Change(ctx, change("d1", "a", "two", 2))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return st.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	snap, _ := st.stored("d1")
	require.Equal(t, "two", snap.Content)
	require.EqualValues(t, 2, snap.Version)
}

func TestIdleSaveFailureKeepsDocumentResident(t *testing.T) {
	st := newFakeStore()
	st.setSaveErr(errors.New("store down"))
	c := newTestCoordinator(t, st, Options{Debounce: 10 * time.Millisecond, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	_, err := c.Change(ctx, change("d1", "a", "keep me", 1))
	require.NoError(t, err)
	require.NoError(t, c.Leave(ctx, "a", "d1"))

	require.Eventually(t, func() bool { return st.attempts() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.resident("d1"))

	st.setSaveErr(nil)
	require.Eventually(t, func() bool { return !c.resident("d1") }, 2*time.Second, 5*time.Millisecond)
	snap, ok := st.stored("d1")
	require.True(t, ok)
	require.Equal(t, "keep me", snap.Content)
}

func TestJoinDuringIdleReactivates(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: 100 * time.Millisecond, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	_, err := c.Change(ctx, change("d1", "a", "v1", 1))
	require.NoError(t, err)
	require.NoError(t, c.Leave(ctx, "a", "d1"))

	b, recB := newClient("b")
	require.NoError(t, c.Join(ctx, b, "d1"))
	snaps := recB.ofType(model.EventSnapshot)
	require.Len(t, snaps, 1)
	require.Equal(t, "v1", snaps[0].Content)
	require.Equal(t, 1, st.loadCount())

	require.Eventually(t, func() bool { return st.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, c.resident("d1"))
}

func TestPresenceBroadcastAndRemoval(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: time.Second})
	ctx := context.Background()

	a, recA := newClient("a")
	b, recB := newClient("b")
	require.NoError(t, c.Join(ctx, a, "d1"))
	require.NoError(t, c.Join(ctx, b, "d1"))

	require.NoError(t, c.UpdatePresence(ctx, "a", "d1", model.Cursor{Line: 3, Column: 7}))
	require.Empty(t, recA.ofType(model.EventPresence))
	got := recB.ofType(model.EventPresence)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].SessionID)
	require.Equal(t, 3, got[0].Line)
	require.Equal(t, 7, got[0].Column)

	late, recLate := newClient("c")
	require.NoError(t, c.Join(ctx, late, "d1"))
	lateEvents := recLate.all()
	require.Len(t, lateEvents, 2)
	require.Equal(t, model.EventSnapshot, lateEvents[0].Type)
	require.Equal(t, model.EventPresence, lateEvents[1].Type)
	require.Equal(t, "a", lateEvents[1].SessionID)

	entries, err := c.Presence(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, c.Leave(ctx, "a", "d1"))
	for _, rec := range []*recorder{recB, recLate} {
		removed := rec.ofType(model.EventPresenceRemoved)
		require.Len(t, removed, 1)
		require.Equal(t, "a", removed[0].SessionID)
	}
	entries, err = c.Presence(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestChangeRequiresMembership(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: time.Second})
	ctx := context.Background()

	_, err := c.Change(ctx, change("d1", "ghost", "x", 1))
	require.ErrorIs(t, err, appErr.ErrNotJoined)

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	_, err = c.Change(ctx, change("d1", "ghost", "x", 1))
	require.ErrorIs(t, err, appErr.ErrNotJoined)
	require.ErrorIs(t, c.UpdatePresence(ctx, "ghost", "d1", model.Cursor{}), appErr.ErrNotJoined)
	require.ErrorIs(t, c.Leave(ctx, "ghost", "d1"), appErr.ErrNotJoined)
	require.ErrorIs(t, c.Leave(ctx, "a", "nowhere"), appErr.ErrNotJoined)
}

func TestRehydratedDocumentKeepsProvenance(t *testing.T) {
	st := newFakeStore()
	st.docs["d1"] = model.Snapshot{DocumentID: "d1", Content: "old", Version: 7, LastWriterID: "x", LastWriteTimestamp: 500}
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	ok, err := c.Change(ctx, change("d1", "a", "stale", 400))
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = c.Change(ctx, change("d1", "a", "fresh", 600))
	require.NoError(t, err)
	require.True(t, ok)

	state, err := c.Snapshot(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "fresh", state.Content)
	require.EqualValues(t, 8, state.Version)
}

func TestSnapshotWithoutRoom(t *testing.T) {
	st := newFakeStore()
	st.docs["d1"] = model.Snapshot{DocumentID: "d1", Content: "stored", Version: 2}
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: time.Second})
	ctx := context.Background()

	state, err := c.Snapshot(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "stored", state.Content)
	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)

	state, err = c.Snapshot(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, "missing", state.ID)
	require.EqualValues(t, 0, state.Version)

	entries, err := c.Presence(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSnapshotDuringLoadSharesLoad(t *testing.T) {
	st := newFakeStore()
	st.docs["d1"] = model.Snapshot{DocumentID: "d1", Content: "seed", Version: 3}
	gate := make(chan struct{})
	st.loadGate = gate
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: 2 * time.Second})
	ctx := context.Background()

	a, recA := newClient("a")
	joined := make(chan error, 1)
	go func() { joined <- c.Join(ctx, a, "d1") }()
	require.Eventually(t, func() bool { return st.loadCount() == 1 }, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	states := make([]*model.DocumentState, 2)
	errs := make([]error, 2)
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i], errs[i] = c.Snapshot(ctx, "d1")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, <-joined)
	for i := range states {
		require.NoError(t, errs[i])
		require.Equal(t, "seed", states[i].Content)
		require.EqualValues(t, 3, states[i].Version)
	}
	require.Equal(t, 1, st.loadCount())
	require.Len(t, recA.ofType(model.EventSnapshot), 1)
	require.Equal(t, 1, c.Stats().Sessions)
}

func TestConcurrentSnapshotsLoadOnce(t *testing.T) {
	st := newFakeStore()
	st.docs["d1"] = model.Snapshot{DocumentID: "d1", Content: "seed", Version: 1}
	gate := make(chan struct{})
	st.loadGate = gate
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: 2 * time.Second})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Snapshot(ctx, "d1")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, st.loadCount())
	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)
}

func TestCachedStoreServesLatestAfterUnload(t *testing.T) {
	st := newFakeStore()
	st.docs["d1"] = model.Snapshot{DocumentID: "d1", Content: "v1", Version: 1}
	gate := make(chan struct{})
	st.loadGate = gate
	c := New(docstore.WrapLRU(st, 16, time.Minute), Options{Debounce: 20 * time.Millisecond, LoadTimeout: 2 * time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	ctx := context.Background()

	read := make(chan error, 1)
	go func() {
		_, err := c.Snapshot(ctx, "d1")
		read <- err
	}()
	require.Eventually(t, func() bool { return st.loadCount() == 1 }, time.Second, 5*time.Millisecond)

	a, _ := newClient("a")
	joined := make(chan error, 1)
	go func() { joined <- c.Join(ctx, a, "d1") }()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	require.NoError(t, <-read)
	require.NoError(t, <-joined)

	ok, err := c.Change(ctx, change("d1", "a", "v2", 10))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, c.Leave(ctx, "a", "d1"))
	require.Eventually(t, func() bool { return !c.resident("d1") }, time.Second, 5*time.Millisecond)

	b, recB := newClient("b")
	require.NoError(t, c.Join(ctx, b, "d1"))
	snaps := recB.ofType(model.EventSnapshot)
	require.Len(t, snaps, 1)
	require.Equal(t, "v2", snaps[0].Content)
	require.EqualValues(t, 2, snaps[0].Version)
	require.Equal(t, 1, st.loadCount())
}

func TestRejectedDocumentIDNotRetryable(t *testing.T) {
	st := newFakeStore()
	st.loadErr = fmt.Errorf("document id %q: %w", "../etc", appErr.ErrInvalid)
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	err := c.Join(ctx, a, "../etc")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.NotErrorIs(t, err, appErr.ErrLoadFailed)
	require.False(t, appErr.IsRetryable(err))

	_, err = c.Snapshot(ctx, "../etc")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Eventually(t, func() bool { return !c.resident("../etc") }, time.Second, 5*time.Millisecond)
}

func TestDisconnectLeavesEveryDocument(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st, Options{Debounce: time.Second, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	b, recB := newClient("b")
	for _, doc := range []string{"d1", "d2"} {
		require.NoError(t, c.Join(ctx, a, doc))
		require.NoError(t, c.Join(ctx, b, doc))
	}
	require.Equal(t, Stats{Documents: 2, Sessions: 4}, c.Stats())

	c.Disconnect(ctx, "a", []string{"d1", "d2", "d3"})
	require.Len(t, recB.ofType(model.EventPresenceRemoved), 2)
	require.Equal(t, Stats{Documents: 2, Sessions: 2}, c.Stats())
}

func TestCloseFlushesDirtyDocuments(t *testing.T) {
	st := newFakeStore()
	c := New(st, Options{Debounce: time.Hour, LoadTimeout: time.Second})
	ctx := context.Background()

	a, _ := newClient("a")
	require.NoError(t, c.Join(ctx, a, "d1"))
	require.NoError(t, c.Join(ctx, a, "d2"))
	_, err := c.Change(ctx, change("d1", "a", "unsaved", 1))
	require.NoError(t, err)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, c.Close(closeCtx))
	snap, ok := st.stored("d1")
	require.True(t, ok)
	require.Equal(t, "unsaved", snap.Content)
	_, ok = st.stored("d2")
	require.False(t, ok)

	require.ErrorIs(t, c.Join(ctx, a, "d1"), appErr.ErrClosed)
	require.Equal(t, Stats{}, c.Stats())
}
