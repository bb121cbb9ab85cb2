package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/events"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/resolve"
	"github.com/nhle/pmnotify/internal/session"
)

// response is one scripted ListNotifications result. A non-nil gate
// holds the call until it is closed; such calls signal held on entry.
type response struct {
	list []model.Notification
	err  error
	gate chan struct{}
}

type fakeAPI struct {
	mu       gosync.Mutex
	queue    []response
	list     []model.Notification
	fetches  int
	held     chan struct{}

	markReadErr error
	markAllErr  error
	deleteErr   error
	marked      []string
	markedAll   int
	deleted     []string
}

func newFakeAPI(list ...model.Notification) *fakeAPI {
	return &fakeAPI{list: list, held: make(chan struct{}, 16)}
}

func (f *fakeAPI) script(rs ...response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, rs...)
}

func (f *fakeAPI) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	f.mu.Lock()
	r := response{list: f.list}
	if len(f.queue) > 0 {
		r = f.queue[0]
		f.queue = f.queue[1:]
	}
	f.fetches++
	f.mu.Unlock()

	if r.gate != nil {
		f.held <- struct{}{}
		<-r.gate
	}
	return append([]model.Notification(nil), r.list...), r.err
}

func (f *fakeAPI) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return f.markReadErr
}

func (f *fakeAPI) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedAll++
	return f.markAllErr
}

func (f *fakeAPI) DeleteNotification(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeEntities struct {
	tasks    map[string]*model.Task
	comments map[string]*model.Comment
}

func (f *fakeEntities) GetTask(ctx context.Context, id string) (*model.Task, error) {
	if t, ok := f.tasks[id]; ok {
		return t, nil
	}
	return nil, &api.NotFoundError{Method: "GET", Path: "/api/tasks/" + id}
}

func (f *fakeEntities) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	if c, ok := f.comments[id]; ok {
		return c, nil
	}
	return nil, &api.NotFoundError{Method: "GET", Path: "/api/comments/" + id}
}

func (f *fakeEntities) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return nil, &api.NotFoundError{Method: "GET", Path: "/api/documents/" + id}
}

func unread(id string) model.Notification {
	return model.Notification{ID: id, Type: model.TypeMention, RawType: "mention", Message: "msg " + id}
}

func read(id string) model.Notification {
	n := unread(id)
	n.Read = true
	return n
}

func newTestSyncer(f *fakeAPI, opts Options) *Syncer {
	opts.API = f
	opts.Logger = zerolog.Nop()
	if opts.PopupTTL == 0 {
		opts.PopupTTL = time.Hour
	}
	return New(opts)
}

// startIdle marks s running without the periodic schedule so that tests
// drive every tick themselves.
func startIdle(t *testing.T, s *Syncer) {
	t.Helper()
	s.mu.Lock()
	s.running = true
	s.gen++
	s.stopCh = make(chan struct{})
	s.mu.Unlock()
	t.Cleanup(func() {
		s.Stop()
		s.Reset()
	})
}

func ids(ns []model.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func TestTickSurfacesNewUnreadAsPopups(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()

	f.script(
		response{list: []model.Notification{unread("a"), read("b")}},
		response{list: []model.Notification{unread("c"), unread("a"), read("b"), read("d")}},
	)

	require.NoError(t, s.Tick(ctx))
	snap := s.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(snap.Notifications))
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, []string{"a"}, s.PopupIDs())
	assert.False(t, snap.LastSync.IsZero())

	require.NoError(t, s.Tick(ctx))
	snap = s.Snapshot()
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(snap.Notifications))
	assert.Equal(t, 2, snap.UnreadCount)
	// a was already known; d arrived read.
	assert.Equal(t, []string{"a", "c"}, s.PopupIDs())
}

func TestTickWithoutStartIsRejected(t *testing.T) {
	s := newTestSyncer(newFakeAPI(), Options{})
	assert.ErrorIs(t, s.Tick(context.Background()), ErrNotRunning)
}

func TestTickErrorKeepsPreviousState(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()

	boom := errors.New("connection refused")
	f.script(
		response{list: []model.Notification{unread("a")}},
		response{err: boom},
		response{list: []model.Notification{unread("a")}},
	)

	require.NoError(t, s.Tick(ctx))
	assert.ErrorIs(t, s.Tick(ctx), boom)

	snap := s.Snapshot()
	assert.Equal(t, []string{"a"}, ids(snap.Notifications))
	assert.Equal(t, 1, snap.UnreadCount)
	assert.ErrorIs(t, snap.Err, boom)
	assert.True(t, snap.Running)

	require.NoError(t, s.Tick(ctx))
	assert.NoError(t, s.Snapshot().Err)
}

func TestTickSkippedWhileFetchInFlight(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()

	gate := make(chan struct{})
	f.script(response{list: []model.Notification{unread("a")}, gate: gate})

	done := make(chan error, 1)
	go func() { done <- s.Tick(ctx) }()
	<-f.held

	assert.ErrorIs(t, s.Tick(ctx), ErrSkipped)
	assert.Equal(t, 1, f.fetchCount())

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.Snapshot().UnreadCount)

	// The guard is released once the fetch lands.
	require.NoError(t, s.Tick(ctx))
}

func TestResetDropsResultOfEarlierFetch(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()

	gate := make(chan struct{})
	f.script(
		response{list: []model.Notification{unread("old")}, gate: gate},
		response{list: []model.Notification{unread("new")}},
	)

	done := make(chan error, 1)
	go func() { done <- s.Tick(ctx) }()
	<-f.held

	s.Reset()
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, []string{"new"}, ids(s.Snapshot().Notifications))

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"new"}, ids(s.Snapshot().Notifications))
	assert.Equal(t, []string{"new"}, s.PopupIDs())
}

func TestAuthErrorEndsSession(t *testing.T) {
	f := newFakeAPI()
	expired := 0
	s := newTestSyncer(f, Options{OnSessionExpired: func() { expired++ }})
	startIdle(t, s)
	ctx := context.Background()

	f.script(
		response{list: []model.Notification{unread("a")}},
		response{err: &api.AuthError{Method: "GET", Path: "/api/notifications"}},
	)

	require.NoError(t, s.Tick(ctx))
	err := s.Tick(ctx)
	assert.True(t, api.IsAuthError(err))

	assert.Equal(t, 1, expired)
	snap := s.Snapshot()
	assert.False(t, snap.Running)
	assert.Empty(t, snap.Notifications)
	assert.Zero(t, snap.UnreadCount)
	assert.Empty(t, snap.Popups)
}

func TestDuplicateIDsKeepFirst(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)

	first := unread("a")
	first.Message = "first"
	second := read("a")
	second.Message = "second"
	f.script(response{list: []model.Notification{first, unread("b"), second}})

	require.NoError(t, s.Tick(context.Background()))
	snap := s.Snapshot()
	require.Equal(t, []string{"a", "b"}, ids(snap.Notifications))
	assert.Equal(t, "first", snap.Notifications[0].Message)
	assert.Equal(t, 2, snap.UnreadCount)
}

func TestMarkAsReadIsOptimistic(t *testing.T) {
	f := newFakeAPI(unread("a"), unread("b"))
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))
	require.Equal(t, []string{"a", "b"}, s.PopupIDs())

	require.NoError(t, s.MarkAsRead(ctx, "a"))
	snap := s.Snapshot()
	assert.True(t, snap.Notifications[0].Read)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, []string{"b"}, s.PopupIDs())
	assert.Equal(t, []string{"a"}, f.marked)

	// Already read and unknown ids leave the count alone.
	require.NoError(t, s.MarkAsRead(ctx, "a"))
	require.NoError(t, s.MarkAsRead(ctx, "zzz"))
	assert.Equal(t, 1, s.Snapshot().UnreadCount)
	assert.Equal(t, []string{"a", "a", "zzz"}, f.marked)
}

func TestMarkAsReadSurvivesStaleFetch(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()

	gate := make(chan struct{})
	f.script(
		response{list: []model.Notification{unread("a")}},
		// Fetched before the mark-read below reached the server.
		response{list: []model.Notification{unread("a"), unread("b")}, gate: gate},
	)
	require.NoError(t, s.Tick(ctx))

	done := make(chan error, 1)
	go func() { done <- s.Tick(ctx) }()
	<-f.held

	require.NoError(t, s.MarkAsRead(ctx, "a"))
	close(gate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	require.Equal(t, []string{"a", "b"}, ids(snap.Notifications))
	assert.True(t, snap.Notifications[0].Read)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, []string{"b"}, s.PopupIDs())
}

func TestDeleteSurvivesStaleFetch(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()

	gate := make(chan struct{})
	f.script(
		response{list: []model.Notification{unread("a"), unread("b")}},
		response{list: []model.Notification{unread("a"), unread("b")}, gate: gate},
	)
	require.NoError(t, s.Tick(ctx))

	done := make(chan error, 1)
	go func() { done <- s.Tick(ctx) }()
	<-f.held

	require.NoError(t, s.DeleteNotification(ctx, "a"))
	close(gate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.Equal(t, []string{"b"}, ids(snap.Notifications))
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, []string{"b"}, s.PopupIDs())
}

func TestFailedMutationKeepsLocalChangeByDefault(t *testing.T) {
	f := newFakeAPI(unread("a"))
	f.markReadErr = errors.New("server unavailable")
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))

	err := s.MarkAsRead(ctx, "a")
	require.Error(t, err)

	snap := s.Snapshot()
	assert.True(t, snap.Notifications[0].Read)
	assert.Zero(t, snap.UnreadCount)
}

func TestRollbackRevertsFailedMutations(t *testing.T) {
	f := newFakeAPI(unread("a"), read("b"), unread("c"))
	f.markReadErr = errors.New("server unavailable")
	f.markAllErr = errors.New("server unavailable")
	f.deleteErr = errors.New("server unavailable")
	s := newTestSyncer(f, Options{RollbackOnFailure: true})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))

	require.Error(t, s.MarkAsRead(ctx, "a"))
	snap := s.Snapshot()
	assert.False(t, snap.Notifications[0].Read)
	assert.Equal(t, 2, snap.UnreadCount)

	require.Error(t, s.MarkAllAsRead(ctx))
	snap = s.Snapshot()
	assert.Equal(t, 2, snap.UnreadCount)
	assert.True(t, snap.Notifications[1].Read, "b was read before the call")

	require.Error(t, s.DeleteNotification(ctx, "b"))
	snap = s.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap.Notifications))
	assert.Equal(t, 2, snap.UnreadCount)

	// Dismissed popups stay dismissed.
	assert.Empty(t, s.PopupIDs())
}

func TestMarkAllAsRead(t *testing.T) {
	f := newFakeAPI(unread("a"), unread("b"), read("c"))
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))
	require.Len(t, s.PopupIDs(), 2)

	require.NoError(t, s.MarkAllAsRead(ctx))
	snap := s.Snapshot()
	assert.Zero(t, snap.UnreadCount)
	assert.Empty(t, snap.Popups)
	for _, n := range snap.Notifications {
		assert.True(t, n.Read, n.ID)
	}
	assert.Equal(t, 1, f.markedAll)
}

func TestPopupExpiresAfterTTL(t *testing.T) {
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{PopupTTL: 20 * time.Millisecond})
	startIdle(t, s)
	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, []string{"a"}, s.PopupIDs())

	assert.Eventually(t, func() bool {
		return len(s.PopupIDs()) == 0
	}, time.Second, 5*time.Millisecond)

	// Expiry is not a read.
	assert.Equal(t, 1, s.Snapshot().UnreadCount)
}

func TestPopupNotResurfacedAfterDismiss(t *testing.T) {
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))

	assert.True(t, s.DismissPopup("a"))
	assert.False(t, s.DismissPopup("a"))
	assert.Equal(t, 1, s.Snapshot().UnreadCount)

	require.NoError(t, s.Tick(ctx))
	assert.Empty(t, s.PopupIDs())
}

func TestOpenMarksReadAndResolvesProject(t *testing.T) {
	n := unread("a")
	n.RelatedTo = "c1"
	n.OnModel = model.EntityComment

	f := newFakeAPI(n)
	entities := &fakeEntities{
		tasks:    map[string]*model.Task{"t1": {ID: "t1", Project: "p1"}},
		comments: map[string]*model.Comment{"c1": {ID: "c1", Task: "t1"}},
	}
	s := newTestSyncer(f, Options{Resolver: resolve.New(entities)})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))

	projectID, err := s.Open(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "p1", projectID)
	assert.Equal(t, []string{"a"}, f.marked)
	assert.Zero(t, s.Snapshot().UnreadCount)
	assert.Empty(t, s.PopupIDs())
}

func TestOpenFailedLookupStillDismissesPopup(t *testing.T) {
	n := unread("a")
	n.RelatedTo = "missing"
	n.OnModel = model.EntityTask

	f := newFakeAPI(n, unread("b"))
	s := newTestSyncer(f, Options{Resolver: resolve.New(&fakeEntities{})})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))

	_, err := s.Open(ctx, "a")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, []string{"b"}, s.PopupIDs())
}

func TestOpenUnknownNotification(t *testing.T) {
	s := newTestSyncer(newFakeAPI(), Options{})
	startIdle(t, s)

	_, err := s.Open(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownNotification)
}

func TestStartRequiresUsableToken(t *testing.T) {
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{PollInterval: time.Hour})

	assert.False(t, s.Start(""))
	assert.False(t, s.Running())

	require.True(t, s.Start("opaque-token"))
	defer s.Stop()
	assert.True(t, s.Running())
	assert.True(t, s.Start("opaque-token"), "starting twice is a no-op")

	assert.Eventually(t, func() bool {
		return s.Snapshot().UnreadCount == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.fetchCount())
}

func TestBindSessionFollowsLoginAndLogout(t *testing.T) {
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{PollInterval: time.Hour})

	sessions, err := session.NewManager(session.NewMemoryStore(""), t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	unbind := s.BindSession(sessions)
	defer unbind()
	defer s.Stop()
	assert.False(t, s.Running())

	require.NoError(t, sessions.Login("opaque-token"))
	assert.True(t, s.Running())
	assert.Eventually(t, func() bool {
		return s.Snapshot().UnreadCount == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sessions.Logout())
	snap := s.Snapshot()
	assert.False(t, snap.Running)
	assert.Empty(t, snap.Notifications)
	assert.Empty(t, snap.Popups)
}

func TestBindRefreshRunsTick(t *testing.T) {
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{})
	startIdle(t, s)

	bus := &events.Bus[events.RefreshRequested]{}
	unbind := s.BindRefresh(bus)
	defer unbind()

	bus.Publish(events.RefreshRequested{Reason: "test"})
	assert.Eventually(t, func() bool {
		return s.Snapshot().UnreadCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEmptyFetchKeepsQueuedPopups(t *testing.T) {
	f := newFakeAPI()
	s := newTestSyncer(f, Options{})
	startIdle(t, s)
	ctx := context.Background()

	f.script(
		response{list: []model.Notification{unread("a")}},
		response{list: nil},
	)
	require.NoError(t, s.Tick(ctx))
	require.Equal(t, []string{"a"}, s.PopupIDs())

	require.NoError(t, s.Tick(ctx))
	snap := s.Snapshot()
	assert.Empty(t, snap.Notifications)
	assert.Zero(t, snap.UnreadCount)
	assert.Equal(t, []string{"a"}, s.PopupIDs())
}

func TestScheduleTicksEveryPollInterval(t *testing.T) {
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{PollInterval: 20 * time.Millisecond})

	require.True(t, s.Start("opaque-token"))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return f.fetchCount() >= 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotentAndEndsSchedule(t *testing.T) {
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{PollInterval: 20 * time.Millisecond})

	require.True(t, s.Start("opaque-token"))
	require.Eventually(t, func() bool {
		return f.fetchCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	// A tick that passed its running check before Stop may still fetch.
	time.Sleep(50 * time.Millisecond)
	settled := f.fetchCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, f.fetchCount())
	assert.ErrorIs(t, s.Tick(context.Background()), ErrNotRunning)
}

func TestPopupVisibleUntilDeadline(t *testing.T) {
	const ttl = 300 * time.Millisecond
	f := newFakeAPI(unread("a"))
	s := newTestSyncer(f, Options{PopupTTL: ttl})
	startIdle(t, s)

	before := time.Now()
	require.NoError(t, s.Tick(context.Background()))
	popups := s.Snapshot().Popups
	require.Len(t, popups, 1)
	assert.WithinDuration(t, before.Add(ttl), popups[0].Deadline, 100*time.Millisecond)

	assert.Never(t, func() bool {
		return len(s.PopupIDs()) == 0
	}, ttl/3, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(s.PopupIDs()) == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, time.Now().Before(before.Add(ttl)))
}

// cachedAPI hands out the same backing slice on every fetch. A non-nil
// gate holds the fetch like response.gate does.
type cachedAPI struct {
	*fakeAPI
	cached []model.Notification
	gate   chan struct{}
}

func (c *cachedAPI) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	if c.gate != nil {
		c.held <- struct{}{}
		<-c.gate
	}
	return c.cached, nil
}

func TestTickLeavesFetchedSliceUntouched(t *testing.T) {
	dup := unread("a")
	dup.Message = "duplicate"
	c := &cachedAPI{
		fakeAPI: newFakeAPI(),
		cached:  []model.Notification{unread("a"), dup, unread("b"), unread("c")},
	}
	original := append([]model.Notification(nil), c.cached...)

	s := New(Options{API: c, PopupTTL: time.Hour, Logger: zerolog.Nop()})
	startIdle(t, s)
	ctx := context.Background()
	require.NoError(t, s.Tick(ctx))
	assert.Equal(t, original, c.cached)

	// The delete is replayed on the result of the fetch it overlapped.
	c.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.Tick(ctx) }()
	<-c.held

	require.NoError(t, s.DeleteNotification(ctx, "b"))
	close(c.gate)
	require.NoError(t, <-done)

	assert.Equal(t, original, c.cached)
	assert.Equal(t, []string{"a", "c"}, ids(s.Snapshot().Notifications))
	assert.Equal(t, "msg a", s.Snapshot().Notifications[0].Message)
}
