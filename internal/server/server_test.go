package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/broker"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/resolve"
	"github.com/nhle/pmnotify/internal/server"
	"github.com/nhle/pmnotify/internal/store"
	appsync "github.com/nhle/pmnotify/internal/sync"
	"github.com/nhle/pmnotify/tests/testutil"
)

var secret = []byte("test-secret")

type recordingHints struct {
	mu    sync.Mutex
	hints []broker.Hint
}

func (r *recordingHints) Publish(_ context.Context, h broker.Hint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hints = append(r.hints, h)
	return nil
}

func setup(t *testing.T) (*httptest.Server, *store.SQLiteStore, *recordingHints) {
	t.Helper()
	st := testutil.NewTestStore(t)
	hints := &recordingHints{}
	srv, err := server.New(server.Options{
		Store:  st,
		Secret: secret,
		Hints:  hints,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st, hints
}

func clientFor(t *testing.T, ts *httptest.Server, user string) *api.Client {
	t.Helper()
	token, err := server.IssueToken(secret, user, time.Hour)
	require.NoError(t, err)
	return api.NewClient(ts.URL, api.StaticToken(token), 5*time.Second)
}

func TestNotificationLifecycle(t *testing.T) {
	ts, _, hints := setup(t)
	ctx := context.Background()
	alice := clientFor(t, ts, "alice")
	bob := clientFor(t, ts, "bob")

	created, err := bob.CreateNotification(ctx, model.NewNotification{
		User:    "alice",
		Type:    "task_assigned",
		Message: "You were assigned Launch",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.TypeTaskAssigned, created.Type)

	require.Len(t, hints.hints, 1)
	assert.Equal(t, "alice", hints.hints[0].User)
	assert.Equal(t, created.ID, hints.hints[0].NotificationID)

	list, err := alice.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)

	// Bob cannot see or touch Alice's notifications.
	bobList, err := bob.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, bobList)
	assert.True(t, api.IsNotFound(bob.MarkRead(ctx, created.ID)))

	require.NoError(t, alice.MarkRead(ctx, created.ID))
	list, err = alice.ListNotifications(ctx)
	require.NoError(t, err)
	assert.True(t, list[0].Read)

	require.NoError(t, alice.MarkAllRead(ctx))
	require.NoError(t, alice.DeleteNotification(ctx, created.ID))

	list, err = alice.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.True(t, api.IsNotFound(alice.DeleteNotification(ctx, created.ID)))
}

func TestCreateNotificationValidation(t *testing.T) {
	ts, _, _ := setup(t)
	c := clientFor(t, ts, "alice")

	tests := []struct {
		name string
		req  model.NewNotification
	}{
		{name: "missing user", req: model.NewNotification{Type: "mention", Message: "m"}},
		{name: "missing message", req: model.NewNotification{User: "u", Type: "mention"}},
		{name: "unknown type", req: model.NewNotification{User: "u", Type: "bogus", Message: "m"}},
		{name: "related without model", req: model.NewNotification{User: "u", Type: "mention", Message: "m", RelatedTo: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateNotification(context.Background(), tt.req)
			var statusErr *api.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
		})
	}
}

func TestRejectsMissingOrBadToken(t *testing.T) {
	ts, _, _ := setup(t)
	ctx := context.Background()

	anonymous := api.NewClient(ts.URL, nil, time.Second)
	_, err := anonymous.ListNotifications(ctx)
	assert.True(t, api.IsAuthError(err))

	forged, err := server.IssueToken([]byte("other-secret"), "alice", time.Hour)
	require.NoError(t, err)
	_, err = api.NewClient(ts.URL, api.StaticToken(forged), time.Second).ListNotifications(ctx)
	assert.True(t, api.IsAuthError(err))

	expired, err := server.IssueToken(secret, "alice", -time.Minute)
	require.NoError(t, err)
	_, err = api.NewClient(ts.URL, api.StaticToken(expired), time.Second).ListNotifications(ctx)
	assert.True(t, api.IsAuthError(err))
}

func TestEntityEndpoints(t *testing.T) {
	ts, st, _ := setup(t)
	ctx := context.Background()
	c := clientFor(t, ts, "alice")

	p, err := st.CreateProject(ctx, model.Project{Name: "Apollo"})
	require.NoError(t, err)

	var task model.Task
	require.NoError(t, c.Post(ctx, "/api/tasks", model.Task{Title: "Launch", Project: model.Ref(p.ID)}, &task))
	require.NotEmpty(t, task.ID)

	got, err := c.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Ref(p.ID), got.Project)

	var comment model.Comment
	require.NoError(t, c.Post(ctx, "/api/comments", model.Comment{Content: "hi", Task: model.Ref(task.ID)}, &comment))
	gotComment, err := c.GetComment(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Ref(task.ID), gotComment.Task)

	var doc model.Document
	require.NoError(t, c.Post(ctx, "/api/documents", model.Document{Name: "brief.pdf", Project: model.Ref(p.ID)}, &doc))
	gotDoc, err := c.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Ref(p.ID), gotDoc.Project)

	_, err = c.GetTask(ctx, "missing")
	assert.True(t, api.IsNotFound(err))
}

func TestCORSPreflight(t *testing.T) {
	ts, _, _ := setup(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/notifications", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", "PUT")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "PUT"))
}

func TestIssueTokenRequiresSecretAndUser(t *testing.T) {
	_, err := server.IssueToken(nil, "alice", 0)
	assert.Error(t, err)
	_, err = server.IssueToken(secret, "", 0)
	assert.Error(t, err)
}

func TestResolverOverHTTP(t *testing.T) {
	ts, st, _ := setup(t)
	tree := testutil.SeedProjectTree(t, st, "Apollo")
	r := resolve.New(clientFor(t, ts, "alice"))
	ctx := context.Background()

	for _, tc := range []struct {
		kind model.EntityKind
		id   string
	}{
		{model.EntityProject, tree.Project.ID},
		{model.EntityTask, tree.Task.ID},
		{model.EntityComment, tree.TaskComment.ID},
		{model.EntityComment, tree.DirectComment.ID},
		{model.EntityDocument, tree.Document.ID},
	} {
		got, err := r.ProjectFor(ctx, model.Notification{ID: "n", OnModel: tc.kind, RelatedTo: tc.id})
		require.NoError(t, err, tc.kind.String())
		assert.Equal(t, tree.Project.ID, got, tc.kind.String())
	}

	_, err := r.ProjectFor(ctx, model.Notification{ID: "n", OnModel: model.EntityTask, RelatedTo: "gone"})
	assert.True(t, api.IsNotFound(err))
}

func TestSyncerAgainstServer(t *testing.T) {
	ts, st, _ := setup(t)
	base := time.Now().Add(-time.Hour)
	seeded := testutil.SeedNotifications(t, st, "alice", base, model.TypeTaskDue, "due soon", "overdue")

	token, err := server.IssueToken(secret, "alice", time.Hour)
	require.NoError(t, err)
	client := api.NewClient(ts.URL, api.StaticToken(token), 5*time.Second)

	syncer := appsync.New(appsync.Options{
		API:          client,
		Resolver:     resolve.New(client),
		PollInterval: time.Hour,
		PopupTTL:     time.Hour,
		Logger:       zerolog.Nop(),
	})
	require.True(t, syncer.Start(token))
	defer syncer.Stop()

	require.Eventually(t, func() bool {
		return syncer.Snapshot().UnreadCount == 2
	}, 2*time.Second, 10*time.Millisecond)
	// Newest first, as served.
	assert.Equal(t, []string{seeded[1].ID, seeded[0].ID}, syncer.PopupIDs())

	ctx := context.Background()
	require.NoError(t, syncer.MarkAsRead(ctx, seeded[1].ID))

	_, err = clientFor(t, ts, "bob").CreateNotification(ctx, model.NewNotification{
		User: "alice", Type: "mention", Message: "ping",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return syncer.Tick(ctx) == nil && syncer.Snapshot().UnreadCount == 2
	}, 2*time.Second, 10*time.Millisecond)

	snap := syncer.Snapshot()
	require.Len(t, snap.Notifications, 3)
	assert.Equal(t, "ping", snap.Notifications[0].Message)
	assert.Len(t, syncer.PopupIDs(), 2)

	stored, err := st.ListNotifications(ctx, "alice")
	require.NoError(t, err)
	for _, n := range stored {
		if n.ID == seeded[1].ID {
			assert.True(t, n.Read)
		}
	}
}
