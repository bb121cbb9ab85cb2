// Package testutil holds fixtures shared by the store, server and CLI tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/store"
)

// NewTestStore opens a migrated in-memory SQLiteStore that is closed when
// the test completes.
func NewTestStore(t testing.TB) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

// SeedNotifications stores messages for user, one second apart starting
// at base, and returns them with their ids in creation order.
func SeedNotifications(
	t testing.TB,
	s store.Store,
	user string,
	base time.Time,
	typ model.NotificationType,
	messages ...string,
) []model.Notification {
	t.Helper()

	out := make([]model.Notification, 0, len(messages))
	for i, msg := range messages {
		n, err := s.CreateNotification(context.Background(), user, model.Notification{
			Type:      typ,
			Message:   msg,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

// ProjectTree is one project with an entity of every kind under it.
type ProjectTree struct {
	Project       model.Project
	Task          model.Task
	TaskComment   model.Comment
	DirectComment model.Comment
	Document      model.Document
}

// SeedProjectTree creates a project holding a task, a comment on that
// task, a comment on the project itself and a document.
func SeedProjectTree(t testing.TB, s store.Store, name string) ProjectTree {
	t.Helper()
	ctx := context.Background()

	var tree ProjectTree
	var err error

	tree.Project, err = s.CreateProject(ctx, model.Project{Name: name})
	require.NoError(t, err)
	projectRef := model.Ref(tree.Project.ID)

	tree.Task, err = s.CreateTask(ctx, model.Task{Title: name + " kickoff", Project: projectRef})
	require.NoError(t, err)

	tree.TaskComment, err = s.CreateComment(ctx, model.Comment{
		Content: "on the task", Task: model.Ref(tree.Task.ID),
	})
	require.NoError(t, err)

	tree.DirectComment, err = s.CreateComment(ctx, model.Comment{
		Content: "on the project", Project: projectRef,
	})
	require.NoError(t, err)

	tree.Document, err = s.CreateDocument(ctx, model.Document{Name: name + ".pdf", Project: projectRef})
	require.NoError(t, err)

	return tree
}
