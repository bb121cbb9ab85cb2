package store

import (
	"context"
	"errors"

	"github.com/nhle/pmnotify/internal/model"
)

// ErrNotFound is returned when a row does not exist (or belongs to
// another user).
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface behind the reference API server.
type Store interface {
	// === Notifications ===

	CreateNotification(ctx context.Context, userID string, n model.Notification) (model.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	// === Related entities ===

	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	CreateComment(ctx context.Context, c model.Comment) (model.Comment, error)
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	CreateDocument(ctx context.Context, d model.Document) (model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
}
