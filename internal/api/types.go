package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/pmnotify/internal/model"
)

// ErrorResponse is the error body returned by the API.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NotificationAPI is the upstream notification query/command surface the
// sync engine depends on.
type NotificationAPI interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// EntityAPI looks up the entities a notification can point at.
type EntityAPI interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
}

// ListNotifications calls GET /api/notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	if err := c.Get(ctx, "/api/notifications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead calls PUT /api/notifications/{id}/read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.Put(ctx, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllRead calls PUT /api/notifications/mark-all-read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.Put(ctx, "/api/notifications/mark-all-read", nil, nil)
}

// DeleteNotification calls DELETE /api/notifications/{id}.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.Delete(ctx, "/api/notifications/"+url.PathEscape(id))
}

// CreateNotification calls POST /api/notifications.
func (c *Client) CreateNotification(
	ctx context.Context,
	n model.NewNotification,
) (*model.Notification, error) {
	var out model.Notification
	if err := c.Post(ctx, "/api/notifications", n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask calls GET /api/tasks/{id}.
func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := c.Get(ctx, "/api/tasks/"+url.PathEscape(id), &t); err != nil {
		return nil, fmt.Errorf("fetching task %s: %w", id, err)
	}
	return &t, nil
}

// GetComment calls GET /api/comments/{id}.
func (c *Client) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	var cm model.Comment
	if err := c.Get(ctx, "/api/comments/"+url.PathEscape(id), &cm); err != nil {
		return nil, fmt.Errorf("fetching comment %s: %w", id, err)
	}
	return &cm, nil
}

// GetDocument calls GET /api/documents/{id}.
func (c *Client) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	if err := c.Get(ctx, "/api/documents/"+url.PathEscape(id), &d); err != nil {
		return nil, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return &d, nil
}
