// Package resolve finds the project a notification's related entity
// belongs to, so the UI can navigate there.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/model"
)

var (
	// ErrNoTarget means the notification points at nothing navigable.
	ErrNoTarget = errors.New("notification has no navigable target")

	// ErrUnresolved means a lookup succeeded but the entity has no
	// parent project.
	ErrUnresolved = errors.New("related entity has no project")
)

// Resolver walks from a notification's related entity to its project.
// Lookups run one after another with no retries; the first failure
// aborts the chain.
type Resolver struct {
	entities api.EntityAPI
}

// New creates a resolver backed by the given entity lookups.
func New(entities api.EntityAPI) *Resolver {
	return &Resolver{entities: entities}
}

// ProjectFor returns the id of the project to navigate to for n.
func (r *Resolver) ProjectFor(ctx context.Context, n model.Notification) (string, error) {
	if n.RelatedTo == "" {
		return "", ErrNoTarget
	}

	switch n.OnModel {
	case model.EntityProject:
		return n.RelatedTo, nil
	case model.EntityTask:
		return r.taskProject(ctx, n.RelatedTo)
	case model.EntityComment:
		return r.commentProject(ctx, n.RelatedTo)
	case model.EntityDocument:
		return r.documentProject(ctx, n.RelatedTo)
	case model.EntityNone:
		return "", ErrNoTarget
	}
	return "", ErrNoTarget
}

func (r *Resolver) taskProject(ctx context.Context, taskID string) (string, error) {
	task, err := r.entities.GetTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("resolving task %s: %w", taskID, err)
	}
	if task.Project == "" {
		return "", fmt.Errorf("task %s: %w", taskID, ErrUnresolved)
	}
	return string(task.Project), nil
}

func (r *Resolver) commentProject(ctx context.Context, commentID string) (string, error) {
	comment, err := r.entities.GetComment(ctx, commentID)
	if err != nil {
		return "", fmt.Errorf("resolving comment %s: %w", commentID, err)
	}
	if comment.Project != "" {
		return string(comment.Project), nil
	}
	if comment.Task != "" {
		return r.taskProject(ctx, string(comment.Task))
	}
	return "", fmt.Errorf("comment %s: %w", commentID, ErrUnresolved)
}

func (r *Resolver) documentProject(ctx context.Context, documentID string) (string, error) {
	doc, err := r.entities.GetDocument(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("resolving document %s: %w", documentID, err)
	}
	if doc.Project == "" {
		return "", fmt.Errorf("document %s: %w", documentID, ErrUnresolved)
	}
	return string(doc.Project), nil
}
