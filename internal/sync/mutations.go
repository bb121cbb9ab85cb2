package sync

import (
	"context"
	"fmt"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/resolve"
)

// MarkAsRead marks one notification read. The local view changes before
// the server call is made; the popup for the notification, if any, is
// dismissed. Without the rollback policy a failed call leaves the local
// change in place until the next tick corrects it.
func (s *Syncer) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	prev, present := s.state.all[id]
	wasUnread := present && !prev.Read
	if wasUnread {
		n := prev
		n.Read = true
		s.state.all[id] = n
		s.state.decrementUnread()
	}
	s.popups.remove(id)
	s.state.record(mutMarkRead, id, s.issued)
	s.mu.Unlock()
	s.notify()

	err := s.api.MarkRead(ctx, id)
	if err == nil {
		return nil
	}

	s.mutationFailed("mark read", id, err)
	if s.rollback && wasUnread {
		s.mu.Lock()
		if cur, ok := s.state.all[id]; ok && cur.Read {
			cur.Read = false
			s.state.all[id] = cur
		}
		s.state.forget(mutMarkRead, id)
		s.state.unread = s.state.countUnread()
		s.mu.Unlock()
		s.notify()
	}
	return fmt.Errorf("marking notification %s read: %w", id, err)
}

// MarkAllAsRead marks every notification read and dismisses all popups.
// The local change is visible before the server call returns.
func (s *Syncer) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	var flipped []string
	for id, n := range s.state.all {
		if !n.Read {
			n.Read = true
			s.state.all[id] = n
			flipped = append(flipped, id)
		}
	}
	s.state.unread = 0
	s.popups.clear()
	s.state.record(mutMarkAllRead, "", s.issued)
	s.mu.Unlock()
	s.notify()

	err := s.api.MarkAllRead(ctx)
	if err == nil {
		return nil
	}

	s.mutationFailed("mark all read", "", err)
	if s.rollback {
		s.mu.Lock()
		for _, id := range flipped {
			if cur, ok := s.state.all[id]; ok {
				cur.Read = false
				s.state.all[id] = cur
			}
		}
		s.state.forget(mutMarkAllRead, "")
		s.state.unread = s.state.countUnread()
		s.mu.Unlock()
		s.notify()
	}
	return fmt.Errorf("marking all notifications read: %w", err)
}

// DeleteNotification removes a notification locally, dismisses its
// popup, then deletes it on the server.
func (s *Syncer) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	prev, present := s.state.all[id]
	index := -1
	if present {
		delete(s.state.all, id)
		index = s.state.removeFromOrder(id)
		if !prev.Read {
			s.state.decrementUnread()
		}
	}
	s.popups.remove(id)
	s.state.record(mutDelete, id, s.issued)
	s.mu.Unlock()
	s.notify()

	err := s.api.DeleteNotification(ctx, id)
	if err == nil {
		return nil
	}

	s.mutationFailed("delete", id, err)
	if s.rollback && present {
		s.mu.Lock()
		s.state.insertAt(index, prev)
		s.state.forget(mutDelete, id)
		s.state.unread = s.state.countUnread()
		s.mu.Unlock()
		s.notify()
	}
	return fmt.Errorf("deleting notification %s: %w", id, err)
}

// DismissPopup closes the popup for id. It is purely local: the
// notification stays unread. It reports whether a popup was visible.
func (s *Syncer) DismissPopup(id string) bool {
	s.mu.Lock()
	removed := s.popups.remove(id)
	s.mu.Unlock()

	if removed {
		s.notify()
	}
	return removed
}

// Open is the action-click on a notification: it marks the notification
// read if needed, resolves the project to navigate to, and dismisses the
// popup whatever the outcome. A failed lookup is returned and nothing
// else changes.
func (s *Syncer) Open(ctx context.Context, id string) (string, error) {
	defer s.DismissPopup(id)

	s.mu.Lock()
	n, ok := s.state.all[id]
	if !ok {
		n, ok = s.popupNotification(id)
	}
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}

	if !n.Read {
		// The error is already logged; navigation still proceeds.
		_ = s.MarkAsRead(ctx, id)
	}

	if s.resolver == nil {
		return "", resolve.ErrNoTarget
	}

	projectID, err := s.resolver.ProjectFor(ctx, n)
	if err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("resolving notification target")
		return "", err
	}
	return projectID, nil
}

// popupNotification finds the notification carried by a visible popup.
// Called with s.mu held.
func (s *Syncer) popupNotification(id string) (model.Notification, bool) {
	for _, e := range s.popups.entries {
		if e.notification.ID == id {
			return e.notification, true
		}
	}
	return model.Notification{}, false
}

// mutationFailed logs a failed server call and routes auth failures to
// the session-expiry handler.
func (s *Syncer) mutationFailed(op, id string, err error) {
	if api.IsAuthError(err) {
		s.logger.Warn().Err(err).Str("op", op).Msg("session rejected by server")
		s.expireSession()
		return
	}
	s.logger.Error().Stack().Err(err).Str("op", op).Str("id", id).Msg("notification mutation failed")
}
