package sync

import (
	"time"

	"github.com/nhle/pmnotify/internal/model"
)

// popupEntry is one Visible popup. Leaving the queue is the terminal
// Dismissed state; an entry is never reinserted.
type popupEntry struct {
	notification model.Notification
	addedAt      time.Time
	deadline     time.Time
	timer        *time.Timer
}

// popupQueue is the ordered set of visible popups, each with its own
// expiry timer. It is only touched with the Syncer mutex held; expiry
// callbacks take that mutex themselves.
type popupQueue struct {
	ttl      time.Duration
	entries  []*popupEntry
	onExpire func(*popupEntry)
}

func newPopupQueue(ttl time.Duration, onExpire func(*popupEntry)) *popupQueue {
	return &popupQueue{ttl: ttl, onExpire: onExpire}
}

// add surfaces n unless a popup for the same id is already visible.
func (q *popupQueue) add(n model.Notification, now time.Time) bool {
	if q.index(n.ID) >= 0 {
		return false
	}
	e := &popupEntry{
		notification: n,
		addedAt:      now,
		deadline:     now.Add(q.ttl),
	}
	e.timer = time.AfterFunc(q.ttl, func() { q.onExpire(e) })
	q.entries = append(q.entries, e)
	return true
}

// remove dismisses the popup for id. It reports whether one was visible.
func (q *popupQueue) remove(id string) bool {
	i := q.index(id)
	if i < 0 {
		return false
	}
	q.entries[i].timer.Stop()
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// removeEntry dismisses e if it is still the visible entry for its id.
// A timer firing for an entry that was already dismissed is a no-op.
func (q *popupQueue) removeEntry(e *popupEntry) bool {
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// clear dismisses every popup.
func (q *popupQueue) clear() {
	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = nil
}

func (q *popupQueue) index(id string) int {
	for i, e := range q.entries {
		if e.notification.ID == id {
			return i
		}
	}
	return -1
}

// ids returns the visible popup ids, oldest first.
func (q *popupQueue) ids() []string {
	out := make([]string, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.notification.ID
	}
	return out
}

func (q *popupQueue) snapshot() []Popup {
	out := make([]Popup, len(q.entries))
	for i, e := range q.entries {
		out[i] = Popup{
			Notification: e.notification,
			AddedAt:      e.addedAt,
			Deadline:     e.deadline,
		}
	}
	return out
}
